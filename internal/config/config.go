package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Attachment backends.
const (
	AttachmentBackendS3   = "s3"
	AttachmentBackendDisk = "disk"
	AttachmentBackendNone = "none"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT (issued upstream, validated here)
	JWTSecret string

	// Admin
	AdminEmails  string
	AdminUserIDs string
	AdminToken   string

	// Server
	Port        string
	CORSOrigins string
	AppEnv      string
	SentryDSN   string

	// App registry
	AppsConfigPath string

	// Deduplication
	DedupWindow time.Duration

	// Attachments
	AttachmentBackend  string
	S3Bucket           string
	S3Region           string
	S3PublicBaseURL    string
	AWSEndpointURL     string
	UploadDir          string
	UploadPublicPath   string
	MaxAttachments     int
	MaxAttachmentBytes int64

	// Logging
	LogRetentionDays int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real env vars take precedence.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "report_intake"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		AdminEmails:  getEnv("ADMIN_EMAILS", ""),
		AdminUserIDs: getEnv("ADMIN_USER_IDS", ""),
		AdminToken:   getEnv("ADMIN_TOKEN", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		AppEnv:      getEnv("APP_ENV", "development"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),

		AppsConfigPath: getEnv("APPS_CONFIG_PATH", "apps.json"),

		DedupWindow: parseDuration(getEnv("DEDUP_WINDOW", "168h"), 7*24*time.Hour),

		AttachmentBackend:  strings.ToLower(getEnv("ATTACHMENT_BACKEND", AttachmentBackendDisk)),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Region:           getEnv("S3_REGION", "us-east-1"),
		S3PublicBaseURL:    getEnv("S3_PUBLIC_BASE_URL", ""),
		AWSEndpointURL:     getEnv("AWS_ENDPOINT_URL", ""),
		UploadDir:          getEnv("UPLOAD_DIR", "./uploads/reports"),
		UploadPublicPath:   getEnv("UPLOAD_PUBLIC_PATH", "/uploads/reports"),
		MaxAttachments:     parseInt(getEnv("MAX_ATTACHMENTS", "5"), 5),
		MaxAttachmentBytes: int64(parseInt(getEnv("MAX_ATTACHMENT_BYTES", "10485760"), 10*1024*1024)),

		LogRetentionDays: parseInt(getEnv("LOG_RETENTION_DAYS", "30"), 30),
	}
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	if c.DBPassword == "" {
		return errors.New("DB_PASSWORD environment variable is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	switch c.AttachmentBackend {
	case AttachmentBackendS3:
		if c.S3Bucket == "" {
			return errors.New("S3_BUCKET is required when ATTACHMENT_BACKEND=s3")
		}
	case AttachmentBackendDisk, AttachmentBackendNone:
	default:
		return errors.New("ATTACHMENT_BACKEND must be one of s3, disk, none")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
