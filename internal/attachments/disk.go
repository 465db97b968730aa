package attachments

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// DiskStore writes attachments under a local directory that the HTTP server
// exposes at publicPath.
type DiskStore struct {
	dir        string
	publicPath string
	now        func() time.Time
}

func NewDiskStore(dir, publicPath string) *DiskStore {
	return &DiskStore{
		dir:        dir,
		publicPath: "/" + strings.Trim(publicPath, "/"),
		now:        time.Now,
	}
}

func (s *DiskStore) Put(ctx context.Context, appID string, img Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.ContainsAny(appID, `/\`) || appID == "" || appID == "." || appID == ".." {
		return "", fmt.Errorf("invalid app id for attachment path: %q", appID)
	}

	key, err := objectKey(appID, img, s.now().UTC())
	if err != nil {
		return "", err
	}

	savePath := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	if err := os.WriteFile(savePath, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save attachment: %w", err)
	}
	return path.Join(s.publicPath, key), nil
}
