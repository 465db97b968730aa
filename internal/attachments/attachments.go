// Package attachments stores report screenshots outside the database and
// returns the public URL for each stored object.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
)

// ErrUnsupportedType is returned for content types that are not images we keep.
var ErrUnsupportedType = errors.New("unsupported attachment content type")

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/heic": ".heic",
	"image/webp": ".webp",
}

// Image is one raw attachment payload.
type Image struct {
	Data        []byte
	ContentType string
}

// Store persists an image for an app and returns its public URL.
type Store interface {
	Put(ctx context.Context, appID string, img Image) (string, error)
}

// Supported reports whether contentType can be stored.
func Supported(contentType string) bool {
	_, ok := extensions[contentType]
	return ok
}

// objectKey builds "<appID>/<yyyy>/<mm>/<uuid><ext>".
func objectKey(appID string, img Image, now time.Time) (string, error) {
	ext, ok := extensions[img.ContentType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, img.ContentType)
	}
	return path.Join(appID, now.Format("2006"), now.Format("01"), uuid.New().String()+ext), nil
}
