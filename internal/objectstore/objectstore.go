// Package objectstore stores uploaded images and hands back the URL that
// tasks, rewards and member avatars keep.
package objectstore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxImageSize is the largest upload accepted.
const MaxImageSize = 5 << 20

var ErrNotConfigured = errors.New("object storage not configured")

// Uploader puts an object at key and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) (string, error)
}

var extensions = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// Extension returns the file extension for an image content type, or "" when
// the type is not an accepted image.
func Extension(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	return extensions[strings.ToLower(strings.TrimSpace(ct))]
}

// ImageKey returns a fresh key under the family's image folder.
func ImageKey(familyID, ext string, now time.Time) string {
	return path.Join(familyID, "images", now.UTC().Format("2006/01"), uuid.NewString()+ext)
}

// Disabled rejects every upload.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, string, io.Reader) (string, error) {
	return "", ErrNotConfigured
}
