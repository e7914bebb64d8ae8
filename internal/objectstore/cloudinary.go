package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
)

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

func (c CloudinaryConfig) Configured() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

type cloudinaryAPI interface {
	Upload(ctx context.Context, file interface{}, uploadParams uploader.UploadParams) (*uploader.UploadResult, error)
}

// Cloudinary uploads images to a Cloudinary account. The key's directory
// becomes the folder and its base name without extension the public id.
type Cloudinary struct {
	api    cloudinaryAPI
	folder string
}

func NewCloudinary(cfg CloudinaryConfig) (*Cloudinary, error) {
	c, err := config.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	up, err := uploader.NewWithConfiguration(c)
	if err != nil {
		return nil, fmt.Errorf("cloudinary uploader: %w", err)
	}
	return &Cloudinary{api: up, folder: cfg.Folder}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, key, _ string, r io.Reader) (string, error) {
	dir, file := path.Split(key)
	folder := strings.Trim(path.Join(c.folder, dir), "/")
	publicID := strings.TrimSuffix(file, path.Ext(file))

	res, err := c.api.Upload(ctx, r, uploader.UploadParams{
		Folder:   folder,
		PublicID: publicID,
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload %s: %w", key, err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload %s: %s", key, res.Error.Message)
	}
	return res.SecureURL, nil
}
