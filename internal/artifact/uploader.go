package artifact

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"time"

	"genrouter/internal/core"
	"genrouter/internal/util"
	"genrouter/internal/validate"
)

// ObjectStore is the bucket the uploader writes to.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, content []byte) error
	URL(ctx context.Context, key string) (string, error)
}

var extensions = map[string]string{
	core.ImageFormatPNG:  "png",
	core.ImageFormatJPEG: "jpg",
	core.ImageFormatGIF:  "gif",
	core.ImageFormatWebP: "webp",
}

// Uploader replaces inline base64 images with object storage URLs.
type Uploader struct {
	store  ObjectStore
	prefix string
	logger core.Logger
	now    func() time.Time
}

func NewUploader(store ObjectStore, prefix string, logger core.Logger) *Uploader {
	if prefix == "" {
		prefix = "images"
	}
	if logger == nil {
		logger = &core.NopLogger{}
	}
	return &Uploader{store: store, prefix: strings.Trim(prefix, "/"), logger: logger, now: time.Now}
}

// Persist uploads every data URL image of res and returns a copy pointing
// at the stored objects. Images that already are URLs are kept. If any
// upload fails the original result is returned unchanged.
func (u *Uploader) Persist(ctx context.Context, res *core.ImageResult) *core.ImageResult {
	if res == nil {
		return nil
	}
	images := make([]string, len(res.Images))
	for i, img := range res.Images {
		mediaType, data, ok := validate.ParseDataURL(img)
		if !ok {
			images[i] = img
			continue
		}
		url, err := u.upload(ctx, mediaType, data)
		if err != nil {
			u.logger.Warn("image upload failed, returning inline images: %v", err)
			return res
		}
		images[i] = url
	}

	out := *res
	out.Images = images
	return &out
}

func (u *Uploader) upload(ctx context.Context, mediaType, data string) (string, error) {
	content, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	ext, ok := extensions[mediaType]
	if !ok {
		ext = "bin"
	}
	key := path.Join(u.prefix, u.now().UTC().Format("2006/01/02"), util.NewRequestID()+"."+ext)

	if err := u.store.Put(ctx, key, mediaType, content); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	url, err := u.store.URL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("url for %s: %w", key, err)
	}
	u.logger.Debug("uploaded image %s (%d bytes)", key, len(content))
	return url, nil
}
