package validate

import (
	"encoding/base64"
	"fmt"
	"strings"

	"genrouter/internal/core"
)

// ImageValidator provides image validation functionality
type ImageValidator struct {
	maxBytes int64
}

// NewImageValidator creates a new image validator
func NewImageValidator() *ImageValidator {
	return &ImageValidator{maxBytes: core.MaxImageSizeBytes}
}

// ValidateImageData validates base64 encoded image data
func (v *ImageValidator) ValidateImageData(mediaType, data string) error {
	if !v.isFormatSupported(mediaType) {
		return fmt.Errorf("unsupported image format: %s. Supported formats: %v",
			mediaType, core.SupportedImageFormats)
	}

	// Pre-check base64 string length to avoid OOM from decoding huge data
	estimatedSize := int64(len(data)) * 3 / 4
	if estimatedSize > v.maxBytes {
		return fmt.Errorf("image data too large: estimated %d bytes exceeds %d limit", estimatedSize, v.maxBytes)
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("invalid base64 data: %w", err)
	}

	if int64(len(decoded)) > v.maxBytes {
		return fmt.Errorf("image size %d bytes exceeds maximum allowed size %d bytes",
			len(decoded), v.maxBytes)
	}

	return nil
}

// ValidateImageRef accepts an http(s) URL as-is and checks data URLs
// for format and size.
func (v *ImageValidator) ValidateImageRef(ref string) error {
	if !strings.HasPrefix(ref, "data:") {
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			return nil
		}
		return fmt.Errorf("image must be a data URL or an http(s) URL")
	}
	mediaType, data, ok := ParseDataURL(ref)
	if !ok {
		return fmt.Errorf("malformed data URL")
	}
	return v.ValidateImageData(mediaType, data)
}

func (v *ImageValidator) isFormatSupported(mediaType string) bool {
	for _, format := range core.SupportedImageFormats {
		if strings.EqualFold(format, mediaType) {
			return true
		}
	}
	return false
}

// ParseDataURL splits a base64 data URL into its media type and payload.
func ParseDataURL(url string) (mediaType, data string, ok bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", "", false
	}
	parts := strings.SplitN(url, ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	headerParts := strings.Split(strings.TrimPrefix(parts[0], "data:"), ";")
	if len(headerParts) < 2 || headerParts[len(headerParts)-1] != "base64" {
		return "", "", false
	}
	return headerParts[0], parts[1], true
}
