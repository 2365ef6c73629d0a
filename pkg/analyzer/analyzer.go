// Package analyzer inspects user-supplied images before they are sent to a
// vision model.
package analyzer

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	_ "golang.org/x/image/webp"
)

// ImageAnalyzer checks uploads for format, size and dimensions
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	MaxBytes         int64
}

// DefaultConfig returns the limits applied to uploads.
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpg", "jpeg", "png", "webp"},
		MinImageSize:     32,
		MaxBytes:         16 << 20,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Format      string  `json:"format"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
	Bytes       int     `json:"bytes"`
}

// Inspect reads an upload, decodes it and validates format and dimensions.
// The raw bytes are returned alongside the decoded image.
func (a *ImageAnalyzer) Inspect(reader io.Reader) (image.Image, []byte, ImageInfo, error) {
	limit := a.config.MaxBytes
	if limit <= 0 {
		limit = DefaultConfig().MaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, nil, ImageInfo{}, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, nil, ImageInfo{}, fmt.Errorf("image exceeds %d bytes", limit)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, ImageInfo{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if !a.isFormatSupported(format) {
		return nil, nil, ImageInfo{}, fmt.Errorf("unsupported image format: %s", format)
	}
	if err := a.ValidateImage(img); err != nil {
		return nil, nil, ImageInfo{}, err
	}

	info := a.GetImageInfo(img)
	info.Format = format
	info.Bytes = len(data)
	return img, data, info, nil
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}
