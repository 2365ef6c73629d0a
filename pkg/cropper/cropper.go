// Package cropper cuts detected objects out of photos so they can be reused
// as per-class training samples.
package cropper

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/waste-sorter/internal/utils"
	"github.com/menta2k/waste-sorter/pkg/types"
)

// DetectionCropper turns normalized detection boxes into image crops
type DetectionCropper struct {
	config CropConfig
}

// CropConfig holds configuration for detection cropping
type CropConfig struct {
	// PaddingRatio grows each box by this fraction of its size on every side.
	PaddingRatio float64
	// Size, when positive, resizes every crop to a Size x Size square.
	Size int
	// MinSide drops crops whose width or height is below this many pixels.
	MinSide int
	// Quality is the JPEG quality used by SaveCrops.
	Quality int
}

// New creates a new DetectionCropper with default configuration
func New() *DetectionCropper {
	return &DetectionCropper{
		config: CropConfig{
			PaddingRatio: 0.1,
			Size:         0,
			MinSide:      16,
			Quality:      95,
		},
	}
}

// NewWithConfig creates a new DetectionCropper with custom configuration
func NewWithConfig(config CropConfig) *DetectionCropper {
	return &DetectionCropper{config: config}
}

// CropResult is one detected object cut out of the source image
type CropResult struct {
	Image      image.Image
	Label      string
	Confidence float64
	Region     image.Rectangle
}

// CropDetection crops the area of det out of img.
func (c *DetectionCropper) CropDetection(img image.Image, det types.Detection) (CropResult, error) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return CropResult{}, fmt.Errorf("invalid image dimensions")
	}

	region := c.regionFor(det.Box, bounds)
	if region.Dx() < c.config.MinSide || region.Dy() < c.config.MinSide || region.Empty() {
		return CropResult{}, fmt.Errorf("crop %dx%d for %q is below the minimum side of %d",
			region.Dx(), region.Dy(), det.Label, c.config.MinSide)
	}

	var cropped image.Image = imaging.Crop(img, region)
	if c.config.Size > 0 {
		cropped = imaging.Fill(cropped, c.config.Size, c.config.Size, imaging.Center, imaging.Lanczos)
	}

	return CropResult{
		Image:      cropped,
		Label:      det.Label,
		Confidence: det.Confidence,
		Region:     region,
	}, nil
}

// CropDetections crops every detection that yields a usable region.
func (c *DetectionCropper) CropDetections(img image.Image, detections []types.Detection) []CropResult {
	var results []CropResult
	for _, det := range detections {
		if det.Label == "" {
			continue
		}
		result, err := c.CropDetection(img, det)
		if err != nil {
			continue
		}
		results = append(results, result)
	}
	return results
}

// SaveCrops writes each crop to <root>/<label>/<base>_<i>.jpg and returns the
// written paths.
func (c *DetectionCropper) SaveCrops(root, base string, crops []CropResult) ([]string, error) {
	quality := c.config.Quality
	if quality < 1 || quality > 100 {
		quality = 95
	}
	base = utils.SanitizeFilename(strings.TrimSuffix(filepath.Base(base), filepath.Ext(base)))

	var paths []string
	for i, crop := range crops {
		dir := filepath.Join(root, LabelDir(crop.Label))
		if err := utils.EnsureDir(dir); err != nil {
			return paths, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s_%d.jpg", base, i))
		if err := imaging.Save(crop.Image, path, imaging.JPEGQuality(quality)); err != nil {
			return paths, fmt.Errorf("failed to save crop %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// LabelDir turns a detection label into a directory name.
func LabelDir(label string) string {
	name := strings.Join(strings.Fields(strings.ToLower(label)), "_")
	name = utils.SanitizeFilename(name)
	if name == "" {
		return "unlabeled"
	}
	return name
}

func (c *DetectionCropper) regionFor(box types.Box, bounds image.Rectangle) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	padX := box.W * c.config.PaddingRatio
	padY := box.H * c.config.PaddingRatio

	x1 := bounds.Min.X + int(math.Floor((box.X-padX)*w))
	y1 := bounds.Min.Y + int(math.Floor((box.Y-padY)*h))
	x2 := bounds.Min.X + int(math.Ceil((box.X+box.W+padX)*w))
	y2 := bounds.Min.Y + int(math.Ceil((box.Y+box.H+padY)*h))

	return image.Rect(x1, y1, x2, y2).Intersect(bounds)
}
