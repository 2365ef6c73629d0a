package augment

import (
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/disintegration/imaging"
)

// Transform is one randomized augmentation step, applied with probability P.
type Transform struct {
	Name  string
	P     float64
	Apply func(img image.Image, rng *rand.Rand) image.Image
}

// Pipeline applies its transforms in order.
type Pipeline []Transform

// DefaultCropSize is the side of the square produced by RandomResizedCrop.
const DefaultCropSize = 224

// DefaultPipeline returns the augmentation chain used for the waste dataset.
func DefaultPipeline() Pipeline {
	return Pipeline{
		{Name: "hflip", P: 0.5, Apply: func(img image.Image, _ *rand.Rand) image.Image {
			return imaging.FlipH(img)
		}},
		{Name: "vflip", P: 0.2, Apply: func(img image.Image, _ *rand.Rand) image.Image {
			return imaging.FlipV(img)
		}},
		{Name: "rotate", P: 0.5, Apply: func(img image.Image, rng *rand.Rand) image.Image {
			return Rotate(img, uniform(rng, -25, 25))
		}},
		{Name: "brightness_contrast", P: 0.5, Apply: func(img image.Image, rng *rand.Rand) image.Image {
			out := imaging.AdjustBrightness(img, uniform(rng, -20, 20))
			return imaging.AdjustContrast(out, uniform(rng, -20, 20))
		}},
		{Name: "blur", P: 0.3, Apply: func(img image.Image, rng *rand.Rand) image.Image {
			return imaging.Blur(img, uniform(rng, 0.5, 1.5))
		}},
		{Name: "random_resized_crop", P: 0.5, Apply: func(img image.Image, rng *rand.Rand) image.Image {
			return RandomResizedCrop(img, DefaultCropSize, DefaultCropSize, 0.8, 1.0, rng)
		}},
	}
}

// Apply runs every transform whose coin flip succeeds.
func (p Pipeline) Apply(img image.Image, rng *rand.Rand) (image.Image, []string) {
	var applied []string
	for _, t := range p {
		if rng.Float64() < t.P {
			img = t.Apply(img, rng)
			applied = append(applied, t.Name)
		}
	}
	return img, applied
}

// Rotate turns img by angle degrees counter-clockwise and keeps the original
// size; uncovered corners are black.
func Rotate(img image.Image, angle float64) image.Image {
	b := img.Bounds()
	rotated := imaging.Rotate(img, angle, color.Black)
	return imaging.CropCenter(rotated, b.Dx(), b.Dy())
}

// RandomResizedCrop crops a random region covering between minScale and
// maxScale of the area, with aspect ratio in [3/4, 4/3], and resizes it to
// width x height. It falls back to the whole image when no region fits.
func RandomResizedCrop(img image.Image, width, height int, minScale, maxScale float64, rng *rand.Rand) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	area := float64(w * h)
	logLo, logHi := math.Log(3.0/4.0), math.Log(4.0/3.0)

	rect := b
	for attempt := 0; attempt < 10; attempt++ {
		target := area * uniform(rng, minScale, maxScale)
		aspect := math.Exp(uniform(rng, logLo, logHi))
		cw := int(math.Round(math.Sqrt(target * aspect)))
		ch := int(math.Round(math.Sqrt(target / aspect)))
		if cw > 0 && ch > 0 && cw <= w && ch <= h {
			x := b.Min.X + rng.IntN(w-cw+1)
			y := b.Min.Y + rng.IntN(h-ch+1)
			rect = image.Rect(x, y, x+cw, y+ch)
			break
		}
	}
	return imaging.Resize(imaging.Crop(img, rect), width, height, imaging.Lanczos)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
