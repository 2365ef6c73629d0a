package augment

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/4 {
				img.Set(x, y, color.RGBA{240, 240, 240, 255})
			} else {
				img.Set(x, y, color.RGBA{uint8(x), uint8(y), 40, 255})
			}
		}
	}
	return img
}

func writeDataset(t *testing.T, classes map[string]int) string {
	t.Helper()
	root := t.TempDir()
	for class, n := range classes {
		dir := filepath.Join(root, class)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for i := 0; i < n; i++ {
			var buf bytes.Buffer
			require.NoError(t, png.Encode(&buf, createTestImage(96+i*8, 80)))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "img"+string(rune('a'+i))+".png"), buf.Bytes(), 0o644))
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("top-level file"), 0o644))
	return root
}

func TestRunWritesVariants(t *testing.T) {
	in := writeDataset(t, map[string]int{"glass": 2, "paper": 1})
	out := t.TempDir()

	stats, err := Run(context.Background(), Options{InputDir: in, OutputDir: out, Copies: 3, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Classes)
	assert.Equal(t, 3, stats.Images)
	assert.Equal(t, 9, stats.Written)
	assert.Zero(t, stats.Failed)

	for _, name := range []string{"glass/imga_aug0.jpg", "glass/imgb_aug2.jpg", "paper/imga_aug1.jpg"} {
		_, err := os.Stat(filepath.Join(out, filepath.FromSlash(name)))
		assert.NoError(t, err, name)
	}
}

func TestRunDeterministic(t *testing.T) {
	in := writeDataset(t, map[string]int{"metal": 1})
	outA, outB := t.TempDir(), t.TempDir()

	_, err := Run(context.Background(), Options{InputDir: in, OutputDir: outA, Copies: 4, Seed: 99})
	require.NoError(t, err)
	_, err = Run(context.Background(), Options{InputDir: in, OutputDir: outB, Copies: 4, Seed: 99})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		name := filepath.Join("metal", "imga_aug"+string(rune('0'+i))+".jpg")
		a, err := os.ReadFile(filepath.Join(outA, name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(outB, name))
		require.NoError(t, err)
		assert.Equal(t, a, b, name)
	}
}

func TestRunDedupSkipsIdentity(t *testing.T) {
	in := writeDataset(t, map[string]int{"organic": 1})
	identity := Pipeline{{Name: "identity", P: 1, Apply: func(img image.Image, _ *rand.Rand) image.Image { return img }}}

	stats, err := Run(context.Background(), Options{
		InputDir:  in,
		OutputDir: t.TempDir(),
		Copies:    5,
		Seed:      1,
		Dedup:     true,
		Pipeline:  identity,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Written)
	assert.Equal(t, 5, stats.Skipped)
}

func TestRunMissingInput(t *testing.T) {
	_, err := Run(context.Background(), Options{InputDir: filepath.Join(t.TempDir(), "nope"), OutputDir: t.TempDir()})
	assert.Error(t, err)
}

func TestRunCanceled(t *testing.T) {
	in := writeDataset(t, map[string]int{"glass": 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Options{InputDir: in, OutputDir: t.TempDir(), Copies: 2, Seed: 3})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransformsKeepShape(t *testing.T) {
	img := createTestImage(120, 90)

	rotated := Rotate(img, 20)
	assert.Equal(t, img.Bounds().Size(), rotated.Bounds().Size())

	rng := rand.New(rand.NewPCG(1, 2))
	crop := RandomResizedCrop(img, 224, 224, 0.8, 1.0, rng)
	assert.Equal(t, image.Pt(224, 224), crop.Bounds().Size())
}

func TestPipelineProbabilities(t *testing.T) {
	img := createTestImage(64, 64)
	rng := rand.New(rand.NewPCG(5, 6))

	never := DefaultPipeline()
	for i := range never {
		never[i].P = 0
	}
	out, applied := never.Apply(img, rng)
	assert.Empty(t, applied)
	assert.Equal(t, img, out)

	always := DefaultPipeline()
	for i := range always {
		always[i].P = 1
	}
	out, applied = always.Apply(img, rng)
	assert.Equal(t, []string{"hflip", "vflip", "rotate", "brightness_contrast", "blur", "random_resized_crop"}, applied)
	assert.Equal(t, image.Pt(DefaultCropSize, DefaultCropSize), out.Bounds().Size())
}
