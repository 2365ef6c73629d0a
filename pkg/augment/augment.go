// Package augment expands a small per-class image dataset with randomized
// variants of every source image.
package augment

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/waste-sorter/internal/utils"
)

const (
	// DefaultCopies is the number of variants produced per source image.
	DefaultCopies = 50
	// DefaultDedupDistance is the dHash Hamming distance below which two
	// variants count as the same image.
	DefaultDedupDistance = 4
)

// Options configures Run.
type Options struct {
	InputDir      string
	OutputDir     string
	Copies        int
	Seed          uint64
	Workers       int
	Quality       int
	Dedup         bool
	DedupDistance int
	Pipeline      Pipeline
	Logger        *zap.Logger
}

// Stats summarizes a run.
type Stats struct {
	Classes int `json:"classes"`
	Images  int `json:"images"`
	Written int `json:"written"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Run augments every image of every class directory under opts.InputDir into
// the same class directory under opts.OutputDir.
func Run(ctx context.Context, opts Options) (Stats, error) {
	opts = withDefaults(opts)
	log := opts.Logger

	entries, err := os.ReadDir(opts.InputDir)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read input directory: %w", err)
	}

	var stats Stats
	var written, skipped, failed atomic.Int64
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		class := entry.Name()
		inDir := filepath.Join(opts.InputDir, class)
		outDir := filepath.Join(opts.OutputDir, class)
		if err := utils.EnsureDir(outDir); err != nil {
			return stats, fmt.Errorf("failed to create %s: %w", outDir, err)
		}

		images, err := classImages(inDir)
		if err != nil {
			return stats, err
		}
		stats.Classes++
		stats.Images += len(images)

		started := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for _, name := range images {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				w, s, err := augmentImage(filepath.Join(inDir, name), outDir, class, opts)
				written.Add(int64(w))
				skipped.Add(int64(s))
				if err != nil {
					failed.Add(1)
					log.Warn("augment failed", zap.String("image", name), zap.Error(err))
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}
		log.Info("augmented class",
			zap.String("class", class),
			zap.Int("images", len(images)),
			zap.Duration("elapsed", time.Since(started)))
	}

	stats.Written = int(written.Load())
	stats.Skipped = int(skipped.Load())
	stats.Failed = int(failed.Load())
	return stats, nil
}

func withDefaults(opts Options) Options {
	if opts.Copies <= 0 {
		opts.Copies = DefaultCopies
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano())
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 95
	}
	if opts.DedupDistance <= 0 {
		opts.DedupDistance = DefaultDedupDistance
	}
	if opts.Pipeline == nil {
		opts.Pipeline = DefaultPipeline()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return opts
}

// classImages lists the jpg/jpeg/png files directly inside dir.
func classImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read class directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch utils.GetFileExtension(e.Name()) {
		case "jpg", "jpeg", "png":
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// augmentImage writes opts.Copies variants of src into outDir and returns the
// number written and skipped as duplicates.
func augmentImage(src, outDir, class string, opts Options) (int, int, error) {
	img, err := imaging.Open(src)
	if err != nil {
		return 0, 0, err
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	rng := rand.New(rand.NewPCG(opts.Seed, seedFor(class, base)))

	var dd *dedupFilter
	if opts.Dedup {
		dd = &dedupFilter{distance: opts.DedupDistance}
		dd.isDuplicate(img)
	}

	written, skipped := 0, 0
	for i := 0; i < opts.Copies; i++ {
		variant, _ := opts.Pipeline.Apply(img, rng)
		if dd != nil && dd.isDuplicate(variant) {
			skipped++
			continue
		}
		out := filepath.Join(outDir, fmt.Sprintf("%s_aug%d.jpg", base, i))
		if err := imaging.Save(variant, out, imaging.JPEGQuality(opts.Quality)); err != nil {
			return written, skipped, fmt.Errorf("failed to save %s: %w", out, err)
		}
		written++
	}
	return written, skipped, nil
}

func seedFor(class, base string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(class))
	h.Write([]byte{0})
	h.Write([]byte(base))
	return h.Sum64()
}

// dedupFilter remembers perceptual hashes of accepted images.
type dedupFilter struct {
	mu       sync.Mutex
	distance int
	hashes   []*goimagehash.ImageHash
}

// isDuplicate reports whether img is within distance of an accepted image,
// recording it otherwise. Images that cannot be hashed are accepted.
func (d *dedupFilter) isDuplicate(img image.Image) bool {
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, h := range d.hashes {
		dist, err := hash.Distance(h)
		if err == nil && dist < d.distance {
			return true
		}
	}
	d.hashes = append(d.hashes, hash)
	return false
}
