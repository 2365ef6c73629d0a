// Package sorter answers "how do I dispose of this?" for typed queries and
// images by combining the catalog with a hosted vision model.
package sorter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/menta2k/waste-sorter/pkg/catalog"
	"github.com/menta2k/waste-sorter/pkg/detection"
	"github.com/menta2k/waste-sorter/pkg/processing"
	"github.com/menta2k/waste-sorter/pkg/types"
)

// ErrNoVision is returned by image operations when no detector is configured.
var ErrNoVision = errors.New("image classification is not configured")

// Messages reported with image results.
const (
	MsgComplete   = "Prediction complete."
	MsgNoDetected = "No object detected."
)

// Options configures a Sorter.
type Options struct {
	Model string
	// Threshold is the confidence a detection must exceed. Zero selects
	// detection.DefaultThreshold.
	Threshold   float64
	SendFormat  string
	SendMaxDim  int
	SendQuality int
	CacheTTL    time.Duration
}

// DefaultOptions mirrors the defaults of the CLI.
func DefaultOptions() Options {
	return Options{
		Model:       "llava",
		Threshold:   detection.DefaultThreshold,
		SendFormat:  "jpg",
		SendMaxDim:  1024,
		SendQuality: 85,
		CacheTTL:    10 * time.Minute,
	}
}

// ImageResult is the outcome of classifying an image.
type ImageResult struct {
	Detections  []types.Detection `json:"detections"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Label       string            `json:"label,omitempty"`
	Guidance    types.Guidance    `json:"guidance"`
	Category    *types.Category   `json:"category,omitempty"`
	Message     string            `json:"message"`
	Cached      bool              `json:"cached"`
}

// Sorter is safe for concurrent use.
type Sorter struct {
	catalog    *catalog.Catalog
	materials  *catalog.MaterialClassifier
	categories []types.Category
	detector   *detection.Detector
	processor  *processing.Processor
	cache      *gocache.Cache
	opts       Options
	logger     *zap.Logger
}

// New creates a Sorter over cat. detector may be nil, in which case image
// classification returns ErrNoVision.
func New(cat *catalog.Catalog, detector *detection.Detector, opts Options, logger *zap.Logger) *Sorter {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.Model == "" {
		opts.Model = def.Model
	}
	if opts.Threshold <= 0 {
		opts.Threshold = def.Threshold
	}
	if opts.SendFormat == "" {
		opts.SendFormat = def.SendFormat
	}
	if opts.SendQuality <= 0 {
		opts.SendQuality = def.SendQuality
	}
	if cat == nil {
		cat = catalog.New(nil)
	}
	s := &Sorter{
		catalog:    cat,
		categories: catalog.DefaultCategories(),
		detector:   detector,
		processor:  processing.NewProcessor(),
		opts:       opts,
		logger:     logger,
	}
	if opts.CacheTTL > 0 {
		s.cache = gocache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	return s
}

// SetMaterials enables free-text material classification.
func (s *Sorter) SetMaterials(mc *catalog.MaterialClassifier) {
	s.materials = mc
}

// SetCategories replaces the categories used to label results.
func (s *Sorter) SetCategories(categories []types.Category) {
	if len(categories) > 0 {
		s.categories = categories
	}
}

// Catalog returns the underlying catalog.
func (s *Sorter) Catalog() *catalog.Catalog {
	return s.catalog
}

// Categories returns the categories used to label results.
func (s *Sorter) Categories() []types.Category {
	return s.categories
}

// Suggest returns type-ahead suggestions for text.
func (s *Sorter) Suggest(text string) []string {
	return s.catalog.Suggest(text)
}

// Search resolves a typed query.
func (s *Sorter) Search(query string) types.Guidance {
	g := s.catalog.Classify(query)
	s.logger.Debug("search",
		zap.String("query", query),
		zap.String("source", string(g.Source)),
		zap.Int("similar", len(g.Similar)))
	return g
}

// Category returns the disposal stream for text, if any keyword matches.
func (s *Sorter) Category(text string) (types.Category, bool) {
	return catalog.CategoryFor(text, s.categories)
}

// ClassifyText maps text to a material. ok is false when no materials file
// was configured.
func (s *Sorter) ClassifyText(text string) (types.Material, bool) {
	if s.materials == nil {
		return types.Material{}, false
	}
	return s.materials.ClassifyText(text), true
}

// ClassifyImage detects objects in img and resolves the most confident one
// against the catalog.
func (s *Sorter) ClassifyImage(ctx context.Context, img image.Image) (*ImageResult, error) {
	if s.detector == nil {
		return nil, ErrNoVision
	}

	payload, err := s.processor.PrepareImageForModel(img, s.opts.SendFormat, s.opts.SendMaxDim, s.opts.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	key := cacheKey(s.opts.Model, payload)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			res := cloneResult(v.(*ImageResult))
			res.Cached = true
			s.logger.Debug("image result served from cache", zap.String("key", key[:12]))
			return res, nil
		}
	}

	analysis, err := s.detector.Detect(ctx, s.opts.Model, payload)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	res := &ImageResult{
		Detections:  detection.Confident(analysis, s.opts.Threshold),
		Description: analysis.Description,
		Tags:        analysis.Tags,
		Guidance:    types.Guidance{Source: types.SourceNone},
		Message:     MsgNoDetected,
	}
	if len(res.Detections) > 0 {
		res.Label = res.Detections[0].Label
		res.Guidance = s.catalog.Classify(res.Label)
		res.Message = MsgComplete
		if c, ok := s.Category(res.Label); ok {
			res.Category = &c
		}
	}

	s.logger.Info("image classified",
		zap.String("model", s.opts.Model),
		zap.String("label", res.Label),
		zap.Int("detections", len(res.Detections)),
		zap.String("source", string(res.Guidance.Source)))

	if s.cache != nil {
		s.cache.Set(key, cloneResult(res), gocache.DefaultExpiration)
	}
	return res, nil
}

// Annotate draws the detections of res onto img.
func (s *Sorter) Annotate(img image.Image, res *ImageResult) image.Image {
	if res == nil {
		return img
	}
	return s.processor.AnnotateDetections(img, res.Detections)
}

// cloneResult copies res deeply enough that callers cannot reach the cached value.
func cloneResult(res *ImageResult) *ImageResult {
	out := *res
	out.Detections = slices.Clone(res.Detections)
	out.Tags = slices.Clone(res.Tags)
	out.Guidance.Similar = slices.Clone(res.Guidance.Similar)
	if res.Guidance.Item != nil {
		item := cloneItem(*res.Guidance.Item)
		out.Guidance.Item = &item
	}
	for i := range out.Guidance.Similar {
		out.Guidance.Similar[i] = cloneItem(out.Guidance.Similar[i])
	}
	if res.Category != nil {
		c := *res.Category
		c.Keywords = slices.Clone(c.Keywords)
		out.Category = &c
	}
	return &out
}

func cloneItem(it types.WasteItem) types.WasteItem {
	it.Associates = slices.Clone(it.Associates)
	it.Alternatives = slices.Clone(it.Alternatives)
	return it
}

func cacheKey(model, payload string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + payload))
	return hex.EncodeToString(sum[:])
}
