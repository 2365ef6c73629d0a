package sorter

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menta2k/waste-sorter/pkg/catalog"
	"github.com/menta2k/waste-sorter/pkg/detection"
	"github.com/menta2k/waste-sorter/pkg/types"
)

type stubVision struct {
	result *types.AnalysisResult
	err    error
	calls  atomic.Int32
}

func (s *stubVision) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return "", nil
}

func (s *stubVision) AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.result
	cp.Detections = append([]types.Detection(nil), s.result.Detections...)
	return &cp, nil
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]types.WasteItem{
		{Name: "Plastic Bottle", Associates: []string{"bottle", "water bottle"}, Type: "recyclable"},
		{Name: "Banana Peel", Associates: []string{"banana"}, Type: "compostable"},
	})
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 90, 255})
		}
	}
	return img
}

func TestSearchAndSuggest(t *testing.T) {
	s := New(testCatalog(), nil, Options{}, zap.NewNop())

	assert.Equal(t, []string{"Plastic Bottle"}, s.Suggest("bott"))

	g := s.Search("banana")
	require.True(t, g.Found())
	assert.Equal(t, "Banana Peel", g.Item.Name)

	c, ok := s.Category("banana peel")
	require.True(t, ok)
	assert.Equal(t, "compostable", c.Name)
}

func TestClassifyText(t *testing.T) {
	s := New(testCatalog(), nil, Options{}, nil)
	_, ok := s.ClassifyText("glass")
	assert.False(t, ok)

	s.SetMaterials(catalog.NewMaterialClassifierFromList([]types.Material{
		{Name: "Glass", Aliases: []string{"glass"}, Type: "recyclable"},
	}))
	m, ok := s.ClassifyText("broken glass")
	require.True(t, ok)
	assert.Equal(t, "Glass", m.Name)
}

func TestClassifyImageResolvesTopDetection(t *testing.T) {
	vision := &stubVision{result: &types.AnalysisResult{
		Detections: []types.Detection{
			{Label: "banana", Confidence: 0.6},
			{Label: "Water Bottle", Confidence: 0.92},
			{Label: "cup", Confidence: 0.3},
		},
		Description: "a bottle and a banana",
	}}
	s := New(testCatalog(), detection.NewDetector(vision), Options{CacheTTL: time.Minute}, nil)

	res, err := s.ClassifyImage(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, MsgComplete, res.Message)
	assert.Equal(t, "water bottle", res.Label)
	require.Len(t, res.Detections, 2)
	require.True(t, res.Guidance.Found())
	assert.Equal(t, "Plastic Bottle", res.Guidance.Item.Name)
	assert.Equal(t, types.SourceExact, res.Guidance.Source)
	require.NotNil(t, res.Category)
	assert.Equal(t, "recyclable", res.Category.Name)
	assert.False(t, res.Cached)

	again, err := s.ClassifyImage(context.Background(), testImage())
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, int32(1), vision.calls.Load())

	annotated := s.Annotate(testImage(), res)
	assert.Equal(t, 64, annotated.Bounds().Dx())
}

func TestClassifyImageNothingConfident(t *testing.T) {
	vision := &stubVision{result: &types.AnalysisResult{
		Detections: []types.Detection{{Label: "cup", Confidence: 0.5}},
	}}
	s := New(testCatalog(), detection.NewDetector(vision), Options{}, nil)

	res, err := s.ClassifyImage(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, MsgNoDetected, res.Message)
	assert.Empty(t, res.Label)
	assert.Equal(t, types.SourceNone, res.Guidance.Source)
}

func TestClassifyImageErrors(t *testing.T) {
	s := New(testCatalog(), nil, Options{}, nil)
	_, err := s.ClassifyImage(context.Background(), testImage())
	assert.ErrorIs(t, err, ErrNoVision)

	vision := &stubVision{err: errors.New("connection refused")}
	s = New(testCatalog(), detection.NewDetector(vision), Options{}, nil)
	_, err = s.ClassifyImage(context.Background(), testImage())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "connection refused"))
}

func TestClassifyImageCacheIsolation(t *testing.T) {
	vision := &stubVision{result: &types.AnalysisResult{
		Detections: []types.Detection{{Label: "banana", Confidence: 0.9}},
		Tags:       []string{"organic"},
	}}
	s := New(testCatalog(), detection.NewDetector(vision), Options{CacheTTL: time.Minute}, nil)

	first, err := s.ClassifyImage(context.Background(), testImage())
	require.NoError(t, err)
	first.Detections[0].Label = "changed"
	first.Tags[0] = "changed"
	first.Guidance.Item.Name = "changed"
	first.Guidance.Item.Associates[0] = "changed"
	first.Category.Keywords[0] = "changed"

	second, err := s.ClassifyImage(context.Background(), testImage())
	require.NoError(t, err)
	require.True(t, second.Cached)
	assert.Equal(t, "banana", second.Detections[0].Label)
	assert.Equal(t, []string{"organic"}, second.Tags)
	assert.Equal(t, "Banana Peel", second.Guidance.Item.Name)
	assert.Equal(t, []string{"banana"}, second.Guidance.Item.Associates)
	assert.NotContains(t, second.Category.Keywords, "changed")

	second.Detections[0].Label = "again"
	third, err := s.ClassifyImage(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "banana", third.Detections[0].Label)
	assert.Equal(t, int32(1), vision.calls.Load())
}

func TestClassifyImageCacheExpires(t *testing.T) {
	vision := &stubVision{result: &types.AnalysisResult{
		Detections: []types.Detection{{Label: "banana", Confidence: 0.9}},
	}}
	s := New(testCatalog(), detection.NewDetector(vision), Options{CacheTTL: 10 * time.Millisecond}, nil)

	_, err := s.ClassifyImage(context.Background(), testImage())
	require.NoError(t, err)
	res, err := s.ClassifyImage(context.Background(), testImage())
	require.NoError(t, err)
	require.True(t, res.Cached)
	require.Equal(t, int32(1), vision.calls.Load())

	time.Sleep(30 * time.Millisecond)

	res, err = s.ClassifyImage(context.Background(), testImage())
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), vision.calls.Load())
}
