package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/menta2k/waste-sorter/internal/config"
	"github.com/menta2k/waste-sorter/pkg/catalog"
	"github.com/menta2k/waste-sorter/pkg/detection"
	"github.com/menta2k/waste-sorter/pkg/sorter"
	"github.com/menta2k/waste-sorter/pkg/store"
	"github.com/menta2k/waste-sorter/pkg/types"
)

type stubVision struct {
	result *types.AnalysisResult
	err    error
}

func (s *stubVision) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	return "", nil
}

func (s *stubVision) AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.result
	cp.Detections = append([]types.Detection(nil), s.result.Detections...)
	return &cp, nil
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]types.WasteItem{
		{Name: "Plastic Bottle", Associates: []string{"bottle"}, Type: "recyclable", Disposal: "Blue bin"},
		{Name: "Banana Peel", Associates: []string{"banana"}, Type: "compostable"},
	})
}

func newTestServer(t *testing.T, vision *stubVision, withStore bool) *httptest.Server {
	t.Helper()

	var det *detection.Detector
	if vision != nil {
		det = detection.NewDetector(vision)
	}
	s := sorter.New(testCatalog(), det, sorter.Options{}, zap.NewNop())
	s.SetMaterials(catalog.NewMaterialClassifierFromList([]types.Material{
		{Name: "Glass", Aliases: []string{"glass", "jar"}, Type: "recyclable"},
	}))

	var st *store.Store
	if withStore {
		var err error
		st, err = store.Open(context.Background(), filepath.Join(t.TempDir(), "waste.db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
	}

	cfg := config.Default().Server
	ts := httptest.NewServer(New(cfg, s, st, zap.NewNop()).Router())
	t.Cleanup(ts.Close)
	return ts
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func pngUpload(t *testing.T, size int) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(uploadField, "photo.png")
	require.NoError(t, err)
	require.NoError(t, png.Encode(fw, img))
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, true)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["items"])
	assert.EqualValues(t, 0, body["stored_items"])
}

func TestSuggestAndSearch(t *testing.T) {
	ts := newTestServer(t, nil, false)

	resp, err := http.Get(ts.URL + "/api/suggest?q=ban")
	require.NoError(t, err)
	sug := decode[suggestResponse](t, resp)
	assert.Equal(t, []string{"Banana Peel"}, sug.Suggestions)

	resp, err = http.Get(ts.URL + "/api/suggest")
	require.NoError(t, err)
	sug = decode[suggestResponse](t, resp)
	assert.Empty(t, sug.Suggestions)

	resp, err = http.Get(ts.URL + "/api/search?q=bottle")
	require.NoError(t, err)
	g := decode[types.Guidance](t, resp)
	require.NotNil(t, g.Item)
	assert.Equal(t, "Plastic Bottle", g.Item.Name)
	assert.Equal(t, types.SourceExact, g.Source)

	resp, err = http.Get(ts.URL + "/api/search?q=plastik+botle")
	require.NoError(t, err)
	g = decode[types.Guidance](t, resp)
	assert.Equal(t, types.SourceFuzzy, g.Source)
	require.NotEmpty(t, g.Similar)
	assert.Equal(t, "Plastic Bottle", g.Similar[0].Name)

	resp, err = http.Get(ts.URL + "/api/search?q=+")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMaterial(t *testing.T) {
	ts := newTestServer(t, nil, false)

	resp, err := http.Post(ts.URL+"/api/material", "application/json", strings.NewReader(`{"text":"an old jam jar"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	m := decode[types.Material](t, resp)
	assert.Equal(t, "Glass", m.Name)

	resp, err = http.Post(ts.URL+"/api/material", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCategories(t *testing.T) {
	ts := newTestServer(t, nil, false)

	resp, err := http.Get(ts.URL + "/api/categories")
	require.NoError(t, err)
	cats := decode[[]types.Category](t, resp)
	assert.Len(t, cats, len(catalog.DefaultCategories()))
}

func TestItemsRoutes(t *testing.T) {
	ts := newTestServer(t, nil, true)

	resp, err := http.Get(ts.URL + "/api/items")
	require.NoError(t, err)
	assert.Empty(t, decode[[]types.WasteItem](t, resp))

	resp, err = http.Post(ts.URL+"/api/items", "application/json",
		strings.NewReader(`{"name":"Coffee Cup","associates":["paper cup"],"type":"trash"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[types.WasteItem](t, resp)
	assert.NotEmpty(t, created.ID)

	resp, err = http.Post(ts.URL+"/api/items", "application/json", strings.NewReader(`{"name":" "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/items/search?q=PAPER")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	found := decode[types.WasteItem](t, resp)
	assert.Equal(t, created.ID, found.ID)

	resp, err = http.Get(ts.URL + "/api/items/search?q=tyre")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/items")
	require.NoError(t, err)
	assert.Len(t, decode[[]types.WasteItem](t, resp), 1)
}

func TestItemsWithoutStore(t *testing.T) {
	ts := newTestServer(t, nil, false)

	resp, err := http.Get(ts.URL + "/api/items")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestClassifyImage(t *testing.T) {
	vision := &stubVision{result: &types.AnalysisResult{
		Detections:  []types.Detection{{Label: "Banana", Confidence: 0.8, Box: types.Box{X: 0.1, Y: 0.1, W: 0.5, H: 0.5}}},
		Description: "a banana",
	}}
	ts := newTestServer(t, vision, false)

	body, ct := pngUpload(t, 64)
	resp, err := http.Post(ts.URL+"/api/classify/image", ct, body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[classifyResponse](t, resp)
	assert.Equal(t, "png", out.Image.Format)
	assert.Equal(t, 64, out.Image.Width)
	require.NotNil(t, out.Result)
	assert.Equal(t, sorter.MsgComplete, out.Result.Message)
	require.NotNil(t, out.Result.Guidance.Item)
	assert.Equal(t, "Banana Peel", out.Result.Guidance.Item.Name)
}

func TestClassifyImageErrors(t *testing.T) {
	t.Run("no vision", func(t *testing.T) {
		ts := newTestServer(t, nil, false)
		body, ct := pngUpload(t, 64)
		resp, err := http.Post(ts.URL+"/api/classify/image", ct, body)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("upstream failure", func(t *testing.T) {
		ts := newTestServer(t, &stubVision{err: errors.New("model offline")}, false)
		body, ct := pngUpload(t, 64)
		resp, err := http.Post(ts.URL+"/api/classify/image", ct, body)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})

	t.Run("too small", func(t *testing.T) {
		ts := newTestServer(t, &stubVision{result: &types.AnalysisResult{}}, false)
		body, ct := pngUpload(t, 8)
		resp, err := http.Post(ts.URL+"/api/classify/image", ct, body)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing field", func(t *testing.T) {
		ts := newTestServer(t, &stubVision{result: &types.AnalysisResult{}}, false)
		resp, err := http.Post(ts.URL+"/api/classify/image", "text/plain", strings.NewReader("hello"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Default().Server
	cfg.Addr = "127.0.0.1:0"
	srv := New(cfg, sorter.New(testCatalog(), nil, sorter.Options{}, nil), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
