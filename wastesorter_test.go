package wastesorter

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/waste-sorter/pkg/catalog"
	"github.com/menta2k/waste-sorter/pkg/llamacpp"
	"github.com/menta2k/waste-sorter/pkg/ollama"
)

const itemsDoc = `[
  {"name": "Pizza Box", "associates": ["cardboard box"], "type": "compostable", "disposal": "Compost if greasy"},
  {"name": "Glass Jar", "associates": ["jar"], "type": "recyclable", "disposal": "Rinse and recycle"}
]`

const materialsDoc = `{"materials": [{"name": "Glass", "aliases": ["glass", "jar"], "type": "recyclable"}]}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Options{
		ItemsPath:     writeFile(t, dir, "items.json", itemsDoc),
		MaterialsPath: writeFile(t, dir, "materials.json", materialsDoc),
		Backend:       BackendOllama,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Catalog().Len())

	g := s.Search("pizza box")
	require.True(t, g.Found())
	assert.Equal(t, "Compost if greasy", g.Item.Disposal)

	m, ok := s.ClassifyText("empty jar")
	require.True(t, ok)
	assert.Equal(t, "Glass", m.Name)
}

func TestNewOptionalMaterials(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Options{
		ItemsPath:     writeFile(t, dir, "items.json", itemsDoc),
		MaterialsPath: filepath.Join(dir, "missing.json"),
	})
	require.NoError(t, err)
	_, ok := s.ClassifyText("glass")
	assert.False(t, ok)
}

func TestNewErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := New(Options{ItemsPath: filepath.Join(dir, "missing.json")})
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = New(Options{ItemsPath: writeFile(t, dir, "items.json", itemsDoc), Backend: "gemini"})
	assert.Error(t, err)

	_, err = New(Options{
		ItemsPath:     writeFile(t, dir, "items2.json", itemsDoc),
		MaterialsPath: writeFile(t, dir, "bad.json", "{"),
	})
	assert.Error(t, err)
}

func TestNewSendsCatalogLabels(t *testing.T) {
	var (
		mu   sync.Mutex
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(data)
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{
				"index":   0,
				"message": map[string]any{"role": "assistant", "content": `{"detections":[{"label":"glass jar","confidence":0.8}]}`},
			}},
		})
	}))
	defer srv.Close()

	s, err := New(Options{
		ItemsPath: writeFile(t, t.TempDir(), "items.json", itemsDoc),
		Backend:   BackendLlamaCpp,
		URL:       srv.URL,
	})
	require.NoError(t, err)

	res, err := s.ClassifyImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 32, 32)))
	require.NoError(t, err)
	assert.Equal(t, "Glass Jar", res.Guidance.Item.Name)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, body, "Prefer these labels when one fits: Pizza Box, Glass Jar.")
}

func TestNewVisionClient(t *testing.T) {
	c, err := NewVisionClient(BackendOllama, "")
	require.NoError(t, err)
	assert.IsType(t, &ollama.Client{}, c)

	c, err = NewVisionClient(BackendLlamaCpp, "http://127.0.0.1:9090")
	require.NoError(t, err)
	assert.IsType(t, &llamacpp.Client{}, c)

	_, err = NewVisionClient(BackendOllama, "localhost")
	assert.Error(t, err)

	_, err = NewVisionClient(BackendNone, "")
	assert.Error(t, err)
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, Version, GetVersion())
}
