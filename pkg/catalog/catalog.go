// Package catalog implements lookup of waste items by name or alias, with a
// fuzzy fallback for misspelled queries.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/menta2k/waste-sorter/pkg/types"
)

// Catalog is an immutable in-memory list of waste items.
type Catalog struct {
	items      []types.WasteItem
	names      []string
	associates [][]string
}

// New builds a catalog from items. The slice is copied.
func New(items []types.WasteItem) *Catalog {
	c := &Catalog{
		items:      make([]types.WasteItem, len(items)),
		names:      make([]string, len(items)),
		associates: make([][]string, len(items)),
	}
	copy(c.items, items)
	for i, it := range c.items {
		c.names[i] = Normalize(it.Name)
		c.associates[i] = normalizeAll(it.Associates)
	}
	return c
}

// Load reads a JSON array of items from path.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("catalog file %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader reads a JSON array of items from r.
func LoadFromReader(r io.Reader) (*Catalog, error) {
	var items []types.WasteItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(items), nil
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	return len(c.items)
}

// Items returns a copy of all items in catalog order.
func (c *Catalog) Items() []types.WasteItem {
	out := make([]types.WasteItem, len(c.items))
	copy(out, c.items)
	return out
}

// Names returns the display names of all items in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.items))
	for i, it := range c.items {
		out[i] = it.Name
	}
	return out
}

// Suggest returns the names of items whose name or any associate contains
// text. Empty text yields nothing.
func (c *Catalog) Suggest(text string) []string {
	q := Normalize(text)
	if q == "" {
		return nil
	}
	var out []string
	for i := range c.items {
		if c.containsAt(i, q) {
			out = append(out, c.items[i].Name)
		}
	}
	return out
}

// Lookup finds the first item whose name or one of whose associates equals
// query exactly, ignoring case.
func (c *Catalog) Lookup(query string) (*types.WasteItem, bool) {
	q := Normalize(query)
	if q == "" {
		return nil, false
	}
	for i := range c.items {
		if c.names[i] == q {
			return c.item(i), true
		}
		for _, a := range c.associates[i] {
			if a == q {
				return c.item(i), true
			}
		}
	}
	return nil, false
}

// Search finds the first item whose name or any associate contains query.
func (c *Catalog) Search(query string) (*types.WasteItem, bool) {
	q := Normalize(query)
	if q == "" {
		return nil, false
	}
	for i := range c.items {
		if c.containsAt(i, q) {
			return c.item(i), true
		}
	}
	return nil, false
}

// Similar returns the items whose names are the closest fuzzy matches of query.
func (c *Catalog) Similar(query string, n int, cutoff float64) ([]types.WasteItem, error) {
	matches, err := CloseMatches(Normalize(query), c.names, n, cutoff)
	if err != nil {
		return nil, err
	}
	var out []types.WasteItem
	for _, m := range matches {
		for i, name := range c.names {
			if name == m {
				out = append(out, *c.item(i))
			}
		}
	}
	return out, nil
}

// Classify resolves a query by exact lookup, then substring search, then fuzzy
// matching against item names.
func (c *Catalog) Classify(query string) types.Guidance {
	g := types.Guidance{Query: query, Source: types.SourceNone}
	if strings.TrimSpace(query) == "" {
		return g
	}
	if it, ok := c.Lookup(query); ok {
		g.Item, g.Source = it, types.SourceExact
		return g
	}
	if it, ok := c.Search(query); ok {
		g.Item, g.Source = it, types.SourceSubstring
		return g
	}
	similar, err := c.Similar(query, DefaultMaxMatches, DefaultCutoff)
	if err == nil && len(similar) > 0 {
		g.Similar, g.Source = similar, types.SourceFuzzy
	}
	return g
}

func (c *Catalog) containsAt(i int, q string) bool {
	if strings.Contains(c.names[i], q) {
		return true
	}
	for _, a := range c.associates[i] {
		if strings.Contains(a, q) {
			return true
		}
	}
	return false
}

func (c *Catalog) item(i int) *types.WasteItem {
	it := c.items[i]
	it.Associates = slices.Clone(it.Associates)
	it.Alternatives = slices.Clone(it.Alternatives)
	return &it
}
