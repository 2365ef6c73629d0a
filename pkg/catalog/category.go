package catalog

import (
	"slices"
	"strings"

	"github.com/menta2k/waste-sorter/pkg/types"
)

// DefaultCategories returns the base disposal streams seeded into the store.
func DefaultCategories() []types.Category {
	return []types.Category{
		{
			Name:     "compostable",
			Keywords: []string{"banana", "peel", "apple core", "food", "leaves", "vegetable", "fruit"},
			Tips:     "Add to your compost pile or bin.",
		},
		{
			Name:     "recyclable",
			Keywords: []string{"bottle", "plastic", "can", "glass", "cardboard", "paper", "tin"},
			Tips:     "Rinse and place in the recycling bin.",
		},
		{
			Name:     "trash",
			Keywords: []string{"styrofoam", "chip bag", "diaper", "wrapper", "ceramics"},
			Tips:     "Dispose responsibly in a landfill bin.",
		},
	}
}

// CategoryFor returns the first category having a keyword contained in text.
func CategoryFor(text string, categories []types.Category) (types.Category, bool) {
	t := Normalize(text)
	if t == "" {
		return types.Category{}, false
	}
	for _, c := range categories {
		for _, kw := range c.Keywords {
			if k := Normalize(kw); k != "" && strings.Contains(t, k) {
				c.Keywords = slices.Clone(c.Keywords)
				return c, true
			}
		}
	}
	return types.Category{}, false
}
