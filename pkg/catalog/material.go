package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/menta2k/waste-sorter/pkg/types"
)

// UnknownMaterial is returned when no alias matches.
var UnknownMaterial = types.Material{
	Name:   "Unknown Material",
	Type:   "not_found",
	EcoTip: "Material not found in the database.",
	Notes:  "Consider updating the materials.json file.",
}

// MaterialClassifier maps free text to a material by alias containment.
type MaterialClassifier struct {
	materials []types.Material
	aliases   [][]string
}

type materialsFile struct {
	Materials []types.Material `json:"materials"`
}

// NewMaterialClassifier loads a {"materials": [...]} document from path.
func NewMaterialClassifier(path string) (*MaterialClassifier, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("materials file %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open materials file: %w", err)
	}
	defer f.Close()
	return NewMaterialClassifierFromReader(f)
}

// NewMaterialClassifierFromReader parses a materials document from r.
func NewMaterialClassifierFromReader(r io.Reader) (*MaterialClassifier, error) {
	var doc materialsFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse materials file: %w", err)
	}
	return NewMaterialClassifierFromList(doc.Materials), nil
}

// NewMaterialClassifierFromList builds a classifier over materials.
func NewMaterialClassifierFromList(materials []types.Material) *MaterialClassifier {
	mc := &MaterialClassifier{
		materials: materials,
		aliases:   make([][]string, len(materials)),
	}
	for i, m := range materials {
		mc.aliases[i] = normalizeAll(m.Aliases)
	}
	return mc
}

// ClassifyText returns the first material with an alias contained in text,
// or UnknownMaterial.
func (mc *MaterialClassifier) ClassifyText(text string) types.Material {
	t := Normalize(text)
	for i, m := range mc.materials {
		for _, alias := range mc.aliases[i] {
			if alias != "" && strings.Contains(t, alias) {
				return types.Material{
					Name:   m.Name,
					Type:   m.Type,
					EcoTip: m.EcoTip,
					Notes:  m.Notes,
				}
			}
		}
	}
	return UnknownMaterial
}
