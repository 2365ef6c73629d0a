// Package wastesorter tells people how to dispose of everyday waste.
//
// A typed query is resolved against a catalog of waste items by exact match,
// then substring match, then fuzzy matching on item names. Images are sent to
// a hosted vision model (Ollama or an OpenAI-compatible llama.cpp server) and
// the most confident detection is resolved the same way.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		wastesorter "github.com/menta2k/waste-sorter"
//	)
//
//	func main() {
//		s, err := wastesorter.New(wastesorter.Options{
//			ItemsPath: "waste_items.json",
//			Backend:   wastesorter.BackendOllama,
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		g := s.Search("pizza box")
//		if g.Found() {
//			fmt.Println(g.Item.Name, "->", g.Item.Disposal)
//		}
//	}
//
// The package consists of these components:
//
//  1. Catalog (pkg/catalog): item lookup, fuzzy matching, material and category classification
//  2. Store (pkg/store): SQLite document store for items and categories
//  3. Detection (pkg/detection, pkg/ollama, pkg/llamacpp): hosted vision model clients
//  4. Sorter (pkg/sorter): combines the above and caches image results
//  5. Dataset and augment (pkg/dataset, pkg/augment): training data preparation
package wastesorter

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/menta2k/waste-sorter/pkg/catalog"
	"github.com/menta2k/waste-sorter/pkg/client"
	"github.com/menta2k/waste-sorter/pkg/detection"
	"github.com/menta2k/waste-sorter/pkg/llamacpp"
	"github.com/menta2k/waste-sorter/pkg/ollama"
	"github.com/menta2k/waste-sorter/pkg/sorter"
)

// Version of the waste sorter
const Version = "1.0.0"

// Supported vision backends.
const (
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
	BackendNone     = "none"
)

// Default backend URLs.
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultLlamaCppURL = "http://localhost:8080"
)

// Options configures New.
type Options struct {
	// ItemsPath is the waste item catalog (JSON array). Required.
	ItemsPath string
	// MaterialsPath enables material classification when set. A missing
	// file is logged and ignored.
	MaterialsPath string
	// Backend is one of BackendOllama, BackendLlamaCpp or BackendNone.
	// Empty means BackendNone.
	Backend string
	URL     string
	Sorter  sorter.Options
	Logger  *zap.Logger
}

// New loads the catalog and wires a Sorter with the configured vision backend.
func New(opts Options) (*sorter.Sorter, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cat, err := catalog.Load(opts.ItemsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	logger.Info("catalog loaded", zap.String("path", opts.ItemsPath), zap.Int("items", cat.Len()))

	var det *detection.Detector
	if opts.Backend != "" && opts.Backend != BackendNone {
		vc, err := NewVisionClient(opts.Backend, opts.URL)
		if err != nil {
			return nil, err
		}
		det = detection.NewDetector(vc)
		det.SetPrompt(detection.PromptWithLabels(cat.Names()))
	}

	s := sorter.New(cat, det, opts.Sorter, logger)

	if opts.MaterialsPath != "" {
		mc, err := catalog.NewMaterialClassifier(opts.MaterialsPath)
		switch {
		case err == nil:
			s.SetMaterials(mc)
		case errors.Is(err, catalog.ErrNotFound):
			logger.Warn("materials file not found, material classification disabled",
				zap.String("path", opts.MaterialsPath))
		default:
			return nil, fmt.Errorf("failed to load materials: %w", err)
		}
	}

	return s, nil
}

// NewVisionClient creates a client for backend. An empty url selects the
// backend's default.
func NewVisionClient(backend, url string) (client.VisionClient, error) {
	switch backend {
	case BackendOllama:
		if url == "" {
			url = DefaultOllamaURL
		}
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case BackendLlamaCpp:
		if url == "" {
			url = DefaultLlamaCppURL
		}
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s (use %q or %q)", backend, BackendOllama, BackendLlamaCpp)
	}
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
