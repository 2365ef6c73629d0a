// Package dataset prepares the folder layout, class lists and dataset
// descriptor consumed by external detector training tools.
package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/waste-sorter/pkg/types"
)

// DefaultClasses are the waste classes of the reference dataset.
var DefaultClasses = []string{
	"fruits_and_vegetables",
	"packed_foods",
	"plastic_utensils",
	"metal_utensils",
	"electronics",
	"papers",
	"books",
	"cardboards",
	"clothings",
	"furnitures",
	"plastic_covers",
	"stationaries",
	"bio_wastes",
	"ceramic",
}

// Subfolders created under each class directory.
var Subfolders = []string{"images/train", "labels/train"}

// Scaffold creates <root>/<class>/<sub> for every class and subfolder and
// returns the created paths. Existing directories are left as they are.
func Scaffold(root string, classes []string) ([]string, error) {
	if len(classes) == 0 {
		classes = DefaultClasses
	}
	var created []string
	for _, cls := range classes {
		for _, sub := range Subfolders {
			path := filepath.Join(root, cls, filepath.FromSlash(sub))
			if err := os.MkdirAll(path, 0o755); err != nil {
				return created, fmt.Errorf("failed to create %s: %w", path, err)
			}
			created = append(created, path)
		}
	}
	return created, nil
}

// WriteNames writes one item name per line to path, replacing its contents.
func WriteNames(items []types.WasteItem, path string) (int, error) {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	return writeLines(path, names, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
}

// AppendAssociates appends every associate of every item to path, one per line.
func AppendAssociates(items []types.WasteItem, path string) (int, error) {
	var all []string
	for _, it := range items {
		all = append(all, it.Associates...)
	}
	return writeLines(path, all, os.O_CREATE|os.O_APPEND|os.O_WRONLY)
}

func writeLines(path string, lines []string, flag int) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := w.WriteString(l + "\n"); err != nil {
			f.Close()
			return 0, fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return len(lines), f.Close()
}

// DetectClasses returns the sorted names of the subdirectories of trainDir.
func DetectClasses(trainDir string) ([]string, error) {
	entries, err := os.ReadDir(trainDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", trainDir, err)
	}
	var classes []string
	for _, e := range entries {
		if e.IsDir() {
			classes = append(classes, e.Name())
		}
	}
	sort.Strings(classes)
	return classes, nil
}

// Config is the dataset descriptor read by YOLO-style trainers.
type Config struct {
	Path  string         `yaml:"path"`
	Train string         `yaml:"train"`
	Val   string         `yaml:"val,omitempty"`
	Names map[int]string `yaml:"names"`
}

// NewConfig builds a descriptor indexing classes in order.
func NewConfig(root, train, val string, classes []string) Config {
	names := make(map[int]string, len(classes))
	for i, c := range classes {
		names[i] = c
	}
	return Config{Path: root, Train: train, Val: val, Names: names}
}

// WriteConfig writes cfg as YAML to path.
func WriteConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadConfig loads a descriptor written by WriteConfig.
func ReadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read dataset config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse dataset config: %w", err)
	}
	return cfg, nil
}
