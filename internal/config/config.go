package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WASTE_SORTER_"

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Catalog CatalogConfig `yaml:"catalog"`
	Vision  VisionConfig  `yaml:"vision"`
	Augment AugmentConfig `yaml:"augment"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP API
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// StoreConfig holds configuration for the document store
type StoreConfig struct {
	Path     string `yaml:"path"`
	SeedFile string `yaml:"seed_file"`
}

// CatalogConfig points at the static lookup data
type CatalogConfig struct {
	ItemsPath     string `yaml:"items_path"`
	MaterialsPath string `yaml:"materials_path"`
}

// VisionConfig holds configuration for the hosted vision model
type VisionConfig struct {
	Backend     string        `yaml:"backend"`
	URL         string        `yaml:"url"`
	Model       string        `yaml:"model"`
	Threshold   float64       `yaml:"threshold"`
	SendFormat  string        `yaml:"send_format"`
	SendMaxDim  int           `yaml:"send_max_dim"`
	SendQuality int           `yaml:"send_quality"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// AugmentConfig holds defaults for dataset augmentation
type AugmentConfig struct {
	Copies        int  `yaml:"copies"`
	Workers       int  `yaml:"workers"`
	Quality       int  `yaml:"quality"`
	Dedup         bool `yaml:"dedup"`
	DedupDistance int  `yaml:"dedup_distance"`
}

// LoggingConfig selects the zap level and encoder
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8000",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   5 * time.Minute,
			RequestTimeout: 5 * time.Minute,
			MaxUploadBytes: 16 << 20,
		},
		Store: StoreConfig{
			Path:     "waste.db",
			SeedFile: "waste_items.json",
		},
		Catalog: CatalogConfig{
			ItemsPath:     "waste_items.json",
			MaterialsPath: "materials.json",
		},
		Vision: VisionConfig{
			Backend:     "ollama",
			Model:       "llava",
			Threshold:   0.5,
			SendFormat:  "jpg",
			SendMaxDim:  1024,
			SendQuality: 85,
			CacheTTL:    10 * time.Minute,
		},
		Augment: AugmentConfig{
			Copies:        50,
			Workers:       4,
			Quality:       95,
			Dedup:         false,
			DedupDistance: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads filename when it exists, applies .env and WASTE_SORTER_*
// overrides and validates the result. An empty filename uses GetConfigPath.
func Load(filename string) (*Config, error) {
	if filename == "" {
		filename = GetConfigPath()
	}

	cfg := Default()
	if _, err := os.Stat(filename); err == nil {
		if cfg, err = LoadFromFile(filename); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file. Missing keys keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from environment variables looked up with lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDR":               &c.Server.Addr,
		"DB":                 &c.Store.Path,
		"SEED_FILE":          &c.Store.SeedFile,
		"ITEMS":              &c.Catalog.ItemsPath,
		"MATERIALS":          &c.Catalog.MaterialsPath,
		"VISION_BACKEND":     &c.Vision.Backend,
		"VISION_URL":         &c.Vision.URL,
		"VISION_MODEL":       &c.Vision.Model,
		"VISION_SEND_FORMAT": &c.Vision.SendFormat,
		"LOG_LEVEL":          &c.Logging.Level,
		"LOG_FORMAT":         &c.Logging.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "VISION_THRESHOLD"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sVISION_THRESHOLD: %w", EnvPrefix, err)
		}
		c.Vision.Threshold = f
	}
	if v, ok := lookup(EnvPrefix + "CACHE_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sCACHE_TTL: %w", EnvPrefix, err)
		}
		c.Vision.CacheTTL = d
	}
	if v, ok := lookup(EnvPrefix + "MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_BYTES: %w", EnvPrefix, err)
		}
		c.Server.MaxUploadBytes = n
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if c.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path cannot be empty")
	}

	switch c.Vision.Backend {
	case "ollama", "llamacpp", "none":
	default:
		return fmt.Errorf("vision.backend must be one of ollama, llamacpp, none")
	}

	if c.Vision.Threshold <= 0 || c.Vision.Threshold > 1 {
		return fmt.Errorf("vision.threshold must be greater than 0 and at most 1")
	}

	switch c.Vision.SendFormat {
	case "jpg", "jpeg", "png":
	default:
		return fmt.Errorf("vision.send_format must be jpg or png")
	}

	if c.Vision.SendQuality < 1 || c.Vision.SendQuality > 100 {
		return fmt.Errorf("vision.send_quality must be between 1 and 100")
	}

	if c.Vision.SendMaxDim < 0 {
		return fmt.Errorf("vision.send_max_dim cannot be negative")
	}

	if c.Augment.Quality < 1 || c.Augment.Quality > 100 {
		return fmt.Errorf("augment.quality must be between 1 and 100")
	}

	if c.Augment.Copies < 1 {
		return fmt.Errorf("augment.copies must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "waste-sorter", "config.yaml")
}
