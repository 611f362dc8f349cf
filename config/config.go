package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultThreshold   = 0.5
	DefaultConcurrency = 1
	DefaultFieldCount  = 200
	DefaultDatabase    = "polygon_overlap"
	DefaultCollection  = "polygons"
	DefaultStoreURI    = "mongodb://localhost:27017"
	DefaultIngestLimit = 200
	DefaultIngestPath  = "q461geo.coordinates"
)

// Store selects and addresses the record store backend.
type Store struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type Detect struct {
	OverlapThreshold float64 `yaml:"overlap_threshold"`
	Concurrency      int     `yaml:"concurrency"`
	FieldCount       int     `yaml:"field_count"`
	SkipSelf         bool    `yaml:"skip_self"`
	UseIndex         bool    `yaml:"use_index"`
	// Precision rounds coordinates to this many decimals before building
	// polygons. Negative disables rounding.
	Precision int `yaml:"precision"`
}

type Ingest struct {
	Limit int    `yaml:"limit"`
	Path  string `yaml:"path"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is built once per run and handed to the orchestrator and every
// chunk worker.
type Config struct {
	Store  Store  `yaml:"store"`
	Detect Detect `yaml:"detect"`
	Ingest Ingest `yaml:"ingest"`
	Log    Log    `yaml:"log"`
	Addr   string `yaml:"addr"`
}

func Default() Config {
	return Config{
		Store: Store{
			URI:        DefaultStoreURI,
			Database:   DefaultDatabase,
			Collection: DefaultCollection,
		},
		Detect: Detect{
			OverlapThreshold: DefaultThreshold,
			Concurrency:      DefaultConcurrency,
			FieldCount:       DefaultFieldCount,
			Precision:        -1,
		},
		Ingest: Ingest{
			Limit: DefaultIngestLimit,
			Path:  DefaultIngestPath,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Addr: ":8080",
	}
}

// Load starts from Default, overlays the YAML file at path (if any), then
// the environment. A missing env file is not an error.
func Load(path string, envFile string) (Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("MONGODB_URI"); v != "" {
		cfg.Store.URI = v
	}
	// OVERLAP_STORE wins over MONGODB_URI so a bolt:// store can be picked
	// without touching a shared .env.
	if v := os.Getenv("OVERLAP_STORE"); v != "" {
		cfg.Store.URI = v
	}
	if v := os.Getenv("OVERLAP_DATABASE"); v != "" {
		cfg.Store.Database = v
	}
	if v := os.Getenv("OVERLAP_COLLECTION"); v != "" {
		cfg.Store.Collection = v
	}
	if v := os.Getenv("OVERLAP_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OVERLAP_CONCURRENCY: %w", err)
		}
		cfg.Detect.Concurrency = n
	}
	if v := os.Getenv("OVERLAP_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OVERLAP_THRESHOLD: %w", err)
		}
		cfg.Detect.OverlapThreshold = f
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.Detect.OverlapThreshold <= 0 || c.Detect.OverlapThreshold > 1 {
		return fmt.Errorf("overlap_threshold must be in (0,1], got %v", c.Detect.OverlapThreshold)
	}
	if c.Detect.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Detect.Concurrency)
	}
	if c.Detect.FieldCount < 1 {
		return fmt.Errorf("field_count must be at least 1, got %d", c.Detect.FieldCount)
	}
	if c.Store.URI == "" {
		return errors.New("store uri is empty")
	}
	return nil
}

// FieldNames returns the recognized field names "1".."FieldCount".
func (d Detect) FieldNames() []string {
	names := make([]string, d.FieldCount)
	for i := 0; i < d.FieldCount; i++ {
		names[i] = strconv.Itoa(i + 1)
	}
	return names
}
