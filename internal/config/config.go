// Package config provides configuration loading and structs for the Shiryo server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Search     SearchConfig     `yaml:"search"`
	Cache      CacheConfig      `yaml:"cache"`
	Watch      WatchConfig      `yaml:"watch"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the record database and the optional keyword index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// ExtractionConfig controls the adapter chain and its confidence policy.
type ExtractionConfig struct {
	// Adapters is the enabled adapter list in priority order (cheapest first).
	// Known names: direct, office, ocr_a, ocr_b.
	Adapters        []string      `yaml:"adapters"`
	AcceptThreshold float64       `yaml:"accept_threshold"`
	Floor           float64       `yaml:"floor"`
	GarblePenalty   float64       `yaml:"garble_penalty"`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
	OverallTimeout  time.Duration `yaml:"overall_timeout"`
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	OCR             OCRConfig     `yaml:"ocr"`
}

// OCRConfig holds the external recognizer settings.
type OCRConfig struct {
	Tesseract     string  `yaml:"tesseract"`
	Pdftoppm      string  `yaml:"pdftoppm"`
	Language      string  `yaml:"language"`
	TessdataDir   string  `yaml:"tessdata_dir"`
	DPI           int     `yaml:"dpi"`
	MaxPages      int     `yaml:"max_pages"`
	EngineAPSM    int     `yaml:"engine_a_psm"`
	EngineBPSM    int     `yaml:"engine_b_psm"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// SearchConfig holds query limits and the lexical scoring thresholds.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	// CandidateSource selects how candidates are gathered: "scan" walks every in-scope
	// document, "bleve" narrows candidates with the keyword index first.
	CandidateSource    string  `yaml:"candidate_source"`
	TitleMatchScore    float64 `yaml:"title_match_score"`
	BodyMatchScore     float64 `yaml:"body_match_score"`
	TokenMatchCap      float64 `yaml:"token_match_cap"`
	TagBoost           float64 `yaml:"tag_boost"`
	MaxStructuralBoost float64 `yaml:"max_structural_boost"`
	MinScore           float64 `yaml:"min_score"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Enabled       *bool         `yaml:"enabled"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxEntries    int           `yaml:"max_entries"`
}

// EnabledOrDefault returns whether the result cache is on; defaults to true when unset.
func (c *CacheConfig) EnabledOrDefault() bool {
	if c.Enabled != nil {
		return *c.Enabled
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	if cfg.Extraction.OCR.TessdataDir != "" {
		cfg.Extraction.OCR.TessdataDir = expandPath(cfg.Extraction.OCR.TessdataDir, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks the confidence policy and scoring thresholds for consistency.
func (c *Config) Validate() error {
	e := c.Extraction
	if e.Floor < 0 || e.Floor > 1 || e.AcceptThreshold < 0 || e.AcceptThreshold > 1 {
		return fmt.Errorf("invalid config: extraction thresholds must be within [0,1]")
	}
	if e.Floor >= e.AcceptThreshold {
		return fmt.Errorf("invalid config: extraction floor %.2f must be below accept threshold %.2f", e.Floor, e.AcceptThreshold)
	}
	for _, name := range e.Adapters {
		if !knownAdapter(name) {
			return fmt.Errorf("invalid config: unknown extraction adapter %q", name)
		}
	}
	switch c.Search.CandidateSource {
	case CandidateSourceScan, CandidateSourceBleve:
	default:
		return fmt.Errorf("invalid config: unknown candidate_source %q", c.Search.CandidateSource)
	}
	return nil
}

// Adapter names accepted in extraction.adapters.
const (
	AdapterDirect = "direct"
	AdapterOffice = "office"
	AdapterOCRA   = "ocr_a"
	AdapterOCRB   = "ocr_b"
)

// Candidate sources accepted in search.candidate_source.
const (
	CandidateSourceScan  = "scan"
	CandidateSourceBleve = "bleve"
)

func knownAdapter(name string) bool {
	switch name {
	case AdapterDirect, AdapterOffice, AdapterOCRA, AdapterOCRB:
		return true
	}
	return false
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
