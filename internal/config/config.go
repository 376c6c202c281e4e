package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"icalarchive/internal/model"
	"icalarchive/internal/rules"
)

// SourceConfig describes one remote calendar feed subscription.
type SourceConfig struct {
	URL                  string `yaml:"url" json:"url"`
	FetchIntervalMinutes int    `yaml:"fetch_interval_minutes" json:"fetch_interval_minutes"`
	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

func (s *SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// OutputConfig describes one derived feed's filters.
type OutputConfig struct {
	IncludeSources        []string `yaml:"include_sources,omitempty" json:"include_sources,omitempty"`
	IncludeCategories     []string `yaml:"include_categories,omitempty" json:"include_categories,omitempty"`
	ExcludeCategories     []string `yaml:"exclude_categories,omitempty" json:"exclude_categories,omitempty"`
	IncludeSummaryPattern string   `yaml:"include_summary_pattern,omitempty" json:"include_summary_pattern,omitempty"`
	ExcludeSummaryPattern string   `yaml:"exclude_summary_pattern,omitempty" json:"exclude_summary_pattern,omitempty"`
}

// Spec converts the config record into the composer's filter spec.
func (o *OutputConfig) Spec() model.OutputSpec {
	return model.OutputSpec{
		IncludeSources:        o.IncludeSources,
		IncludeCategories:     o.IncludeCategories,
		ExcludeCategories:     o.ExcludeCategories,
		IncludeSummaryPattern: o.IncludeSummaryPattern,
		ExcludeSummaryPattern: o.ExcludeSummaryPattern,
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration. Sources, outputs and
// rule records live here; the archive, hidden set and series registry
// persist separately under DataDir.
type Config struct {
	// Listen is the HTTP listen address for the feed/API server.
	Listen string `yaml:"listen" json:"listen"`

	// DataDir holds the event stores, snapshots, hidden set and series
	// registry.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// FetchTimeoutSeconds bounds each outbound feed fetch.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`

	Sources map[string]*SourceConfig `yaml:"sources" json:"sources"`
	Outputs map[string]*OutputConfig `yaml:"outputs" json:"outputs"`
	Rules   []rules.Spec             `yaml:"rules" json:"rules"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              "127.0.0.1:8080",
		DataDir:             "./data",
		LogLevel:            "info",
		FetchTimeoutSeconds: 30,
		Sources:             map[string]*SourceConfig{},
		Outputs:             map[string]*OutputConfig{},
		Rules:               []rules.Spec{},
	}
}

// Normalize fills missing/zero values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = 30
	}
	if c.Sources == nil {
		c.Sources = map[string]*SourceConfig{}
	}
	for _, src := range c.Sources {
		if src.FetchIntervalMinutes <= 0 {
			src.FetchIntervalMinutes = 30
		}
	}
	if c.Outputs == nil {
		c.Outputs = map[string]*OutputConfig{}
	}
	if c.Rules == nil {
		c.Rules = []rules.Spec{}
	}
}

// ValidateSourceName rejects names that cannot serve as store filenames
// or key prefixes.
func ValidateSourceName(name string) error {
	if name == "" {
		return errors.New("source name is empty")
	}
	if strings.Contains(name, model.KeySeparator) {
		return fmt.Errorf("source name %q must not contain %q", name, model.KeySeparator)
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("source name %q is not a valid store name", name)
	}
	return nil
}

// Load loads configuration from the given YAML path. A missing file is
// first-run: a default config is written (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename, 0600).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".icalarchive-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
