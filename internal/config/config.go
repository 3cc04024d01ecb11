package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/frame-pipeline/pkg/analysis"
	"github.com/menta2k/frame-pipeline/pkg/codec"
	"github.com/menta2k/frame-pipeline/pkg/photo"
)

// Config holds the application configuration
type Config struct {
	Photo    PhotoConfig    `json:"photo" yaml:"photo"`
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// PhotoConfig holds configuration for the still-capture path
type PhotoConfig struct {
	DefaultQuality int    `json:"default_quality" yaml:"default_quality"`
	OutputFormat   string `json:"output_format" yaml:"output_format"`
	Lossless       bool   `json:"lossless" yaml:"lossless"`
	CropBasis      string `json:"crop_basis" yaml:"crop_basis"`
	QueueSize      int    `json:"queue_size" yaml:"queue_size"`
}

// AnalysisConfig holds the named analysis consumers
type AnalysisConfig struct {
	Options map[string]analysis.Spec `json:"options" yaml:"options"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Photo: PhotoConfig{
			DefaultQuality: 90,
			OutputFormat:   "jpeg",
			CropBasis:      "sensor",
			QueueSize:      4,
		},
		Analysis: AnalysisConfig{
			Options: map[string]analysis.Spec{},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a YAML or JSON file, chosen by
// extension. Unset fields keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isJSON(filename) {
		err = json.Unmarshal(data, config)
	} else {
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	return config, nil
}

// SaveToFile saves configuration as YAML, or JSON for a .json filename
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	var err error
	if isJSON(filename) {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. Every analysis entry is
// parsed, so a bad colour order fails here rather than on the first frame.
func (c *Config) Validate() error {
	if c.Photo.DefaultQuality < 1 || c.Photo.DefaultQuality > 100 {
		return fmt.Errorf("photo.default_quality must be between 1 and 100")
	}

	if _, err := codec.ParseFormat(c.Photo.OutputFormat); err != nil {
		return fmt.Errorf("photo.output_format: %w", err)
	}

	if _, err := photo.ParseCropBasis(c.Photo.CropBasis); err != nil {
		return fmt.Errorf("photo.crop_basis: %w", err)
	}

	if c.Photo.QueueSize < 0 {
		return fmt.Errorf("photo.queue_size must not be negative")
	}

	if _, err := c.AnalysisOptions(); err != nil {
		return err
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// PhotoFinisherConfig converts the photo section for photo.NewWithConfig
func (c *Config) PhotoFinisherConfig() photo.Config {
	format, _ := codec.ParseFormat(c.Photo.OutputFormat)
	return photo.Config{
		DefaultQuality: c.Photo.DefaultQuality,
		Format:         format,
		Lossless:       c.Photo.Lossless,
	}
}

// CropBasis returns the configured default crop basis
func (c *Config) CropBasis() photo.CropBasis {
	basis, _ := photo.ParseCropBasis(c.Photo.CropBasis)
	return basis
}

// AnalysisOptions parses every analysis entry
func (c *Config) AnalysisOptions() (map[string]analysis.Options, error) {
	keys := make([]string, 0, len(c.Analysis.Options))
	for k := range c.Analysis.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]analysis.Options, len(keys))
	for _, k := range keys {
		opts, err := analysis.ParseOptions(k, c.Analysis.Options[k])
		if err != nil {
			return nil, fmt.Errorf("analysis.options: %w", err)
		}
		out[k] = opts
	}
	return out, nil
}

// NewLogger builds an slog logger writing to w as configured by the log section
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.ToLower(c.Log.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", s)
	}
}

func isJSON(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".json")
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "frame-pipeline", "config.yaml")
}
