// Package config loads HealthBridge settings from defaults, an optional YAML
// file and HEALTHBRIDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/healthbridge/healthbridge/internal/capture"
	"github.com/healthbridge/healthbridge/internal/confidence"
	"github.com/healthbridge/healthbridge/internal/detector"
	"github.com/healthbridge/healthbridge/internal/gesture"
	"github.com/healthbridge/healthbridge/internal/publish"
	"github.com/healthbridge/healthbridge/internal/segment"
	"github.com/healthbridge/healthbridge/internal/translate"
)

// EnvPrefix prefixes every environment override, e.g.
// HEALTHBRIDGE_SEGMENT_COMPLETION_DELAY_MS.
const EnvPrefix = "HEALTHBRIDGE"

// Translator providers.
const (
	ProviderGemini = "gemini"
	ProviderStub   = "stub"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"`
}

// StoreConfig configures translation history persistence.
type StoreConfig struct {
	Path string `mapstructure:"path"`
	// HistoryLimit prunes the history to this many rows. Zero keeps everything.
	HistoryLimit int `mapstructure:"history_limit"`
}

// CameraConfig configures the optional live camera loop.
type CameraConfig struct {
	Enabled bool `mapstructure:"enabled"`

	capture.Config `mapstructure:",squash"`
}

// SelectionConfig is the key-frame selector section. A non-empty Preset
// takes precedence over the explicit fields.
type SelectionConfig struct {
	Preset string `mapstructure:"preset"`

	gesture.SelectionConfig `mapstructure:",squash"`
}

// TranslateConfig configures the translator and orchestrator.
type TranslateConfig struct {
	Provider string                 `mapstructure:"provider"`
	Timeout  time.Duration          `mapstructure:"timeout"`
	Policy   string                 `mapstructure:"policy"`
	StubText string                 `mapstructure:"stub_text"`
	Gemini   translate.GeminiConfig `mapstructure:"gemini"`
}

// HooksConfig configures external hook programs.
type HooksConfig struct {
	Dir                string        `mapstructure:"dir"`
	Timeout            time.Duration `mapstructure:"timeout"`
	LowConfidenceScore int           `mapstructure:"low_confidence_score"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Config is the complete application configuration.
type Config struct {
	DataDir    string            `mapstructure:"data_dir"`
	Server     ServerConfig      `mapstructure:"server"`
	Store      StoreConfig       `mapstructure:"store"`
	Camera     CameraConfig      `mapstructure:"camera"`
	Detector   detector.Config   `mapstructure:"detector"`
	Segment    segment.Config    `mapstructure:"segment"`
	Selection  SelectionConfig   `mapstructure:"selection"`
	Confidence confidence.Config `mapstructure:"confidence"`
	Translate  TranslateConfig   `mapstructure:"translate"`
	Hooks      HooksConfig       `mapstructure:"hooks"`
	Redis      publish.Config    `mapstructure:"redis"`
	Log        LogConfig         `mapstructure:"log"`
}

// DefaultConfig returns the built-in configuration. DataDir and the paths
// derived from it are filled in by Load.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			HistoryLimit: 1000,
		},
		Camera: CameraConfig{
			Enabled: false,
			Config:  capture.DefaultConfig(),
		},
		Detector:   detector.DefaultConfig(),
		Segment:    segment.DefaultConfig(),
		Selection:  SelectionConfig{SelectionConfig: gesture.DefaultSelectionConfig()},
		Confidence: confidence.DefaultConfig(),
		Translate: TranslateConfig{
			Provider: ProviderGemini,
			Timeout:  15 * time.Second,
			Policy:   string(translate.PolicyQueue),
			StubText: "hello",
			Gemini: translate.GeminiConfig{
				Model:           translate.DefaultModel,
				MaxOutputTokens: 64,
				Temperature:     0.2,
			},
		},
		Hooks: HooksConfig{
			Timeout:            5 * time.Second,
			LowConfidenceScore: 60,
		},
		Redis: publish.Config{
			Stream: publish.DefaultStream,
			MaxLen: 10000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultDataDir returns ~/.healthbridge.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".healthbridge"), nil
}

// Load builds the configuration. An explicit path must exist; otherwise
// config.yaml is looked up in the data directory and the working directory
// and is optional.
func Load(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	defaults := map[string]interface{}{}
	if err := mapstructure.Decode(cfg, &defaults); err != nil {
		return nil, fmt.Errorf("failed to flatten defaults: %w", err)
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("translate.gemini.api_key", EnvPrefix+"_TRANSLATE_GEMINI_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := DefaultDataDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths() error {
	if c.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return fmt.Errorf("failed to resolve data directory: %w", err)
		}
		c.DataDir = dir
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "healthbridge.db")
	}
	if c.Hooks.Dir == "" {
		c.Hooks.Dir = filepath.Join(c.DataDir, "hooks")
	}
	return nil
}

// SelectionDefault returns the selector configuration the section describes.
func (c *Config) SelectionDefault() (gesture.SelectionConfig, error) {
	if c.Selection.Preset != "" {
		return gesture.PresetConfig(gesture.Preset(c.Selection.Preset))
	}
	return c.Selection.SelectionConfig, nil
}

// Validate checks every section and reports the first problem found.
func (c *Config) Validate() error {
	if err := c.Segment.Validate(); err != nil {
		return fmt.Errorf("%w: segment: %v", ErrInvalid, err)
	}
	sel, err := c.SelectionDefault()
	if err != nil {
		return fmt.Errorf("%w: selection: %v", ErrInvalid, err)
	}
	if err := sel.Validate(); err != nil {
		return fmt.Errorf("%w: selection: %v", ErrInvalid, err)
	}
	if err := c.Confidence.Validate(); err != nil {
		return fmt.Errorf("%w: confidence: %v", ErrInvalid, err)
	}

	switch c.Translate.Provider {
	case ProviderGemini, ProviderStub:
	default:
		return fmt.Errorf("%w: translate.provider %q (want gemini or stub)", ErrInvalid, c.Translate.Provider)
	}
	if _, err := translate.ParsePolicy(c.Translate.Policy); err != nil {
		return fmt.Errorf("%w: translate.policy: %v", ErrInvalid, err)
	}
	if c.Translate.Timeout < 0 {
		return fmt.Errorf("%w: translate.timeout must not be negative", ErrInvalid)
	}
	if c.Hooks.Timeout <= 0 {
		return fmt.Errorf("%w: hooks.timeout must be positive", ErrInvalid)
	}
	if c.Hooks.LowConfidenceScore < 0 || c.Hooks.LowConfidenceScore > 100 {
		return fmt.Errorf("%w: hooks.low_confidence_score must be within [0,100]", ErrInvalid)
	}
	if c.Store.HistoryLimit < 0 {
		return fmt.Errorf("%w: store.history_limit must not be negative", ErrInvalid)
	}
	if err := c.Camera.Validate(); err != nil {
		return fmt.Errorf("%w: camera: %v", ErrInvalid, err)
	}
	return nil
}
