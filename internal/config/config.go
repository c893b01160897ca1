// Package config loads pipeline configuration from TOML files and
// supports live reload through a file watcher.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Errors returned by configuration loading.
var (
	ErrNotFound = errors.New("config file not found")
	ErrInvalid  = errors.New("invalid configuration")
)

// Config is the root configuration.
type Config struct {
	Highlight HighlightConfig `toml:"highlight"`
	Provider  ProviderConfig  `toml:"provider"`
	Theme     ThemeConfig     `toml:"theme"`
	Log       LogConfig       `toml:"log"`
}

// HighlightConfig tunes the highlight controller.
type HighlightConfig struct {
	// DebounceMinMS is the smallest debounce window in milliseconds.
	DebounceMinMS int `toml:"debounce_min_ms"`

	// DebounceMaxMS caps the adaptive debounce window.
	DebounceMaxMS int `toml:"debounce_max_ms"`

	// IncrementalLineThreshold is the largest affected-line count
	// still handled as an incremental pass.
	IncrementalLineThreshold int `toml:"incremental_line_threshold"`

	// LargeDocumentBytes is the document size above which the
	// range-capable backend is preferred.
	LargeDocumentBytes int `toml:"large_document_bytes"`

	// CacheCapacity is the number of files kept in the token cache.
	CacheCapacity int `toml:"cache_capacity"`
}

// ProviderConfig describes the external token provider process.
type ProviderConfig struct {
	// Command is the provider executable. Empty disables the RPC
	// backend entirely; the grammar backend then serves everything.
	Command string `toml:"command"`

	// Args are passed to the provider command.
	Args []string `toml:"args"`
}

// ThemeConfig selects the highlighting theme.
type ThemeConfig struct {
	// Name is a built-in ("default") or chroma style name.
	Name string `toml:"name"`
}

// LogConfig tunes logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Highlight: HighlightConfig{
			DebounceMinMS:            16,
			DebounceMaxMS:            800,
			IncrementalLineThreshold: 50,
			LargeDocumentBytes:       10 * 1024,
			CacheCapacity:            50,
		},
		Theme: ThemeConfig{Name: "default"},
		Log:   LogConfig{Level: "info"},
	}
}

// Load reads a TOML config file, layering it over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	h := c.Highlight
	if h.DebounceMinMS < 0 || h.DebounceMaxMS < 0 {
		return fmt.Errorf("%w: debounce windows must be non-negative", ErrInvalid)
	}
	if h.DebounceMaxMS > 0 && h.DebounceMinMS > h.DebounceMaxMS {
		return fmt.Errorf("%w: debounce_min_ms exceeds debounce_max_ms", ErrInvalid)
	}
	if h.IncrementalLineThreshold < 0 {
		return fmt.Errorf("%w: incremental_line_threshold must be non-negative", ErrInvalid)
	}
	if h.CacheCapacity < 0 {
		return fmt.Errorf("%w: cache_capacity must be non-negative", ErrInvalid)
	}
	return nil
}

// DebounceMin returns the minimum debounce window as a duration.
func (h HighlightConfig) DebounceMin() time.Duration {
	return time.Duration(h.DebounceMinMS) * time.Millisecond
}

// DebounceMax returns the maximum debounce window as a duration.
func (h HighlightConfig) DebounceMax() time.Duration {
	return time.Duration(h.DebounceMaxMS) * time.Millisecond
}
