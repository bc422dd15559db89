// Package config loads the viewer configuration: defaults, then an optional
// YAML file, then HOTSPOTS_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides.
// HOTSPOTS_SESSION_TTL sets session.ttl, HOTSPOTS_MAP_ZOOM sets map.zoom.
const EnvPrefix = "HOTSPOTS_"

// Config is the viewer configuration.
type Config struct {
	Map      MapConfig      `koanf:"map" yaml:"map"`
	Metadata MetadataConfig `koanf:"metadata" yaml:"metadata"`
	Session  SessionConfig  `koanf:"session" yaml:"session"`
	Usage    UsageConfig    `koanf:"usage" yaml:"usage"`
}

// MapConfig is the initial map view.
type MapConfig struct {
	Center []float64 `koanf:"center" yaml:"center"` // [lat, lng]
	Zoom   int       `koanf:"zoom" yaml:"zoom"`
}

// MetadataConfig locates the raster metadata document. URL wins over File.
type MetadataConfig struct {
	URL  string `koanf:"url" yaml:"url,omitempty"`
	File string `koanf:"file" yaml:"file"`
}

// SessionConfig controls viewer session lifetime.
type SessionConfig struct {
	TTL time.Duration `koanf:"ttl" yaml:"ttl"`
}

// UsageConfig controls the DuckDB usage ledger.
type UsageConfig struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`
}

// Default returns the built-in configuration centered on Puerto Rico.
func Default() *Config {
	return &Config{
		Map: MapConfig{
			Center: []float64{18.2208, -66.5901},
			Zoom:   9,
		},
		Metadata: MetadataConfig{
			File: "raster_metadata.json",
		},
		Session: SessionConfig{
			TTL: 2 * time.Hour,
		},
		Usage: UsageConfig{
			Enabled: true,
		},
	}
}

// Load reads configuration from path (if it exists) and overlays env vars.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if len(c.Map.Center) != 2 {
		return fmt.Errorf("map.center must be [lat, lng]")
	}
	if lat := c.Map.Center[0]; lat < -90 || lat > 90 {
		return fmt.Errorf("map.center latitude %v out of range", lat)
	}
	if lng := c.Map.Center[1]; lng < -180 || lng > 180 {
		return fmt.Errorf("map.center longitude %v out of range", lng)
	}
	if c.Map.Zoom < 0 || c.Map.Zoom > 18 {
		return fmt.Errorf("map.zoom must be between 0 and 18")
	}
	if c.Metadata.URL == "" && c.Metadata.File == "" {
		return fmt.Errorf("metadata.url or metadata.file is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	return nil
}
