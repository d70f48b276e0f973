// Package config loads the pixelheal YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pixelheal configuration
type Config struct {
	Mask           MaskConfig   `yaml:"mask"`
	Source         SourceConfig `yaml:"source"`
	Output         OutputConfig `yaml:"output"`
	Kelvin         KelvinConfig `yaml:"kelvin"`
	MQTT           MQTTConfig   `yaml:"mqtt"`
	Workers        int          `yaml:"workers"`          // healing goroutines (default: NumCPU)
	MaxFrames      int          `yaml:"max_frames"`       // 0 = whole clip
	RecipeCache    string       `yaml:"recipe_cache"`     // SQLite path, empty disables the cache
	StatsIntervalS int          `yaml:"stats_interval_s"` // progress log period (default: 5)
}

// MaskConfig describes the defect map
type MaskConfig struct {
	Path         string `yaml:"path"`
	Polarity     string `yaml:"polarity"`      // bright-alive (default), bright-dead
	FlipVertical bool   `yaml:"flip_vertical"` // mask rows stored bottom-up
	MaxDistance  int    `yaml:"max_distance"`  // ring search radius, 1-10 (default: 10)
	MaxPixels    int    `yaml:"max_pixels"`    // donors per recipe, 1-24 (default: 24)
}

// SourceConfig selects where frames come from. Exactly one of URI and
// Images must be set.
type SourceConfig struct {
	URI          string `yaml:"uri"`           // GStreamer URI (file://, rtsp://)
	Images       string `yaml:"images"`        // glob of still images
	Format       string `yaml:"format"`        // bgr24, bgra32 (default: bgra32)
	Live         bool   `yaml:"live"`          // drop frames instead of blocking
	BufferFrames int    `yaml:"buffer_frames"` // decoded frames held ahead (default: 4)
}

// OutputConfig controls where healed frames are written
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	Format      string `yaml:"format"`       // png (default), jpeg, bmp, tiff
	JPEGQuality int    `yaml:"jpeg_quality"` // 1-100 (default: 90)

	// Preview rewrites Dir/latest.<ext> with the most recent healed frame,
	// at most once every PreviewIntervalS seconds (default: 1).
	Preview          bool `yaml:"preview"`
	PreviewIntervalS int  `yaml:"preview_interval_s"`
}

// KelvinConfig enables a colour temperature shift after healing
type KelvinConfig struct {
	Enabled bool `yaml:"enabled"`
	From    int  `yaml:"from"` // kelvin
	To      int  `yaml:"to"`   // kelvin
}

// PreviewInterval returns the minimum time between preview snapshots.
func (o OutputConfig) PreviewInterval() time.Duration {
	return time.Duration(o.PreviewIntervalS) * time.Second
}

// MQTTConfig enables progress reports on an MQTT broker. Reporting is off
// when Broker is empty.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`    // host:port
	ClientID string `yaml:"client_id"` // default: pixelheal-<random>
	Topic    string `yaml:"topic"`     // default: pixelheal/<client_id>
	QoS      byte   `yaml:"qos"`       // 0-2
}

// StatsInterval returns the progress log period.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalS) * time.Second
}

// Load reads, parses and validates a YAML configuration file
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Read parses a YAML configuration file without validating it, so callers
// can apply overrides before calling Validate.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Parse parses YAML configuration and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
