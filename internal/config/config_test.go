package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
mask:
  path: sensor.bmp
source:
  images: "frames/*.png"
output:
  dir: healed
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "bright-alive", cfg.Mask.Polarity)
	assert.Equal(t, 10, cfg.Mask.MaxDistance)
	assert.Equal(t, 24, cfg.Mask.MaxPixels)
	assert.Equal(t, "bgra32", cfg.Source.Format)
	assert.Equal(t, 4, cfg.Source.BufferFrames)
	assert.Equal(t, "png", cfg.Output.Format)
	assert.Equal(t, 90, cfg.Output.JPEGQuality)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.StatsInterval())
	assert.False(t, cfg.Kelvin.Enabled)
	assert.Equal(t, MQTTConfig{}, cfg.MQTT, "mqtt stays off without a broker")
}

func TestValidate_MQTTDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal + `
mqtt:
  broker: 10.0.0.2:1883
`))
	require.NoError(t, err)
	assert.Regexp(t, `^pixelheal-[0-9a-f]{8}$`, cfg.MQTT.ClientID)
	assert.Equal(t, "pixelheal/"+cfg.MQTT.ClientID, cfg.MQTT.Topic)

	cfg, err = Parse([]byte(minimal + `
mqtt:
  broker: 10.0.0.2:1883
  client_id: cam1
  topic: plant/line3/cam1
  qos: 1
`))
	require.NoError(t, err)
	assert.Equal(t, MQTTConfig{Broker: "10.0.0.2:1883", ClientID: "cam1", Topic: "plant/line3/cam1", QoS: 1}, cfg.MQTT)
}

func TestLoad_Full(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixelheal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mask:
  path: /etc/pixelheal/cam1.png
  polarity: Bright-Dead
  flip_vertical: true
  max_distance: 4
  max_pixels: 12
source:
  uri: rtsp://10.0.0.5/stream
  format: bgr24
  live: true
  buffer_frames: 2
output:
  dir: /var/lib/pixelheal/out
  format: JPEG
  jpeg_quality: 75
  preview: true
kelvin:
  enabled: true
  from: 3200
  to: 5600
workers: 3
max_frames: 100
recipe_cache: /var/lib/pixelheal/recipes.db
stats_interval_s: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, MaskConfig{
		Path:         "/etc/pixelheal/cam1.png",
		Polarity:     "bright-dead",
		FlipVertical: true,
		MaxDistance:  4,
		MaxPixels:    12,
	}, cfg.Mask)
	assert.Equal(t, SourceConfig{URI: "rtsp://10.0.0.5/stream", Format: "bgr24", Live: true, BufferFrames: 2}, cfg.Source)
	assert.Equal(t, OutputConfig{
		Dir:              "/var/lib/pixelheal/out",
		Format:           "jpeg",
		JPEGQuality:      75,
		Preview:          true,
		PreviewIntervalS: 1,
	}, cfg.Output)
	assert.Equal(t, time.Second, cfg.Output.PreviewInterval())
	assert.Equal(t, KelvinConfig{Enabled: true, From: 3200, To: 5600}, cfg.Kelvin)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 100, cfg.MaxFrames)
	assert.Equal(t, "/var/lib/pixelheal/recipes.db", cfg.RecipeCache)
	assert.Equal(t, 10*time.Second, cfg.StatsInterval())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Parse([]byte("mask: [unclosed"))
	assert.Error(t, err)
}

func TestRead_DoesNotValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mask:\n  path: m.png\n"), 0o644))

	cfg, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "m.png", cfg.Mask.Path)
	assert.Empty(t, cfg.Output.Dir)

	_, err = Load(path)
	assert.ErrorContains(t, err, "source.uri or source.images is required")

	cfg.Source.Images = "*.png"
	cfg.Output.Dir = "out"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"no mask", func(c *Config) { c.Mask.Path = "" }},
		{"bad polarity", func(c *Config) { c.Mask.Polarity = "white" }},
		{"distance too large", func(c *Config) { c.Mask.MaxDistance = 11 }},
		{"too many donors", func(c *Config) { c.Mask.MaxPixels = 25 }},
		{"no source", func(c *Config) { c.Source.Images = "" }},
		{"two sources", func(c *Config) { c.Source.URI = "file:///a.mp4" }},
		{"live images", func(c *Config) { c.Source.Live = true }},
		{"planar format", func(c *Config) { c.Source.Format = "nv12" }},
		{"unknown format", func(c *Config) { c.Source.Format = "yuyv" }},
		{"no output", func(c *Config) { c.Output.Dir = "" }},
		{"gif output", func(c *Config) { c.Output.Format = "gif" }},
		{"jpeg quality", func(c *Config) { c.Output.JPEGQuality = 101 }},
		{"preview interval", func(c *Config) { c.Output.PreviewIntervalS = -1 }},
		{"kelvin range", func(c *Config) { c.Kelvin = KelvinConfig{Enabled: true, From: 900, To: 6500} }},
		{"mqtt qos", func(c *Config) { c.MQTT = MQTTConfig{Broker: "b:1883", QoS: 3} }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"negative max frames", func(c *Config) { c.MaxFrames = -2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Mask:   MaskConfig{Path: "m.png"},
				Source: SourceConfig{Images: "*.png"},
				Output: OutputConfig{Dir: "out"},
			}
			require.NoError(t, Validate(cfg))

			tt.edit(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
