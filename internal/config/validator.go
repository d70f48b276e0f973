package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/kelvin"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/recipe"
)

// Validate checks the configuration and fills in defaults
func Validate(cfg *Config) error {
	if err := validateMask(&cfg.Mask); err != nil {
		return err
	}
	if err := validateSource(&cfg.Source); err != nil {
		return err
	}
	if err := validateOutput(&cfg.Output); err != nil {
		return err
	}

	if cfg.Kelvin.Enabled {
		for _, t := range []int{cfg.Kelvin.From, cfg.Kelvin.To} {
			if t < kelvin.MinTemperature || t > kelvin.MaxTemperature {
				return fmt.Errorf("kelvin temperatures must be %d-%d, got %d",
					kelvin.MinTemperature, kelvin.MaxTemperature, t)
			}
		}
	}

	if err := validateMQTT(&cfg.MQTT); err != nil {
		return err
	}

	if cfg.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaxFrames < 0 {
		return fmt.Errorf("max_frames must be >= 0")
	}
	if cfg.StatsIntervalS <= 0 {
		cfg.StatsIntervalS = 5
	}

	return nil
}

func validateMask(m *MaskConfig) error {
	if m.Path == "" {
		return fmt.Errorf("mask.path is required")
	}

	switch strings.ToLower(m.Polarity) {
	case "":
		m.Polarity = "bright-alive"
	case "bright-alive", "bright-dead":
		m.Polarity = strings.ToLower(m.Polarity)
	default:
		return fmt.Errorf("mask.polarity must be 'bright-alive' or 'bright-dead', got '%s'", m.Polarity)
	}

	if m.MaxDistance == 0 {
		m.MaxDistance = recipe.MaxReplacementDistance
	}
	if m.MaxPixels == 0 {
		m.MaxPixels = recipe.MaxReplacementPixels
	}
	params := recipe.Params{MaxDistance: m.MaxDistance, MaxPixels: m.MaxPixels}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("mask: %w", err)
	}

	return nil
}

func validateSource(s *SourceConfig) error {
	switch {
	case s.URI == "" && s.Images == "":
		return fmt.Errorf("source.uri or source.images is required")
	case s.URI != "" && s.Images != "":
		return fmt.Errorf("source.uri and source.images are mutually exclusive")
	case s.Live && s.URI == "":
		return fmt.Errorf("source.live requires source.uri")
	}

	if s.Format == "" {
		s.Format = "bgra32"
	}
	format, err := frame.ParsePixelFormat(s.Format)
	if err != nil {
		return fmt.Errorf("source.format: %w", err)
	}
	if !format.IsInterleavedBGR() {
		return fmt.Errorf("source.format must be bgr24 or bgra32, got '%s'", s.Format)
	}

	if s.BufferFrames <= 0 {
		s.BufferFrames = 4 // default
	}

	return nil
}

func validateOutput(o *OutputConfig) error {
	if o.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}

	switch strings.ToLower(o.Format) {
	case "":
		o.Format = "png"
	case "png", "jpeg", "jpg", "bmp", "tiff":
		o.Format = strings.ToLower(o.Format)
	default:
		return fmt.Errorf("output.format must be png, jpeg, bmp or tiff, got '%s'", o.Format)
	}

	if o.JPEGQuality == 0 {
		o.JPEGQuality = 90
	}
	if o.JPEGQuality < 1 || o.JPEGQuality > 100 {
		return fmt.Errorf("output.jpeg_quality must be 1-100")
	}

	if o.PreviewIntervalS < 0 {
		return fmt.Errorf("output.preview_interval_s must be >= 0")
	}
	if o.Preview && o.PreviewIntervalS == 0 {
		o.PreviewIntervalS = 1
	}

	return nil
}

func validateMQTT(m *MQTTConfig) error {
	if m.Broker == "" {
		return nil
	}
	if m.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}
	if m.ClientID == "" {
		m.ClientID = "pixelheal-" + uuid.NewString()[:8]
	}
	if m.Topic == "" {
		m.Topic = "pixelheal/" + m.ClientID
	}
	return nil
}
