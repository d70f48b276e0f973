package pixelheal

import (
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/kelvin"
)

const (
	// MinTemperature is the lowest supported colour temperature in kelvin.
	MinTemperature = kelvin.MinTemperature
	// MaxTemperature is the highest supported colour temperature in kelvin.
	MaxTemperature = kelvin.MaxTemperature
)

// ColorShift re-balances frames shot at one colour temperature to look as
// if shot at another, keeping their luminosity.
type ColorShift struct {
	shift *kelvin.Shift
}

// NewColorShift prepares a shift from one temperature to another (kelvin).
// Fails with ErrTemperatureRange.
func NewColorShift(from, to int) (*ColorShift, error) {
	s, err := kelvin.New(from, to)
	if err != nil {
		return nil, fmt.Errorf("pixelheal: %w", err)
	}
	return &ColorShift{shift: s}, nil
}

// From is the source temperature.
func (c *ColorShift) From() int { return c.shift.From() }

// To is the target temperature.
func (c *ColorShift) To() int { return c.shift.To() }

// Process shifts f in place. Only FormatBGR24 and FormatBGRA32 are
// supported; alpha is left untouched.
func (c *ColorShift) Process(f *Frame) error {
	if !f.Format.IsInterleavedBGR() {
		return fmt.Errorf("%w: %s", ErrUnsupportedPixelFormat, f.Format)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrFrameGeometry, err)
	}
	c.shift.Apply(f.Data, f.Width, f.Height, f.Stride, f.Format.BytesPerPixel())
	return nil
}
