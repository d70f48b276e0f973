package pixelheal

import (
	"errors"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/kelvin"
)

var (
	// ErrUnsupportedPixelFormat is returned when a frame layout is not
	// interleaved 8-bit BGR or BGRA.
	ErrUnsupportedPixelFormat = errors.New("pixelheal: unsupported pixel format")

	// ErrDimensionMismatch is returned when the mask and the frames differ
	// in width or height.
	ErrDimensionMismatch = errors.New("pixelheal: mask and frame dimensions differ")

	// ErrFrameGeometry is returned by Process for a frame that does not
	// match the geometry the engine was built for.
	ErrFrameGeometry = errors.New("pixelheal: frame geometry mismatch")

	// ErrTemperatureRange is returned for colour temperatures outside
	// [MinTemperature, MaxTemperature].
	ErrTemperatureRange = kelvin.ErrTemperatureRange
)
