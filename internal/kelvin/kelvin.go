// Package kelvin shifts the white balance of BGR frames from one colour
// temperature to another while preserving luminosity.
//
// Colours are handled as signed 16-bit fixed point (8-bit value × 128) with
// saturating arithmetic.
package kelvin

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MinTemperature is the lowest supported colour temperature in kelvin.
	MinTemperature = 1000
	// MaxTemperature is the highest supported colour temperature in kelvin.
	MaxTemperature = 10000

	fixedOne = 128
)

// ErrTemperatureRange is returned for temperatures outside
// [MinTemperature, MaxTemperature].
var ErrTemperatureRange = errors.New("colour temperature out of range")

// RGB16 is a colour in 16-bit signed fixed point.
type RGB16 struct {
	R, G, B int16
}

func clamp(v int) int16 {
	if v < math.MinInt16 {
		return math.MinInt16
	}
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	return int16(v)
}

func (c RGB16) add(o RGB16) RGB16 {
	return RGB16{
		R: clamp(int(c.R) + int(o.R)),
		G: clamp(int(c.G) + int(o.G)),
		B: clamp(int(c.B) + int(o.B)),
	}
}

func (c RGB16) sub(o RGB16) RGB16 {
	return RGB16{
		R: clamp(int(c.R) - int(o.R)),
		G: clamp(int(c.G) - int(o.G)),
		B: clamp(int(c.B) - int(o.B)),
	}
}

func (c RGB16) subScalar(v int) RGB16 {
	return RGB16{
		R: clamp(int(c.R) - v),
		G: clamp(int(c.G) - v),
		B: clamp(int(c.B) - v),
	}
}

// Luma is the Rec. 601 weighted brightness, truncated toward zero.
func (c RGB16) Luma() int16 {
	return int16(0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B))
}

// shifted adds shift scaled by the colour's own luma.
func (c RGB16) shifted(shift RGB16) RGB16 {
	y := int(c.Luma())
	return c.add(RGB16{
		R: clamp(y * int(shift.R) / math.MaxInt16),
		G: clamp(y * int(shift.G) / math.MaxInt16),
		B: clamp(y * int(shift.B) / math.MaxInt16),
	})
}

func to8(v int16) byte {
	if v <= 0 {
		return 0
	}
	return byte(v / fixedOne)
}

// WhiteBalance approximates the RGB white point of a black body at temp
// kelvin (Tanner Helland's fit), in fixed point.
func WhiteBalance(temp int) RGB16 {
	var wb RGB16
	t := float64(temp) / 100

	if temp <= 6680 {
		wb.R = math.MaxInt16
	} else {
		r := 329.698727446 * math.Pow(t-60, -0.1332047592)
		wb.R = int16(fixedOne * r)
	}

	var g float64
	if temp <= 6600 {
		g = 99.4708025861*math.Log(t) - 161.1195681661
	} else {
		g = 288.1221695283 * math.Pow(t-60, -0.0755148492)
	}
	wb.G = int16(fixedOne * g)

	switch {
	case temp >= 6540:
		wb.B = math.MaxInt16
	case temp <= 1900:
		wb.B = 0
	default:
		b := 138.5177312231*math.Log(t-10) - 305.0447927307
		wb.B = int16(fixedOne * b)
	}

	return wb
}

// Shift is a precomputed temperature change.
type Shift struct {
	from  int
	to    int
	delta RGB16
}

// New computes the luminosity-neutral shift from one temperature to another.
func New(from, to int) (*Shift, error) {
	for _, t := range []int{from, to} {
		if t < MinTemperature || t > MaxTemperature {
			return nil, fmt.Errorf("%w: %d K (must be %d-%d)", ErrTemperatureRange, t, MinTemperature, MaxTemperature)
		}
	}

	delta := WhiteBalance(from).sub(WhiteBalance(to))
	delta = delta.subScalar(int(delta.Luma()))

	return &Shift{from: from, to: to, delta: delta}, nil
}

// From is the source temperature in kelvin.
func (s *Shift) From() int { return s.from }

// To is the target temperature in kelvin.
func (s *Shift) To() int { return s.to }

// Delta is the per-channel shift applied at full luma.
func (s *Shift) Delta() RGB16 { return s.delta }

// Pixel shifts one B, G, R triple.
func (s *Shift) Pixel(b, g, r byte) (byte, byte, byte) {
	c := RGB16{R: int16(r) * fixedOne, G: int16(g) * fixedOne, B: int16(b) * fixedOne}
	c = c.shifted(s.delta)
	return to8(c.B), to8(c.G), to8(c.R)
}

// Apply shifts every pixel of a B, G, R[, A] buffer in place. Alpha and
// row padding are untouched.
func (s *Shift) Apply(data []byte, width, height, stride, bpp int) {
	for y := 0; y < height; y++ {
		row := y * stride
		for x := 0; x < width; x++ {
			idx := row + x*bpp
			data[idx], data[idx+1], data[idx+2] = s.Pixel(data[idx], data[idx+1], data[idx+2])
		}
	}
}
