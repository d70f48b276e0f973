// Package liveness classifies every mask pixel as alive or dead.
package liveness

import (
	"crypto/sha256"
	"encoding/binary"
)

// threshold is the 8-bit channel level at which a mask pixel counts as lit.
const threshold = 128

// Mask is a decoded defect map with 8-bit colour channels.
type Mask interface {
	Width() int
	Height() int
	Channels(x, y int) (r, g, b uint8)
}

// Polarity selects which mask colour marks a healthy pixel.
type Polarity int

const (
	// PolarityBrightAlive: a pixel with any channel >= 128 is alive.
	PolarityBrightAlive Polarity = iota
	// PolarityBrightDead: a pixel with any channel >= 128 is dead. This is
	// the convention of defect maps painted white-on-black.
	PolarityBrightDead
)

// String returns the config name of the polarity.
func (p Polarity) String() string {
	switch p {
	case PolarityBrightDead:
		return "bright-dead"
	default:
		return "bright-alive"
	}
}

// Lit reports whether any channel reaches the threshold.
func Lit(r, g, b uint8) bool {
	return r >= threshold || g >= threshold || b >= threshold
}

// Grid is an immutable alive/dead map. Coordinates outside the grid are
// always dead, so neighbour searches need no bounds checks of their own.
type Grid struct {
	width    int
	height   int
	polarity Polarity
	alive    []bool
	dead     int
}

// NewGrid classifies every pixel of m once.
func NewGrid(m Mask, p Polarity) *Grid {
	w, h := m.Width(), m.Height()
	g := &Grid{
		width:    w,
		height:   h,
		polarity: p,
		alive:    make([]bool, w*h),
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lit := Lit(m.Channels(x, y))
			alive := lit
			if p == PolarityBrightDead {
				alive = !lit
			}
			g.alive[y*w+x] = alive
			if !alive {
				g.dead++
			}
		}
	}

	return g
}

// Width of the grid in pixels
func (g *Grid) Width() int { return g.width }

// Height of the grid in pixels
func (g *Grid) Height() int { return g.height }

// Alive reports whether (x, y) is a healthy pixel.
func (g *Grid) Alive(x, y int) bool {
	if x < 0 || x >= g.width || y < 0 || y >= g.height {
		return false
	}
	return g.alive[y*g.width+x]
}

// DeadCount is the number of dead pixels inside the grid.
func (g *Grid) DeadCount() int { return g.dead }

// Digest identifies the classification: two masks with the same geometry
// and the same dead pixels produce the same digest regardless of polarity
// or image encoding.
func (g *Grid) Digest() [sha256.Size]byte {
	h := sha256.New()

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(g.width))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(g.height))
	h.Write(hdr[:])

	// Pack 8 pixels per byte.
	packed := make([]byte, (len(g.alive)+7)/8)
	for i, a := range g.alive {
		if a {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	h.Write(packed)

	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
