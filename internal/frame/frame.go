// Package frame holds the frame buffer types shared by the healer, the
// sources and the sinks.
//
// This package is INTERNAL - clients use the aliases re-exported by the
// parent pixelheal package.
package frame

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// PixelFormat describes the memory layout of one frame buffer.
type PixelFormat int

const (
	// FormatUnknown is the zero value and is never accepted.
	FormatUnknown PixelFormat = iota
	// FormatBGR24 is interleaved blue, green, red (3 bytes/pixel).
	FormatBGR24
	// FormatBGRA32 is interleaved blue, green, red, alpha (4 bytes/pixel).
	// Alpha (or padding, GStreamer "BGRx") is never touched by the filters.
	FormatBGRA32
	// FormatRGB24 is interleaved red, green, blue (3 bytes/pixel).
	FormatRGB24
	// FormatBGR48 is interleaved 16-bit-per-channel blue, green, red.
	FormatBGR48
	// FormatGray8 is a single 8-bit luma plane.
	FormatGray8
	// FormatNV12 is planar YUV 4:2:0 (luma plane + interleaved chroma plane).
	FormatNV12
)

// String returns the short name used in config files and logs.
func (p PixelFormat) String() string {
	switch p {
	case FormatBGR24:
		return "bgr24"
	case FormatBGRA32:
		return "bgra32"
	case FormatRGB24:
		return "rgb24"
	case FormatBGR48:
		return "bgr48"
	case FormatGray8:
		return "gray8"
	case FormatNV12:
		return "nv12"
	default:
		return "unknown"
	}
}

// BytesPerPixel returns the interleaved pixel size, or 0 for planar formats.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case FormatBGR24, FormatRGB24:
		return 3
	case FormatBGRA32:
		return 4
	case FormatBGR48:
		return 6
	case FormatGray8:
		return 1
	default:
		return 0
	}
}

// IsInterleavedBGR reports whether the format is 8-bit BGR or BGRA, the only
// layouts the pixel filters operate on.
func (p PixelFormat) IsInterleavedBGR() bool {
	return p == FormatBGR24 || p == FormatBGRA32
}

// GstFormat returns the GStreamer video/x-raw format name.
func (p PixelFormat) GstFormat() string {
	switch p {
	case FormatBGR24:
		return "BGR"
	case FormatBGRA32:
		return "BGRx"
	case FormatRGB24:
		return "RGB"
	case FormatGray8:
		return "GRAY8"
	case FormatNV12:
		return "NV12"
	default:
		return ""
	}
}

// ParsePixelFormat parses the names produced by String (case-insensitive).
// "bgr" and "bgra" / "bgrx" are accepted as shorthands.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bgr24", "bgr":
		return FormatBGR24, nil
	case "bgra32", "bgra", "bgrx":
		return FormatBGRA32, nil
	case "rgb24", "rgb":
		return FormatRGB24, nil
	case "bgr48":
		return FormatBGR48, nil
	case "gray8", "gray":
		return FormatGray8, nil
	case "nv12":
		return FormatNV12, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown pixel format %q", s)
	}
}

// VideoInfo is the geometry shared by every frame of one clip.
type VideoInfo struct {
	Width  int
	Height int
	Format PixelFormat
}

// String returns "WxH format".
func (v VideoInfo) String() string {
	return fmt.Sprintf("%dx%d %s", v.Width, v.Height, v.Format)
}

// Frame is one mutable video frame.
//
// Data is row-major with Stride bytes per row; Stride may exceed
// Width*BytesPerPixel (GStreamer pads packed RGB rows to 4 bytes).
type Frame struct {
	// Seq is the position of the frame in its clip (0-based).
	Seq uint64
	// Timestamp is when the frame was produced by its source.
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Stride is the number of bytes per row.
	Stride int
	// Format is the pixel layout of Data.
	Format PixelFormat
	// Data holds Stride*Height bytes (the last row may be unpadded).
	Data []byte
	// SourceStream identifies the source (URI, file pattern, "memory").
	SourceStream string
	// TraceID is a unique identifier for distributed tracing
	TraceID string

	shared bool
}

// New allocates a zeroed, writable frame with a tight stride.
func New(info VideoInfo) *Frame {
	stride := info.Width * info.Format.BytesPerPixel()
	return &Frame{
		Width:  info.Width,
		Height: info.Height,
		Stride: stride,
		Format: info.Format,
		Data:   make([]byte, stride*info.Height),
	}
}

// Info returns the frame geometry.
func (f *Frame) Info() VideoInfo {
	return VideoInfo{Width: f.Width, Height: f.Height, Format: f.Format}
}

// Offset returns the byte index of pixel (x, y).
func (f *Frame) Offset(x, y int) int {
	return y*f.Stride + x*f.Format.BytesPerPixel()
}

// MarkShared flags the frame as referenced by more than one owner. Filters
// must call MakeWritable before mutating a shared frame.
func (f *Frame) MarkShared() {
	f.shared = true
}

// Shared reports whether the frame must be copied before mutation.
func (f *Frame) Shared() bool {
	return f.shared
}

// Clone returns a writable deep copy.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	c.shared = false
	return &c
}

// Validate checks that Data can hold the declared geometry.
func (f *Frame) Validate() error {
	bpp := f.Format.BytesPerPixel()
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if bpp == 0 {
		return fmt.Errorf("format %s has no interleaved layout", f.Format)
	}
	if f.Stride < f.Width*bpp {
		return fmt.Errorf("stride %d shorter than row (%d bytes)", f.Stride, f.Width*bpp)
	}
	need := f.Stride*(f.Height-1) + f.Width*bpp
	if len(f.Data) < need {
		return fmt.Errorf("frame data too short: got %d bytes, need %d", len(f.Data), need)
	}
	return nil
}

// Writable returns f itself when it is exclusively owned, or a private copy
// when it is shared.
func Writable(f *Frame) *Frame {
	if f == nil || !f.shared {
		return f
	}
	return f.Clone()
}

// Source is the pull interface every clip exposes: a frame by index and a
// way to obtain a mutable version of it.
//
// Implementations return io.EOF once n is past the end of the clip.
type Source interface {
	GetFrame(ctx context.Context, n int) (*Frame, error)
	MakeWritable(f *Frame) *Frame
}
