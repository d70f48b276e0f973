package pixelheal

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/maskimage"
)

// MemorySource serves frames held in memory. The frames it returns are
// shared: consumers must call MakeWritable before mutating them.
type MemorySource struct {
	frames []*Frame
}

// NewMemorySource wraps frames; they are marked shared.
func NewMemorySource(frames ...*Frame) *MemorySource {
	for i, f := range frames {
		f.Seq = uint64(i)
		if f.SourceStream == "" {
			f.SourceStream = "memory"
		}
		f.MarkShared()
	}
	return &MemorySource{frames: frames}
}

// Len is the number of frames.
func (m *MemorySource) Len() int { return len(m.frames) }

// GetFrame returns frame n, or io.EOF past the end.
func (m *MemorySource) GetFrame(ctx context.Context, n int) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("pixelheal: negative frame index %d", n)
	}
	if n >= len(m.frames) {
		return nil, io.EOF
	}
	return m.frames[n], nil
}

// MakeWritable returns a private copy of a shared frame.
func (m *MemorySource) MakeWritable(f *Frame) *Frame {
	return frame.Writable(f)
}

// ImageSequence serves a list of still images as a clip, one image per
// frame, in lexical file order.
type ImageSequence struct {
	files  []string
	format PixelFormat
}

// NewImageSequence sorts files and decodes them lazily into format
// (FormatBGR24 or FormatBGRA32).
func NewImageSequence(files []string, format PixelFormat) (*ImageSequence, error) {
	if !format.IsInterleavedBGR() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPixelFormat, format)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("pixelheal: image sequence is empty")
	}
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	return &ImageSequence{files: sorted, format: format}, nil
}

// Len is the number of frames.
func (s *ImageSequence) Len() int { return len(s.files) }

// GetFrame decodes image n. Returns io.EOF past the end.
func (s *ImageSequence) GetFrame(ctx context.Context, n int) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("pixelheal: negative frame index %d", n)
	}
	if n >= len(s.files) {
		return nil, io.EOF
	}

	img, _, err := maskimage.Load(s.files[n])
	if err != nil {
		return nil, fmt.Errorf("pixelheal: frame %d: %w", n, err)
	}

	f := FrameFromImage(img, s.format)
	f.Seq = uint64(n)
	f.SourceStream = s.files[n]
	f.TraceID = uuid.New().String()

	slog.Debug("pixelheal: image frame decoded",
		"seq", n,
		"file", s.files[n],
		"trace_id", f.TraceID,
	)
	return f, nil
}

// MakeWritable returns f: decoded frames are owned by the caller.
func (s *ImageSequence) MakeWritable(f *Frame) *Frame {
	return frame.Writable(f)
}

// FrameFromImage converts img to a new writable frame in format
// (FormatBGR24 or FormatBGRA32), with a tight stride.
func FrameFromImage(img image.Image, format PixelFormat) *Frame {
	b := img.Bounds()
	f := frame.New(VideoInfo{Width: b.Dx(), Height: b.Dy(), Format: format})
	f.Timestamp = time.Now()
	bpp := format.BytesPerPixel()

	mask := maskimage.FromImage(img, false)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, bl := mask.Channels(x, y)
			idx := y*f.Stride + x*bpp
			f.Data[idx], f.Data[idx+1], f.Data[idx+2] = bl, g, r
			if bpp == 4 {
				f.Data[idx+3] = 0xFF
			}
		}
	}
	return f
}
