package pixelheal

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestMemorySource_SharedFrames(t *testing.T) {
	info := VideoInfo{Width: 3, Height: 3, Format: FormatBGR24}
	a := fillFrame(info, func(x, y int) [3]byte { return [3]byte{1, 2, 3} })
	src := NewMemorySource(a)

	ctx := context.Background()
	f, err := src.GetFrame(ctx, 0)
	require.NoError(t, err)
	assert.True(t, f.Shared())
	assert.Equal(t, "memory", f.SourceStream)

	w := src.MakeWritable(f)
	assert.NotSame(t, f, w)
	assert.False(t, w.Shared())
	w.Data[0] = 99
	assert.Equal(t, byte(1), f.Data[0])

	_, err = src.GetFrame(ctx, 1)
	assert.ErrorIs(t, err, io.EOF)
	_, err = src.GetFrame(ctx, -1)
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.GetFrame(cancelled, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHealFilter_DoesNotTouchSource(t *testing.T) {
	info := VideoInfo{Width: 5, Height: 5, Format: FormatBGRA32}
	e, err := New(newMask(5, 5, [2]int{2, 2}), info)
	require.NoError(t, err)

	orig := fillFrame(info, func(x, y int) [3]byte {
		if x == 2 && y == 2 {
			return [3]byte{255, 0, 0}
		}
		return [3]byte{80, 80, 80}
	})
	src := NewMemorySource(orig)
	healed := NewHealFilter(src, e)

	f, err := healed.GetFrame(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, [3]byte{79, 79, 79}, at(f, 2, 2))
	assert.Equal(t, [3]byte{255, 0, 0}, at(orig, 2, 2), "shared source frame modified")
	assert.Same(t, f, healed.MakeWritable(f))

	_, err = healed.GetFrame(context.Background(), 1)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFilter_Chain(t *testing.T) {
	info := VideoInfo{Width: 5, Height: 5, Format: FormatBGR24}
	e, err := New(newMask(5, 5, [2]int{2, 2}), info)
	require.NoError(t, err)
	shift, err := NewColorShift(3000, 6500)
	require.NoError(t, err)

	src := NewMemorySource(fillFrame(info, func(x, y int) [3]byte {
		if x == 2 && y == 2 {
			return [3]byte{0, 0, 0}
		}
		return [3]byte{128, 128, 128}
	}))
	chain := NewKelvinFilter(NewHealFilter(src, e), shift)

	f, err := chain.GetFrame(context.Background(), 0)
	require.NoError(t, err)

	// Healed to 127 grey, then shifted like every other pixel.
	assert.Equal(t, [3]byte{88, 120, 158}, at(f, 0, 0))
	healedGrey := at(f, 2, 2)
	assert.NotEqual(t, [3]byte{0, 0, 0}, healedGrey)
	assert.Greater(t, healedGrey[2], healedGrey[0], "warmer: red above blue")
}

func TestFilter_ProcessError(t *testing.T) {
	info := VideoInfo{Width: 4, Height: 4, Format: FormatBGR24}
	e, err := New(newMask(4, 4), info)
	require.NoError(t, err)

	wrong := fillFrame(VideoInfo{Width: 3, Height: 4, Format: FormatBGR24}, func(x, y int) [3]byte { return [3]byte{} })
	_, err = NewHealFilter(NewMemorySource(wrong), e).GetFrame(context.Background(), 0)
	assert.True(t, errors.Is(err, ErrFrameGeometry))
	assert.Contains(t, err.Error(), "heal filter frame 0")
}

func TestColorShift(t *testing.T) {
	_, err := NewColorShift(500, 6500)
	assert.ErrorIs(t, err, ErrTemperatureRange)

	c, err := NewColorShift(3000, 6500)
	require.NoError(t, err)
	assert.Equal(t, 3000, c.From())
	assert.Equal(t, 6500, c.To())

	gray := &Frame{Width: 2, Height: 2, Stride: 2, Format: FormatGray8, Data: make([]byte, 4)}
	assert.ErrorIs(t, c.Process(gray), ErrUnsupportedPixelFormat)
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	if filepath.Ext(path) == ".bmp" {
		require.NoError(t, bmp.Encode(f, img))
		return
	}
	require.NoError(t, png.Encode(f, img))
}

func TestImageSequence(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"b.png", "a.bmp", "c.png"} {
		img := image.NewRGBA(image.Rect(0, 0, 4, 3))
		for y := 0; y < 3; y++ {
			for x := 0; x < 4; x++ {
				img.Set(x, y, color.RGBA{R: uint8(i * 10), G: uint8(x), B: uint8(y), A: 255})
			}
		}
		writeImage(t, filepath.Join(dir, name), img)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*"))
	require.NoError(t, err)

	seq, err := NewImageSequence(files, FormatBGRA32)
	require.NoError(t, err)
	require.Equal(t, 3, seq.Len())

	ctx := context.Background()
	f, err := seq.GetFrame(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.bmp"), f.SourceStream)
	assert.Equal(t, VideoInfo{Width: 4, Height: 3, Format: FormatBGRA32}, f.Info())
	assert.NotEmpty(t, f.TraceID)
	// B, G, R, A of pixel (3, 2) of the second image written.
	assert.Equal(t, []byte{2, 3, 10, 0xFF}, f.Data[f.Offset(3, 2):f.Offset(3, 2)+4])

	f, err = seq.GetFrame(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.Seq)

	_, err = seq.GetFrame(ctx, 3)
	assert.ErrorIs(t, err, io.EOF)

	_, err = NewImageSequence(nil, FormatBGR24)
	assert.Error(t, err)
	_, err = NewImageSequence(files, FormatRGB24)
	assert.ErrorIs(t, err, ErrUnsupportedPixelFormat)
}

func TestChain(t *testing.T) {
	info := VideoInfo{Width: 5, Height: 5, Format: FormatBGR24}
	e, err := New(newMask(5, 5, [2]int{2, 2}), info)
	require.NoError(t, err)
	shift, err := NewColorShift(3000, 6500)
	require.NoError(t, err)

	f := fillFrame(info, func(x, y int) [3]byte { return [3]byte{128, 128, 128} })
	require.NoError(t, Chain{e, shift}.Process(f))
	assert.Equal(t, [3]byte{88, 120, 158}, at(f, 0, 0))
	assert.Equal(t, uint64(1), e.Stats().FramesHealed)

	wrong := fillFrame(VideoInfo{Width: 4, Height: 5, Format: FormatBGR24}, func(x, y int) [3]byte { return [3]byte{128, 128, 128} })
	err = Chain{e, shift}.Process(wrong)
	assert.ErrorIs(t, err, ErrFrameGeometry)
	assert.Equal(t, [3]byte{128, 128, 128}, at(wrong, 0, 0), "later processors skipped")
}

// forwardOnly rejects any index other than the next one.
type forwardOnly struct {
	*MemorySource
	next int
}

func (s *forwardOnly) GetFrame(ctx context.Context, n int) (*Frame, error) {
	if n != s.next {
		return nil, errors.New("out of order")
	}
	s.next++
	return s.MemorySource.GetFrame(ctx, n)
}

func TestProbe(t *testing.T) {
	info := VideoInfo{Width: 6, Height: 2, Format: FormatBGRA32}
	frames := []*Frame{
		fillFrame(info, func(x, y int) [3]byte { return [3]byte{0, 0, 0} }),
		fillFrame(info, func(x, y int) [3]byte { return [3]byte{1, 1, 1} }),
	}
	src := &forwardOnly{MemorySource: NewMemorySource(frames...)}

	ctx := context.Background()
	got, probed, err := Probe(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, info, got)

	f0, err := probed.GetFrame(ctx, 0)
	require.NoError(t, err)
	assert.Same(t, frames[0], f0)
	f1, err := probed.GetFrame(ctx, 1)
	require.NoError(t, err)
	assert.Same(t, frames[1], f1)
	_, err = probed.GetFrame(ctx, 2)
	assert.ErrorIs(t, err, io.EOF)

	_, _, err = Probe(ctx, NewMemorySource())
	assert.ErrorIs(t, err, io.EOF)
}
