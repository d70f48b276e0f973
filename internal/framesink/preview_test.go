package framesink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/maskimage"
)

func TestPreview_RateLimited(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSaver(dir, "bmp", 0)
	require.NoError(t, err)

	p := NewPreview(s, dir, time.Second)
	assert.Equal(t, filepath.Join(dir, "latest.bmp"), p.Path())

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := []time.Duration{0, 100 * time.Millisecond, 1500 * time.Millisecond}
	i := 0
	p.now = func() time.Time {
		t := clock.Add(ticks[i])
		i++
		return t
	}

	ch := make(chan *frame.Frame, 3)
	for seq := uint64(0); seq < 3; seq++ {
		f := testFrame(frame.FormatBGR24, seq)
		f.Data[0] = byte(10 * seq) // B of pixel (0,0)
		ch <- f
	}
	close(ch)

	p.Run(context.Background(), ch)

	saved, failed := s.Stats()
	assert.Equal(t, uint64(2), saved, "frame 1 falls inside the interval")
	assert.Zero(t, failed)

	img, _, err := maskimage.Load(p.Path())
	require.NoError(t, err)
	_, _, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(20), b>>8, "snapshot holds the last written frame")

	_, err = os.Stat(p.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestPreview_StopsOnCancel(t *testing.T) {
	s, err := NewSaver(t.TempDir(), "png", 0)
	require.NoError(t, err)
	p := NewPreview(s, t.TempDir(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, make(chan *frame.Frame))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
