// Package capture decodes video URIs with GStreamer into BGR frames and
// exposes them as a sequential frame source.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
)

// ErrNotSequential is returned when frames are requested out of order.
// GStreamer sources can only be read forward.
var ErrNotSequential = errors.New("capture: frames must be requested in order")

// Config configures a Stream.
type Config struct {
	// URI is anything uridecodebin accepts (file:///..., rtsp://...).
	URI string
	// Format is FormatBGR24 or FormatBGRA32.
	Format frame.PixelFormat
	// Live drops frames when the consumer is slow and reconnects on
	// network errors. Files are read completely, one frame at a time.
	Live bool
	// Buffer is the number of decoded frames held ahead of the consumer
	// (default 4).
	Buffer int
	// Reconnect applies to live streams only.
	Reconnect ReconnectConfig
}

// Stats is a snapshot of stream counters.
type Stats struct {
	FramesCaptured  uint64
	FramesDelivered uint64
	FramesDropped   uint64
	BytesRead       uint64
	Reconnects      uint32
	ErrorsNetwork   uint64
	ErrorsCodec     uint64
	ErrorsResource  uint64
	ErrorsUnknown   uint64
	Uptime          time.Duration
}

// Stream is a GStreamer-backed frame source. GetFrame must be called with
// consecutive indices starting at 0.
type Stream struct {
	cfg Config

	frames chan *frame.Frame
	done   chan struct{} // closed when the pipeline goroutine exits
	err    error         // why it exited; read only after done is closed
	next   int

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started time.Time

	frameCount    uint64
	framesDropped uint64
	framesRead    uint64
	bytesRead     uint64
	reconnects    uint32
	errorCounters ErrorCounters
	stopOnce      sync.Once
	stopCallbacks chan struct{}
}

// NewStream validates cfg and checks that GStreamer is usable.
func NewStream(cfg Config) (*Stream, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("capture: URI is required")
	}
	if !cfg.Format.IsInterleavedBGR() {
		return nil, fmt.Errorf("capture: unsupported format %s (want bgr24 or bgra32)", cfg.Format)
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 4
	}
	if cfg.Reconnect.MaxRetries == 0 {
		cfg.Reconnect = DefaultReconnectConfig()
	}

	if err := checkGStreamerAvailable(); err != nil {
		return nil, fmt.Errorf("capture: GStreamer not available: %w", err)
	}

	return &Stream{
		cfg:           cfg,
		frames:        make(chan *frame.Frame, cfg.Buffer),
		done:          make(chan struct{}),
		stopCallbacks: make(chan struct{}),
	}, nil
}

// Start launches the pipeline in the background. Frames become available
// to GetFrame as soon as they are decoded.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("capture: stream already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = time.Now()

	slog.Info("capture: starting stream",
		"uri", s.cfg.URI,
		"format", s.cfg.Format.String(),
		"live", s.cfg.Live,
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.done)

		if s.cfg.Live {
			s.err = RunWithReconnect(runCtx, s.runOnce, s.cfg.Reconnect, &s.reconnects)
		} else {
			s.err = s.runOnce(runCtx)
		}
		if s.err == nil {
			s.err = io.EOF
		}
		if !errors.Is(s.err, io.EOF) {
			slog.Error("capture: stream stopped",
				"error", s.err,
				"uri", s.cfg.URI,
				"frames_captured", atomic.LoadUint64(&s.frameCount),
			)
		}
	}()

	return nil
}

// runOnce builds a pipeline, plays it until EOS, error or cancellation,
// and tears it down.
func (s *Stream) runOnce(ctx context.Context) error {
	elements, err := CreatePipeline(PipelineConfig{
		URI:    s.cfg.URI,
		Format: s.cfg.Format,
		Live:   s.cfg.Live,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := DestroyPipeline(elements); err != nil {
			slog.Error("capture: failed to destroy pipeline", "error", err)
		}
	}()

	callbackCtx := &CallbackContext{
		Frames:        s.frames,
		Done:          s.stopCallbacks,
		FrameCounter:  &s.frameCount,
		BytesRead:     &s.bytesRead,
		FramesDropped: &s.framesDropped,
		Format:        s.cfg.Format,
		Live:          s.cfg.Live,
		SourceStream:  s.cfg.URI,
	}
	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return OnNewSample(sink, callbackCtx)
		},
	})

	converter := elements.Converter
	if _, err := elements.Decoder.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		OnPadAdded(srcPad, converter)
	}); err != nil {
		return fmt.Errorf("capture: failed to connect pad-added: %w", err)
	}

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("capture: failed to start pipeline: %w", err)
	}

	return MonitorPipelineBus(ctx, elements.Pipeline, &s.errorCounters, s.cfg.URI)
}

// GetFrame returns frame n. n must be the index after the previous call.
// It blocks until a frame is decoded and returns io.EOF after the last
// one.
func (s *Stream) GetFrame(ctx context.Context, n int) (*frame.Frame, error) {
	if n != s.next {
		return nil, fmt.Errorf("%w: want frame %d, got %d", ErrNotSequential, s.next, n)
	}

	var f *frame.Frame
	select {
	case f = <-s.frames:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		// Decoded frames may still be queued behind the exit.
		select {
		case f = <-s.frames:
		default:
			return nil, s.err
		}
	}

	s.next++
	f.Seq = uint64(n)
	atomic.AddUint64(&s.framesRead, 1)
	return f, nil
}

// MakeWritable returns f: captured frames are owned by the caller.
func (s *Stream) MakeWritable(f *frame.Frame) *frame.Frame {
	return frame.Writable(f)
}

// Stop cancels the pipeline and waits for it to shut down (3s max).
// Idempotent.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.stopOnce.Do(func() { close(s.stopCallbacks) })
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Debug("capture: goroutines stopped cleanly")
	case <-time.After(3 * time.Second):
		slog.Warn("capture: stop timeout exceeded, some goroutines may still be running")
	}

	stats := s.statsLocked()
	slog.Info("capture: stream stopped",
		"frames_captured", stats.FramesCaptured,
		"frames_delivered", stats.FramesDelivered,
		"frames_dropped", stats.FramesDropped,
		"reconnects", stats.Reconnects,
		"uptime", stats.Uptime,
	)

	return nil
}

// Stats returns current stream statistics.
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Stream) statsLocked() Stats {
	var uptime time.Duration
	if !s.started.IsZero() {
		uptime = time.Since(s.started)
	}
	return Stats{
		FramesCaptured:  atomic.LoadUint64(&s.frameCount),
		FramesDelivered: atomic.LoadUint64(&s.framesRead),
		FramesDropped:   atomic.LoadUint64(&s.framesDropped),
		BytesRead:       atomic.LoadUint64(&s.bytesRead),
		Reconnects:      atomic.LoadUint32(&s.reconnects),
		ErrorsNetwork:   atomic.LoadUint64(&s.errorCounters.Network),
		ErrorsCodec:     atomic.LoadUint64(&s.errorCounters.Codec),
		ErrorsResource:  atomic.LoadUint64(&s.errorCounters.Resource),
		ErrorsUnknown:   atomic.LoadUint64(&s.errorCounters.Unknown),
		Uptime:          uptime,
	}
}

// checkGStreamerAvailable fails fast when GStreamer is not installed.
func checkGStreamerAvailable() error {
	gst.Init(nil)

	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)

	return nil
}
