package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// PipelineError is a classified error posted on the pipeline bus.
type PipelineError struct {
	Category ErrorCategory
	Message  string
	Debug    string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error [%s]: %s", e.Category, e.Message)
}

// ErrorCounters holds atomic counters for different error categories
type ErrorCounters struct {
	Network  uint64
	Codec    uint64
	Resource uint64
	Unknown  uint64
}

func (c *ErrorCounters) add(category ErrorCategory) {
	switch category {
	case ErrCategoryNetwork:
		atomic.AddUint64(&c.Network, 1)
	case ErrCategoryCodec:
		atomic.AddUint64(&c.Codec, 1)
	case ErrCategoryResource:
		atomic.AddUint64(&c.Resource, 1)
	default:
		atomic.AddUint64(&c.Unknown, 1)
	}
}

// MonitorPipelineBus polls the pipeline bus until end of stream, an error,
// or cancellation.
//
// Returns io.EOF on end of stream, a *PipelineError on a bus error, and nil
// when ctx is cancelled (graceful shutdown).
func MonitorPipelineBus(ctx context.Context, pipeline *gst.Pipeline, counters *ErrorCounters, uri string) error {
	if pipeline == nil {
		return fmt.Errorf("pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()
	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("capture: context cancelled, stopping pipeline monitor")
			return nil
		default:
		}

		// Short timeout for responsive shutdown
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("capture: end of stream received",
				"uri", uri,
				"uptime", time.Since(started),
			)
			return io.EOF

		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGStreamerError(gerr)
			counters.add(category)

			perr := &PipelineError{Category: category}
			if gerr != nil {
				perr.Message = gerr.Error()
				perr.Debug = gerr.DebugString()
			}

			slog.Error("capture: pipeline error",
				"error", perr.Message,
				"debug", perr.Debug,
				"category", category.String(),
				"uri", uri,
				"uptime", time.Since(started),
			)
			return perr

		case gst.MessageStateChanged:
			if msg.Source() == pipeline.GetName() {
				old, new := msg.ParseStateChanged()
				slog.Debug("capture: pipeline state changed", "from", old, "to", new)
			}
		}
	}
}
