package capture

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
)

// CallbackContext holds state needed by GStreamer callbacks
type CallbackContext struct {
	Frames        chan<- *frame.Frame
	Done          <-chan struct{} // closed on Stop; unblocks file-mode sends
	FrameCounter  *uint64         // Atomic counter for sequence numbers
	BytesRead     *uint64         // Atomic counter for bytes read
	FramesDropped *uint64         // Atomic counter for dropped frames (channel full)
	Format        frame.PixelFormat
	Live          bool
	SourceStream  string
}

// OnNewSample is called by GStreamer when a new frame is available
//
// This callback:
//  1. Pulls the sample and reads width/height from its caps
//  2. Maps the buffer and copies the pixels (GStreamer reuses the buffer)
//  3. Derives the row stride from the buffer size
//  4. Delivers the frame: live streams drop when the channel is full,
//     file streams block until the consumer catches up
func OnNewSample(sink *app.Sink, ctx *CallbackContext) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// A single corrupted frame should not kill the entire pipeline
		slog.Warn("capture: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	width, height, ok := sampleGeometry(sample)
	if !ok {
		slog.Warn("capture: sample without video geometry, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("capture: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("capture: empty buffer received")
		return gst.FlowOK
	}

	seq := atomic.AddUint64(ctx.FrameCounter, 1) - 1
	f, err := newFrame(data, width, height, ctx.Format, seq)
	buffer.Unmap()
	if err != nil {
		slog.Warn("capture: dropping malformed frame", "seq", seq, "error", err)
		atomic.AddUint64(ctx.FramesDropped, 1)
		return gst.FlowOK
	}
	f.SourceStream = ctx.SourceStream
	atomic.AddUint64(ctx.BytesRead, uint64(len(f.Data)))

	if ctx.Live {
		select {
		case ctx.Frames <- f:
			slog.Debug("capture: frame sent", "seq", f.Seq, "trace_id", f.TraceID)
		default:
			atomic.AddUint64(ctx.FramesDropped, 1)
			slog.Debug("capture: dropping frame, channel full",
				"seq", f.Seq,
				"trace_id", f.TraceID,
			)
		}
		return gst.FlowOK
	}

	select {
	case ctx.Frames <- f:
		return gst.FlowOK
	case <-ctx.Done:
		return gst.FlowFlushing
	}
}

// OnPadAdded links a new uridecodebin pad to the converter. Non-video pads
// (audio, subtitles) are ignored.
func OnPadAdded(srcPad *gst.Pad, converter *gst.Element) {
	caps := srcPad.GetCurrentCaps()
	if caps != nil && caps.GetSize() > 0 {
		name := caps.GetStructureAt(0).Name()
		if len(name) < 6 || name[:6] != "video/" {
			slog.Debug("capture: ignoring non-video pad", "pad", srcPad.GetName(), "caps", name)
			return
		}
	}

	sinkPad := converter.GetStaticPad("sink")
	if sinkPad == nil {
		slog.Error("capture: failed to get sink pad from videoconvert")
		return
	}
	if sinkPad.IsLinked() {
		slog.Debug("capture: converter already linked, ignoring pad", "pad", srcPad.GetName())
		return
	}

	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		slog.Error("capture: failed to link pads",
			"src_pad", srcPad.GetName(),
			"sink_pad", sinkPad.GetName(),
			"ret", ret,
		)
		return
	}

	slog.Debug("capture: pads linked", "src_pad", srcPad.GetName())
}

// sampleGeometry reads width and height from the negotiated sample caps.
func sampleGeometry(sample *gst.Sample) (width, height int, ok bool) {
	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0, false
	}
	structure := caps.GetStructureAt(0)

	if val, err := structure.GetValue("width"); err == nil {
		width, _ = val.(int)
	}
	if val, err := structure.GetValue("height"); err == nil {
		height, _ = val.(int)
	}
	return width, height, width > 0 && height > 0
}

// newFrame copies one mapped buffer into a frame.
//
// GStreamer pads packed 3-byte rows to a multiple of 4, so the stride is
// taken from the buffer size rather than computed from the width.
func newFrame(data []byte, width, height int, format frame.PixelFormat, seq uint64) (*frame.Frame, error) {
	stride := len(data) / height
	if row := width * format.BytesPerPixel(); stride < row {
		return nil, fmt.Errorf("buffer of %d bytes too small for %dx%d %s", len(data), width, height, format)
	}

	pixels := make([]byte, stride*height)
	copy(pixels, data)

	return &frame.Frame{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		Stride:    stride,
		Format:    format,
		Data:      pixels,
		TraceID:   uuid.New().String(),
	}, nil
}
