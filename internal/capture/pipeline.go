package capture

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
)

// PipelineConfig contains configuration for GStreamer pipeline creation
type PipelineConfig struct {
	URI    string
	Format frame.PixelFormat // FormatBGR24 or FormatBGRA32
	Live   bool              // true: drop frames when the consumer is slow
}

// PipelineElements holds references to GStreamer pipeline elements
// needed by the callbacks and for cleanup.
type PipelineElements struct {
	Pipeline   *gst.Pipeline
	AppSink    *app.Sink
	Decoder    *gst.Element
	Converter  *gst.Element
	CapsFilter *gst.Element
}

// CreatePipeline creates and configures a decoding pipeline for any URI
// GStreamer understands (file://, rtsp://, http://)
//
// Pipeline structure:
//
//	uridecodebin → videoconvert → capsfilter(BGR|BGRx) → appsink
//
// uridecodebin has dynamic pads; the caller connects "pad-added" to
// OnPadAdded. The pipeline is configured but NOT started.
func CreatePipeline(cfg PipelineConfig) (*PipelineElements, error) {
	gstFormat := cfg.Format.GstFormat()
	if !cfg.Format.IsInterleavedBGR() || gstFormat == "" {
		return nil, fmt.Errorf("unsupported capture format %s", cfg.Format)
	}

	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	decoder, err := gst.NewElement("uridecodebin")
	if err != nil {
		return nil, fmt.Errorf("failed to create uridecodebin: %w", err)
	}
	decoder.SetProperty("uri", cfg.URI)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0) // 0 = auto-detect cores
	converter.SetProperty("dither", 0)    // Healing must see the decoded values

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsStr := buildFormatCaps(gstFormat)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	if cfg.Live {
		// Live sources cannot be paused: keep only the latest frame.
		appsink.SetProperty("max-buffers", 1)
		appsink.SetProperty("drop", true)
		appsink.SetProperty("qos", true)
	} else {
		// Files are healed frame by frame; the callback blocks instead.
		appsink.SetProperty("max-buffers", 2)
		appsink.SetProperty("drop", false)
	}

	pipeline.AddMany(decoder, converter, capsfilter, appsink.Element)

	// Link static elements (uridecodebin is linked in pad-added callback)
	if err := gst.ElementLinkMany(converter, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	slog.Debug("capture: pipeline created",
		"uri", cfg.URI,
		"caps", capsStr,
		"live", cfg.Live,
	)

	return &PipelineElements{
		Pipeline:   pipeline,
		AppSink:    appsink,
		Decoder:    decoder,
		Converter:  converter,
		CapsFilter: capsfilter,
	}, nil
}

// DestroyPipeline sets the pipeline to NULL and releases its resources.
// Safe to call even if the pipeline is already destroyed.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}

	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}

	return nil
}

// buildFormatCaps builds the raw video caps the appsink accepts.
// Width, height and framerate are left to the source.
func buildFormatCaps(gstFormat string) string {
	return fmt.Sprintf("video/x-raw,format=%s", gstFormat)
}
