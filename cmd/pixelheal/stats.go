package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/capture"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/emitter"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/framebus"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/framesink"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/runner"
)

// reporter periodically logs statistics from all run components.
type reporter struct {
	runner *runner.Runner
	engine *pixelheal.Engine
	saver  *framesink.Saver
	bus    *framebus.Bus
	stream *capture.Stream // nil for image sequences

	emitter    *emitter.MQTTEmitter // nil when MQTT reporting is off
	instanceID string
}

func (r *reporter) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.logProgress()
		}
	}
}

// report collects a snapshot from every component.
func (r *reporter) report(final bool) emitter.Report {
	tp := r.runner.Throughput()
	es := r.engine.Stats()
	saved, failed := r.saver.Stats()

	rep := emitter.Report{
		InstanceID: r.instanceID,
		Timestamp:  time.Now(),
		Final:      final,
		Frames:     r.runner.Processed(),
		FPS:        tp.FPSMean,
		JitterMS:   tp.JitterMean * 1000,
		Stable:     tp.IsStable,
		Saved:      saved,
		SaveFailed: failed,
		DeadPixels: es.DeadPixels,
		Degenerate: es.Degenerate,
	}
	if r.stream != nil {
		s := r.stream.Stats()
		rep.Captured = s.FramesCaptured
		rep.CaptureDropped = s.FramesDropped
		rep.Reconnects = s.Reconnects
	}
	return rep
}

func (r *reporter) logProgress() {
	rep := r.report(false)

	attrs := []any{
		"frames", rep.Frames,
		"fps", fmt.Sprintf("%.2f", rep.FPS),
		"jitter_ms", fmt.Sprintf("%.1f", rep.JitterMS),
		"stable", rep.Stable,
		"saved", rep.Saved,
		"save_failed", rep.SaveFailed,
	}
	if r.stream != nil {
		attrs = append(attrs,
			"captured", rep.Captured,
			"capture_dropped", rep.CaptureDropped,
			"reconnects", rep.Reconnects,
		)
	}
	slog.Info("Progress", attrs...)

	r.publish(rep)
}

func (r *reporter) publish(rep emitter.Report) {
	if r.emitter == nil {
		return
	}
	if err := r.emitter.Publish(rep); err != nil {
		slog.Warn("Failed to publish report", "final", rep.Final, "error", err)
	}
}

// printFinal prints a summary table once the run is over.
func (r *reporter) printFinal(w io.Writer) {
	r.publish(r.report(true))

	tp := r.runner.Throughput()
	es := r.engine.Stats()
	saved, failed := r.saver.Stats()
	bs := r.bus.Stats()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╭─────────────────────────────────────────────────────────────────╮")
	fmt.Fprintln(w, "│ Final Statistics")
	fmt.Fprintln(w, "├─────────────────────────────────────────────────────────────────┤")

	fmt.Fprintln(w, "│ Healing:")
	fmt.Fprintf(w, "│   Dead Pixels:        %6d\n", es.DeadPixels)
	fmt.Fprintf(w, "│   Without Donors:     %6d\n", es.Degenerate)
	fmt.Fprintf(w, "│   Recipes Cached:     %6v\n", es.CacheHit)
	fmt.Fprintf(w, "│   Frames Healed:      %6d frames\n", es.FramesHealed)

	fmt.Fprintln(w, "│")
	fmt.Fprintln(w, "│ Throughput (recent window):")
	fmt.Fprintf(w, "│   Mean FPS:           %6.2f fps\n", tp.FPSMean)
	fmt.Fprintf(w, "│   FPS Range:          %6.2f - %.2f fps\n", tp.FPSMin, tp.FPSMax)
	fmt.Fprintf(w, "│   Mean Jitter:        %6.1f ms\n", tp.JitterMean*1000)
	fmt.Fprintf(w, "│   Stable:             %6v\n", tp.IsStable)

	fmt.Fprintln(w, "│")
	fmt.Fprintln(w, "│ Output:")
	fmt.Fprintf(w, "│   Frames Saved:       %6d frames\n", saved)
	fmt.Fprintf(w, "│   Save Failures:      %6d\n", failed)
	if len(bs.Subscribers) > 0 {
		fmt.Fprintf(w, "│   Preview Drops:      %6d (%.1f%%)\n", bs.TotalDropped, bs.DropRate()*100)
	}

	if r.stream != nil {
		s := r.stream.Stats()
		fmt.Fprintln(w, "│")
		fmt.Fprintln(w, "│ Capture:")
		fmt.Fprintf(w, "│   Frames Captured:    %6d frames\n", s.FramesCaptured)
		fmt.Fprintf(w, "│   Frames Dropped:     %6d frames\n", s.FramesDropped)
		fmt.Fprintf(w, "│   Reconnects:         %6d\n", s.Reconnects)
		fmt.Fprintf(w, "│   Errors:             %6d network, %d codec, %d resource\n",
			s.ErrorsNetwork, s.ErrorsCodec, s.ErrorsResource)
	}

	fmt.Fprintln(w, "╰─────────────────────────────────────────────────────────────────╯")
}

func printBanner(w io.Writer, cfg *config.Config, info pixelheal.VideoInfo) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(w, "║    pixelheal %-48s ║\n", version)
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration:")

	if cfg.Source.URI != "" {
		fmt.Fprintf(w, "  Source:          %s (live=%v)\n", cfg.Source.URI, cfg.Source.Live)
	} else {
		fmt.Fprintf(w, "  Source:          %s\n", cfg.Source.Images)
	}
	fmt.Fprintf(w, "  Video:           %s\n", info)
	fmt.Fprintf(w, "  Mask:            %s (%s, flip=%v)\n", cfg.Mask.Path, cfg.Mask.Polarity, cfg.Mask.FlipVertical)
	fmt.Fprintf(w, "  Donor Search:    radius %d, up to %d donors\n", cfg.Mask.MaxDistance, cfg.Mask.MaxPixels)
	if cfg.Kelvin.Enabled {
		fmt.Fprintf(w, "  Kelvin Shift:    %dK -> %dK\n", cfg.Kelvin.From, cfg.Kelvin.To)
	}
	fmt.Fprintf(w, "  Workers:         %d\n", cfg.Workers)
	fmt.Fprintf(w, "  Output:          %s (%s)\n", cfg.Output.Dir, cfg.Output.Format)
	fmt.Fprintln(w)
}
