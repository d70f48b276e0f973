package framesink

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
)

// Preview keeps a single "latest" snapshot of a run on disk, rewritten at
// most once per interval.
type Preview struct {
	saver    *Saver
	path     string
	interval time.Duration
	now      func() time.Time
}

// NewPreview writes snapshots to dir/latest.<ext> using the saver's
// encoder.
func NewPreview(saver *Saver, dir string, interval time.Duration) *Preview {
	return &Preview{
		saver:    saver,
		path:     filepath.Join(dir, "latest."+saver.Ext()),
		interval: interval,
		now:      time.Now,
	}
}

// Path is the snapshot file.
func (p *Preview) Path() string { return p.path }

// Run consumes frames until ch is closed or ctx is done. Frames arriving
// inside the interval are skipped. Write failures are logged, not returned.
func (p *Preview) Run(ctx context.Context, ch <-chan *frame.Frame) {
	var last time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-ch:
			if !ok {
				return
			}
			now := p.now()
			if !last.IsZero() && now.Sub(last) < p.interval {
				continue
			}
			last = now

			if err := p.saver.SaveTo(f, p.path); err != nil {
				slog.Warn("framesink: preview write failed", "seq", f.Seq, "error", err)
				continue
			}
			slog.Debug("framesink: preview updated", "seq", f.Seq, "path", p.path)
		}
	}
}
