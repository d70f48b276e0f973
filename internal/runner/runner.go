// Package runner drives a healing run: frames are pulled sequentially from
// a source, processed on a bounded worker pool and handed to a sink in
// their original order.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/throughput"
)

// Processor mutates one frame in place.
type Processor interface {
	Process(f *frame.Frame) error
}

// Sink receives processed frames, one at a time, in source order.
type Sink interface {
	Save(f *frame.Frame) error
}

// Config configures a Runner.
type Config struct {
	// Workers is the number of frames processed concurrently (default 1).
	Workers int
	// InFlight bounds frames read but not yet sunk (default 2*Workers).
	InFlight int
	// MaxFrames stops the run after this many frames; 0 reads to EOF.
	MaxFrames int
	// OnFrame, when set, is called after each frame is sunk, from the
	// sink goroutine. It must not block.
	OnFrame func(f *frame.Frame)
}

// Runner heals one clip. A Runner is single-use.
type Runner struct {
	src  frame.Source
	proc Processor
	sink Sink
	cfg  Config

	meter     *throughput.Meter
	processed atomic.Uint64
}

type job struct {
	n int
	f *frame.Frame
}

// New creates a runner reading from src.
func New(src frame.Source, proc Processor, sink Sink, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.InFlight < cfg.Workers {
		cfg.InFlight = 2 * cfg.Workers
	}
	return &Runner{
		src:   src,
		proc:  proc,
		sink:  sink,
		cfg:   cfg,
		meter: throughput.NewMeter(0),
	}
}

// Run processes frames until the source returns io.EOF, MaxFrames is
// reached, ctx is cancelled or a stage fails. It returns nil on EOF, the
// context error on cancellation, or the first stage error.
func (r *Runner) Run(ctx context.Context) error {
	parent := ctx
	g, ctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(r.cfg.InFlight))

	jobs := make(chan job)
	results := make(chan job, r.cfg.Workers)

	slog.Info("runner: starting",
		"workers", r.cfg.Workers,
		"in_flight", r.cfg.InFlight,
		"max_frames", r.cfg.MaxFrames,
	)

	g.Go(func() error {
		defer close(jobs)
		return r.read(ctx, sem, jobs)
	})

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return r.work(ctx, jobs, results)
		})
	}
	g.Go(func() error {
		wg.Wait()
		close(results)
		return nil
	})

	g.Go(func() error {
		return r.collect(results, sem)
	})

	err := g.Wait()
	stats := r.meter.Snapshot()
	slog.Info("runner: finished",
		"frames", r.processed.Load(),
		"fps_mean", stats.FPSMean,
		"stable", stats.IsStable,
	)

	if err != nil {
		return err
	}
	return parent.Err()
}

// read pulls frames sequentially. Each frame holds one semaphore slot
// until it is sunk.
func (r *Runner) read(ctx context.Context, sem *semaphore.Weighted, jobs chan<- job) error {
	for n := 0; r.cfg.MaxFrames == 0 || n < r.cfg.MaxFrames; n++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil
		}

		f, err := r.src.GetFrame(ctx, n)
		if err != nil {
			sem.Release(1)
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("runner: read frame %d: %w", n, err)
		}

		select {
		case jobs <- job{n: n, f: r.src.MakeWritable(f)}:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func (r *Runner) work(ctx context.Context, jobs <-chan job, results chan<- job) error {
	for j := range jobs {
		if err := r.proc.Process(j.f); err != nil {
			return fmt.Errorf("runner: process frame %d: %w", j.n, err)
		}
		select {
		case results <- j:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// collect reorders results and sinks them strictly by frame index.
func (r *Runner) collect(results <-chan job, sem *semaphore.Weighted) error {
	pending := make(map[int]*frame.Frame)
	next := 0

	for j := range results {
		pending[j.n] = j.f

		for {
			f, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)

			if err := r.sink.Save(f); err != nil {
				return fmt.Errorf("runner: sink frame %d: %w", next, err)
			}
			r.meter.Record(time.Now())
			r.processed.Add(1)
			if r.cfg.OnFrame != nil {
				r.cfg.OnFrame(f)
			}

			sem.Release(1)
			next++
		}
	}
	return nil
}

// Processed returns the number of frames sunk so far.
func (r *Runner) Processed() uint64 {
	return r.processed.Load()
}

// Throughput returns frame-rate statistics over the most recent frames.
func (r *Runner) Throughput() throughput.Stats {
	return r.meter.Snapshot()
}
