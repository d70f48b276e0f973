package pixelheal

import (
	"context"
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
)

// Processor mutates one frame in place. Engine and ColorShift are
// processors.
type Processor interface {
	Process(f *Frame) error
}

// Filter is a FrameSource that pulls frames from a child source and runs a
// Processor on a writable copy of each.
type Filter struct {
	name  string
	child FrameSource
	proc  Processor
}

// NewFilter chains proc after child. name appears in errors.
func NewFilter(name string, child FrameSource, proc Processor) *Filter {
	return &Filter{name: name, child: child, proc: proc}
}

// NewHealFilter repairs dead pixels in every frame of child.
func NewHealFilter(child FrameSource, e *Engine) *Filter {
	return NewFilter("heal", child, e)
}

// NewKelvinFilter shifts the colour temperature of every frame of child.
func NewKelvinFilter(child FrameSource, c *ColorShift) *Filter {
	return NewFilter("kelvin", child, c)
}

// GetFrame returns frame n of the child, processed. The child's frame is
// never modified when it is shared.
func (f *Filter) GetFrame(ctx context.Context, n int) (*Frame, error) {
	src, err := f.child.GetFrame(ctx, n)
	if err != nil {
		return nil, err
	}

	out := f.child.MakeWritable(src)
	if err := f.proc.Process(out); err != nil {
		return nil, fmt.Errorf("pixelheal: %s filter frame %d: %w", f.name, n, err)
	}
	return out, nil
}

// MakeWritable copies f when it is shared. Frames returned by GetFrame are
// already exclusively owned.
func (f *Filter) MakeWritable(fr *Frame) *Frame {
	return frame.Writable(fr)
}

// Chain runs processors in order, stopping at the first error.
type Chain []Processor

// Process applies every processor of the chain to f.
func (c Chain) Process(f *Frame) error {
	for _, p := range c {
		if err := p.Process(f); err != nil {
			return err
		}
	}
	return nil
}
