package pixelheal

import (
	"context"
	"fmt"
	"sync"
)

// Probe reads frame 0 of src to learn the clip geometry. The returned
// source replays that frame on its first GetFrame(ctx, 0), so forward-only
// sources such as live streams can still be read from the start.
func Probe(ctx context.Context, src FrameSource) (VideoInfo, FrameSource, error) {
	first, err := src.GetFrame(ctx, 0)
	if err != nil {
		return VideoInfo{}, nil, fmt.Errorf("pixelheal: probe first frame: %w", err)
	}
	return first.Info(), &probedSource{FrameSource: src, first: first}, nil
}

type probedSource struct {
	FrameSource

	mu    sync.Mutex
	first *Frame
}

func (p *probedSource) GetFrame(ctx context.Context, n int) (*Frame, error) {
	p.mu.Lock()
	f := p.first
	if n == 0 {
		p.first = nil
	}
	p.mu.Unlock()

	if n == 0 && f != nil {
		return f, nil
	}
	return p.FrameSource.GetFrame(ctx, n)
}
