// Package throughput measures frame-rate and jitter of a healing run.
package throughput

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// fpsStabilityThreshold is the maximum FPS standard deviation as a
	// fraction of mean FPS.
	fpsStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of
	// the expected inter-frame interval.
	jitterStabilityThreshold = 0.20
)

// Stats summarises the frame timestamps of a run.
type Stats struct {
	Frames   int
	Duration time.Duration // first to last frame

	FPSMean   float64
	FPSStdDev float64
	FPSMin    float64
	FPSMax    float64

	JitterMean   float64 // seconds
	JitterStdDev float64
	JitterMax    float64

	IsStable bool
}

// Calculate computes FPS and jitter statistics from frame completion
// times, which must be in ascending order.
//
// A run is stable when the FPS standard deviation is under 15% of the mean
// and the mean jitter is under 20% of the expected interval.
func Calculate(frameTimes []time.Time) Stats {
	n := len(frameTimes)
	s := Stats{Frames: n}
	if n < 2 {
		return s
	}

	s.Duration = frameTimes[n-1].Sub(frameTimes[0])
	if s.Duration <= 0 {
		return s
	}
	s.FPSMean = float64(n-1) / s.Duration.Seconds()

	intervals := make([]float64, 0, n-1)
	instantaneous := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		iv := frameTimes[i].Sub(frameTimes[i-1]).Seconds()
		intervals = append(intervals, iv)
		if iv > 0 {
			instantaneous = append(instantaneous, 1/iv)
		}
	}

	if len(instantaneous) > 0 {
		_, s.FPSStdDev = stat.PopMeanStdDev(instantaneous, nil)
		s.FPSMin = floats.Min(instantaneous)
		s.FPSMax = floats.Max(instantaneous)
	}

	expected := 1 / s.FPSMean
	jitters := make([]float64, len(intervals))
	for i, iv := range intervals {
		jitters[i] = math.Abs(iv - expected)
	}
	s.JitterMean, s.JitterStdDev = stat.PopMeanStdDev(jitters, nil)
	s.JitterMax = floats.Max(jitters)

	fpsStable := s.FPSStdDev < s.FPSMean*fpsStabilityThreshold
	jitterStable := s.JitterMean < expected*jitterStabilityThreshold
	s.IsStable = fpsStable && jitterStable

	return s
}

// Meter records frame completion times. It keeps the most recent window
// timestamps. Safe for concurrent use.
type Meter struct {
	mu     sync.Mutex
	window int
	times  []time.Time
	total  uint64
}

// NewMeter keeps up to window timestamps (default 1024 when <= 0).
func NewMeter(window int) *Meter {
	if window <= 0 {
		window = 1024
	}
	return &Meter{window: window, times: make([]time.Time, 0, window)}
}

// Record adds one frame completed at t.
func (m *Meter) Record(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.times) == m.window {
		copy(m.times, m.times[1:])
		m.times = m.times[:m.window-1]
	}
	m.times = append(m.times, t)
	m.total++
}

// Total is the number of frames recorded since creation.
func (m *Meter) Total() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Snapshot computes statistics over the current window.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	times := append([]time.Time(nil), m.times...)
	m.mu.Unlock()

	return Calculate(times)
}
