// Package framebus fans healed frames out to live observers.
//
// Publish never blocks: a subscriber whose channel is full misses the frame
// and the drop is counted. Observers (preview writers, monitors) therefore
// cannot slow down a healing run.
//
//	bus := framebus.New()
//	defer bus.Close()
//
//	previews := make(chan *frame.Frame, 1)
//	bus.Subscribe("preview", previews)
//
//	bus.Publish(healed)
//
// Published frames are marked shared. Subscribers must treat them as
// read-only.
package framebus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/pixelheal/internal/frame"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("framebus: subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with unknown id.
	ErrSubscriberNotFound = errors.New("framebus: subscriber id not found")

	// ErrBusClosed is returned when subscriptions change on a closed bus.
	ErrBusClosed = errors.New("framebus: bus is closed")
)

// Stats contains global and per-subscriber counters.
type Stats struct {
	TotalPublished uint64
	TotalSent      uint64
	TotalDropped   uint64
	Subscribers    map[string]SubscriberStats
}

// SubscriberStats tracks one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// DropRate returns dropped/(sent+dropped), or 0 when nothing was offered.
func (s Stats) DropRate() float64 {
	total := s.TotalSent + s.TotalDropped
	if total == 0 {
		return 0
	}
	return float64(s.TotalDropped) / float64(total)
}

type subscriber struct {
	ch      chan<- *frame.Frame
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus distributes frames to subscribers with a drop policy. Safe for
// concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool

	totalPublished atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers ch under id.
func (b *Bus) Subscribe(id string, ch chan<- *frame.Frame) error {
	if ch == nil {
		return errors.New("framebus: subscriber channel cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = &subscriber{ch: ch}
	return nil
}

// Unsubscribe removes id. Its channel is not closed.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}

	delete(b.subscribers, id)
	return nil
}

// Publish offers f to every subscriber without blocking. Publishing on a
// closed bus is a no-op.
func (b *Bus) Publish(f *frame.Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	f.MarkShared()
	b.totalPublished.Add(1)

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- f:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of the counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := Stats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.subscribers)),
	}

	for id, sub := range b.subscribers {
		s := SubscriberStats{Sent: sub.sent.Load(), Dropped: sub.dropped.Load()}
		result.TotalSent += s.Sent
		result.TotalDropped += s.Dropped
		result.Subscribers[id] = s
	}

	return result
}

// Close stops distribution. Subscriber channels are left open; each
// subscriber owns its channel. Idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	return nil
}
