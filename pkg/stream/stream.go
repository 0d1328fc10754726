// Package stream delivers execution lifecycle events to subscribers.
//
// Delivery contract: events for a single execution arrive in emission order.
// Slow subscribers are buffered; under overflow the oldest node_progress
// events are dropped first, and lifecycle transition events are never
// dropped.
package stream

import (
	"sync"

	"github.com/mettice/nodeai/pkg/types"
)

// MinBufferSize is the smallest allowed per-subscriber progress buffer.
const MinBufferSize = 16

// Bus fans execution events out to zero or more subscribers. Implementations
// must be safe for concurrent publication from multiple executions.
type Bus interface {
	// Subscribe returns a subscription delivering all events published for
	// the execution after the call. The channel closes after the
	// execution_completed event is delivered or the subscriber cancels.
	Subscribe(executionID string) *Subscription

	// Publish delivers an event to every subscriber of the execution.
	// It never blocks on slow subscribers.
	Publish(executionID string, event types.Event)
}

// MemoryBus is the in-process Bus implementation.
type MemoryBus struct {
	mu         sync.RWMutex
	subs       map[string][]*Subscription
	bufferSize int
}

// NewBus creates a bus with the given per-subscriber progress buffer size.
// Sizes below MinBufferSize are raised to it.
func NewBus(bufferSize int) *MemoryBus {
	if bufferSize < MinBufferSize {
		bufferSize = MinBufferSize
	}
	return &MemoryBus{
		subs:       make(map[string][]*Subscription),
		bufferSize: bufferSize,
	}
}

// Subscribe implements Bus
func (b *MemoryBus) Subscribe(executionID string) *Subscription {
	sub := newSubscription(executionID, b.bufferSize)
	go sub.pump()

	b.mu.Lock()
	b.subs[executionID] = append(b.subs[executionID], sub)
	b.mu.Unlock()
	return sub
}

// Publish implements Bus
func (b *MemoryBus) Publish(executionID string, event types.Event) {
	b.mu.RLock()
	subs := b.subs[executionID]
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.enqueue(event)
	}

	// The terminal event seals the stream; drop the subscriber list so the
	// bus does not grow with finished executions.
	if event.Type == types.EventExecutionCompleted {
		b.mu.Lock()
		delete(b.subs, executionID)
		b.mu.Unlock()
	}
}

// Subscription is one subscriber's ordered view of an execution's events.
type Subscription struct {
	executionID string
	bufferSize  int

	events chan types.Event
	wake   chan struct{}
	cancel chan struct{}

	mu       sync.Mutex
	queue    []types.Event
	sealed   bool // execution_completed enqueued
	canceled bool
	dropped  int
}

func newSubscription(executionID string, bufferSize int) *Subscription {
	return &Subscription{
		executionID: executionID,
		bufferSize:  bufferSize,
		events:      make(chan types.Event),
		wake:        make(chan struct{}, 1),
		cancel:      make(chan struct{}),
	}
}

// Events returns the delivery channel. It closes after the terminal
// execution_completed event or after Close.
func (s *Subscription) Events() <-chan types.Event {
	return s.events
}

// Close cancels the subscription. Buffered events are discarded.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	s.canceled = true
	s.mu.Unlock()

	close(s.cancel)
	s.signal()
}

// Dropped reports how many progress events were shed under backpressure.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// enqueue buffers an event for delivery. Progress events beyond the buffer
// bound shed oldest-first; lifecycle events are always kept.
func (s *Subscription) enqueue(event types.Event) {
	s.mu.Lock()
	if s.canceled || s.sealed {
		s.mu.Unlock()
		return
	}

	if !event.Lifecycle() && s.progressCount() >= s.bufferSize {
		s.dropOldestProgress()
	}
	s.queue = append(s.queue, event)
	if event.Type == types.EventExecutionCompleted {
		s.sealed = true
	}
	s.mu.Unlock()

	s.signal()
}

// progressCount counts buffered node_progress events. Callers hold s.mu.
func (s *Subscription) progressCount() int {
	n := 0
	for i := range s.queue {
		if !s.queue[i].Lifecycle() {
			n++
		}
	}
	return n
}

// dropOldestProgress removes the oldest buffered node_progress event.
// Callers hold s.mu.
func (s *Subscription) dropOldestProgress() {
	for i := range s.queue {
		if !s.queue[i].Lifecycle() {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.dropped++
			return
		}
	}
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump delivers buffered events to the subscriber in order, closing the
// channel once the stream is sealed and drained, or on cancellation.
func (s *Subscription) pump() {
	defer close(s.events)

	for {
		s.mu.Lock()
		if s.canceled {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			sealed := s.sealed
			s.mu.Unlock()
			if sealed {
				return
			}
			select {
			case <-s.wake:
			case <-s.cancel:
				return
			}
			continue
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.events <- event:
		case <-s.cancel:
			return
		}
	}
}
