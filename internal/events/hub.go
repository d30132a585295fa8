// Package events implements the in-process broadcast of account events to
// stream subscribers. Every subscriber owns a bounded buffer; Publish never
// blocks and a full buffer is handled by the hub's overflow policy.
package events

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"taskboard/internal/model"
	"taskboard/internal/observability"
)

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("event hub closed")

// DefaultBufferSize is the per-subscriber buffer used when none is configured.
const DefaultBufferSize = 64

// OverflowPolicy decides what happens when a subscriber buffer is full.
type OverflowPolicy string

const (
	// DropOldest discards the oldest buffered event to make room.
	DropOldest OverflowPolicy = "drop-oldest"
	// RejectNew discards the event being published.
	RejectNew OverflowPolicy = "reject-new"
)

// ParseOverflowPolicy converts a configuration value to an OverflowPolicy.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(s); p {
	case DropOldest, RejectNew:
		return p, nil
	case "":
		return DropOldest, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Hub fans events out to subscribers.
type Hub struct {
	mu       sync.RWMutex
	subs     map[uint64]*Subscription
	nextID   uint64
	closed   bool
	capacity int
	policy   OverflowPolicy
	logger   observability.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithBufferSize sets the per-subscriber buffer capacity.
func WithBufferSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.capacity = n
		}
	}
}

// WithOverflowPolicy sets the policy applied to full buffers.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(h *Hub) {
		h.policy = p
	}
}

// WithLogger sets the hub logger.
func WithLogger(logger observability.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:     make(map[uint64]*Subscription),
		capacity: DefaultBufferSize,
		policy:   DropOldest,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe attaches a new subscriber. The caller must Close it when done.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		ch:     make(chan model.Event, h.capacity),
		policy: h.policy,
		hub:    h,
	}
	h.subs[sub.id] = sub
	observability.EventSubscribers.Inc()
	h.logger.Debug("event subscriber attached", observability.Uint64("subscriber", sub.id))
	return sub, nil
}

// Publish offers ev to every subscriber and returns how many accepted it.
// It never blocks.
func (h *Hub) Publish(ev model.Event) int {
	observability.EventsPublishedTotal.WithLabelValues(ev.Type).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.subs {
		if sub.offer(ev) {
			delivered++
		}
	}
	return delivered
}

// Subscribers returns the number of attached subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close detaches and closes every subscription. Later Subscribe calls fail.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.shutdown()
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Subscription is one subscriber's view of the hub.
type Subscription struct {
	id      uint64
	ch      chan model.Event
	policy  OverflowPolicy
	hub     *Hub
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// Events returns the receive side of the subscription. It is closed when the
// subscription or the hub is closed.
func (s *Subscription) Events() <-chan model.Event {
	return s.ch
}

// Dropped returns how many events this subscriber lost to overflow.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription from its hub.
func (s *Subscription) Close() {
	s.hub.remove(s.id)
	s.shutdown()
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	observability.EventSubscribers.Dec()
}

// offer is serialized per subscription so concurrent publishers cannot
// interleave the evict-then-send sequence.
func (s *Subscription) offer(ev model.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	select {
	case s.ch <- ev:
		return true
	default:
	}

	if s.policy == RejectNew {
		s.drop()
		return false
	}

	select {
	case <-s.ch:
		s.drop()
	default:
	}
	select {
	case s.ch <- ev:
		return true
	default:
		s.drop()
		return false
	}
}

func (s *Subscription) drop() {
	s.dropped.Add(1)
	observability.EventsDroppedTotal.WithLabelValues(string(s.policy)).Inc()
}
