package broker

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// DefaultQueueSize is used when NewQueue is given a non-positive size.
const DefaultQueueSize = 256

// Queue hands payloads from broker callbacks to a single consumer goroutine.
// Offer never blocks: when the queue is full the payload is dropped.
type Queue struct {
	ch      chan []byte
	handle  func([]byte)
	onDrop  func()
	dropped atomic.Uint64
	logger  *slog.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithDropHook registers fn to be called for every dropped payload.
func WithDropHook(fn func()) QueueOption {
	return func(q *Queue) {
		q.onDrop = fn
	}
}

// NewQueue creates a queue of the given capacity whose consumer calls handle.
func NewQueue(size int, handle func([]byte), logger *slog.Logger, opts ...QueueOption) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		ch:     make(chan []byte, size),
		handle: handle,
		logger: logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Offer enqueues a copy of payload. It reports false if the queue was full
// and the payload was dropped.
func (q *Queue) Offer(payload []byte) bool {
	msg := make([]byte, len(payload))
	copy(msg, payload)

	select {
	case q.ch <- msg:
		return true
	default:
		n := q.dropped.Add(1)
		if q.onDrop != nil {
			q.onDrop()
		}
		q.logger.Warn("subscription queue full, dropping message", "dropped_total", n)
		return false
	}
}

// Run consumes payloads one at a time until ctx is canceled. Payloads still
// queued at cancellation are discarded.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-q.ch:
			q.handle(msg)
		}
	}
}

// Len returns the number of payloads waiting.
func (q *Queue) Len() int { return len(q.ch) }

// Dropped returns the number of payloads dropped because the queue was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }
