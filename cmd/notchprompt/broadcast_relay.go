package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// broadcastRelay hands reducer broadcasts to one consumer without ever
// blocking the daemon loop. Frames are not queued: a newer frame replaces one
// the consumer has not taken yet, so the latest frame is always delivered.
// Everything else is queued in order and dropped only when the queue is full.
type broadcastRelay struct {
	logger *slog.Logger

	queue chan StateBroadcast
	wake  chan struct{}
	out   chan StateBroadcast

	mu    sync.Mutex
	frame *BroadcastFrame
}

func newBroadcastRelay(size int, logger *slog.Logger) *broadcastRelay {
	if size <= 0 {
		size = 256
	}
	return &broadcastRelay{
		logger: logger,
		queue:  make(chan StateBroadcast, size),
		wake:   make(chan struct{}, 1),
		out:    make(chan StateBroadcast),
	}
}

// Publish never blocks.
func (r *broadcastRelay) Publish(b StateBroadcast) {
	if f, ok := b.(BroadcastFrame); ok {
		r.mu.Lock()
		r.frame = &f
		r.mu.Unlock()
		select {
		case r.wake <- struct{}{}:
		default:
		}
		return
	}
	select {
	case r.queue <- b:
	default:
		r.logger.Warn("broadcast queue full, dropping", "type", fmt.Sprintf("%T", b))
	}
}

// Out is the consumer side; it is fed by Run.
func (r *broadcastRelay) Out() <-chan StateBroadcast { return r.out }

func (r *broadcastRelay) takeFrame() (BroadcastFrame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frame == nil {
		return BroadcastFrame{}, false
	}
	f := *r.frame
	r.frame = nil
	return f, true
}

// Run feeds Out until ctx is canceled. Queued broadcasts go first; the pending
// frame follows once the queue is empty.
func (r *broadcastRelay) Run(ctx context.Context) {
	for {
		var next StateBroadcast
		select {
		case <-ctx.Done():
			return
		case b := <-r.queue:
			next = b
		default:
			select {
			case <-ctx.Done():
				return
			case b := <-r.queue:
				next = b
			case <-r.wake:
				f, ok := r.takeFrame()
				if !ok {
					continue
				}
				next = f
			}
		}

		select {
		case r.out <- next:
		case <-ctx.Done():
			return
		}
	}
}

// fanOut publishes every broadcast to each non-nil relay.
func fanOut(relays ...*broadcastRelay) func(StateBroadcast) {
	var live []*broadcastRelay
	for _, r := range relays {
		if r != nil {
			live = append(live, r)
		}
	}
	return func(b StateBroadcast) {
		for _, r := range live {
			r.Publish(b)
		}
	}
}
