// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the queue length used when NewAsync is given zero.
const DefaultBuffer = 256

// Async decouples emitters from a slow reporter. Events are queued on a
// bounded channel drained by one goroutine; when the queue is full the event
// is dropped and counted rather than blocking the emitter.
type Async struct {
	next    Reporter
	ch      chan Event
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts the delivery goroutine. Call Close to flush and stop it.
func NewAsync(next Reporter, buffer int) *Async {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	a := &Async{
		next: next,
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for e := range a.ch {
		Emit(a.next, e.Channel, e.Type, e.Payload)
	}
}

// Emit queues the event without blocking. Events emitted after Close are dropped.
func (a *Async) Emit(channel, eventType string, payload any) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.ch <- Event{Channel: channel, Type: eventType, Payload: payload, Timestamp: time.Now()}:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of events that were not delivered.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits until queued events are delivered.
// It is safe to call more than once.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	<-a.done
}
