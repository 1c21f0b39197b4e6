// Package events delivers pipeline status events to observers. Observers are
// called synchronously by the pipeline, so anything slow belongs behind Async.
package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/logger"
)

type Observer interface {
	Notify(ev model.StatusEvent)
}

type ObserverFunc func(ev model.StatusEvent)

func (f ObserverFunc) Notify(ev model.StatusEvent) { f(ev) }

// SafeNotify delivers ev and turns an observer panic into a logged error.
func SafeNotify(o Observer, ev model.StatusEvent) (err error) {
	if o == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panicked: %v", r)
			logger.Error("Status observer panicked", "phase", ev.Phase, "document_id", ev.DocumentID, "panic", r)
		}
	}()
	o.Notify(ev)
	return nil
}

// Multi fans an event out to every observer in order. A panicking observer
// does not prevent delivery to the rest.
type Multi []Observer

func (m Multi) Notify(ev model.StatusEvent) {
	for _, o := range m {
		_ = SafeNotify(o, ev)
	}
}

// Channel exposes events on a buffered channel. When the buffer is full the
// event is dropped instead of blocking the pipeline.
type Channel struct {
	c       chan model.StatusEvent
	dropped atomic.Int64
}

func NewChannel(buffer int) *Channel {
	return &Channel{c: make(chan model.StatusEvent, max(buffer, 1))}
}

func (c *Channel) C() <-chan model.StatusEvent { return c.c }

func (c *Channel) Dropped() int64 { return c.dropped.Load() }

func (c *Channel) Notify(ev model.StatusEvent) {
	select {
	case c.c <- ev:
	default:
		c.dropped.Add(1)
	}
}

// Async forwards events to next from a single goroutine, preserving order.
// Notify never blocks; events that overflow the buffer are dropped.
type Async struct {
	next    Observer
	queue   chan model.StatusEvent
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Observer, buffer int) *Async {
	a := &Async{
		next:  next,
		queue: make(chan model.StatusEvent, max(buffer, 1)),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.queue {
		_ = SafeNotify(a.next, ev)
	}
}

func (a *Async) Notify(ev model.StatusEvent) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- ev:
	default:
		if a.dropped.Add(1) == 1 {
			logger.Warn("Status event buffer full, dropping events", "document_id", ev.DocumentID)
		}
	}
}

func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting events and waits until the buffered ones are delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}
