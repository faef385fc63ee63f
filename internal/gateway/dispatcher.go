package gateway

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-gateway/internal/session"
)

// defaultEventQueueSize is the buffer between sessions and observers.
const defaultEventQueueSize = 1024

// Observer receives session lifecycle events.
//
// HandleEvent is called from a single dispatcher goroutine, in emission
// order, never concurrently with itself. Slow observers delay the others
// and cause events to be dropped once the queue fills.
type Observer interface {
	HandleEvent(ev session.Event)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(ev session.Event)

// HandleEvent calls f(ev).
func (f ObserverFunc) HandleEvent(ev session.Event) { f(ev) }

// dispatcher fans events out to observers on one worker goroutine.
//
// Publish never blocks a session: when the queue is full the event is
// dropped and counted.
type dispatcher struct {
	queue  chan session.Event
	logger Logger

	mu        sync.RWMutex
	observers []Observer

	dropped   atomic.Uint64
	delivered atomic.Uint64

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func newDispatcher(size int, logger Logger) *dispatcher {
	if size < 1 {
		size = defaultEventQueueSize
	}
	d := &dispatcher{
		queue:  make(chan session.Event, size),
		logger: logger,
		stop:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

// add registers an observer.
func (d *dispatcher) add(o Observer) {
	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()
}

// publish queues ev without blocking.
func (d *dispatcher) publish(ev session.Event) {
	select {
	case <-d.stop:
		d.dropped.Add(1)
		return
	default:
	}

	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		d.logger.Warn("event queue full, dropping event", "type", ev.Type, "imei", ev.IMEI())
	}
}

func (d *dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			// Deliver what is already queued, then exit.
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *dispatcher) deliver(ev session.Event) {
	d.mu.RLock()
	observers := d.observers
	d.mu.RUnlock()

	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("observer panic", "type", ev.Type, "error", fmt.Sprintf("%v", r))
				}
			}()
			o.HandleEvent(ev)
		}()
	}
	d.delivered.Add(1)
}

// close stops the worker after it has delivered the queued events.
func (d *dispatcher) close() {
	d.stopOnce.Do(func() {
		close(d.stop)
	})
	d.wg.Wait()
}
