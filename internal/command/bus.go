package command

import (
	"context"
	"sync"
)

// DefaultCapacity is the number of commands a Bus retains when none is given.
const DefaultCapacity = 16

// Bus broadcasts commands to every live subscription.
//
// It is a ring buffer with one write cursor and one read cursor per
// subscription. Send never blocks: a subscription that falls more than
// the capacity behind loses the oldest commands and is told so with a
// *LaggedError on its next receive.
//
// A subscription only sees commands sent after it subscribed.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	ring   []Command
	head   uint64 // sequence number of the next command to be written
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBus creates a Bus retaining capacity commands.
// A capacity below 1 uses DefaultCapacity.
func NewBus(capacity int) *Bus {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ring: make([]Command, capacity),
		subs: make(map[*Subscription]struct{}),
	}
}

// Capacity returns the number of commands retained per subscriber.
func (b *Bus) Capacity() int {
	return len(b.ring)
}

// Subscribe registers a new receiver positioned after the last sent command.
//
// Subscribing to a closed bus returns a subscription whose receives report
// ErrClosed.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &Subscription{
		bus:    b,
		next:   b.head,
		notify: make(chan struct{}, 1),
	}
	if b.closed {
		s.done = true
		s.signal()
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Send publishes cmd to every subscription and returns how many there were.
//
// Zero means nobody was listening; the command is not retained for
// later subscribers either way. Sending on a closed bus returns 0.
func (b *Bus) Send(cmd Command) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0
	}

	b.ring[b.head%uint64(len(b.ring))] = cmd
	b.head++

	for s := range b.subs {
		s.signal()
	}
	return len(b.subs)
}

// Receivers returns the number of live subscriptions.
func (b *Bus) Receivers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close shuts the bus. Subscriptions drain what they still hold, then
// receive ErrClosed. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.signal()
	}
}

// oldest returns the sequence number of the oldest retained command.
// Caller must hold b.mu.
func (b *Bus) oldest() uint64 {
	capacity := uint64(len(b.ring))
	if b.head <= capacity {
		return 0
	}
	return b.head - capacity
}

// Subscription is one receiver's view of a Bus.
//
// A Subscription is meant to be drained by a single goroutine.
type Subscription struct {
	bus    *Bus
	next   uint64 // guarded by bus.mu
	done   bool   // guarded by bus.mu
	notify chan struct{}
}

// Ready returns a channel that receives a value whenever the subscription
// may have something to report: a command, a lag, or closure. After a
// signal, call TryRecv until it returns ErrEmpty.
func (s *Subscription) Ready() <-chan struct{} {
	return s.notify
}

// TryRecv returns the next command without blocking.
//
// Returns:
//   - Command, nil: the next command in send order
//   - *LaggedError: commands were lost; the cursor moved to the oldest retained one
//   - ErrClosed: the bus or subscription is closed and nothing is left
//   - ErrEmpty: nothing pending
func (s *Subscription) TryRecv() (Command, error) {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.done {
		return Command{}, ErrClosed
	}

	if oldest := b.oldest(); s.next < oldest {
		skipped := oldest - s.next
		s.next = oldest
		s.signal()
		return Command{}, &LaggedError{Skipped: skipped}
	}

	if s.next < b.head {
		cmd := b.ring[s.next%uint64(len(b.ring))]
		s.next++
		if s.next < b.head {
			s.signal()
		}
		return cmd, nil
	}

	if b.closed {
		return Command{}, ErrClosed
	}
	return Command{}, ErrEmpty
}

// Recv blocks until a command, a lag, closure, or ctx cancellation.
func (s *Subscription) Recv(ctx context.Context) (Command, error) {
	for {
		cmd, err := s.TryRecv()
		if err != ErrEmpty { //nolint:errorlint // sentinel returned unwrapped by TryRecv
			return cmd, err
		}
		select {
		case <-s.notify:
		case <-ctx.Done():
			return Command{}, ctx.Err()
		}
	}
}

// Pending returns how many commands are waiting for this subscription,
// including any that will be reported as lagged.
func (s *Subscription) Pending() int {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.done || s.next >= b.head {
		return 0
	}
	return int(b.head - s.next)
}

// Close removes the subscription from the bus. Further receives report
// ErrClosed. Close is idempotent.
func (s *Subscription) Close() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.done {
		return
	}
	s.done = true
	delete(b.subs, s)
	s.signal()
}

// signal wakes the receiver without blocking. Caller must hold bus.mu.
func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
