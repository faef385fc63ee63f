package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SendWithoutSubscribers(t *testing.T) {
	bus := NewBus(4)

	assert.Equal(t, 0, bus.Send(Broadcast("ping")))
	assert.Equal(t, 0, bus.Receivers())
}

func TestBus_FanOut(t *testing.T) {
	bus := NewBus(4)
	a := bus.Subscribe()
	b := bus.Subscribe()

	require.Equal(t, 2, bus.Send(New("reboot", "A")))

	for _, sub := range []*Subscription{a, b} {
		cmd, err := sub.TryRecv()
		require.NoError(t, err)
		assert.True(t, cmd.Equal(New("reboot", "A")))

		_, err = sub.TryRecv()
		assert.ErrorIs(t, err, ErrEmpty)
	}
}

func TestBus_LateSubscriberMissesEarlierCommands(t *testing.T) {
	bus := NewBus(4)
	early := bus.Subscribe()
	bus.Send(Broadcast("first"))

	late := bus.Subscribe()
	bus.Send(Broadcast("second"))

	cmd, err := late.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "second", cmd.Payload)

	cmd, err = early.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "first", cmd.Payload)
}

func TestBus_FIFOOrder(t *testing.T) {
	bus := NewBus(8)
	sub := bus.Subscribe()

	for _, p := range []string{"1", "2", "3", "4", "5"} {
		bus.Send(Broadcast(p))
	}

	for _, want := range []string{"1", "2", "3", "4", "5"} {
		cmd, err := sub.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, want, cmd.Payload)
	}
}

func TestBus_Lagged(t *testing.T) {
	bus := NewBus(3)
	sub := bus.Subscribe()

	for _, p := range []string{"1", "2", "3", "4", "5"} {
		bus.Send(Broadcast(p))
	}

	_, err := sub.TryRecv()
	var lagged *LaggedError
	require.ErrorAs(t, err, &lagged)
	assert.Equal(t, uint64(2), lagged.Skipped)
	assert.ErrorIs(t, err, ErrLagged)

	// Resumes at the oldest retained command.
	for _, want := range []string{"3", "4", "5"} {
		cmd, err := sub.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, want, cmd.Payload)
	}

	// And keeps receiving new commands normally.
	bus.Send(Broadcast("6"))
	cmd, err := sub.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "6", cmd.Payload)
}

func TestBus_LagDoesNotAffectFastSubscriber(t *testing.T) {
	bus := NewBus(2)
	slow := bus.Subscribe()
	fast := bus.Subscribe()

	for _, p := range []string{"1", "2", "3"} {
		bus.Send(Broadcast(p))
		cmd, err := fast.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, p, cmd.Payload)
	}

	_, err := slow.TryRecv()
	assert.ErrorIs(t, err, ErrLagged)
}

func TestBus_CloseDrainsThenReportsClosed(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	bus.Send(Broadcast("last"))
	bus.Close()
	bus.Close()

	cmd, err := sub.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "last", cmd.Payload)

	_, err = sub.TryRecv()
	assert.ErrorIs(t, err, ErrClosed)

	assert.Equal(t, 0, bus.Send(Broadcast("after close")))
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	bus := NewBus(4)
	bus.Close()

	sub := bus.Subscribe()
	select {
	case <-sub.Ready():
	default:
		t.Fatal("closed subscription should be ready")
	}
	_, err := sub.TryRecv()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscription_Close(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	other := bus.Subscribe()

	sub.Close()
	sub.Close()

	assert.Equal(t, 1, bus.Receivers())
	assert.Equal(t, 1, bus.Send(Broadcast("x")))

	_, err := sub.TryRecv()
	assert.ErrorIs(t, err, ErrClosed)

	_, err = other.TryRecv()
	assert.NoError(t, err)
}

func TestSubscription_ReadySignalledWhileBacklogRemains(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()
	bus.Send(Broadcast("1"))
	bus.Send(Broadcast("2"))

	<-sub.Ready()
	_, err := sub.TryRecv()
	require.NoError(t, err)

	select {
	case <-sub.Ready():
	case <-time.After(time.Second):
		t.Fatal("Ready() not re-signalled with a command still pending")
	}
	assert.Equal(t, 1, sub.Pending())
}

func TestSubscription_Recv(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()

	go func() {
		time.Sleep(20 * time.Millisecond)
		bus.Send(Broadcast("wake"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cmd, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "wake", cmd.Payload)
}

func TestSubscription_RecvContextCancelled(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sub.Recv(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBus_ConcurrentSendersAndSubscribers(t *testing.T) {
	bus := NewBus(1024)
	const senders, perSender = 4, 100

	subs := make([]*Subscription, 8)
	for i := range subs {
		subs[i] = bus.Subscribe()
	}

	var wg sync.WaitGroup
	for range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perSender {
				bus.Send(Broadcast("x"))
			}
		}()
	}
	wg.Wait()
	bus.Close()

	for _, sub := range subs {
		got := 0
		for {
			_, err := sub.TryRecv()
			if errors.Is(err, ErrClosed) {
				break
			}
			require.NoError(t, err)
			got++
		}
		assert.Equal(t, senders*perSender, got)
	}
}
