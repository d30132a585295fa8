package events

import (
	"sync"
	"testing"
	"time"

	"taskboard/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(name string) model.Event {
	return model.Event{Type: model.EventUserCreated, Username: name, OccurredAt: time.Now()}
}

func drain(sub *Subscription) []string {
	var names []string
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return names
			}
			names = append(names, ev.Username)
		default:
			return names
		}
	}
}

func TestParseOverflowPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    OverflowPolicy
		wantErr bool
	}{
		{in: "", want: DropOldest},
		{in: "drop-oldest", want: DropOldest},
		{in: "reject-new", want: RejectNew},
		{in: "unbounded", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOverflowPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHub_PublishFansOut(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	a, err := hub.Subscribe()
	require.NoError(t, err)
	b, err := hub.Subscribe()
	require.NoError(t, err)

	assert.Equal(t, 2, hub.Publish(event("alice")))
	assert.Equal(t, []string{"alice"}, drain(a))
	assert.Equal(t, []string{"alice"}, drain(b))
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	assert.Equal(t, 0, hub.Publish(event("alice")))
}

func TestHub_DropOldest(t *testing.T) {
	hub := NewHub(WithBufferSize(2), WithOverflowPolicy(DropOldest))
	sub, err := hub.Subscribe()
	require.NoError(t, err)

	for _, name := range []string{"e1", "e2", "e3", "e4"} {
		assert.Equal(t, 1, hub.Publish(event(name)))
	}

	assert.Equal(t, []string{"e3", "e4"}, drain(sub))
	assert.Equal(t, uint64(2), sub.Dropped())
}

func TestHub_RejectNew(t *testing.T) {
	hub := NewHub(WithBufferSize(2), WithOverflowPolicy(RejectNew))
	sub, err := hub.Subscribe()
	require.NoError(t, err)

	assert.Equal(t, 1, hub.Publish(event("e1")))
	assert.Equal(t, 1, hub.Publish(event("e2")))
	assert.Equal(t, 0, hub.Publish(event("e3")))

	assert.Equal(t, []string{"e1", "e2"}, drain(sub))
	assert.Equal(t, uint64(1), sub.Dropped())
}

func TestHub_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(WithBufferSize(1), WithOverflowPolicy(RejectNew))
	slow, err := hub.Subscribe()
	require.NoError(t, err)
	fast, err := hub.Subscribe()
	require.NoError(t, err)

	done := make(chan struct{})
	var received []string
	go func() {
		defer close(done)
		for ev := range fast.Events() {
			received = append(received, ev.Username)
			if len(received) == 3 {
				return
			}
		}
	}()

	for _, name := range []string{"e1", "e2", "e3"} {
		hub.Publish(event(name))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fast subscriber did not receive all events")
	}
	assert.Equal(t, []string{"e1", "e2", "e3"}, received)
	assert.Equal(t, uint64(2), slow.Dropped())
}

func TestSubscription_Close(t *testing.T) {
	hub := NewHub()
	sub, err := hub.Subscribe()
	require.NoError(t, err)
	require.Equal(t, 1, hub.Subscribers())

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, hub.Subscribers())
	_, ok := <-sub.Events()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Publish(event("late")))
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()
	sub, err := hub.Subscribe()
	require.NoError(t, err)

	hub.Close()
	hub.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)
	sub.Close()

	_, err = hub.Subscribe()
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestHub_ConcurrentPublish(t *testing.T) {
	hub := NewHub(WithBufferSize(8))
	sub, err := hub.Subscribe()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Publish(event("x"))
			}
		}()
	}
	wg.Wait()

	got := uint64(len(drain(sub)))
	assert.Equal(t, uint64(8), got)
	assert.Equal(t, uint64(16*50-8), sub.Dropped())
}
