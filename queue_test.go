package hubbot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"
)

func TestRoomQueueRunsTasksInOrder(t *testing.T) {
	q := NewRoomQueue(jid.MustParse("room@chat.example.net"))
	defer q.Close()

	var ran []string
	done := make(chan struct{})
	task := func(name string, last bool) Task {
		return func(ctx context.Context) error {
			ran = append(ran, name)
			if last {
				close(done)
			}
			return nil
		}
	}

	msg := roomMessage("room@chat.example.net/someone", "hi")
	require.True(t, q.Submit(msg, []Task{task("a", false), task("b", false)}))
	require.True(t, q.Submit(msg, []Task{task("c", true)}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queue consumer never drained the batches")
	}
	require.Equal(t, []string{"a", "b", "c"}, ran)
}

func TestRoomQueueRejectsWholeBatchWhenFull(t *testing.T) {
	q := NewRoomQueue(jid.MustParse("room@chat.example.net"), WithQueueCapacity(1))
	defer q.Close()

	started := make(chan struct{})
	gate := make(chan struct{})
	blocking := Task(func(ctx context.Context) error {
		close(started)
		select {
		case <-gate:
		case <-ctx.Done():
		}
		return nil
	})
	noop := Task(func(ctx context.Context) error { return nil })

	msg := roomMessage("room@chat.example.net/someone", "hi")
	require.True(t, q.Submit(msg, []Task{blocking}))
	<-started

	// The consumer is busy, so the next batch sits in the buffer and the
	// one after that has nowhere to go.
	require.True(t, q.Submit(msg, []Task{noop}))
	require.False(t, q.Submit(msg, []Task{noop}),
		"a full queue rejects the batch instead of blocking intake")

	close(gate)
}

func TestRoomQueueEmptyBatchIsNoop(t *testing.T) {
	q := NewRoomQueue(jid.MustParse("room@chat.example.net"), WithQueueCapacity(1))
	defer q.Close()

	msg := roomMessage("room@chat.example.net/someone", "hi")
	for i := 0; i < 10; i++ {
		require.True(t, q.Submit(msg, nil), "empty batches never consume capacity")
	}
}

func TestRoomQueueSurvivesTaskTimeout(t *testing.T) {
	q := NewRoomQueue(jid.MustParse("room@chat.example.net"),
		WithTaskTimeout(10*time.Millisecond))
	defer q.Close()

	stuck := Task(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	done := make(chan struct{})
	after := Task(func(ctx context.Context) error {
		close(done)
		return nil
	})

	msg := roomMessage("room@chat.example.net/someone", "hi")
	require.True(t, q.Submit(msg, []Task{stuck, after}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("an expired task stalled the rest of the batch")
	}
}

func TestRoomQueueSubmitAfterClose(t *testing.T) {
	q := NewRoomQueue(jid.MustParse("room@chat.example.net"))
	q.Close()
	q.Close() // idempotent

	msg := roomMessage("room@chat.example.net/someone", "hi")
	require.False(t, q.Submit(msg, []Task{func(ctx context.Context) error { return nil }}))
}
