package hubbot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-metrics"
	"mellium.im/xmpp/jid"
)

const (
	defaultQueueCapacity = 5
	defaultTaskTimeout   = 10 * time.Second
)

type taskBatch struct {
	msg   *Message
	tasks []Task
}

// RoomQueue serialises deferred task execution for one chatroom: a
// bounded FIFO of batches drained by exactly one consumer goroutine.
// Different rooms get different queues and progress independently.
type RoomQueue struct {
	room    jid.JID
	ch      chan taskBatch
	timeout time.Duration
	logger  *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

type QueueOption func(*RoomQueue)

// WithQueueCapacity bounds how many unconsumed batches the queue holds
// before new batches are dropped.
func WithQueueCapacity(n int) QueueOption {
	return func(q *RoomQueue) {
		if n > 0 {
			q.ch = make(chan taskBatch, n)
		}
	}
}

// WithTaskTimeout bounds how long one deferred task may run.
func WithTaskTimeout(d time.Duration) QueueOption {
	return func(q *RoomQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithQueueLog(logger *slog.Logger) QueueOption {
	return func(q *RoomQueue) {
		q.logger = logger
	}
}

func NewRoomQueue(room jid.JID, opts ...QueueOption) *RoomQueue {
	q := &RoomQueue{
		room:    room,
		timeout: defaultTaskTimeout,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.ch == nil {
		q.ch = make(chan taskBatch, defaultQueueCapacity)
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	q.logger = q.logger.With(LabelRoom.L(q.room.String()))

	q.wg.Add(1)
	go q.run()
	return q
}

// Submit enqueues a batch of tasks without ever blocking the caller. A
// full queue rejects the batch as a whole: backpressure is total
// rejection, never partial admission and never a stalled intake path.
// The return value reports whether the batch was admitted.
func (q *RoomQueue) Submit(msg *Message, tasks []Task) bool {
	if len(tasks) == 0 {
		return true
	}
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- taskBatch{msg: msg, tasks: tasks}:
		metricsGauge(MetricQueueDepth, float32(len(q.ch)),
			[]metrics.Label{LabelRoom.M(q.room.String())})
		q.logger.Debug("submitted tasks to worker",
			slog.Int("tasks", len(tasks)),
			slog.Int("queue_size", len(q.ch)))
		return true
	default:
		q.logger.Warn("queue overflow", slog.Any("message", msg))
		metricsInc(MetricQueueDroppedBatches,
			[]metrics.Label{LabelRoom.M(q.room.String())})
		return false
	}
}

// run is the single consumer: one batch at a time, each task awaited
// under its own timeout. A failing or expiring task is logged and the
// rest of the batch still runs.
func (q *RoomQueue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case batch := <-q.ch:
			for _, task := range batch.tasks {
				q.runTask(batch.msg, task)
			}
		}
	}
}

func (q *RoomQueue) runTask(msg *Message, task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- task(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			q.logger.Error("handler task failed to process message",
				LabelError.L(err), slog.Any("message", msg))
			metricsInc(MetricTaskErrorCount,
				[]metrics.Label{LabelRoom.M(q.room.String())})
		}
	case <-ctx.Done():
		// The task holds the context and is expected to unwind; the
		// consumer moves on either way so one stuck task cannot stall
		// the room.
		q.logger.Error("handler task timed out", slog.Any("message", msg))
		metricsInc(MetricTaskTimeoutCount,
			[]metrics.Label{LabelRoom.M(q.room.String())})
	}
}

// Close stops the consumer. Batches still in the queue are discarded;
// a task currently running is waited for.
func (q *RoomQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
}
