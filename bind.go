package hubbot

import (
	"context"
	"log/slog"

	"mellium.im/xmpp/jid"
)

// Bind is an ordered chain of handlers. The handler list is fixed at
// construction; the only mutation a Bind ever sees is the connection
// lifecycle, which it propagates to every ClientAware child.
type Bind struct {
	handlers   []Handler
	sink       ErrorSink
	ignoreSelf bool
	client     Client
	logger     *slog.Logger
}

type BindOption func(*Bind)

// WithSink routes handler errors into sink instead of returning them to
// the dispatcher.
func WithSink(sink ErrorSink) BindOption {
	return func(b *Bind) {
		b.sink = sink
	}
}

// WithSelfMessages disables the self-message filter. Almost never what
// you want: two bots reacting to each other's reactions loop forever.
func WithSelfMessages() BindOption {
	return func(b *Bind) {
		b.ignoreSelf = false
	}
}

func WithBindLog(logger *slog.Logger) BindOption {
	return func(b *Bind) {
		b.logger = logger
	}
}

func NewBind(handlers []Handler, opts ...BindOption) *Bind {
	b := &Bind{
		handlers:   handlers,
		ignoreSelf: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// SetClient attaches (or with nil, detaches) the live connection and
// propagates it to every handler that cares.
func (b *Bind) SetClient(client Client) {
	b.client = client
	for _, h := range b.handlers {
		propagateClient(client, h)
	}
}

// Dispatch runs the chain's synchronous phase against msg.
//
// self is our own identity in the message's context (occupant JID in a
// room, bound JID in direct chat); messages originating from it are
// filtered out before any handler runs. Handlers execute in registration
// order until one stops the chain; their deferred tasks are collected and
// returned for the caller to schedule.
//
// A handler error ends the chain. With a sink configured it is submitted
// there and Dispatch returns nil error; without one it is returned and
// the caller decides. Either way the dispatch dies, not the process.
func (b *Bind) Dispatch(ctx context.Context, self jid.JID, msg *Message) ([]Task, error) {
	if b.ignoreSelf && !self.Equal(jid.JID{}) && msg.From.Equal(self) {
		b.logger.DebugContext(ctx, "dropped message: from self",
			LabelSender.L(msg.From.String()))
		metricsInc(MetricSelfDroppedCount, nil)
		return nil, nil
	}

	var tasks []Task
	for _, h := range b.handlers {
		verdict, err := h.HandleMessage(ctx, b.client, msg)
		if err != nil {
			metricsInc(MetricHandlerErrorCount, nil)
			if b.sink != nil {
				b.sink.Submit(ctx, b.client, err, msg)
				return tasks, nil
			}
			return tasks, err
		}
		tasks = append(tasks, verdict.Tasks...)
		if verdict.Stop {
			break
		}
	}
	return tasks, nil
}
