package hubbot

import (
	"context"
)

// Task is a deferred unit of work produced by a handler's synchronous
// analysis phase: a network fetch, a slow computation, anything that must
// not run on the message-intake path. Tasks are executed later by a
// RoomQueue consumer (or inline, for direct chats) under an individual
// timeout, so they must honour ctx cancellation.
type Task func(ctx context.Context) error

// Verdict is the synchronous result of a handler.
//
// Stop ends the chain: the message counts as fully handled and no later
// handler sees it. Tasks are collected across the chain and scheduled by
// the caller after the analysis phase returns. Both fields may be zero,
// which simply passes the message on.
type Verdict struct {
	Stop  bool
	Tasks []Task
}

// Handled is the verdict of a handler that consumed the message outright.
var Handled = Verdict{Stop: true}

// Handler is a unit of reactive behaviour. HandleMessage must be cheap:
// anything slow belongs into a returned Task. An error aborts the chain
// and is routed to the chain's error sink if one is configured.
type Handler interface {
	HandleMessage(ctx context.Context, client Client, msg *Message) (Verdict, error)
}

// HandlerFunc adapts a plain function using the boolean-stop convention.
type HandlerFunc func(ctx context.Context, client Client, msg *Message) (bool, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, client Client, msg *Message) (Verdict, error) {
	stop, err := f(ctx, client, msg)
	return Verdict{Stop: stop}, err
}

// TaskHandlerFunc adapts a plain function using the deferred-task
// convention.
type TaskHandlerFunc func(ctx context.Context, client Client, msg *Message) ([]Task, error)

func (f TaskHandlerFunc) HandleMessage(ctx context.Context, client Client, msg *Message) (Verdict, error) {
	tasks, err := f(ctx, client, msg)
	return Verdict{Tasks: tasks}, err
}

func propagateClient(next Client, hs ...any) {
	for _, h := range hs {
		if aware, ok := h.(ClientAware); ok {
			aware.ClientChanged(next)
		}
	}
}
