package hubbot

import (
	"context"
	"fmt"
	"log/slog"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// ErrorSink receives errors raised during dispatch and makes them visible
// somewhere useful instead of letting them crash the process.
type ErrorSink interface {
	Submit(ctx context.Context, client Client, err error, origin *Message)
}

// ErrorLog is the standard sink: it formats the error's type name and
// message and sends it as a chat reply, either to a fixed recipient or
// back into the context the failing message came from.
type ErrorLog struct {
	// To overrides the reply target. Zero means "reply where the
	// message came from".
	To jid.JID

	Logger *slog.Logger
}

func (el *ErrorLog) Submit(ctx context.Context, client Client, err error, origin *Message) {
	logger := el.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(ctx, "handler failed",
		LabelError.L(err),
		slog.Any("message", origin),
	)
	if client == nil {
		return
	}

	body := fmt.Sprintf("%s: %v", errorKind(err), err)
	var sendErr error
	if !el.To.Equal(jid.JID{}) {
		sendErr = client.Send(ctx, el.To, stanza.ChatMessage, body)
	} else {
		sendErr = Reply(ctx, client, origin, body)
	}
	if sendErr != nil {
		logger.ErrorContext(ctx, "could not deliver error report",
			LabelError.L(sendErr))
	}
}

func errorKind(err error) string {
	return fmt.Sprintf("%T", err)
}
