package hubbot

import (
	"context"
	"fmt"
	"log/slog"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// Message is the body-bearing part of an incoming stanza, decoded by the
// client layer before it reaches the dispatch core.
type Message struct {
	ID   string
	From jid.JID
	To   jid.JID
	Type stanza.MessageType
	Body string
}

// Room returns the bare room address for groupchat messages and the zero
// JID otherwise.
func (m *Message) Room() jid.JID {
	if m.Type != stanza.GroupChatMessage {
		return jid.JID{}
	}
	return m.From.Bare()
}

// Nick is the sender's room nickname (the resourcepart of the occupant
// JID). Only meaningful for groupchat messages.
func (m *Message) Nick() string {
	return m.From.Resourcepart()
}

func (m *Message) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("from", m.From.String()),
		slog.String("type", string(m.Type)),
		slog.Int("body_len", len(m.Body)),
	)
}

// ReplyAddress resolves where a reply to this message has to go: the bare
// room JID for groupchat messages (broadcast into the room), the full
// sender JID otherwise.
func (m *Message) ReplyAddress() (to jid.JID, mtype stanza.MessageType) {
	if m.Type == stanza.GroupChatMessage {
		return m.From.Bare(), stanza.GroupChatMessage
	}
	return m.From, m.Type
}

// Reply sends body back into the context the message came from.
func Reply(ctx context.Context, client Client, orig *Message, body string) error {
	if client == nil {
		return ErrNoClient
	}
	to, mtype := orig.ReplyAddress()
	return client.Send(ctx, to, mtype, body)
}

// PrefixedReply behaves like Reply but prepends the sender's nickname in
// rooms, so the addressee can tell the reply is meant for them.
func PrefixedReply(ctx context.Context, client Client, orig *Message, body string) error {
	if orig.Type == stanza.GroupChatMessage {
		body = fmt.Sprintf("%s: %s", orig.Nick(), body)
	}
	return Reply(ctx, client, orig, body)
}

// ReplyDirect sends body to the sender privately, bypassing the room even
// for groupchat messages. Used for usage errors and help output which
// would only be noise on the broadcast medium.
func ReplyDirect(ctx context.Context, client Client, orig *Message, body string) error {
	if client == nil {
		return ErrNoClient
	}
	mtype := orig.Type
	if mtype == stanza.GroupChatMessage {
		mtype = stanza.ChatMessage
	}
	return client.Send(ctx, orig.From, mtype, body)
}
