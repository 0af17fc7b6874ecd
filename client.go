package hubbot

import (
	"context"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// Client is the slice of the XMPP stack the dispatch core needs. The real
// implementation is SessionClient; tests use in-memory fakes.
type Client interface {
	// Send delivers a message stanza with the given body.
	Send(ctx context.Context, to jid.JID, mtype stanza.MessageType, body string) error

	// JoinRoom joins a multi-user chatroom under the given nickname.
	JoinRoom(ctx context.Context, room jid.JID, nick string) error

	// LeaveRoom leaves a previously joined chatroom.
	LeaveRoom(ctx context.Context, room jid.JID) error

	// OccupantJID reports our own occupant JID in the given room, if we
	// are joined. This is the identity self-originated room messages
	// carry as their sender.
	OccupantJID(room jid.JID) (jid.JID, bool)

	// BoundJID is the full JID the account is bound to.
	BoundJID() jid.JID
}

// ClientAware is implemented by handlers holding live resources tied to
// the connection (child processes, timers, room state). The chain calls
// ClientChanged whenever the underlying connection is attached, replaced
// or detached; next is nil on detach.
type ClientAware interface {
	ClientChanged(next Client)
}
