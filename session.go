package hubbot

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"log/slog"
	"sync"

	"mellium.im/sasl"
	"mellium.im/xmlstream"
	"mellium.im/xmpp"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/muc"
	"mellium.im/xmpp/mux"
	"mellium.im/xmpp/stanza"
)

// messageBody is a message stanza carrying a text body.
type messageBody struct {
	stanza.Message
	Body string `xml:"body"`
}

// DialSession dials and negotiates a client session for addr. The caller
// owns the session and is expected to wrap it in a SessionClient.
func DialSession(ctx context.Context, addr jid.JID, password string) (*xmpp.Session, error) {
	return xmpp.DialClientSession(ctx, addr,
		xmpp.BindResource(),
		xmpp.StartTLS(&tls.Config{
			ServerName: addr.Domain().String(),
		}),
		xmpp.SASL("", password, sasl.ScramSha1Plus, sasl.ScramSha1, sasl.Plain),
	)
}

// SessionClient adapts a mellium session to the Client interface and
// feeds decoded incoming messages to a callback. Message callbacks run on
// the session's serve goroutine, one at a time: handlers that need more
// than cheap analysis return tasks instead of blocking it.
type SessionClient struct {
	session *xmpp.Session
	muc     *muc.Client
	logger  *slog.Logger

	onMessage func(msg *Message)

	mu       sync.Mutex
	channels map[string]*muc.Channel
}

func NewSessionClient(session *xmpp.Session, logger *slog.Logger) *SessionClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionClient{
		session:  session,
		muc:      &muc.Client{},
		logger:   logger,
		channels: make(map[string]*muc.Channel),
	}
}

// OnMessage installs the intake callback. Must be called before Serve.
func (c *SessionClient) OnMessage(fn func(msg *Message)) {
	c.onMessage = fn
}

// Serve processes the incoming stream until the session dies. It blocks;
// run it on its own goroutine if the caller has anything else to do.
func (c *SessionClient) Serve() error {
	return c.session.Serve(mux.New(
		stanza.NSClient,
		muc.HandleClient(c.muc),
		mux.MessageFunc(stanza.ChatMessage, xml.Name{Local: "body"}, c.handleMessage),
		mux.MessageFunc(stanza.GroupChatMessage, xml.Name{Local: "body"}, c.handleMessage),
	))
}

// Announce sends initial presence so the server starts routing messages
// to us.
func (c *SessionClient) Announce(ctx context.Context) error {
	return c.session.Send(ctx, stanza.Presence{}.Wrap(nil))
}

func (c *SessionClient) handleMessage(m stanza.Message, t xmlstream.TokenReadEncoder) error {
	d := xml.NewTokenDecoder(t)
	tok, err := d.Token()
	if err != nil {
		return err
	}
	start, ok := tok.(xml.StartElement)
	if !ok {
		return fmt.Errorf("client: expected message start element, got %T", tok)
	}
	decoded := messageBody{}
	if err := d.DecodeElement(&decoded, &start); err != nil {
		return err
	}
	if decoded.Body == "" || c.onMessage == nil {
		return nil
	}

	c.onMessage(&Message{
		ID:   m.ID,
		From: m.From,
		To:   m.To,
		Type: m.Type,
		Body: decoded.Body,
	})
	return nil
}

func (c *SessionClient) Send(ctx context.Context, to jid.JID, mtype stanza.MessageType, body string) error {
	c.logger.DebugContext(ctx, "sending message",
		slog.String("to", to.String()),
		LabelType.L(string(mtype)))
	return c.session.Encode(ctx, messageBody{
		Message: stanza.Message{
			To:   to,
			Type: mtype,
		},
		Body: body,
	})
}

func (c *SessionClient) JoinRoom(ctx context.Context, room jid.JID, nick string) error {
	occupant, err := room.Bare().WithResource(nick)
	if err != nil {
		return fmt.Errorf("client: bad nick %q: %w", nick, err)
	}
	channel, err := c.muc.Join(ctx, occupant, c.session)
	if err != nil {
		return fmt.Errorf("client: join %s: %w", room.Bare(), err)
	}
	c.mu.Lock()
	c.channels[room.Bare().String()] = channel
	c.mu.Unlock()
	c.logger.InfoContext(ctx, "joined room",
		LabelRoom.L(room.Bare().String()), slog.String("nick", nick))
	return nil
}

func (c *SessionClient) LeaveRoom(ctx context.Context, room jid.JID) error {
	key := room.Bare().String()
	c.mu.Lock()
	channel, ok := c.channels[key]
	delete(c.channels, key)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := channel.Leave(ctx, ""); err != nil {
		return fmt.Errorf("client: leave %s: %w", key, err)
	}
	c.logger.InfoContext(ctx, "left room", LabelRoom.L(key))
	return nil
}

func (c *SessionClient) OccupantJID(room jid.JID) (jid.JID, bool) {
	c.mu.Lock()
	channel, ok := c.channels[room.Bare().String()]
	c.mu.Unlock()
	if !ok {
		return jid.JID{}, false
	}
	return channel.Me(), true
}

func (c *SessionClient) BoundJID() jid.JID {
	return c.session.LocalAddr()
}

// Close tears the session down.
func (c *SessionClient) Close() error {
	if c.session == nil {
		return ErrSessionGone
	}
	return c.session.Close()
}
