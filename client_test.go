package hubbot

import (
	"context"
	"sync"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

type sentMessage struct {
	To   jid.JID
	Type stanza.MessageType
	Body string
}

// fakeClient records everything the core asks of the XMPP layer.
type fakeClient struct {
	mu        sync.Mutex
	sent      []sentMessage
	joined    []string
	left      []string
	bound     jid.JID
	occupants map[string]jid.JID
}

func newFakeClient(bound string) *fakeClient {
	return &fakeClient{
		bound:     jid.MustParse(bound),
		occupants: make(map[string]jid.JID),
	}
}

func (c *fakeClient) setOccupant(room, occupant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.occupants[jid.MustParse(room).Bare().String()] = jid.MustParse(occupant)
}

func (c *fakeClient) Send(ctx context.Context, to jid.JID, mtype stanza.MessageType, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{To: to, Type: mtype, Body: body})
	return nil
}

func (c *fakeClient) JoinRoom(ctx context.Context, room jid.JID, nick string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, room.Bare().String())
	return nil
}

func (c *fakeClient) LeaveRoom(ctx context.Context, room jid.JID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = append(c.left, room.Bare().String())
	return nil
}

func (c *fakeClient) OccupantJID(room jid.JID) (jid.JID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	occupant, ok := c.occupants[room.Bare().String()]
	return occupant, ok
}

func (c *fakeClient) BoundJID() jid.JID {
	return c.bound
}

func (c *fakeClient) sentBodies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	bodies := make([]string, len(c.sent))
	for i, m := range c.sent {
		bodies[i] = m.Body
	}
	return bodies
}

func chatMessage(from, body string) *Message {
	return &Message{
		From: jid.MustParse(from),
		Type: stanza.ChatMessage,
		Body: body,
	}
}

func roomMessage(from, body string) *Message {
	return &Message{
		From: jid.MustParse(from),
		Type: stanza.GroupChatMessage,
		Body: body,
	}
}
