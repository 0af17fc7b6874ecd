package hubbot

import (
	"context"
	"log/slog"

	"github.com/hashicorp/go-metrics"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// BindingKey associates a message origin with the chain responsible for
// it. From is the sender's JID as a string (full or bare); the empty
// string is the wildcard.
type BindingKey struct {
	From string
	Type stanza.MessageType
}

// ExactBinding keys a chain to one full sender JID.
func ExactBinding(from jid.JID, mtype stanza.MessageType) BindingKey {
	return BindingKey{From: from.String(), Type: mtype}
}

// BareBinding keys a chain to a sender with the resource stripped; for
// groupchat types this binds a whole room.
func BareBinding(from jid.JID, mtype stanza.MessageType) BindingKey {
	return BindingKey{From: from.Bare().String(), Type: mtype}
}

// WildcardBinding keys a chain to every sender of the given message type
// that no narrower binding claims.
func WildcardBinding(mtype stanza.MessageType) BindingKey {
	return BindingKey{Type: mtype}
}

// RoomConfig names a chatroom and the nickname to join it under.
type RoomConfig struct {
	JID  jid.JID
	Nick string
}

// Config is the materialised wiring of one bot: which rooms to sit in,
// which chain handles which origin, and what runs around every dispatch.
// Configs are assembled in ordinary code (builder style); there is no
// executable configuration.
type Config struct {
	Rooms    []RoomConfig
	Bindings map[BindingKey]*Bind
	Generic  []*Bind
	Sink     ErrorSink

	// Session lifecycle hooks, run by the router on attach/reload and
	// detach respectively.
	OnSessionStart []func()
	OnSessionEnd   []func()
}

// ConfigSource produces a fresh Config. Reload re-evaluates it, which is
// how configuration changes reach a running bot.
type ConfigSource func() (*Config, error)

// Router owns the routing table. It resolves each incoming message to at
// most one binding (exact sender, then bare sender, then wildcard), works
// out who "we" are in that message's context and hands the message to the
// chain. Unmatched messages are dropped.
type Router struct {
	source ConfigSource
	cfg    *Config
	rooms  map[string]RoomConfig
	client Client
	logger *slog.Logger
}

type RouterOption func(*Router)

func WithRouterLog(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter evaluates source once and returns a router with no client
// attached. Rooms are not joined until SessionStart.
func NewRouter(source ConfigSource, opts ...RouterOption) (*Router, error) {
	r := &Router{
		source: source,
		rooms:  make(map[string]RoomConfig),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if err := r.Reload(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// SessionStart attaches the live connection and reloads, which joins the
// configured rooms and propagates the client into every chain.
func (r *Router) SessionStart(ctx context.Context, client Client) error {
	r.client = client
	return r.Reload(ctx)
}

// SessionEnd detaches the connection: end hooks run, chains lose their
// client. The routing table stays, so a reconnect is just SessionStart.
// The joined-rooms record is reset because the joins died with the
// session; the next SessionStart joins them afresh.
func (r *Router) SessionEnd(ctx context.Context) {
	if r.cfg != nil {
		for _, hook := range r.cfg.OnSessionEnd {
			runHook(r.logger, hook)
		}
		r.propagate(nil)
	}
	r.client = nil
	r.rooms = make(map[string]RoomConfig)
}

// Reload re-evaluates the configuration source and swaps the routing
// table wholesale. With a client attached, rooms which disappeared from
// the configuration are left and new ones are joined; every new chain
// receives the live client.
func (r *Router) Reload(ctx context.Context) error {
	next, err := r.source()
	if err != nil {
		return err
	}
	if next == nil {
		return ErrConfigInvalid
	}

	if r.cfg != nil {
		for _, hook := range r.cfg.OnSessionEnd {
			runHook(r.logger, hook)
		}
		r.propagate(nil)
	}

	// r.rooms tracks rooms actually joined, so it only moves while a
	// client is attached; a configured room is not a joined room.
	if r.client != nil {
		nextRooms := make(map[string]RoomConfig, len(next.Rooms))
		for _, room := range next.Rooms {
			nextRooms[room.JID.Bare().String()] = room
		}
		for key, room := range r.rooms {
			if _, keep := nextRooms[key]; keep {
				continue
			}
			if err := r.client.LeaveRoom(ctx, room.JID.Bare()); err != nil {
				r.logger.WarnContext(ctx, "could not leave room",
					LabelRoom.L(key), LabelError.L(err))
			}
			metricsInc(MetricRoomLeaveCount, []metrics.Label{LabelRoom.M(key)})
		}
		for key, room := range nextRooms {
			if _, have := r.rooms[key]; have {
				continue
			}
			if err := r.client.JoinRoom(ctx, room.JID.Bare(), room.Nick); err != nil {
				r.logger.WarnContext(ctx, "could not join room",
					LabelRoom.L(key), LabelError.L(err))
			}
			metricsInc(MetricRoomJoinCount, []metrics.Label{LabelRoom.M(key)})
		}
		r.rooms = nextRooms
	}

	r.cfg = next
	if r.client != nil {
		r.propagate(r.client)
	}
	for _, hook := range next.OnSessionStart {
		runHook(r.logger, hook)
	}
	metricsInc(MetricReloadCount, nil)
	return nil
}

func (r *Router) propagate(client Client) {
	for _, bind := range r.cfg.Bindings {
		bind.SetClient(client)
	}
	for _, bind := range r.cfg.Generic {
		bind.SetClient(client)
	}
}

// resolve finds the chain for msg using the fallback order
// exact sender → bare sender → wildcard.
func (r *Router) resolve(msg *Message) (*Bind, bool) {
	keys := [...]BindingKey{
		{From: msg.From.String(), Type: msg.Type},
		{From: msg.From.Bare().String(), Type: msg.Type},
		{Type: msg.Type},
	}
	for _, key := range keys {
		if bind, ok := r.cfg.Bindings[key]; ok {
			return bind, true
		}
	}
	return nil, false
}

// self resolves our own identity in the message's context: the occupant
// JID for room messages, the bound account JID otherwise. One canonical
// comparison rule, full-JID equality, applies everywhere.
func (r *Router) self(msg *Message) jid.JID {
	if r.client == nil {
		return jid.JID{}
	}
	if msg.Type == stanza.GroupChatMessage {
		if me, ok := r.client.OccupantJID(msg.From.Bare()); ok {
			return me
		}
		return jid.JID{}
	}
	return r.client.BoundJID()
}

// Dispatch routes one incoming message. The returned tasks are the
// deferred work collected from the keyed chain and the generic chains;
// the caller decides where they execute (room queue or inline).
//
// Chain errors go to the config's sink when one is set. Without a sink
// they are returned; callers sitting inside an event-loop callback are
// expected to rely on the XMPP library's top-level safety net at that
// point, matching the behaviour the bots always had.
func (r *Router) Dispatch(ctx context.Context, msg *Message) ([]Task, error) {
	bind, ok := r.resolve(msg)
	if !ok {
		r.logger.InfoContext(ctx, "dropping message: no matching binding",
			LabelSender.L(msg.From.String()), LabelType.L(string(msg.Type)))
		metricsInc(MetricDispatchDroppedCount, nil)
		return nil, nil
	}

	self := r.self(msg)
	metricsInc(MetricDispatchCount, []metrics.Label{
		LabelType.M(string(msg.Type)),
	})

	tasks, err := bind.Dispatch(ctx, self, msg)
	if err != nil {
		if r.cfg.Sink != nil {
			r.cfg.Sink.Submit(ctx, r.client, err, msg)
			err = nil
		} else {
			return tasks, err
		}
	}

	for _, generic := range r.cfg.Generic {
		moreTasks, err := generic.Dispatch(ctx, self, msg)
		tasks = append(tasks, moreTasks...)
		if err != nil {
			if r.cfg.Sink == nil {
				return tasks, err
			}
			r.cfg.Sink.Submit(ctx, r.client, err, msg)
		}
	}
	return tasks, nil
}

func runHook(logger *slog.Logger, hook func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("session hook panicked", slog.Any("panic", rec))
		}
	}()
	hook()
}
