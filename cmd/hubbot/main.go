// hubbot is an XMPP chatroom bot: it joins the configured rooms and
// reacts to commands through the dispatch core, with slow work deferred
// onto per-room queues and symbolic computation bridged to the calcd
// worker process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"

	"github.com/sotecware/hubbot"
	"github.com/sotecware/hubbot/pkg/calc"
	"github.com/sotecware/hubbot/pkg/commands"
)

func main() {
	var configPath string
	rootCmd := &cobra.Command{
		Use:          "hubbot",
		Short:        "XMPP chatroom bot",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "hubbot.yaml", "configuration file")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type bot struct {
	settings *botSettings
	logger   *slog.Logger
	router   *hubbot.Router
	client   *hubbot.SessionClient

	mu     sync.Mutex
	queues map[string]*hubbot.RoomQueue

	supervisor *calc.Supervisor
}

func run(ctx context.Context, configPath string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	settings, err := loadSettings(configPath)
	if err != nil {
		return err
	}

	b := &bot{
		settings: settings,
		logger:   logger,
		queues:   make(map[string]*hubbot.RoomQueue),
	}
	if settings.CalcdPath != "" {
		b.supervisor = calc.NewSupervisor(settings.CalcdPath, calc.WithLog(logger))
	}

	router, err := hubbot.NewRouter(b.buildConfig, hubbot.WithRouterLog(logger))
	if err != nil {
		return err
	}
	b.router = router

	session, err := hubbot.DialSession(ctx, settings.account, settings.Password)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	client := hubbot.NewSessionClient(session, logger)
	client.OnMessage(b.intake)
	b.client = client

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- client.Serve()
	}()

	if err := client.Announce(ctx); err != nil {
		return fmt.Errorf("presence: %w", err)
	}
	if err := router.SessionStart(ctx, client); err != nil {
		return err
	}
	logger.Info("session established",
		slog.String("jid", client.BoundJID().String()))

	err = <-serveErr
	router.SessionEnd(context.Background())
	b.closeQueues()
	if b.supervisor != nil {
		b.supervisor.Close()
	}
	return err
}

// buildConfig assembles the routing table: one binding per configured
// room plus a wildcard binding for direct chats, all sharing one command
// listener and one error sink.
func (b *bot) buildConfig() (*hubbot.Config, error) {
	settings := b.settings

	sink := &hubbot.ErrorLog{Logger: b.logger}
	if settings.ErrorRecipient != "" {
		to, err := jid.Parse(settings.ErrorRecipient)
		if err != nil {
			return nil, fmt.Errorf("bad error recipient: %w", err)
		}
		sink.To = to
	}

	limiter := hubbot.NewRateLimiter(settings.RateLimitMax, settings.RateLimitSpan)
	listener := hubbot.NewCommandListener(settings.CommandPrefix,
		hubbot.WithRateLimiter(limiter),
		hubbot.WithListenerLog(b.logger),
	)
	listener.Register("say", commands.Say())
	listener.Register("uptime", &commands.Uptime{})
	listener.Register("roll", commands.NewRoll())
	listener.Register("reload", hubbot.CommandFunc(b.reload))
	listener.Register("restart", commands.Respawn(b.restart))
	if b.supervisor != nil {
		listener.Register("calc", calc.NewCommand(b.supervisor))
	}

	cfg := &hubbot.Config{
		Bindings: make(map[hubbot.BindingKey]*hubbot.Bind),
		Sink:     sink,
	}
	for _, room := range settings.Rooms {
		roomJID, err := jid.Parse(room.JID)
		if err != nil {
			return nil, fmt.Errorf("bad room jid %q: %w", room.JID, err)
		}
		nick := room.Nick
		if nick == "" {
			nick = settings.Nick
		}
		cfg.Rooms = append(cfg.Rooms, hubbot.RoomConfig{JID: roomJID, Nick: nick})
		cfg.Bindings[hubbot.BareBinding(roomJID, stanza.GroupChatMessage)] = hubbot.NewBind(
			[]hubbot.Handler{commands.Pong(), listener},
			hubbot.WithSink(sink),
			hubbot.WithBindLog(b.logger),
		)
	}
	cfg.Bindings[hubbot.WildcardBinding(stanza.ChatMessage)] = hubbot.NewBind(
		[]hubbot.Handler{commands.Pong(), listener},
		hubbot.WithSink(sink),
		hubbot.WithBindLog(b.logger),
	)
	return cfg, nil
}

// intake runs on the session's serve goroutine: dispatch is synchronous
// and cheap, deferred tasks go to the room's queue. Direct-chat tasks
// have no room to serialise under, so they run inline with the same
// per-task timeout.
func (b *bot) intake(msg *hubbot.Message) {
	ctx := context.Background()
	tasks, err := b.router.Dispatch(ctx, msg)
	if err != nil {
		b.logger.Error("dispatch failed", hubbot.LabelError.L(err))
		return
	}
	if len(tasks) == 0 {
		return
	}

	if room := msg.Room(); !room.Equal(jid.JID{}) {
		b.queueFor(room).Submit(msg, tasks)
		return
	}
	for _, task := range tasks {
		taskCtx, cancel := context.WithTimeout(ctx, b.settings.TaskTimeout)
		if err := task(taskCtx); err != nil {
			b.logger.Error("task failed", hubbot.LabelError.L(err))
		}
		cancel()
	}
}

func (b *bot) queueFor(room jid.JID) *hubbot.RoomQueue {
	key := room.String()
	b.mu.Lock()
	defer b.mu.Unlock()
	queue, ok := b.queues[key]
	if !ok {
		queue = hubbot.NewRoomQueue(room,
			hubbot.WithQueueCapacity(b.settings.QueueSize),
			hubbot.WithTaskTimeout(b.settings.TaskTimeout),
			hubbot.WithQueueLog(b.logger),
		)
		b.queues[key] = queue
	}
	return queue
}

func (b *bot) closeQueues() {
	b.mu.Lock()
	queues := b.queues
	b.queues = make(map[string]*hubbot.RoomQueue)
	b.mu.Unlock()
	for _, queue := range queues {
		queue.Close()
	}
}

func (b *bot) reload(ctx context.Context, client hubbot.Client, msg *hubbot.Message, arguments string) error {
	if err := b.router.Reload(ctx); err != nil {
		return err
	}
	return hubbot.PrefixedReply(ctx, client, msg, "reloaded")
}

// restart tears down the connection and the worker, then replaces the
// process image.
func (b *bot) restart() {
	err := hubbot.Restart(
		func() error {
			b.router.SessionEnd(context.Background())
			return nil
		},
		func() error {
			b.closeQueues()
			return nil
		},
		func() error {
			if b.supervisor != nil {
				b.supervisor.Close()
			}
			return nil
		},
		func() error { return b.client.Close() },
	)
	// Exec only returns on failure.
	b.logger.Error("restart failed", hubbot.LabelError.L(err))
	os.Exit(1)
}
