package hubbot

import (
	"context"
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/stanza"
)

type recordedInvocation struct {
	command   string
	arguments string
}

func newRecordingCommand(name string, log *[]recordedInvocation) Command {
	return CommandFunc(func(ctx context.Context, client Client, msg *Message, arguments string) error {
		*log = append(*log, recordedInvocation{command: name, arguments: arguments})
		return nil
	})
}

func TestCommandListenerLookup(t *testing.T) {
	var log []recordedInvocation
	listener := NewCommandListener("")
	listener.Register("foo", newRecordingCommand("foo", &log))
	listener.Register("bar", newRecordingCommand("bar", &log))

	client := newFakeClient("bot@example.net/hub")

	verdict, err := listener.HandleMessage(context.Background(), client, chatMessage("user@example.net", "foo hello"))
	require.NoError(t, err)
	require.False(t, verdict.Stop)
	require.Equal(t, []recordedInvocation{{command: "foo", arguments: "hello"}}, log)

	log = nil
	_, err = listener.HandleMessage(context.Background(), client, chatMessage("user@example.net", "baz"))
	require.NoError(t, err)
	require.Empty(t, log, "unregistered command words dispatch to nothing")

	log = nil
	_, err = listener.HandleMessage(context.Background(), client, chatMessage("user@example.net", ""))
	require.NoError(t, err)
	require.Empty(t, log, "empty bodies dispatch to nothing")
}

func TestCommandListenerCaseInsensitive(t *testing.T) {
	var log []recordedInvocation
	listener := NewCommandListener("")
	listener.Register("Foo", newRecordingCommand("foo", &log))

	_, err := listener.HandleMessage(context.Background(), newFakeClient("bot@example.net/hub"),
		chatMessage("user@example.net", "FOO 1 2 3"))
	require.NoError(t, err)
	require.Equal(t, []recordedInvocation{{command: "foo", arguments: "1 2 3"}}, log)
}

func TestCommandListenerPrefix(t *testing.T) {
	var log []recordedInvocation
	listener := NewCommandListener("!")
	listener.Register("foo", newRecordingCommand("foo", &log))

	client := newFakeClient("bot@example.net/hub")
	_, err := listener.HandleMessage(context.Background(), client, chatMessage("user@example.net", "foo hello"))
	require.NoError(t, err)
	require.Empty(t, log, "without the prefix nothing is a command")

	_, err = listener.HandleMessage(context.Background(), client, chatMessage("user@example.net", "!foo hello"))
	require.NoError(t, err)
	require.Equal(t, []recordedInvocation{{command: "foo", arguments: "hello"}}, log)
}

func TestCommandListenerDuplicatePanics(t *testing.T) {
	listener := NewCommandListener("")
	listener.Register("foo", CommandFunc(func(ctx context.Context, client Client, msg *Message, arguments string) error {
		return nil
	}))
	require.Panics(t, func() {
		listener.Register("FOO", CommandFunc(func(ctx context.Context, client Client, msg *Message, arguments string) error {
			return nil
		}))
	})
}

func TestCommandListenerRateLimit(t *testing.T) {
	var log []recordedInvocation
	limiter := NewRateLimiter(1, time.Hour)
	listener := NewCommandListener("", WithRateLimiter(limiter))
	listener.Register("foo", newRecordingCommand("foo", &log))

	client := newFakeClient("bot@example.net/hub")
	_, err := listener.HandleMessage(context.Background(), client, chatMessage("user@example.net", "foo"))
	require.NoError(t, err)

	verdict, err := listener.HandleMessage(context.Background(), client, chatMessage("user@example.net", "foo"))
	require.NoError(t, err)
	require.True(t, verdict.Stop, "a rate-limited message is fully handled")
	require.Len(t, log, 1)
	require.Equal(t, []string{limiter.Warning}, client.sentBodies())
}

func TestFlagCommandParsesArguments(t *testing.T) {
	var gotCount int
	var gotRest []string
	cmd := &FlagCommand{
		Name: "ping",
		Configure: func(fs *flag.FlagSet) {
			fs.Int("c", 4, "packet count")
		},
		Run: func(ctx context.Context, client Client, msg *Message, fs *flag.FlagSet) error {
			gotCount = fs.Lookup("c").Value.(flag.Getter).Get().(int)
			gotRest = fs.Args()
			return nil
		},
	}

	client := newFakeClient("bot@example.net/hub")
	err := cmd.Invoke(context.Background(), client, chatMessage("user@example.net", ""), `-c 2 host.example.net`)
	require.NoError(t, err)
	require.Equal(t, 2, gotCount)
	require.Equal(t, []string{"host.example.net"}, gotRest)
}

func TestFlagCommandUsageErrorsBecomeDirectReplies(t *testing.T) {
	cmd := &FlagCommand{
		Name: "ping",
		Configure: func(fs *flag.FlagSet) {
			fs.Int("c", 4, "packet count")
		},
		Run: func(ctx context.Context, client Client, msg *Message, fs *flag.FlagSet) error {
			t.Fatal("run must not execute on a usage error")
			return nil
		},
	}

	client := newFakeClient("bot@example.net/hub")
	msg := roomMessage("room@chat.example.net/someone", "")
	err := cmd.Invoke(context.Background(), client, msg, "-c nonsense")
	require.NoError(t, err, "usage errors are recovered locally")
	require.Len(t, client.sent, 1)
	require.Equal(t, stanza.ChatMessage, client.sent[0].Type,
		"usage errors go to the user directly, not into the room")
	require.Contains(t, client.sent[0].Body, "invalid value")
}

func TestFlagCommandHelpIsControlFlow(t *testing.T) {
	cmd := &FlagCommand{
		Name: "ping",
		Configure: func(fs *flag.FlagSet) {
			fs.Int("c", 4, "packet count")
		},
		Run: func(ctx context.Context, client Client, msg *Message, fs *flag.FlagSet) error {
			t.Fatal("run must not execute when help was requested")
			return nil
		},
	}

	client := newFakeClient("bot@example.net/hub")
	err := cmd.Invoke(context.Background(), client, chatMessage("user@example.net", ""), "-h")
	require.NoError(t, err)
	require.Len(t, client.sent, 1)
	require.Contains(t, client.sent[0].Body, "packet count")
}

func TestSplitArguments(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{``, nil},
		{`a b c`, []string{"a", "b", "c"}},
		{`a "b c" d`, []string{"a", "b c", "d"}},
		{`""`, []string{""}},
		{`  spaced   out  `, []string{"spaced", "out"}},
	}
	for _, tc := range cases {
		got, err := splitArguments(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err := splitArguments(`"unterminated`)
	require.Error(t, err)
}
