package hubbot

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// Command executes one named command. arguments is the message body with
// the prefix and command word already removed.
type Command interface {
	Invoke(ctx context.Context, client Client, msg *Message, arguments string) error
}

// CommandFunc adapts a plain function as a Command.
type CommandFunc func(ctx context.Context, client Client, msg *Message, arguments string) error

func (f CommandFunc) Invoke(ctx context.Context, client Client, msg *Message, arguments string) error {
	return f(ctx, client, msg, arguments)
}

// CommandListener recognises messages starting with a prefix and a known
// command word and delegates the remainder of the body to the registered
// Command. It implements Handler and never stops the chain: a command
// message may still be interesting to loggers further down.
type CommandListener struct {
	prefix   string
	commands map[string]Command
	pattern  *regexp.Regexp
	limiter  *RateLimiter
	verbose  bool
	logger   *slog.Logger
}

type ListenerOption func(*CommandListener)

// WithVerboseUnknown makes the listener answer unknown command words
// instead of silently ignoring them.
func WithVerboseUnknown() ListenerOption {
	return func(cl *CommandListener) {
		cl.verbose = true
	}
}

// WithRateLimiter makes the listener consult limiter before executing any
// command; senders over the limit get the limiter's warning as a reply.
func WithRateLimiter(limiter *RateLimiter) ListenerOption {
	return func(cl *CommandListener) {
		cl.limiter = limiter
	}
}

func WithListenerLog(logger *slog.Logger) ListenerOption {
	return func(cl *CommandListener) {
		cl.logger = logger
	}
}

// NewCommandListener builds a listener for the given prefix. An empty
// prefix means every message is inspected for a command word.
func NewCommandListener(prefix string, opts ...ListenerOption) *CommandListener {
	cl := &CommandListener{
		prefix:   prefix,
		commands: make(map[string]Command),
	}
	for _, opt := range opts {
		opt(cl)
	}
	if cl.logger == nil {
		cl.logger = slog.Default()
	}
	return cl
}

// Register adds a command under name. Names are matched
// case-insensitively; registering a name twice panics, as that is a
// wiring bug, not a runtime condition.
func (cl *CommandListener) Register(name string, cmd Command) {
	name = strings.ToLower(name)
	if _, dup := cl.commands[name]; dup {
		panic(fmt.Sprintf("%v: %q", ErrCommandConflict, name))
	}
	cl.commands[name] = cmd
	cl.rebuildPattern()
}

// rebuildPattern recompiles the alternation over all registered command
// words. Run on every registration so matching stays a single regexp
// test at dispatch time.
func (cl *CommandListener) rebuildPattern() {
	names := make([]string, 0, len(cl.commands))
	for name := range cl.commands {
		names = append(names, regexp.QuoteMeta(name))
	}
	sort.Strings(names)
	cl.pattern = regexp.MustCompile(`(?i)^(?:` + strings.Join(names, "|") + `)$`)
}

// ClientChanged forwards the connection to every registered command.
func (cl *CommandListener) ClientChanged(next Client) {
	for _, cmd := range cl.commands {
		propagateClient(next, cmd)
	}
}

func (cl *CommandListener) HandleMessage(ctx context.Context, client Client, msg *Message) (Verdict, error) {
	if msg.Body == "" {
		return Verdict{}, nil
	}
	if !strings.HasPrefix(msg.Body, cl.prefix) {
		return Verdict{}, nil
	}
	contents := msg.Body[len(cl.prefix):]

	word, arguments, _ := strings.Cut(contents, " ")
	if cl.pattern == nil || !cl.pattern.MatchString(word) {
		if cl.verbose && cl.prefix != "" {
			return Verdict{}, Reply(ctx, client, msg,
				fmt.Sprintf("I don't know what %q should mean.", word))
		}
		cl.logger.InfoContext(ctx, "unknown command",
			LabelCommand.L(word), LabelSender.L(msg.From.String()))
		return Verdict{}, nil
	}

	if cl.limiter != nil && !cl.limiter.Allow(msg.From) {
		return Handled, Reply(ctx, client, msg, cl.limiter.Warning)
	}

	cmd := cl.commands[strings.ToLower(word)]
	return Verdict{}, cmd.Invoke(ctx, client, msg, arguments)
}

// FlagCommand is a Command with declarative argument parsing on top of a
// flag set. Usage errors and help output become direct replies to the
// requesting user; they never reach the error sink and never exit the
// process.
type FlagCommand struct {
	Name string

	// Configure declares flags on a fresh set before parsing. May be nil
	// for commands taking only positional arguments.
	Configure func(fs *flag.FlagSet)

	// Run executes the parsed command.
	Run func(ctx context.Context, client Client, msg *Message, fs *flag.FlagSet) error
}

func (fc *FlagCommand) Invoke(ctx context.Context, client Client, msg *Message, arguments string) error {
	fs := flag.NewFlagSet(fc.Name, flag.ContinueOnError)
	var usage strings.Builder
	fs.SetOutput(&usage)
	if fc.Configure != nil {
		fc.Configure(fs)
	}

	args, err := splitArguments(arguments)
	if err != nil {
		return ReplyDirect(ctx, client, msg, fmt.Sprintf("%s: %v", fc.Name, err))
	}

	switch err := fs.Parse(args); {
	case err == flag.ErrHelp:
		return ReplyDirect(ctx, client, msg, usage.String())
	case err != nil:
		// flag already wrote the message plus defaults into usage.
		return ReplyDirect(ctx, client, msg, strings.TrimSpace(usage.String()))
	}
	return fc.Run(ctx, client, msg, fs)
}

// splitArguments splits a command tail into words, honouring double
// quotes so multi-word arguments survive.
func splitArguments(s string) ([]string, error) {
	var (
		args     []string
		current  strings.Builder
		inQuote  bool
		hasToken bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			hasToken = true
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			if hasToken {
				args = append(args, current.String())
				current.Reset()
				hasToken = false
			}
		default:
			current.WriteRune(r)
			hasToken = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if hasToken {
		args = append(args, current.String())
	}
	return args, nil
}
