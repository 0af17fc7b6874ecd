package calc

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sotecware/hubbot"
)

// unitPattern recognises a leading "as <unit>" or "in <unit>" clause,
// splitting the unit from the expression proper.
var unitPattern = regexp.MustCompile(`^\s*(as|in)\s+(\S+)(.*)$`)

// Command is the chat front-end for the supervisor: `calc 2+2` or
// `calc in km/h 25*1.2`. It serialises access to the supervisor, which
// supports only one in-flight request.
type Command struct {
	mu         sync.Mutex
	supervisor *Supervisor
	client     hubbot.Client
}

func NewCommand(supervisor *Supervisor) *Command {
	return &Command{supervisor: supervisor}
}

// ClientChanged hands the connection lifecycle through to the worker.
// The command may sit in several chains which all propagate the same
// client; only an actual change cycles the worker.
func (c *Command) ClientChanged(next hubbot.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next == c.client {
		return
	}
	c.client = next
	c.supervisor.ClientChanged(next)
}

func (c *Command) Invoke(ctx context.Context, client hubbot.Client, msg *hubbot.Message, arguments string) error {
	unit := "1"
	expr := arguments
	if m := unitPattern.FindStringSubmatch(arguments); m != nil {
		unit = m[2]
		expr = strings.TrimSpace(m[3])
	}

	c.mu.Lock()
	ok, text, err := c.supervisor.Invoke([]byte(unit), []byte(expr))
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		metricsFailure()
		return hubbot.Reply(ctx, client, msg,
			fmt.Sprintf("computation failed: %s", text))
	}
	return hubbot.Reply(ctx, client, msg, string(text))
}
