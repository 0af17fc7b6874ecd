// Package commands collects the small reactive handlers shared by the
// bot front-ends: ping/pong, uptime, dice rolling and friends. They are
// deliberately dumb text transformers; everything interesting happens in
// the dispatch core they plug into.
package commands

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sotecware/hubbot"
)

// Pong answers a bare "ping" with "pong" and claims the message.
func Pong() hubbot.Handler {
	return hubbot.HandlerFunc(func(ctx context.Context, client hubbot.Client, msg *hubbot.Message) (bool, error) {
		if strings.ToLower(strings.TrimSpace(msg.Body)) != "ping" {
			return false, nil
		}
		return true, hubbot.Reply(ctx, client, msg, "pong")
	})
}

// IgnoreList silently drops messages from listed senders, matched by
// bare JID. The set is shared process-wide between every chain holding
// the handler, so it is mutex-guarded.
type IgnoreList struct {
	mu      sync.Mutex
	ignored map[string]struct{}
}

func NewIgnoreList(initial ...string) *IgnoreList {
	il := &IgnoreList{ignored: make(map[string]struct{}, len(initial))}
	for _, bare := range initial {
		il.ignored[bare] = struct{}{}
	}
	return il
}

func (il *IgnoreList) Add(bare string) {
	il.mu.Lock()
	defer il.mu.Unlock()
	il.ignored[bare] = struct{}{}
}

func (il *IgnoreList) Remove(bare string) {
	il.mu.Lock()
	defer il.mu.Unlock()
	delete(il.ignored, bare)
}

func (il *IgnoreList) HandleMessage(ctx context.Context, client hubbot.Client, msg *hubbot.Message) (hubbot.Verdict, error) {
	il.mu.Lock()
	_, drop := il.ignored[msg.From.Bare().String()]
	il.mu.Unlock()
	return hubbot.Verdict{Stop: drop}, nil
}

// Say echoes its arguments back into the channel.
func Say() hubbot.Command {
	return hubbot.CommandFunc(func(ctx context.Context, client hubbot.Client, msg *hubbot.Message, arguments string) error {
		if strings.TrimSpace(arguments) == "" {
			return nil
		}
		return hubbot.Reply(ctx, client, msg, arguments)
	})
}

// Uptime reports the host's uptime. The user count is stripped unless
// showUsers is set; nobody needs to know who is logged in on the bot
// host.
type Uptime struct {
	ShowUsers bool
}

var userCountPattern = regexp.MustCompile(`[0-9]+ users?, `)

func (u *Uptime) Invoke(ctx context.Context, client hubbot.Client, msg *hubbot.Message, arguments string) error {
	if strings.TrimSpace(arguments) != "" {
		return nil
	}
	out, err := exec.CommandContext(ctx, "uptime").Output()
	if err != nil {
		return fmt.Errorf("commands: uptime: %w", err)
	}
	text := strings.TrimSpace(string(out))
	if !u.ShowUsers {
		text = userCountPattern.ReplaceAllString(text, "")
	}
	return hubbot.Reply(ctx, client, msg, text)
}

// Roll rolls dice: `XdY` rolls a dY X times, several groups may be
// given, and an optional trailing `against N` turns the sum into a
// pass/fail check.
type Roll struct {
	rand func(n int) int
}

func NewRoll() *Roll {
	return &Roll{
		rand: func(n int) int { return rand.IntN(n) },
	}
}

var (
	rollAllPattern = regexp.MustCompile(`(?i)^(([0-9]*[dw][0-9]+\s+)*[0-9]*[dw][0-9]+)(\s+(?:each\s+)?\w+\s+([0-9]+))?\s*$`)
	rollPattern    = regexp.MustCompile(`(?i)([0-9]*)[dw]([0-9]+)`)
)

func (r *Roll) Invoke(ctx context.Context, client hubbot.Client, msg *hubbot.Message, arguments string) error {
	matched := rollAllPattern.FindStringSubmatch(arguments)
	if matched == nil {
		return hubbot.Reply(ctx, client, msg, "usage: XdY rolls a dY X times")
	}

	var results []int
	for _, group := range rollPattern.FindAllStringSubmatch(matched[1], -1) {
		count := 1
		if group[1] != "" {
			count, _ = strconv.Atoi(group[1])
		}
		die, _ := strconv.Atoi(group[2])
		switch {
		case count < 1:
			return hubbot.Reply(ctx, client, msg,
				fmt.Sprintf("thats not a reasonable count: %d", count))
		case die <= 1:
			return hubbot.Reply(ctx, client, msg,
				fmt.Sprintf("thats not a reasonable die: %d", die))
		case count > 1000 || len(results) > 1000:
			return hubbot.Reply(ctx, client, msg,
				"yeah, right, I'll go and rob a die factory")
		}
		for i := 0; i < count; i++ {
			results = append(results, r.rand(die)+1)
		}
	}

	sum := 0
	parts := make([]string, len(results))
	for i, result := range results {
		sum += result
		parts[i] = strconv.Itoa(result)
	}

	suffix := ""
	if matched[4] != "" {
		against, _ := strconv.Atoi(matched[4])
		if against >= sum {
			suffix = ": passed"
		} else {
			suffix = ": failed"
		}
	}

	return hubbot.Reply(ctx, client, msg,
		fmt.Sprintf("results: %s, sum = %d%s", strings.Join(parts, " "), sum, suffix))
}

// Respawn triggers a graceful restart of the bot process. The actual
// restart runs deferred so the acknowledgement still reaches the room
// before the process image is replaced.
func Respawn(restart func()) hubbot.Command {
	return hubbot.CommandFunc(func(ctx context.Context, client hubbot.Client, msg *hubbot.Message, arguments string) error {
		if err := hubbot.Reply(ctx, client, msg, "restarting, back in a moment"); err != nil {
			return err
		}
		time.AfterFunc(500*time.Millisecond, restart)
		return nil
	})
}
