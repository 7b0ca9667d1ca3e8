package adapter

import (
	"context"
	"fmt"
	"hash/fnv"

	tele "gopkg.in/telebot.v4"

	kit "memewrangler/internal/transport"
	logx "memewrangler/pkg/logx"
)

const (
	maxMenuCommands    = 100
	maxMenuDescription = 256
)

// menuCommands converts the router's list into Bot API entries, dropping
// blanks and clamping to Telegram's limits. The hash identifies the result.
func menuCommands(cmds []kit.BotCommand) ([]tele.Command, uint64) {
	h := fnv.New64a()
	out := make([]tele.Command, 0, min(len(cmds), maxMenuCommands))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if r := []rune(d); len(r) > maxMenuDescription {
			d = string(r[:maxMenuDescription])
		}
		out = append(out, tele.Command{Text: c.Command, Description: d})
		fmt.Fprintf(h, "%s\x00%s\x00", c.Command, d)
		if len(out) == maxMenuCommands {
			break
		}
	}
	return out, h.Sum64()
}

// UpdateMenuCommands publishes the command menu (setMyCommands). Unchanged
// lists are not re-sent.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	list, sum := menuCommands(cmds)
	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	if sum == a.menuHash {
		return nil
	}
	if err := a.bot.SetCommands(list); err != nil {
		return fmt.Errorf("telegram setMyCommands: %w", err)
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(list)))
	return nil
}
