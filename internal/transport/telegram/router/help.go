package router

import (
	"strings"

	"memewrangler/pkg/tgui"
)

// helpText renders Telegram-friendly help in HTML parse mode.
func (m *CommandManager) helpText(args []string) string {
	if len(args) > 0 {
		word := strings.ToLower(strings.TrimPrefix(args[0], "/"))
		c, ok := m.lookup(word)
		if !ok {
			return tgui.Lines("❓ "+tgui.B("Unknown command"), "Type "+tgui.Code("/help")+" to list commands.").String()
		}
		return helpCommandHTML(*c)
	}

	lines := []tgui.H{
		"📚 " + tgui.B("Meme Wrangler Bot Command Reference"),
		"Send a photo, GIF or video in this private chat to queue it for the next free slot.",
		"",
	}
	for _, c := range m.commandList() {
		line := "/" + tgui.Esc(c.Name)
		if c.Access == AccessOwnerOnly {
			line = "🔒 " + line
		}
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + tgui.Esc(d)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", "Type "+tgui.Code("/help <command>")+" for details.")
	return tgui.Lines(lines...).String()
}

func helpCommandHTML(c Command) string {
	lines := []tgui.H{tgui.B("/" + c.Name)}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, tgui.Esc(d))
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "", "Usage: "+tgui.Code(u))
	}
	if len(c.Aliases) > 0 {
		as := make([]string, 0, len(c.Aliases))
		for _, a := range c.Aliases {
			as = append(as, "/"+a)
		}
		lines = append(lines, "Aliases: "+tgui.Esc(strings.Join(as, ", ")))
	}
	if c.Access == AccessOwnerOnly {
		lines = append(lines, "🔒 Owner only")
	}
	return tgui.Lines(lines...).String()
}
