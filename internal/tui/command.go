package tui

import "strings"

// Commands accepted in the composer and in headless mode.
const (
	CmdRetry = "retry"
	CmdQuit  = "quit"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses input starting with '/'. ok is false for plain messages.
// A doubled slash escapes a message that starts with '/'.
func ParseCommand(input string) (cmd Command, ok bool) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "//") {
		return Command{}, false
	}
	parts := strings.SplitN(trimmed[1:], " ", 2)
	cmd = Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd, true
}

// Unescape strips the doubled slash from an escaped message.
func Unescape(input string) string {
	if rest, ok := strings.CutPrefix(strings.TrimLeft(input, " \t"), "//"); ok {
		return "/" + rest
	}
	return input
}
