package discord

import "strings"

// command is a parsed bot invocation.
type command struct {
	Name string // lowercased, without the prefix
	Args string // everything after the name, trimmed
}

// parseCommand extracts a command from message content. Returns false
// for ordinary chatter, including a bare prefix with nothing after it.
func parseCommand(prefix, content string) (command, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, prefix) {
		return command{}, false
	}
	rest := strings.TrimPrefix(content, prefix)
	if rest == "" || rest[0] == ' ' {
		return command{}, false
	}

	name, args, _ := strings.Cut(rest, " ")
	return command{
		Name: strings.ToLower(name),
		Args: strings.TrimSpace(args),
	}, true
}
