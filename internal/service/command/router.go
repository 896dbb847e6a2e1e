package command

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sandevgo/ctxkeeper/internal/core"
)

const helpName = "help"

type Router struct {
	commands  map[string]core.Command
	formatter *ResponseFormatter
}

func New(commands []core.Command) *Router {
	c := &Router{
		commands:  make(map[string]core.Command),
		formatter: NewResponseFormatter(),
	}

	for _, cmd := range commands {
		c.commands[cmd.Name()] = cmd
	}
	return c
}

// Execute handles input starting with "/". The bool reports whether input
// was a command at all; ordinary chat text returns false.
func (c *Router) Execute(ctx context.Context, sessionID, input string) (string, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", false
	}

	parts := strings.Fields(input)
	name := strings.TrimPrefix(parts[0], "/")
	args := parts[1:]

	if name == helpName {
		return c.help(), true
	}

	cmd, ok := c.commands[name]
	if !ok {
		return fmt.Sprintf("Unknown command: /%s (try /%s)", name, helpName), true
	}

	result, err := cmd.Execute(ctx, sessionID, args)
	if err != nil {
		return c.formatter.Error(err), true
	}
	return result, true
}

// ListCommands returns commands sorted by name.
func (c *Router) ListCommands() []core.Command {
	res := make([]core.Command, 0, len(c.commands))
	for _, cmd := range c.commands {
		res = append(res, cmd)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name() < res[j].Name() })
	return res
}

func (c *Router) help() string {
	items := make([]string, 0, len(c.commands)+1)
	for _, cmd := range c.ListCommands() {
		items = append(items, fmt.Sprintf("/%-10s %s", cmd.Name(), cmd.Description()))
	}
	items = append(items, fmt.Sprintf("/%-10s %s", helpName, "Show this list"))

	return c.formatter.Combine(
		c.formatter.Info("Commands"),
		c.formatter.List(items),
	)
}
