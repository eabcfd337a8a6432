package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dodohq/dodobot/internal/neural"
)

// Handler executes one tool call on behalf of a user.
type Handler func(ctx context.Context, userID string, args map[string]any) (string, error)

type plugin struct {
	tool    neural.Tool
	handler Handler
}

// Manager holds every tool the model may call and dispatches calls to
// the service behind them.
type Manager struct {
	log     *log.Logger
	plugins map[string]plugin
	order   []string
}

func NewManager(logger *log.Logger) *Manager {
	return &Manager{
		log:     logger,
		plugins: make(map[string]plugin),
	}
}

// Register adds a tool. Registering the same name twice is a
// programming error and panics early.
func (m *Manager) Register(name, description string, parameters map[string]any, h Handler) {
	if _, ok := m.plugins[name]; ok {
		panic(fmt.Sprintf("plugins: duplicate tool %q", name))
	}
	m.plugins[name] = plugin{
		tool: neural.Tool{
			Type: "function",
			Function: neural.ToolFunction{
				Name:        name,
				Description: description,
				Parameters:  parameters,
			},
		},
		handler: h,
	}
	m.order = append(m.order, name)
}

// Tools returns the registered tools in registration order.
func (m *Manager) Tools() []neural.Tool {
	tools := make([]neural.Tool, 0, len(m.order))
	for _, name := range m.order {
		tools = append(tools, m.plugins[name].tool)
	}
	return tools
}

// Dispatch runs the named tool. Unknown names come back as a string so
// the model can correct itself instead of aborting the conversation.
func (m *Manager) Dispatch(ctx context.Context, userID, name string, args map[string]any) (string, error) {
	p, ok := m.plugins[name]
	if !ok {
		m.log.Warn("unknown tool requested", "tool", name)
		return fmt.Sprintf("unknown tool: %s", name), nil
	}
	m.log.Debug("dispatching tool", "tool", name, "user", userID)
	return p.handler(ctx, userID, args)
}

// Descriptions renders a one-line-per-tool summary for the system
// prompt.
func (m *Manager) Descriptions() string {
	var sb strings.Builder
	for _, name := range m.order {
		fmt.Fprintf(&sb, "- %s: %s\n", name, m.plugins[name].tool.Function.Description)
	}
	return sb.String()
}

// params builds a JSON schema object for a tool's parameters.
func params(props map[string]any, required ...string) map[string]any {
	p := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		p["required"] = required
	}
	return p
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func boolProp(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func stringArgDefault(args map[string]any, key, fallback string) string {
	if v := stringArg(args, key); v != "" {
		return v
	}
	return fallback
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}
