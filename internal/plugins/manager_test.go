package plugins

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	return NewManager(log.New(io.Discard))
}

func TestRegisterAndDispatch(t *testing.T) {
	m := newTestManager()
	m.Register("echo", "Echo the input back.",
		params(map[string]any{"text": strProp("Text to echo")}, "text"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			return userID + ": " + stringArg(args, "text"), nil
		})

	out, err := m.Dispatch(context.Background(), "42", "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "42: hi", out)
}

func TestDispatchUnknownTool(t *testing.T) {
	m := newTestManager()
	out, err := m.Dispatch(context.Background(), "42", "nope", nil)
	require.NoError(t, err)
	assert.Equal(t, "unknown tool: nope", out)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	m := newTestManager()
	reg := func() {
		m.Register("dup", "d", params(nil), func(context.Context, string, map[string]any) (string, error) {
			return "", nil
		})
	}
	reg()
	assert.Panics(t, reg)
}

func TestToolsPreserveOrder(t *testing.T) {
	m := newTestManager()
	for _, name := range []string{"c", "a", "b"} {
		m.Register(name, name, params(nil), func(context.Context, string, map[string]any) (string, error) {
			return "", nil
		})
	}
	tools := m.Tools()
	require.Len(t, tools, 3)
	assert.Equal(t, "c", tools[0].Function.Name)
	assert.Equal(t, "a", tools[1].Function.Name)
	assert.Equal(t, "b", tools[2].Function.Name)

	desc := m.Descriptions()
	assert.Contains(t, desc, "- c: c\n")
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"s":     "text",
		"n":     float64(7),
		"b":     true,
		"slice": []any{"a", "b"},
	}
	assert.Equal(t, "text", stringArg(args, "s"))
	assert.Equal(t, "", stringArg(args, "missing"))
	assert.Equal(t, "fb", stringArgDefault(args, "missing", "fb"))
	assert.Equal(t, 7, intArg(args, "n", 3))
	assert.Equal(t, 3, intArg(args, "missing", 3))
	assert.True(t, boolArg(args, "b"))
	assert.False(t, boolArg(args, "missing"))
	assert.Equal(t, []string{"a", "b"}, stringSliceArg(args, "slice"))
	assert.Nil(t, stringSliceArg(args, "missing"))
}
