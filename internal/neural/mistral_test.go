package neural

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatPlainResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral-large-latest", req.Model)
		assert.Empty(t, req.ToolChoice)

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "pong"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient("test-key", "")
	c.BaseURL = srv.URL

	msg, err := c.Chat(context.Background(), []Message{User("ping")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "assistant", msg.Role)
	assert.Equal(t, "pong", msg.Content)
}

func TestChatToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "auto", req.ToolChoice)
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "search_files", req.Tools[0].Function.Name)

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{
						{
							"id": "call_1",
							"function": map[string]any{
								"name":      "search_files",
								"arguments": map[string]any{"query": "report"},
							},
						},
					},
				}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient("k", "mistral-small-latest")
	c.BaseURL = srv.URL

	tools := []Tool{{
		Type: "function",
		Function: ToolFunction{
			Name:        "search_files",
			Description: "Search files by name",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
			},
		},
	}}

	msg, err := c.Chat(context.Background(), []Message{User("find the report")}, tools)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)

	args, err := msg.ToolCalls[0].Function.ArgumentsMap()
	require.NoError(t, err)
	assert.Equal(t, "report", args["query"])
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"message": "invalid api key"})
	}))
	defer srv.Close()

	c := NewClient("bad", "")
	c.BaseURL = srv.URL

	_, err := c.Chat(context.Background(), []Message{User("hi")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestArgumentsMapStringEncoded(t *testing.T) {
	f := FunctionCall{
		Name:      "create_folder",
		Arguments: json.RawMessage(`"{\"name\": \"docs\"}"`),
	}
	args, err := f.ArgumentsMap()
	require.NoError(t, err)
	assert.Equal(t, "docs", args["name"])
}

func TestToolResult(t *testing.T) {
	call := ToolCall{ID: "call_9", Function: FunctionCall{Name: "list_folder"}}
	msg := ToolResult(call, `{"entries": []}`)
	assert.Equal(t, "tool", msg.Role)
	assert.Equal(t, "call_9", msg.ToolCallID)
	assert.Equal(t, "list_folder", msg.Name)
}
