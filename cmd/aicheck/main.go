package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/dodohq/dodobot/internal/neural"
)

// Smoke check for the chat-completions client against a mocked server.
func main() {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"choices":[{"message":{"role":"assistant","content":"Mock AI Response"}}]}`)
	}))
	defer ts.Close()

	client := neural.NewClient("test-key", "")
	client.BaseURL = ts.URL

	reply, err := client.Chat(context.Background(), []neural.Message{neural.User("ping")}, nil)
	if err != nil {
		panic(err)
	}
	if reply.Content != "Mock AI Response" {
		panic("Unexpected response")
	}
	fmt.Println("✔ Chat round-trip OK")

	tools := []neural.Tool{{
		Type: "function",
		Function: neural.ToolFunction{
			Name:        "noop",
			Description: "does nothing",
			Parameters:  map[string]any{"type": "object"},
		},
	}}
	if _, err := client.Chat(context.Background(), []neural.Message{neural.User("call a tool")}, tools); err != nil {
		panic(err)
	}
	fmt.Println("✔ Tool advertisement OK")
}
