package neural

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.mistral.ai"
	DefaultModel   = "mistral-large-latest"
)

// Client is a minimal Mistral chat-completions client with tool calling.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		BaseURL: defaultBaseURL,
		APIKey:  apiKey,
		Model:   model,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Message is one chat turn. Assistant turns may carry tool calls; tool
// turns answer them via ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

func System(content string) Message    { return Message{Role: "system", Content: content} }
func User(content string) Message      { return Message{Role: "user", Content: content} }
func Assistant(content string) Message { return Message{Role: "assistant", Content: content} }

// ToolResult answers a tool call.
func ToolResult(call ToolCall, content string) Message {
	return Message{Role: "tool", Content: content, ToolCallID: call.ID, Name: call.Function.Name}
}

type ToolCall struct {
	ID       string       `json:"id"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ArgumentsMap decodes the call arguments. Mistral sometimes returns
// them as a JSON object and sometimes as a JSON-encoded string.
func (f FunctionCall) ArgumentsMap() (map[string]any, error) {
	if len(f.Arguments) == 0 {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal(f.Arguments, &args); err == nil {
		return args, nil
	}

	var nested string
	if err := json.Unmarshal(f.Arguments, &nested); err != nil {
		return nil, fmt.Errorf("decode tool arguments: %w", err)
	}
	if err := json.Unmarshal([]byte(nested), &args); err != nil {
		return nil, fmt.Errorf("decode nested tool arguments: %w", err)
	}
	return args, nil
}

// Tool is a function the model may call.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model      string    `json:"model"`
	Messages   []Message `json:"messages"`
	Tools      []Tool    `json:"tools,omitempty"`
	ToolChoice string    `json:"tool_choice,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Message string `json:"message"`
}

// Chat sends one completion request and returns the model's message.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []Tool) (*Message, error) {
	req := chatRequest{
		Model:    c.Model,
		Messages: messages,
		Tools:    tools,
	}
	if len(tools) > 0 {
		req.ToolChoice = "auto"
	}

	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v1/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mistral connection failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read mistral response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("mistral error: %s", apiErr.Message)
		}
		return nil, fmt.Errorf("mistral error: %s", resp.Status)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode mistral response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("mistral returned no choices")
	}

	msg := result.Choices[0].Message
	return &msg, nil
}
