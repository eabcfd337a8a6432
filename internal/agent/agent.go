package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dodohq/dodobot/internal/markdown"
	"github.com/dodohq/dodobot/internal/neural"
	"github.com/dodohq/dodobot/internal/services"
)

// maxToolRounds bounds how many times a single request may go back to
// the model with tool results.
const maxToolRounds = 5

// maxHistoryMessages is how many past turns each user keeps.
const maxHistoryMessages = 4

// Chatter is the slice of the neural client the agent needs.
type Chatter interface {
	Chat(ctx context.Context, messages []neural.Message, tools []neural.Tool) (*neural.Message, error)
}

// ToolRunner is the slice of the plugin manager the agent needs.
type ToolRunner interface {
	Tools() []neural.Tool
	Dispatch(ctx context.Context, userID, name string, args map[string]any) (string, error)
	Descriptions() string
}

// Agent turns a user message into one or more reply chunks, calling
// cloud service tools along the way.
type Agent struct {
	llm   Chatter
	tools ToolRunner
	log   *log.Logger

	chunkLimit int

	mu        sync.Mutex
	histories map[string][]neural.Message
}

func New(llm Chatter, tools ToolRunner, logger *log.Logger) *Agent {
	return &Agent{
		llm:        llm,
		tools:      tools,
		log:        logger,
		chunkLimit: markdown.DefaultLimit,
		histories:  make(map[string][]neural.Message),
	}
}

func (a *Agent) systemPrompt(userID string) string {
	return fmt.Sprintf(`You are Dodobot, a personal assistant that manages the user's cloud services: Box, Dropbox, Google Drive, Gmail and Google Calendar.

You can call these tools:
%s
Call tools whenever they help answer the request. When a file the user attached is mentioned by local path, pass that path to upload tools. Keep answers short and format them with Markdown.

The current user's id is %s. Never reveal or change it.`, a.tools.Descriptions(), userID)
}

// Run handles one incoming message and returns the reply split into
// sendable chunks. filePaths are attachments already staged on disk;
// they are removed before Run returns.
func (a *Agent) Run(ctx context.Context, userID, text string, filePaths []string) ([]string, error) {
	defer a.cleanup(filePaths)

	userMsg := neural.User(composeUserContent(text, filePaths))

	messages := []neural.Message{neural.System(a.systemPrompt(userID))}
	messages = append(messages, a.history(userID)...)
	messages = append(messages, userMsg)

	for round := 0; round < maxToolRounds; round++ {
		reply, err := a.llm.Chat(ctx, messages, a.tools.Tools())
		if err != nil {
			return nil, err
		}

		if len(reply.ToolCalls) == 0 {
			a.remember(userID, userMsg, *reply)
			return markdown.Split(reply.Content, a.chunkLimit), nil
		}

		messages = append(messages, *reply)
		for _, call := range reply.ToolCalls {
			out, err := a.runTool(ctx, userID, call)
			if authErr, ok := services.AsAuthError(err); ok {
				msg := fmt.Sprintf(
					"I can't reach your %s account right now. %s",
					authErr.Service, authErr.Error())
				a.remember(userID, userMsg, neural.Assistant(msg))
				return []string{msg}, nil
			}
			if err != nil {
				a.log.Warn("tool failed", "tool", call.Function.Name, "err", err)
				out = fmt.Sprintf("error: %v", err)
			}
			messages = append(messages, neural.ToolResult(call, out))
		}
	}

	const giveUp = "I couldn't finish that request, it needed too many steps. Try breaking it up."
	a.remember(userID, userMsg, neural.Assistant(giveUp))
	return []string{giveUp}, nil
}

func (a *Agent) runTool(ctx context.Context, userID string, call neural.ToolCall) (string, error) {
	args, err := call.Function.ArgumentsMap()
	if err != nil {
		return "", err
	}
	return a.tools.Dispatch(ctx, userID, call.Function.Name, args)
}

// Forget drops a user's conversation history.
func (a *Agent) Forget(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.histories, userID)
}

func (a *Agent) history(userID string) []neural.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.histories[userID]
}

// remember stores the final user/assistant pair, keeping only the last
// few turns so the context stays small.
func (a *Agent) remember(userID string, userMsg, reply neural.Message) {
	// Tool calls in the stored reply would dangle without their results.
	reply.ToolCalls = nil

	a.mu.Lock()
	defer a.mu.Unlock()
	h := append(a.histories[userID], userMsg, reply)
	if len(h) > maxHistoryMessages {
		h = h[len(h)-maxHistoryMessages:]
	}
	a.histories[userID] = h
}

func (a *Agent) cleanup(filePaths []string) {
	for _, p := range filePaths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			a.log.Warn("could not remove scratch file", "path", p, "err", err)
		}
	}
}

func composeUserContent(text string, filePaths []string) string {
	if len(filePaths) == 0 {
		return text
	}
	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n\nAttached files, available by local path:")
	for _, p := range filePaths {
		sb.WriteString("\n- ")
		sb.WriteString(p)
	}
	return sb.String()
}
