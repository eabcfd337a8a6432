package bot

import (
	"context"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

// MockContext definition for internal use
type MockContext struct {
	tele.Context
	TextVal    string
	PayloadVal string
	Sent       []string
	Replies    []string
}

func (m *MockContext) Sender() *tele.User { return &tele.User{ID: 42} }
func (m *MockContext) Text() string       { return m.TextVal }
func (m *MockContext) Message() *tele.Message {
	return &tele.Message{Text: m.TextVal, Payload: m.PayloadVal}
}
func (m *MockContext) Notify(action tele.ChatAction) error { return nil }
func (m *MockContext) Send(what interface{}, opts ...interface{}) error {
	m.Sent = append(m.Sent, what.(string))
	return nil
}
func (m *MockContext) Reply(what interface{}, opts ...interface{}) error {
	m.Replies = append(m.Replies, what.(string))
	return nil
}

type fakeProvider struct {
	name      string
	url       string
	urlErr    error
	revokeErr error
	connected bool
	revoked   []string
}

func (f *fakeProvider) AuthorizationURL(userID string) (string, error) { return f.url, f.urlErr }
func (f *fakeProvider) RevokeAccess(_ context.Context, userID string) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked = append(f.revoked, userID)
	return nil
}
func (f *fakeProvider) Connected(userID string) bool { return f.connected }
func (f *fakeProvider) DisplayName() string          { return f.name }

type fakeAgent struct {
	chunks    []string
	err       error
	lastText  string
	lastUser  string
	forgotten []string
}

func (f *fakeAgent) Run(_ context.Context, userID, text string, _ []string) ([]string, error) {
	f.lastUser = userID
	f.lastText = text
	return f.chunks, f.err
}
func (f *fakeAgent) Forget(userID string) { f.forgotten = append(f.forgotten, userID) }

func newTestBot(agent Agent, providers map[string]Provider) *Bot {
	return &Bot{
		agent:     agent,
		providers: providers,
		cfg:       Config{ScratchDir: "temp"},
		log:       log.New(io.Discard),
	}
}

func TestHandleStatus(t *testing.T) {
	b := newTestBot(&fakeAgent{}, map[string]Provider{
		"box":     &fakeProvider{name: "Box", connected: true},
		"dropbox": &fakeProvider{name: "Dropbox"},
	})

	ctx := &MockContext{}
	require.NoError(t, b.handleStatus(ctx))

	require.Len(t, ctx.Sent, 1)
	assert.Contains(t, ctx.Sent[0], "Box: connected")
	assert.Contains(t, ctx.Sent[0], "Dropbox: not connected")
}

func TestHandleAuthorize(t *testing.T) {
	p := &fakeProvider{name: "Box", url: "https://account.box.com/authorize?state=abc"}
	b := newTestBot(&fakeAgent{}, map[string]Provider{"box": p})

	ctx := &MockContext{}
	require.NoError(t, b.handleAuthorize(ctx, p))

	require.Len(t, ctx.Sent, 1)
	assert.Contains(t, ctx.Sent[0], "Authorize Box")
	assert.Contains(t, ctx.Sent[0], p.url)
}

func TestHandleRevoke(t *testing.T) {
	p := &fakeProvider{name: "Dropbox"}
	b := newTestBot(&fakeAgent{}, map[string]Provider{"dropbox": p})

	ctx := &MockContext{}
	require.NoError(t, b.handleRevoke(ctx, p))
	assert.Equal(t, []string{"42"}, p.revoked)
	assert.Contains(t, ctx.Sent[0], "Dropbox access revoked")
}

func TestHandleRevokeWithoutConnection(t *testing.T) {
	p := &fakeProvider{name: "Gmail", revokeErr: assert.AnError}
	b := newTestBot(&fakeAgent{}, map[string]Provider{"gmail": p})

	ctx := &MockContext{}
	require.NoError(t, b.handleRevoke(ctx, p))
	assert.Contains(t, ctx.Sent[0], "don't have an active Gmail connection")
}

func TestHandlePing(t *testing.T) {
	b := newTestBot(&fakeAgent{}, nil)

	ctx := &MockContext{}
	require.NoError(t, b.handlePing(ctx))
	assert.Equal(t, []string{"Pong!"}, ctx.Sent)

	ctx = &MockContext{PayloadVal: "hello"}
	require.NoError(t, b.handlePing(ctx))
	assert.Equal(t, []string{"Pong! Your argument was hello"}, ctx.Sent)
}

func TestHandleTextRejectsUnknownCommand(t *testing.T) {
	b := newTestBot(&fakeAgent{}, nil)

	ctx := &MockContext{TextVal: "/bogus"}
	require.NoError(t, b.handleText(ctx))
	assert.Contains(t, ctx.Sent[0], "don't know that command")
}

func TestHandleTextRunsAgent(t *testing.T) {
	agent := &fakeAgent{chunks: []string{"first", "second"}}
	b := newTestBot(agent, nil)

	ctx := &MockContext{TextVal: "list my files"}
	require.NoError(t, b.handleText(ctx))

	assert.Equal(t, "42", agent.lastUser)
	assert.Equal(t, "list my files", agent.lastText)
	// First chunk replies, the rest are plain sends.
	assert.Equal(t, []string{"first"}, ctx.Replies)
	assert.Equal(t, []string{"second"}, ctx.Sent)
}

func TestConverseAgentFailure(t *testing.T) {
	agent := &fakeAgent{err: assert.AnError}
	b := newTestBot(agent, nil)

	ctx := &MockContext{TextVal: "hello"}
	require.NoError(t, b.handleText(ctx))
	assert.Contains(t, ctx.Sent[0], "Something went wrong")
}

func TestHandleReset(t *testing.T) {
	agent := &fakeAgent{}
	b := newTestBot(agent, nil)

	ctx := &MockContext{}
	require.NoError(t, b.handleReset(ctx))
	assert.Equal(t, []string{"42"}, agent.forgotten)
	assert.Contains(t, ctx.Sent[0], "cleared")
}
