package oauthserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	userID string
	err    error
	state  string
	code   string
}

func (f *fakeProvider) HandleCallback(_ context.Context, state, code string) (string, error) {
	f.state, f.code = state, code
	return f.userID, f.err
}
func (f *fakeProvider) DisplayName() string { return "Box" }

type fakeNotifier struct {
	ch chan [2]string
}

func (f *fakeNotifier) NotifyAuthorized(userID, service string) {
	f.ch <- [2]string{userID, service}
}

func newTestServer(p Provider, n Notifier) *httptest.Server {
	s := New(":0", map[string]Provider{"box": p}, n, log.New(io.Discard))
	return httptest.NewServer(s.http.Handler)
}

func TestCallbackSuccess(t *testing.T) {
	provider := &fakeProvider{userID: "42"}
	notifier := &fakeNotifier{ch: make(chan [2]string, 1)}
	srv := newTestServer(provider, notifier)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/box/callback?state=enc-state&code=auth-code")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Box connected")
	assert.Equal(t, "enc-state", provider.state)
	assert.Equal(t, "auth-code", provider.code)

	select {
	case got := <-notifier.ch:
		assert.Equal(t, [2]string{"42", "Box"}, got)
	case <-time.After(time.Second):
		t.Fatal("notifier was not called")
	}
}

func TestCallbackUnknownProvider(t *testing.T) {
	srv := newTestServer(&fakeProvider{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/nope/callback?state=s&code=c")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCallbackMissingParams(t *testing.T) {
	srv := newTestServer(&fakeProvider{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/box/callback?code=c")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCallbackExchangeFailure(t *testing.T) {
	srv := newTestServer(&fakeProvider{err: assert.AnError}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/box/callback?state=s&code=c")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRootEndpoint(t *testing.T) {
	srv := newTestServer(&fakeProvider{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", nil, nil, log.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
