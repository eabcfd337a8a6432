package oauthserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Provider completes an OAuth authorization-code exchange.
type Provider interface {
	HandleCallback(ctx context.Context, state, code string) (string, error)
	DisplayName() string
}

// Notifier tells the user, back in the chat, that their account is
// connected.
type Notifier interface {
	NotifyAuthorized(userID, service string)
}

// Server receives the providers' OAuth redirect callbacks.
type Server struct {
	providers map[string]Provider
	notifier  Notifier
	log       *log.Logger
	http      *http.Server
}

func New(addr string, providers map[string]Provider, notifier Notifier, logger *log.Logger) *Server {
	s := &Server{
		providers: providers,
		notifier:  notifier,
		log:       logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleRoot)
	r.Get("/{provider}/callback", s.handleCallback)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("oauth callback server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Dodobot authorization server")
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := s.providers[name]
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		http.Error(w, "missing state or code", http.StatusBadRequest)
		return
	}

	userID, err := provider.HandleCallback(r.Context(), state, code)
	if err != nil {
		s.log.Error("authorization callback failed", "provider", name, "err", err)
		http.Error(w, "authorization failed, please try again from the chat", http.StatusBadRequest)
		return
	}

	s.log.Info("authorization complete", "provider", name, "user", userID)
	if s.notifier != nil {
		go s.notifier.NotifyAuthorized(userID, provider.DisplayName())
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, successPage, provider.DisplayName())
}

const successPage = `<!DOCTYPE html>
<html>
<head><title>Authorization Complete</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h1>%s connected</h1>
<p>You can close this window and return to the chat.</p>
</body>
</html>
`
