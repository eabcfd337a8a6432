package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	tele "gopkg.in/telebot.v3"
)

// Provider is the slice of a cloud service the chat surface needs:
// starting and tearing down the OAuth connection.
type Provider interface {
	AuthorizationURL(userID string) (string, error)
	RevokeAccess(ctx context.Context, userID string) error
	Connected(userID string) bool
	DisplayName() string
}

// Agent handles free-form messages.
type Agent interface {
	Run(ctx context.Context, userID, text string, filePaths []string) ([]string, error)
	Forget(userID string)
}

type Config struct {
	Token      string
	ScratchDir string
}

// providerOrder fixes the listing order in /start and /status.
var providerOrder = []string{"box", "dropbox", "gdrive", "gmail", "gcalendar"}

type Bot struct {
	api       *tele.Bot
	agent     Agent
	providers map[string]Provider
	cfg       Config
	log       *log.Logger
}

func New(cfg Config, agent Agent, providers map[string]Provider, logger *log.Logger) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	bot := &Bot{api: b, agent: agent, providers: providers, cfg: cfg, log: logger}
	bot.register()
	return bot, nil
}

func (b *Bot) Start() {
	b.log.Info("bot started", "username", b.api.Me.Username)
	b.api.Start()
}

func (b *Bot) Stop() {
	b.api.Stop()
}

func (b *Bot) register() {
	b.api.Handle("/start", b.handleStart)
	b.api.Handle("/ping", b.handlePing)
	b.api.Handle("/status", b.handleStatus)
	b.api.Handle("/reset", b.handleReset)

	for name, p := range b.providers {
		name, p := name, p
		b.api.Handle("/authorize_"+name, func(c tele.Context) error {
			return b.handleAuthorize(c, p)
		})
		b.api.Handle("/revoke_"+name, func(c tele.Context) error {
			return b.handleRevoke(c, p)
		})
	}

	b.api.Handle(tele.OnText, b.handleText)
	b.api.Handle(tele.OnDocument, b.handleDocument)
	b.api.Handle(tele.OnPhoto, b.handlePhoto)
}

func (b *Bot) handleStart(c tele.Context) error {
	var sb strings.Builder
	sb.WriteString("Hi, I'm Dodobot. I manage your cloud services for you: just tell me what you need.\n\nConnect a service first:\n")
	for _, name := range providerOrder {
		if p, ok := b.providers[name]; ok {
			fmt.Fprintf(&sb, "/authorize_%s - connect %s\n", name, p.DisplayName())
		}
	}
	sb.WriteString("\n/status shows what's connected, /revoke_<service> disconnects one.")
	return c.Send(sb.String())
}

func (b *Bot) handlePing(c tele.Context) error {
	if msg := c.Message(); msg != nil && msg.Payload != "" {
		return c.Send(fmt.Sprintf("Pong! Your argument was %s", msg.Payload))
	}
	return c.Send("Pong!")
}

func (b *Bot) handleStatus(c tele.Context) error {
	userID := senderID(c)
	var sb strings.Builder
	sb.WriteString("Connected services:\n")
	for _, name := range providerOrder {
		p, ok := b.providers[name]
		if !ok {
			continue
		}
		mark := "not connected"
		if p.Connected(userID) {
			mark = "connected"
		}
		fmt.Fprintf(&sb, "- %s: %s\n", p.DisplayName(), mark)
	}
	return c.Send(sb.String())
}

func (b *Bot) handleReset(c tele.Context) error {
	b.agent.Forget(senderID(c))
	return c.Send("Conversation cleared.")
}

func (b *Bot) handleAuthorize(c tele.Context, p Provider) error {
	url, err := p.AuthorizationURL(senderID(c))
	if err != nil {
		b.log.Error("could not build authorization URL", "service", p.DisplayName(), "err", err)
		return c.Send(fmt.Sprintf("%s authorization is not available right now.", p.DisplayName()))
	}
	return c.Send(fmt.Sprintf("Authorize %s by opening this link:\n%s", p.DisplayName(), url))
}

func (b *Bot) handleRevoke(c tele.Context, p Provider) error {
	ctx, cancel := handlerContext()
	defer cancel()

	if err := p.RevokeAccess(ctx, senderID(c)); err != nil {
		b.log.Warn("revoke failed", "service", p.DisplayName(), "err", err)
		return c.Send(fmt.Sprintf("You don't have an active %s connection.", p.DisplayName()))
	}
	return c.Send(fmt.Sprintf("%s access revoked.", p.DisplayName()))
}

func (b *Bot) handleText(c tele.Context) error {
	text := c.Text()
	if strings.HasPrefix(text, "/") {
		return c.Send("I don't know that command. Try /start.")
	}
	return b.converse(c, text, nil)
}

func (b *Bot) handleDocument(c tele.Context) error {
	doc := c.Message().Document
	path, err := b.stage(&doc.File, doc.FileName)
	if err != nil {
		b.log.Error("could not download document", "err", err)
		return c.Send("I couldn't download that file, try sending it again.")
	}
	return b.converse(c, c.Message().Caption, []string{path})
}

func (b *Bot) handlePhoto(c tele.Context) error {
	photo := c.Message().Photo
	path, err := b.stage(&photo.File, "photo.jpg")
	if err != nil {
		b.log.Error("could not download photo", "err", err)
		return c.Send("I couldn't download that photo, try sending it again.")
	}
	return b.converse(c, c.Message().Caption, []string{path})
}

// converse runs the agent and streams the chunked reply back. The first
// chunk replies to the user's message, the rest follow as plain sends.
func (b *Bot) converse(c tele.Context, text string, filePaths []string) error {
	if c.Sender() == nil || c.Sender().IsBot {
		return nil
	}
	if strings.TrimSpace(text) == "" && len(filePaths) > 0 {
		text = "I sent a file without saying what to do with it."
	}

	c.Notify(tele.Typing)

	ctx, cancel := handlerContext()
	defer cancel()

	chunks, err := b.agent.Run(ctx, senderID(c), text, filePaths)
	if err != nil {
		b.log.Error("agent failed", "err", err)
		return c.Send("Something went wrong handling that, please try again.")
	}

	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown}
	for i, chunk := range chunks {
		if chunk == "" {
			continue
		}
		var sendErr error
		if i == 0 {
			sendErr = c.Reply(chunk, opts)
		} else {
			sendErr = c.Send(chunk, opts)
		}
		if sendErr != nil {
			// Markdown that Telegram rejects still reaches the user as
			// plain text.
			if i == 0 {
				sendErr = c.Reply(chunk)
			} else {
				sendErr = c.Send(chunk)
			}
		}
		if sendErr != nil {
			return sendErr
		}
	}
	return nil
}

// stage downloads an attachment into the scratch directory under a
// collision-free name, keeping the extension for upload tools.
func (b *Bot) stage(file *tele.File, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(filepath.Base(name), ext)
	if base == "" || base == "." {
		base = "attachment"
	}
	path := filepath.Join(b.cfg.ScratchDir, fmt.Sprintf("%s-%s%s", base, uuid.NewString()[:8], ext))
	if err := b.api.Download(file, path); err != nil {
		return "", err
	}
	return path, nil
}

// NotifyAuthorized DMs a user that their OAuth flow completed. It is
// called from the callback server goroutine.
func (b *Bot) NotifyAuthorized(userID, service string) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		b.log.Warn("cannot notify, bad user id", "user", userID)
		return
	}
	_, err = b.api.Send(&tele.User{ID: id},
		fmt.Sprintf("Your %s account is connected. Ask me anything.", service))
	if err != nil {
		b.log.Warn("could not send authorization notice", "user", userID, "err", err)
	}
}

func senderID(c tele.Context) string {
	return strconv.FormatInt(c.Sender().ID, 10)
}

func handlerContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Minute)
}
