package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fernet/fernet-go"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dodohq/dodobot/internal/tokens"
)

// Gmail talks to the Gmail API on behalf of authorized users.
type Gmail struct {
	authKeeper
	http *http.Client
}

func NewGmail(clientID, clientSecret, redirectURI string, store *tokens.Store, key *fernet.Key, logger *log.Logger) *Gmail {
	return &Gmail{
		authKeeper: authKeeper{
			oauth: googleOAuthConfig(clientID, clientSecret, redirectURI,
				[]string{gmail.GmailModifyScope, gmail.GmailSendScope}),
			store:    store,
			key:      key,
			log:      logger.With("service", "gmail"),
			platform: "Google",
			service:  "GmailService",
			display:  "Gmail",
			command:  "/authorize_gmail",
		},
		http: &http.Client{},
	}
}

func (g *Gmail) AuthorizationURL(userID string) (string, error) {
	return g.authKeeper.AuthorizationURL(userID, googleAuthCodeOptions()...)
}

// Email is a trimmed view of one message for plugin rendering.
type Email struct {
	ID      string
	From    string
	To      string
	Subject string
	Date    string
	Snippet string
	Body    string
	Unread  bool
}

func (g *Gmail) RevokeAccess(ctx context.Context, userID string) error {
	token, err := g.accessToken(ctx, userID)
	if err != nil {
		return err
	}
	if err := googleRevoke(ctx, g.http, token); err != nil {
		return err
	}
	if err := g.deleteToken(userID); err != nil {
		return err
	}
	g.log.Info("revoked access", "user", userID)
	return nil
}

// RecentEmails lists the newest messages in the inbox, optionally only
// unread ones.
func (g *Gmail) RecentEmails(ctx context.Context, userID string, maxResults int, unreadOnly bool) ([]Email, error) {
	query := "in:inbox"
	if unreadOnly {
		query += " is:unread"
	}
	return g.SearchEmails(ctx, userID, query, maxResults)
}

// SearchEmails runs a Gmail search query and hydrates the matches.
func (g *Gmail) SearchEmails(ctx context.Context, userID, query string, maxResults int) ([]Email, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	list, err := srv.Users.Messages.List("me").Q(query).MaxResults(int64(maxResults)).Context(ctx).Do()
	if err != nil {
		return nil, g.apiError(err, userID)
	}

	emails := make([]Email, 0, len(list.Messages))
	for _, m := range list.Messages {
		msg, err := srv.Users.Messages.Get("me", m.Id).Format("metadata").
			MetadataHeaders("From", "To", "Subject", "Date").Context(ctx).Do()
		if err != nil {
			return nil, g.apiError(err, userID)
		}
		emails = append(emails, fromGmailMessage(msg, false))
	}
	return emails, nil
}

// GetEmail fetches one message in full, including its body text.
func (g *Gmail) GetEmail(ctx context.Context, userID, messageID string) (*Email, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, g.apiError(err, userID)
	}
	email := fromGmailMessage(msg, true)
	return &email, nil
}

// SaveAttachments downloads every attachment of a message into outDir
// and returns the local paths.
func (g *Gmail) SaveAttachments(ctx context.Context, userID, messageID, outDir string) ([]string, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, g.apiError(err, userID)
	}

	var paths []string
	for _, part := range msg.Payload.Parts {
		if part.Filename == "" || part.Body == nil || part.Body.AttachmentId == "" {
			continue
		}
		att, err := srv.Users.Messages.Attachments.Get("me", messageID, part.Body.AttachmentId).Context(ctx).Do()
		if err != nil {
			return nil, g.apiError(err, userID)
		}
		data, err := decodeBase64URL(att.Data)
		if err != nil {
			return nil, fmt.Errorf("decode attachment data: %w", err)
		}
		path := filepath.Join(outDir, part.Filename)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write attachment: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// SendEmail builds an RFC 2822 message (optionally with attachments)
// and sends it as the user.
func (g *Gmail) SendEmail(ctx context.Context, userID, to, subject, body string, attachmentPaths []string) error {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return err
	}

	raw, err := buildMIMEMessage(to, subject, body, attachmentPaths)
	if err != nil {
		return err
	}

	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if _, err := srv.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return g.apiError(err, userID)
	}
	g.log.Info("sent email", "user", userID, "to", to)
	return nil
}

// MarkAsRead removes the UNREAD label from a message.
func (g *Gmail) MarkAsRead(ctx context.Context, userID, messageID string) error {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return err
	}

	mod := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{"UNREAD"}}
	if _, err := srv.Users.Messages.Modify("me", messageID, mod).Context(ctx).Do(); err != nil {
		return g.apiError(err, userID)
	}
	return nil
}

// -- plumbing --

func (g *Gmail) client(ctx context.Context, userID string) (*gmail.Service, error) {
	token, err := g.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	srv, err := gmail.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("build gmail client: %w", err)
	}
	return srv, nil
}

func (g *Gmail) apiError(err error, userID string) error {
	if gerr, ok := err.(*googleapi.Error); ok {
		if gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden {
			g.markRevoked(userID)
			return g.authError()
		}
		return fmt.Errorf("gmail api request failed: %s", gerr.Message)
	}
	return fmt.Errorf("gmail api request failed: %w", err)
}

func fromGmailMessage(msg *gmail.Message, withBody bool) Email {
	email := Email{
		ID:      msg.Id,
		Snippet: msg.Snippet,
	}
	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			email.Unread = true
		}
	}
	if msg.Payload == nil {
		return email
	}
	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "From":
			email.From = h.Value
		case "To":
			email.To = h.Value
		case "Subject":
			email.Subject = h.Value
		case "Date":
			email.Date = h.Value
		}
	}
	if withBody {
		email.Body = extractBody(msg.Payload)
	}
	return email
}

// extractBody walks the MIME tree for the first text/plain part,
// falling back to the top-level body.
func extractBody(payload *gmail.MessagePart) string {
	if payload.MimeType == "text/plain" && payload.Body != nil && payload.Body.Data != "" {
		if data, err := decodeBase64URL(payload.Body.Data); err == nil {
			return string(data)
		}
	}
	for _, part := range payload.Parts {
		if body := extractBody(part); body != "" {
			return body
		}
	}
	if payload.Body != nil && payload.Body.Data != "" {
		if data, err := decodeBase64URL(payload.Body.Data); err == nil {
			return string(data)
		}
	}
	return ""
}

// decodeBase64URL accepts the Gmail API's base64url payloads, which
// come without padding.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

func buildMIMEMessage(to, subject, body string, attachmentPaths []string) ([]byte, error) {
	var sb strings.Builder

	if len(attachmentPaths) == 0 {
		sb.WriteString("To: " + to + "\r\n")
		sb.WriteString("Subject: " + subject + "\r\n")
		sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		sb.WriteString("\r\n")
		sb.WriteString(body)
		return []byte(sb.String()), nil
	}

	const boundary = "dodobot-mail-boundary"
	sb.WriteString("To: " + to + "\r\n")
	sb.WriteString("Subject: " + subject + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: multipart/mixed; boundary=" + boundary + "\r\n\r\n")

	sb.WriteString("--" + boundary + "\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	sb.WriteString(body + "\r\n")

	for _, path := range attachmentPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		name := filepath.Base(path)
		ctype := mime.TypeByExtension(filepath.Ext(name))
		if ctype == "" {
			ctype = "application/octet-stream"
		}

		sb.WriteString("--" + boundary + "\r\n")
		sb.WriteString("Content-Type: " + ctype + "\r\n")
		sb.WriteString("Content-Transfer-Encoding: base64\r\n")
		sb.WriteString("Content-Disposition: attachment; filename=\"" + name + "\"\r\n\r\n")
		sb.WriteString(base64.StdEncoding.EncodeToString(data) + "\r\n")
	}
	sb.WriteString("--" + boundary + "--")

	return []byte(sb.String()), nil
}
