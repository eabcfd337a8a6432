package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/dodohq/dodobot/internal/services"
)

// RegisterGmail wires the Gmail service's operations in as tools.
// Attachments are saved under scratchDir so later tool calls can
// re-upload them elsewhere.
func RegisterGmail(m *Manager, gm *services.Gmail, scratchDir string) {
	m.Register("gmail_recent_emails",
		"List the most recent emails in the user's inbox.",
		params(map[string]any{
			"max_results": intProp("Maximum number of emails, default 5"),
			"unread_only": boolProp("Only include unread emails"),
		}),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			emails, err := gm.RecentEmails(ctx, userID,
				intArg(args, "max_results", 5), boolArg(args, "unread_only"))
			if err != nil {
				return "", err
			}
			return formatEmails(emails), nil
		})

	m.Register("gmail_search_emails",
		"Search the user's Gmail with a Gmail query, e.g. 'from:alice has:attachment'.",
		params(map[string]any{
			"query":       strProp("Gmail search query"),
			"max_results": intProp("Maximum number of emails, default 5"),
		}, "query"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			emails, err := gm.SearchEmails(ctx, userID,
				stringArg(args, "query"), intArg(args, "max_results", 5))
			if err != nil {
				return "", err
			}
			return formatEmails(emails), nil
		})

	m.Register("gmail_get_email",
		"Read the full body of one email by its ID.",
		params(map[string]any{
			"message_id": strProp("ID of the email"),
		}, "message_id"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			email, err := gm.GetEmail(ctx, userID, stringArg(args, "message_id"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("From: %s\nTo: %s\nDate: %s\nSubject: %s\n\n%s",
				email.From, email.To, email.Date, email.Subject, email.Body), nil
		})

	m.Register("gmail_save_attachments",
		"Download an email's attachments to local files that other tools can then use.",
		params(map[string]any{
			"message_id": strProp("ID of the email"),
		}, "message_id"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			paths, err := gm.SaveAttachments(ctx, userID,
				stringArg(args, "message_id"), scratchDir)
			if err != nil {
				return "", err
			}
			if len(paths) == 0 {
				return "That email has no attachments.", nil
			}
			return "Saved attachments:\n" + strings.Join(paths, "\n"), nil
		})

	m.Register("gmail_send_email",
		"Send an email from the user's Gmail account, optionally with local files attached.",
		params(map[string]any{
			"to":          strProp("Recipient email address"),
			"subject":     strProp("Subject line"),
			"body":        strProp("Plain text body"),
			"attachments": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Local file paths to attach",
			},
		}, "to", "subject", "body"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			err := gm.SendEmail(ctx, userID, stringArg(args, "to"),
				stringArg(args, "subject"), stringArg(args, "body"),
				stringSliceArg(args, "attachments"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Email sent to %s.", stringArg(args, "to")), nil
		})

	m.Register("gmail_mark_as_read",
		"Mark an email as read.",
		params(map[string]any{
			"message_id": strProp("ID of the email"),
		}, "message_id"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			if err := gm.MarkAsRead(ctx, userID, stringArg(args, "message_id")); err != nil {
				return "", err
			}
			return "Marked as read.", nil
		})
}

func formatEmails(emails []services.Email) string {
	if len(emails) == 0 {
		return "No emails found."
	}
	var sb strings.Builder
	for _, e := range emails {
		status := ""
		if e.Unread {
			status = " [unread]"
		}
		fmt.Fprintf(&sb, "- %s%s\n  From: %s | Date: %s | id: %s\n  %s\n",
			e.Subject, status, e.From, e.Date, e.ID, e.Snippet)
	}
	return sb.String()
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
