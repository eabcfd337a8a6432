package services

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
)

func TestFromGmailMessage(t *testing.T) {
	msg := &gmail.Message{
		Id:       "m1",
		Snippet:  "snippet text",
		LabelIds: []string{"INBOX", "UNREAD"},
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "alice@example.com"},
				{Name: "To", Value: "bob@example.com"},
				{Name: "Subject", Value: "Quarterly report"},
				{Name: "Date", Value: "Fri, 28 Aug 2026 10:00:00 +0000"},
			},
		},
	}

	email := fromGmailMessage(msg, false)
	assert.Equal(t, "m1", email.ID)
	assert.Equal(t, "alice@example.com", email.From)
	assert.Equal(t, "Quarterly report", email.Subject)
	assert.True(t, email.Unread)
	assert.Empty(t, email.Body)
}

func TestExtractBodyPrefersTextPlain(t *testing.T) {
	encode := func(s string) string {
		return base64.URLEncoding.EncodeToString([]byte(s))
	}
	payload := &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<b>html</b>")}},
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("plain body")}},
		},
	}
	assert.Equal(t, "plain body", extractBody(payload))
}

func TestExtractBodyUnpaddedData(t *testing.T) {
	// The API strips base64 padding from body data.
	payload := &gmail.MessagePart{
		MimeType: "text/plain",
		Body:     &gmail.MessagePartBody{Data: "aGkgdGhlcmU"},
	}
	assert.Equal(t, "hi there", extractBody(payload))
}

func TestDecodeBase64URL(t *testing.T) {
	for _, data := range []string{"aGkgdGhlcmU", "aGkgdGhlcmU="} {
		got, err := decodeBase64URL(data)
		require.NoError(t, err)
		assert.Equal(t, "hi there", string(got))
	}
	_, err := decodeBase64URL("not base64!!")
	assert.Error(t, err)
}

func TestBuildMIMEMessagePlain(t *testing.T) {
	raw, err := buildMIMEMessage("bob@example.com", "Hi", "hello there", nil)
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, "To: bob@example.com\r\n")
	assert.Contains(t, s, "Subject: Hi\r\n")
	assert.Contains(t, s, "hello there")
	assert.NotContains(t, s, "multipart/mixed")
}

func TestBuildMIMEMessageWithAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("attachment bytes"), 0o644))

	raw, err := buildMIMEMessage("bob@example.com", "Files", "see attached", []string{path})
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, "multipart/mixed")
	assert.Contains(t, s, `filename="data.txt"`)
	assert.Contains(t, s, base64.StdEncoding.EncodeToString([]byte("attachment bytes")))
}
