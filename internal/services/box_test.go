package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodohq/dodobot/internal/config"
	"github.com/dodohq/dodobot/internal/tokens"
)

func testBox(t *testing.T, apiURL string) *Box {
	t.Helper()
	b := NewBox(config.OAuthApp{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:8000/box/callback",
	}, testStore(t), testFernetKey(t), log.New(io.Discard))
	b.apiBase = apiURL
	b.uploadBase = apiURL
	b.revokeURL = apiURL + "/revoke"

	seedToken(t, &b.authKeeper, "42", tokens.Data{
		AccessToken: "box-access",
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
	})
	return b
}

func TestBoxSearchFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer box-access", r.Header.Get("Authorization"))
		assert.Equal(t, "report", r.URL.Query().Get("query"))
		json.NewEncoder(w).Encode(map[string]any{
			"entries": []map[string]string{
				{"id": "111", "type": "file", "name": "report.pdf"},
			},
		})
	}))
	defer srv.Close()

	entries, err := testBox(t, srv.URL).SearchFiles(context.Background(), "42", "report", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.pdf", entries[0].Name)
	assert.Equal(t, "111", entries[0].ID)
}

func TestBoxCreateFolderDefaultsToRoot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Name   string            `json:"name"`
			Parent map[string]string `json:"parent"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "docs", payload.Name)
		assert.Equal(t, "0", payload.Parent["id"])
		json.NewEncoder(w).Encode(map[string]string{"id": "222", "type": "folder", "name": "docs"})
	}))
	defer srv.Close()

	folder, err := testBox(t, srv.URL).CreateFolder(context.Background(), "42", "docs", "")
	require.NoError(t, err)
	assert.Equal(t, "222", folder.ID)
}

func TestBoxUploadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/content", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Contains(t, r.MultipartForm.Value["attributes"][0], `"name":"notes.txt"`)

		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		content, _ := io.ReadAll(f)
		assert.Equal(t, "hello", string(content))

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"entries": []map[string]string{{"id": "333", "type": "file", "name": "notes.txt"}},
		})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	entry, err := testBox(t, srv.URL).UploadFile(context.Background(), "42", path, "", "")
	require.NoError(t, err)
	assert.Equal(t, "333", entry.ID)
}

func TestBoxDownloadLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://dl.example.com/file")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	link, err := testBox(t, srv.URL).DownloadLink(context.Background(), "42", "111")
	require.NoError(t, err)
	assert.Equal(t, "https://dl.example.com/file", link)
}

func TestBoxUnauthorizedMarksRevoked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	b := testBox(t, srv.URL)
	_, err := b.SearchFiles(context.Background(), "42", "q", 5)
	authErr, ok := AsAuthError(err)
	require.True(t, ok)
	assert.Equal(t, "Box", authErr.Service)

	rec, err := b.store.Get("42", "Box", "BoxService")
	require.NoError(t, err)
	assert.True(t, rec.IsRevoked)
}

func TestBoxAPIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "Item with the same name already exists"})
	}))
	defer srv.Close()

	_, err := testBox(t, srv.URL).CreateFolder(context.Background(), "42", "docs", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}
