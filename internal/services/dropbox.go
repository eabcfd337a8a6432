package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fernet/fernet-go"
	"golang.org/x/oauth2"

	"github.com/dodohq/dodobot/internal/config"
	"github.com/dodohq/dodobot/internal/tokens"
)

const (
	dropboxAPIBaseURL     = "https://api.dropboxapi.com/2"
	dropboxContentBaseURL = "https://content.dropboxapi.com/2"
	dropboxAuthURL        = "https://www.dropbox.com/oauth2/authorize"
	dropboxTokenURL       = "https://api.dropboxapi.com/oauth2/token"
)

// Dropbox talks to the Dropbox RPC and content APIs on behalf of
// authorized users. All RPC endpoints are POST with JSON bodies.
type Dropbox struct {
	authKeeper
	apiBase     string
	contentBase string
	http        *http.Client
}

func NewDropbox(app config.OAuthApp, store *tokens.Store, key *fernet.Key, logger *log.Logger) *Dropbox {
	return &Dropbox{
		authKeeper: authKeeper{
			oauth: &oauth2.Config{
				ClientID:     app.ClientID,
				ClientSecret: app.ClientSecret,
				RedirectURL:  app.RedirectURI,
				Endpoint: oauth2.Endpoint{
					AuthURL:  dropboxAuthURL,
					TokenURL: dropboxTokenURL,
				},
			},
			store:    store,
			key:      key,
			log:      logger.With("service", "dropbox"),
			platform: "Dropbox",
			service:  "DropboxService",
			display:  "Dropbox",
			command:  "/authorize_dropbox",
		},
		apiBase:     dropboxAPIBaseURL,
		contentBase: dropboxContentBaseURL,
		http:        &http.Client{},
	}
}

// AuthorizationURL asks Dropbox for offline access so a refresh token
// is issued alongside the short-lived access token.
func (d *Dropbox) AuthorizationURL(userID string) (string, error) {
	return d.authKeeper.AuthorizationURL(userID,
		oauth2.SetAuthURLParam("token_access_type", "offline"))
}

// DropboxEntry is one file or folder from a list or search response.
type DropboxEntry struct {
	Tag  string `json:".tag"`
	Name string `json:"name"`
	Path string `json:"path_display"`
	ID   string `json:"id"`
}

// RevokeAccess invalidates the user's token at Dropbox and forgets it.
func (d *Dropbox) RevokeAccess(ctx context.Context, userID string) error {
	if err := d.rpc(ctx, userID, "/auth/token/revoke", nil, nil); err != nil {
		return err
	}
	if err := d.deleteToken(userID); err != nil {
		return err
	}
	d.log.Info("revoked access", "user", userID)
	return nil
}

// ListFolder lists the immediate contents of a folder ("" is root).
func (d *Dropbox) ListFolder(ctx context.Context, userID, path string) ([]DropboxEntry, error) {
	payload := map[string]any{
		"path":      path,
		"recursive": false,
	}

	var result struct {
		Entries []DropboxEntry `json:"entries"`
	}
	if err := d.rpc(ctx, userID, "/files/list_folder", payload, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// SearchFiles searches filenames and content under the given path.
func (d *Dropbox) SearchFiles(ctx context.Context, userID, query, path string, maxResults int) ([]DropboxEntry, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	payload := map[string]any{
		"query":       query,
		"path":        path,
		"max_results": maxResults,
		"mode":        map[string]string{".tag": "filename_and_content"},
	}

	var result struct {
		Matches []struct {
			Metadata struct {
				Metadata DropboxEntry `json:"metadata"`
			} `json:"metadata"`
		} `json:"matches"`
	}
	if err := d.rpc(ctx, userID, "/files/search_v2", payload, &result); err != nil {
		return nil, err
	}

	entries := make([]DropboxEntry, 0, len(result.Matches))
	for _, m := range result.Matches {
		entries = append(entries, m.Metadata.Metadata)
	}
	return entries, nil
}

// CreateFolder creates a folder at path. An existing folder is not an
// error.
func (d *Dropbox) CreateFolder(ctx context.Context, userID, path string) (*DropboxEntry, error) {
	path = normalizeDropboxPath(path)
	payload := map[string]any{
		"path":       path,
		"autorename": false,
	}

	var result struct {
		Metadata DropboxEntry `json:"metadata"`
	}
	err := d.rpc(ctx, userID, "/files/create_folder_v2", payload, &result)
	if err != nil {
		if isDropboxConflict(err) {
			d.log.Info("folder already exists", "path", path)
			return &DropboxEntry{Tag: "folder", Name: strings.TrimPrefix(path, "/"), Path: path}, nil
		}
		return nil, err
	}
	return &result.Metadata, nil
}

// UploadFile stores a local file at the given Dropbox path, overwriting
// any previous revision.
func (d *Dropbox) UploadFile(ctx context.Context, userID, localPath, dropboxPath string) (*DropboxEntry, error) {
	token, err := d.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("read upload file: %w", err)
	}

	arg, _ := json.Marshal(map[string]any{
		"path":       normalizeDropboxPath(dropboxPath),
		"mode":       "overwrite",
		"autorename": true,
		"mute":       false,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.contentBase+"/files/upload", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Dropbox-API-Arg", string(arg))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dropbox upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, d.apiError(resp, userID)
	}

	var entry DropboxEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &entry, nil
}

func (d *Dropbox) DeleteFile(ctx context.Context, userID, path string) error {
	payload := map[string]any{"path": normalizeDropboxPath(path)}
	return d.rpc(ctx, userID, "/files/delete_v2", payload, nil)
}

// TemporaryLink returns a short-lived direct download URL.
func (d *Dropbox) TemporaryLink(ctx context.Context, userID, path string) (string, error) {
	path = normalizeDropboxPath(path)
	payload := map[string]any{"path": path}

	var result struct {
		Link string `json:"link"`
	}
	if err := d.rpc(ctx, userID, "/files/get_temporary_link", payload, &result); err != nil {
		return "", err
	}
	if result.Link == "" {
		return "", fmt.Errorf("dropbox temporary link not present in response")
	}
	return result.Link, nil
}

// ShareFile creates a shared link for the path, returning the existing
// link when one was already created.
func (d *Dropbox) ShareFile(ctx context.Context, userID, path string) (string, error) {
	path = normalizeDropboxPath(path)
	payload := map[string]any{
		"path":     path,
		"settings": map[string]any{},
	}

	var result struct {
		URL string `json:"url"`
	}
	err := d.rpc(ctx, userID, "/sharing/create_shared_link_with_settings", payload, &result)
	if err != nil {
		if isDropboxSharedLinkExists(err) {
			return d.existingSharedLink(ctx, userID, path)
		}
		return "", err
	}
	return result.URL, nil
}

func (d *Dropbox) existingSharedLink(ctx context.Context, userID, path string) (string, error) {
	payload := map[string]any{"path": path}

	var result struct {
		Links []struct {
			URL string `json:"url"`
		} `json:"links"`
	}
	if err := d.rpc(ctx, userID, "/sharing/list_shared_links", payload, &result); err != nil {
		return "", err
	}
	if len(result.Links) == 0 {
		return "", fmt.Errorf("dropbox reported an existing shared link but listed none")
	}
	return result.Links[0].URL, nil
}

// -- plumbing --

// dropboxError carries the error_summary Dropbox returns on failures.
type dropboxError struct {
	Status  int
	Summary string
}

func (e *dropboxError) Error() string {
	return fmt.Sprintf("dropbox api request failed: %s", e.Summary)
}

func isDropboxConflict(err error) bool {
	de, ok := err.(*dropboxError)
	return ok && de.Status == http.StatusConflict
}

func isDropboxSharedLinkExists(err error) bool {
	de, ok := err.(*dropboxError)
	return ok && de.Status == http.StatusConflict && strings.Contains(de.Summary, "shared_link_already_exists")
}

// rpc performs one POST call against the Dropbox RPC API.
func (d *Dropbox) rpc(ctx context.Context, userID, endpoint string, payload, out any) error {
	token, err := d.accessToken(ctx, userID)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiBase+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("dropbox api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return d.apiError(resp, userID)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode dropbox response: %w", err)
	}
	return nil
}

func (d *Dropbox) apiError(resp *http.Response, userID string) error {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		d.markRevoked(userID)
		return d.authError()
	}

	raw, _ := io.ReadAll(resp.Body)
	var payload struct {
		ErrorSummary string `json:"error_summary"`
	}
	summary := "unknown error"
	if err := json.Unmarshal(raw, &payload); err == nil && payload.ErrorSummary != "" {
		summary = payload.ErrorSummary
	} else if len(raw) > 0 {
		summary = string(raw)
		if len(summary) > 200 {
			summary = summary[:200]
		}
	}
	return &dropboxError{Status: resp.StatusCode, Summary: summary}
}

// normalizeDropboxPath ensures a leading slash unless the caller passed
// an id: reference.
func normalizeDropboxPath(path string) string {
	if path == "" || strings.HasPrefix(path, "id:") || strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}
