package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fernet/fernet-go"
	"golang.org/x/oauth2"

	"github.com/dodohq/dodobot/internal/config"
	"github.com/dodohq/dodobot/internal/tokens"
)

const (
	boxAPIBaseURL    = "https://api.box.com/2.0"
	boxUploadBaseURL = "https://upload.box.com/api/2.0"
	boxAuthURL       = "https://account.box.com/api/oauth2/authorize"
	boxTokenURL      = "https://api.box.com/oauth2/token"
	boxRevokeURL     = "https://api.box.com/oauth2/revoke"
)

// Box talks to the Box content API on behalf of authorized users.
type Box struct {
	authKeeper
	apiBase    string
	uploadBase string
	revokeURL  string
	http       *http.Client
}

func NewBox(app config.OAuthApp, store *tokens.Store, key *fernet.Key, logger *log.Logger) *Box {
	return &Box{
		authKeeper: authKeeper{
			oauth: &oauth2.Config{
				ClientID:     app.ClientID,
				ClientSecret: app.ClientSecret,
				RedirectURL:  app.RedirectURI,
				Endpoint: oauth2.Endpoint{
					AuthURL:  boxAuthURL,
					TokenURL: boxTokenURL,
				},
			},
			store:    store,
			key:      key,
			log:      logger.With("service", "box"),
			platform: "Box",
			service:  "BoxService",
			display:  "Box",
			command:  "/authorize_box",
		},
		apiBase:    boxAPIBaseURL,
		uploadBase: boxUploadBaseURL,
		revokeURL:  boxRevokeURL,
		http:       &http.Client{},
	}
}

// AuthorizationURL builds the Box consent URL.
func (b *Box) AuthorizationURL(userID string) (string, error) {
	return b.authKeeper.AuthorizationURL(userID)
}

// BoxEntry is one file or folder as Box reports it.
type BoxEntry struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// RevokeAccess invalidates the user's token at Box and forgets it.
func (b *Box) RevokeAccess(ctx context.Context, userID string) error {
	token, err := b.accessToken(ctx, userID)
	if err != nil {
		return err
	}

	form := url.Values{
		"client_id":     {b.oauth.ClientID},
		"client_secret": {b.oauth.ClientSecret},
		"token":         {token},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.revokeURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("box revoke request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("box revoke failed with status %d", resp.StatusCode)
	}

	if err := b.deleteToken(userID); err != nil {
		return err
	}
	b.log.Info("revoked access", "user", userID)
	return nil
}

// CreateFolder creates a folder under the given parent ("0" is root).
func (b *Box) CreateFolder(ctx context.Context, userID, name, parentID string) (*BoxEntry, error) {
	if parentID == "" {
		parentID = "0"
	}
	payload := map[string]any{
		"name":   name,
		"parent": map[string]string{"id": parentID},
	}

	var folder BoxEntry
	if err := b.doJSON(ctx, userID, http.MethodPost, b.apiBase+"/folders", payload, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

// SearchFiles runs a filename/content search limited to files.
func (b *Box) SearchFiles(ctx context.Context, userID, query string, limit int) ([]BoxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	u := fmt.Sprintf("%s/search?query=%s&limit=%d&type=file",
		b.apiBase, url.QueryEscape(query), limit)

	var result struct {
		Entries []BoxEntry `json:"entries"`
	}
	if err := b.doJSON(ctx, userID, http.MethodGet, u, nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

func (b *Box) DeleteFile(ctx context.Context, userID, fileID string) error {
	req, err := b.newRequest(ctx, userID, http.MethodDelete, b.apiBase+"/files/"+fileID, nil)
	if err != nil {
		return err
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("box delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return b.apiError(resp, userID)
	}
	return nil
}

// UploadFile sends a local file into the given folder ("0" is root).
func (b *Box) UploadFile(ctx context.Context, userID, localPath, fileName, folderID string) (*BoxEntry, error) {
	if folderID == "" {
		folderID = "0"
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()

	if fileName == "" {
		fileName = filepath.Base(localPath)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	attrs, _ := json.Marshal(map[string]any{
		"name":   fileName,
		"parent": map[string]string{"id": folderID},
	})
	if err := w.WriteField("attributes", string(attrs)); err != nil {
		return nil, err
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read upload file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := b.newRequest(ctx, userID, http.MethodPost, b.uploadBase+"/files/content", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("box upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, b.apiError(resp, userID)
	}

	// Box wraps the uploaded file in an entries array.
	var result struct {
		Entries []BoxEntry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("box upload returned no entries")
	}
	return &result.Entries[0], nil
}

// DownloadLink resolves the redirect target of the file content endpoint
// without following it.
func (b *Box) DownloadLink(ctx context.Context, userID, fileID string) (string, error) {
	req, err := b.newRequest(ctx, userID, http.MethodGet, b.apiBase+"/files/"+fileID+"/content", nil)
	if err != nil {
		return "", err
	}

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("box download link request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return "", b.apiError(resp, userID)
	}
	return resp.Header.Get("Location"), nil
}

// ViewLink creates (or returns) an open shared link for the file.
func (b *Box) ViewLink(ctx context.Context, userID, fileID string) (string, error) {
	payload := map[string]any{
		"shared_link": map[string]string{"access": "open"},
	}

	var result struct {
		SharedLink struct {
			URL string `json:"url"`
		} `json:"shared_link"`
	}
	if err := b.doJSON(ctx, userID, http.MethodPut, b.apiBase+"/files/"+fileID, payload, &result); err != nil {
		return "", err
	}
	if result.SharedLink.URL == "" {
		return "", fmt.Errorf("box shared link URL not present in response")
	}
	return result.SharedLink.URL, nil
}

// ShareFile adds a collaboration on the file for the given email.
func (b *Box) ShareFile(ctx context.Context, userID, fileID, email, role string) error {
	if role == "" {
		role = "viewer"
	}
	payload := map[string]any{
		"item":          map[string]string{"id": fileID, "type": "file"},
		"accessible_by": map[string]string{"type": "user", "login": email},
		"role":          role,
	}
	return b.doJSON(ctx, userID, http.MethodPost, b.apiBase+"/collaborations", payload, nil)
}

// -- plumbing --

func (b *Box) newRequest(ctx context.Context, userID, method, url string, body io.Reader) (*http.Request, error) {
	token, err := b.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (b *Box) doJSON(ctx context.Context, userID, method, url string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := b.newRequest(ctx, userID, method, url, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("box api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return b.apiError(resp, userID)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode box response: %w", err)
	}
	return nil
}

// apiError turns a non-2xx response into an error, marking the token
// revoked on authentication failures.
func (b *Box) apiError(resp *http.Response, userID string) error {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		b.markRevoked(userID)
		return b.authError()
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Message != "" {
		return fmt.Errorf("box api request failed: %s", payload.Message)
	}
	return fmt.Errorf("box api request failed with status %d", resp.StatusCode)
}
