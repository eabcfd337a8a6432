package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fernet/fernet-go"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dodohq/dodobot/internal/tokens"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

// Drive talks to Google Drive on behalf of authorized users.
type Drive struct {
	authKeeper
	http *http.Client
}

func NewDrive(clientID, clientSecret, redirectURI string, store *tokens.Store, key *fernet.Key, logger *log.Logger) *Drive {
	return &Drive{
		authKeeper: authKeeper{
			oauth: googleOAuthConfig(clientID, clientSecret, redirectURI,
				[]string{drive.DriveScope}),
			store:    store,
			key:      key,
			log:      logger.With("service", "gdrive"),
			platform: "Google",
			service:  "GoogleDriveService",
			display:  "Google Drive",
			command:  "/authorize_gdrive",
		},
		http: &http.Client{},
	}
}

func (g *Drive) AuthorizationURL(userID string) (string, error) {
	return g.authKeeper.AuthorizationURL(userID, googleAuthCodeOptions()...)
}

// DriveFile is a trimmed view of a Drive file for plugin rendering.
type DriveFile struct {
	ID          string
	Name        string
	MimeType    string
	ViewLink    string
	ContentLink string
}

func (g *Drive) RevokeAccess(ctx context.Context, userID string) error {
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

func (g *Drive) CreateFolder(ctx context.Context, userID, name, parentID string) (*DriveFile, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	meta := &drive.File{
		Name:     name,
		MimeType: driveFolderMimeType,
	}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	f, err := srv.Files.Create(meta).Fields("id", "name", "mimeType", "webViewLink").Context(ctx).Do()
	if err != nil {
		return nil, g.apiError(err, userID)
	}
	return fromDriveFile(f), nil
}

func (g *Drive) UploadFile(ctx context.Context, userID, localPath, name, parentID string) (*DriveFile, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return nil, err
	}

	fh, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	defer fh.Close()

	if name == "" {
		name = filepath.Base(localPath)
	}
	meta := &drive.File{Name: name}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}

	f, err := srv.Files.Create(meta).Media(fh).
		Fields("id", "name", "mimeType", "webViewLink", "webContentLink").Context(ctx).Do()
	if err != nil {
		return nil, g.apiError(err, userID)
	}
	return fromDriveFile(f), nil
}

func (g *Drive) DeleteFile(ctx context.Context, userID, fileID string) error {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return err
	}
	if err := srv.Files.Delete(fileID).Context(ctx).Do(); err != nil {
		return g.apiError(err, userID)
	}
	return nil
}

// ListFiles lists non-trashed children of a folder ("root" by default).
func (g *Drive) ListFiles(ctx context.Context, userID, folderID string, pageSize int) ([]DriveFile, error) {
	if folderID == "" {
		folderID = "root"
	}
	q := fmt.Sprintf("'%s' in parents and trashed = false", folderID)
	return g.query(ctx, userID, q, pageSize)
}

// SearchFiles searches by filename.
func (g *Drive) SearchFiles(ctx context.Context, userID, query string, maxResults int) ([]DriveFile, error) {
	q := fmt.Sprintf("name contains '%s' and trashed = false", escapeDriveQuery(query))
	return g.query(ctx, userID, q, maxResults)
}

// SearchContent searches full text, optionally narrowed to a MIME type
// (Docs, Sheets and Forms searches go through here).
func (g *Drive) SearchContent(ctx context.Context, userID, query, mimeType string, maxResults int) ([]DriveFile, error) {
	q := fmt.Sprintf("fullText contains '%s' and trashed = false", escapeDriveQuery(query))
	if mimeType != "" {
		q += fmt.Sprintf(" and mimeType = '%s'", mimeType)
	}
	return g.query(ctx, userID, q, maxResults)
}

func (g *Drive) query(ctx context.Context, userID, q string, pageSize int) ([]DriveFile, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = 10
	}

	list, err := srv.Files.List().Q(q).PageSize(int64(pageSize)).
		Fields("files(id, name, mimeType, webViewLink, webContentLink)").Context(ctx).Do()
	if err != nil {
		return nil, g.apiError(err, userID)
	}

	files := make([]DriveFile, 0, len(list.Files))
	for _, f := range list.Files {
		files = append(files, *fromDriveFile(f))
	}
	return files, nil
}

// MoveFile reparents a file onto the given folder.
func (g *Drive) MoveFile(ctx context.Context, userID, fileID, newParentID string) error {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return err
	}

	f, err := srv.Files.Get(fileID).Fields("parents").Context(ctx).Do()
	if err != nil {
		return g.apiError(err, userID)
	}

	call := srv.Files.Update(fileID, nil).AddParents(newParentID)
	for _, p := range f.Parents {
		call = call.RemoveParents(p)
	}
	if _, err := call.Context(ctx).Do(); err != nil {
		return g.apiError(err, userID)
	}
	return nil
}

// ShareFile grants a role on the file to the given email.
func (g *Drive) ShareFile(ctx context.Context, userID, fileID, email, role string) error {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return err
	}
	if role == "" {
		role = "reader"
	}

	perm := &drive.Permission{
		Type:         "user",
		Role:         role,
		EmailAddress: email,
	}
	if _, err := srv.Permissions.Create(fileID, perm).Context(ctx).Do(); err != nil {
		return g.apiError(err, userID)
	}
	return nil
}

// DownloadLink returns the direct content link when Drive exposes one,
// falling back to the web view link for native Google documents.
func (g *Drive) DownloadLink(ctx context.Context, userID, fileID string) (string, error) {
	srv, err := g.client(ctx, userID)
	if err != nil {
		return "", err
	}

	f, err := srv.Files.Get(fileID).Fields("webContentLink", "webViewLink", "name").Context(ctx).Do()
	if err != nil {
		return "", g.apiError(err, userID)
	}
	if f.WebContentLink != "" {
		return f.WebContentLink, nil
	}
	if f.WebViewLink != "" {
		return f.WebViewLink, nil
	}
	return "", fmt.Errorf("drive file %q exposes no link", f.Name)
}

// -- plumbing --

func (g *Drive) client(ctx context.Context, userID string) (*drive.Service, error) {
	token, err := g.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	srv, err := drive.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("build drive client: %w", err)
	}
	return srv, nil
}

func (g *Drive) apiError(err error, userID string) error {
	if gerr, ok := err.(*googleapi.Error); ok {
		if gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden {
			g.markRevoked(userID)
			return g.authError()
		}
		return fmt.Errorf("drive api request failed: %s", gerr.Message)
	}
	return fmt.Errorf("drive api request failed: %w", err)
}

func fromDriveFile(f *drive.File) *DriveFile {
	return &DriveFile{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		ViewLink:    f.WebViewLink,
		ContentLink: f.WebContentLink,
	}
}

// escapeDriveQuery escapes single quotes in user-supplied query text.
func escapeDriveQuery(q string) string {
	out := make([]rune, 0, len(q))
	for _, r := range q {
		if r == '\'' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
