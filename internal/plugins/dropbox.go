package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/dodohq/dodobot/internal/services"
)

// RegisterDropbox wires the Dropbox service's operations in as tools.
func RegisterDropbox(m *Manager, dbx *services.Dropbox) {
	m.Register("dropbox_list_folder",
		"List the contents of a folder in the user's Dropbox.",
		params(map[string]any{
			"path": strProp("Folder path, empty string for the root"),
		}),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			entries, err := dbx.ListFolder(ctx, userID, stringArg(args, "path"))
			if err != nil {
				return "", err
			}
			return formatDropboxEntries(entries), nil
		})

	m.Register("dropbox_search_files",
		"Search the user's Dropbox for files or folders by name.",
		params(map[string]any{
			"query":       strProp("Search terms"),
			"path":        strProp("Folder path to search under, empty for everywhere"),
			"max_results": intProp("Maximum number of results, default 10"),
		}, "query"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			entries, err := dbx.SearchFiles(ctx, userID, stringArg(args, "query"),
				stringArg(args, "path"), intArg(args, "max_results", 10))
			if err != nil {
				return "", err
			}
			return formatDropboxEntries(entries), nil
		})

	m.Register("dropbox_create_folder",
		"Create a folder in the user's Dropbox.",
		params(map[string]any{
			"path": strProp("Full path of the new folder, e.g. /Documents/Reports"),
		}, "path"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			entry, err := dbx.CreateFolder(ctx, userID, stringArg(args, "path"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Folder ready at %s", entry.Path), nil
		})

	m.Register("dropbox_upload_file",
		"Upload a local file to the user's Dropbox. Use the file path of an attachment the user sent.",
		params(map[string]any{
			"local_path":   strProp("Path of the local file to upload"),
			"dropbox_path": strProp("Destination path in Dropbox, e.g. /report.pdf"),
		}, "local_path", "dropbox_path"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			entry, err := dbx.UploadFile(ctx, userID,
				stringArg(args, "local_path"), stringArg(args, "dropbox_path"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Uploaded to %s", entry.Path), nil
		})

	m.Register("dropbox_delete_file",
		"Delete a file or folder from the user's Dropbox.",
		params(map[string]any{
			"path": strProp("Path of the file or folder to delete"),
		}, "path"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			if err := dbx.DeleteFile(ctx, userID, stringArg(args, "path")); err != nil {
				return "", err
			}
			return "Deleted.", nil
		})

	m.Register("dropbox_download_link",
		"Get a temporary download link for a Dropbox file.",
		params(map[string]any{
			"path": strProp("Path of the file"),
		}, "path"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			return dbx.TemporaryLink(ctx, userID, stringArg(args, "path"))
		})

	m.Register("dropbox_share_file",
		"Create a shared link for a Dropbox file or folder.",
		params(map[string]any{
			"path": strProp("Path of the file or folder to share"),
		}, "path"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			return dbx.ShareFile(ctx, userID, stringArg(args, "path"))
		})
}

func formatDropboxEntries(entries []services.DropboxEntry) string {
	if len(entries) == 0 {
		return "No matches found."
	}
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "- %s %q at %s\n", e.Tag, e.Name, e.Path)
	}
	return sb.String()
}
