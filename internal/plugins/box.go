package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/dodohq/dodobot/internal/services"
)

// RegisterBox wires the Box service's operations in as tools.
func RegisterBox(m *Manager, box *services.Box) {
	m.Register("box_create_folder",
		"Create a folder in the user's Box account.",
		params(map[string]any{
			"name":      strProp("Name of the new folder"),
			"parent_id": strProp("ID of the parent folder, 0 for the root"),
		}, "name"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			entry, err := box.CreateFolder(ctx, userID,
				stringArg(args, "name"), stringArgDefault(args, "parent_id", "0"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Created folder %q (id: %s)", entry.Name, entry.ID), nil
		})

	m.Register("box_search_files",
		"Search the user's Box account for files or folders by name.",
		params(map[string]any{
			"query": strProp("Search terms"),
			"limit": intProp("Maximum number of results, default 10"),
		}, "query"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			entries, err := box.SearchFiles(ctx, userID,
				stringArg(args, "query"), intArg(args, "limit", 10))
			if err != nil {
				return "", err
			}
			return formatBoxEntries(entries), nil
		})

	m.Register("box_upload_file",
		"Upload a local file to the user's Box account. Use the file path of an attachment the user sent.",
		params(map[string]any{
			"local_path": strProp("Path of the local file to upload"),
			"file_name":  strProp("Name to give the file in Box, defaults to the local name"),
			"folder_id":  strProp("ID of the destination folder, 0 for the root"),
		}, "local_path"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			entry, err := box.UploadFile(ctx, userID,
				stringArg(args, "local_path"), stringArg(args, "file_name"),
				stringArgDefault(args, "folder_id", "0"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Uploaded %q (id: %s)", entry.Name, entry.ID), nil
		})

	m.Register("box_delete_file",
		"Delete a file from the user's Box account.",
		params(map[string]any{
			"file_id": strProp("ID of the file to delete"),
		}, "file_id"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			if err := box.DeleteFile(ctx, userID, stringArg(args, "file_id")); err != nil {
				return "", err
			}
			return "File deleted.", nil
		})

	m.Register("box_download_link",
		"Get a direct download link for a Box file.",
		params(map[string]any{
			"file_id": strProp("ID of the file"),
		}, "file_id"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			return box.DownloadLink(ctx, userID, stringArg(args, "file_id"))
		})

	m.Register("box_view_link",
		"Get a shareable view link for a Box file.",
		params(map[string]any{
			"file_id": strProp("ID of the file"),
		}, "file_id"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			return box.ViewLink(ctx, userID, stringArg(args, "file_id"))
		})

	m.Register("box_share_file",
		"Invite someone to collaborate on a Box file by email.",
		params(map[string]any{
			"file_id": strProp("ID of the file to share"),
			"email":   strProp("Email address of the collaborator"),
			"role":    strProp("Collaboration role, viewer or editor, default viewer"),
		}, "file_id", "email"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			err := box.ShareFile(ctx, userID, stringArg(args, "file_id"),
				stringArg(args, "email"), stringArgDefault(args, "role", "viewer"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Shared with %s.", stringArg(args, "email")), nil
		})
}

func formatBoxEntries(entries []services.BoxEntry) string {
	if len(entries) == 0 {
		return "No matches found."
	}
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "- %s %q (id: %s)\n", e.Type, e.Name, e.ID)
	}
	return sb.String()
}
