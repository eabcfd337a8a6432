package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/dodohq/dodobot/internal/services"
)

// RegisterDrive wires the Google Drive service's operations in as tools.
func RegisterDrive(m *Manager, drv *services.Drive) {
	m.Register("gdrive_create_folder",
		"Create a folder in the user's Google Drive.",
		params(map[string]any{
			"name":      strProp("Name of the new folder"),
			"parent_id": strProp("ID of the parent folder, empty for My Drive"),
		}, "name"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			f, err := drv.CreateFolder(ctx, userID,
				stringArg(args, "name"), stringArg(args, "parent_id"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Created folder %q (id: %s)", f.Name, f.ID), nil
		})

	m.Register("gdrive_upload_file",
		"Upload a local file to the user's Google Drive. Use the file path of an attachment the user sent.",
		params(map[string]any{
			"local_path": strProp("Path of the local file to upload"),
			"name":       strProp("Name to give the file in Drive, defaults to the local name"),
			"parent_id":  strProp("ID of the destination folder, empty for My Drive"),
		}, "local_path"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			f, err := drv.UploadFile(ctx, userID, stringArg(args, "local_path"),
				stringArg(args, "name"), stringArg(args, "parent_id"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Uploaded %q (id: %s)\n%s", f.Name, f.ID, f.ViewLink), nil
		})

	m.Register("gdrive_delete_file",
		"Delete a file or folder from the user's Google Drive.",
		params(map[string]any{
			"file_id": strProp("ID of the file or folder to delete"),
		}, "file_id"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			if err := drv.DeleteFile(ctx, userID, stringArg(args, "file_id")); err != nil {
				return "", err
			}
			return "Deleted.", nil
		})

	m.Register("gdrive_list_files",
		"List the files inside a Google Drive folder.",
		params(map[string]any{
			"folder_id": strProp("ID of the folder, 'root' for My Drive"),
			"page_size": intProp("Maximum number of results, default 20"),
		}),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			files, err := drv.ListFiles(ctx, userID,
				stringArgDefault(args, "folder_id", "root"), intArg(args, "page_size", 20))
			if err != nil {
				return "", err
			}
			return formatDriveFiles(files), nil
		})

	m.Register("gdrive_search_files",
		"Search the user's Google Drive for files by name.",
		params(map[string]any{
			"query":       strProp("Text to match against file names"),
			"max_results": intProp("Maximum number of results, default 10"),
		}, "query"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			files, err := drv.SearchFiles(ctx, userID,
				stringArg(args, "query"), intArg(args, "max_results", 10))
			if err != nil {
				return "", err
			}
			return formatDriveFiles(files), nil
		})

	m.Register("gdrive_search_content",
		"Search the user's Google Drive for files whose contents match a query.",
		params(map[string]any{
			"query":       strProp("Full-text search terms"),
			"mime_type":   strProp("Restrict to a MIME type, e.g. application/pdf, empty for all"),
			"max_results": intProp("Maximum number of results, default 10"),
		}, "query"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			files, err := drv.SearchContent(ctx, userID, stringArg(args, "query"),
				stringArg(args, "mime_type"), intArg(args, "max_results", 10))
			if err != nil {
				return "", err
			}
			return formatDriveFiles(files), nil
		})

	m.Register("gdrive_move_file",
		"Move a Google Drive file into a different folder.",
		params(map[string]any{
			"file_id":       strProp("ID of the file to move"),
			"new_parent_id": strProp("ID of the destination folder"),
		}, "file_id", "new_parent_id"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			err := drv.MoveFile(ctx, userID,
				stringArg(args, "file_id"), stringArg(args, "new_parent_id"))
			if err != nil {
				return "", err
			}
			return "Moved.", nil
		})

	m.Register("gdrive_share_file",
		"Share a Google Drive file with someone by email.",
		params(map[string]any{
			"file_id": strProp("ID of the file to share"),
			"email":   strProp("Email address to share with"),
			"role":    strProp("Permission role, reader or writer, default reader"),
		}, "file_id", "email"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			err := drv.ShareFile(ctx, userID, stringArg(args, "file_id"),
				stringArg(args, "email"), stringArgDefault(args, "role", "reader"))
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Shared with %s.", stringArg(args, "email")), nil
		})

	m.Register("gdrive_download_link",
		"Get a download link for a Google Drive file.",
		params(map[string]any{
			"file_id": strProp("ID of the file"),
		}, "file_id"),
		func(ctx context.Context, userID string, args map[string]any) (string, error) {
			return drv.DownloadLink(ctx, userID, stringArg(args, "file_id"))
		})
}

func formatDriveFiles(files []services.DriveFile) string {
	if len(files) == 0 {
		return "No matches found."
	}
	var sb strings.Builder
	for _, f := range files {
		fmt.Fprintf(&sb, "- %q (id: %s, type: %s)", f.Name, f.ID, f.MimeType)
		if f.ViewLink != "" {
			fmt.Fprintf(&sb, " %s", f.ViewLink)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
