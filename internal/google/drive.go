package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

var mimeTypes = map[string]string{
	".json": "application/json",
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".png":  "image/png",
	".pdf":  "application/pdf",
}

// Uploaded describes one file stored in Drive.
type Uploaded struct {
	Name string
	Link string
}

// DriveUploader stores report files in Drive under <root folder>/<YYYY-MM>.
type DriveUploader struct {
	service    *drive.Service
	logger     *slog.Logger
	rootFolder string
	now        func() time.Time
}

// NewDriveUploader creates a Drive uploader using an authorized HTTP client.
func NewDriveUploader(ctx context.Context, logger *slog.Logger, httpClient *http.Client, rootFolder string, opts ...option.ClientOption) (*DriveUploader, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &DriveUploader{service: service, logger: logger, rootFolder: rootFolder, now: time.Now}, nil
}

// Upload stores every existing file and returns the uploaded names and links.
// Missing files are logged and skipped.
func (u *DriveUploader) Upload(ctx context.Context, paths []string) ([]Uploaded, error) {
	rootID, err := u.folder(ctx, u.rootFolder, "")
	if err != nil {
		return nil, err
	}
	monthLabel := u.now().Format("2006-01")
	monthID, err := u.folder(ctx, monthLabel, rootID)
	if err != nil {
		return nil, err
	}

	var uploaded []Uploaded
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			u.logger.Warn("File not found, skipping.", "file", path, "error", err)
			continue
		}

		name := filepath.Base(path)
		mime, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]
		if !ok {
			mime = "application/octet-stream"
		}
		meta := &drive.File{Name: name, Parents: []string{monthID}, MimeType: mime}
		created, err := u.service.Files.Create(meta).Media(f).Fields("id, webViewLink").Context(ctx).Do()
		f.Close()
		if err != nil {
			return uploaded, fmt.Errorf("failed to upload %s: %w", name, err)
		}

		uploaded = append(uploaded, Uploaded{Name: name, Link: created.WebViewLink})
		u.logger.Info("Uploaded report file.", "file", name, "link", created.WebViewLink)
	}

	u.logger.Info("Uploaded files to Drive.", "count", len(uploaded), "folder", u.rootFolder+"/"+monthLabel)
	return uploaded, nil
}

// folder finds a folder by name under parent, creating it when missing.
func (u *DriveUploader) folder(ctx context.Context, name, parentID string) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escapeQuery(name), folderMimeType)
	if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	list, err := u.service.Files.List().Q(q).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to search drive folder %q: %w", name, err)
	}
	if len(list.Files) > 0 {
		u.logger.Debug("Found existing Drive folder.", "name", name, "id", list.Files[0].Id)
		return list.Files[0].Id, nil
	}

	meta := &drive.File{Name: name, MimeType: folderMimeType}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	created, err := u.service.Files.Create(meta).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create drive folder %q: %w", name, err)
	}
	u.logger.Info("Created Drive folder.", "name", name, "id", created.Id)
	return created.Id, nil
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
