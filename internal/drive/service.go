package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// ErrNoStockFile is returned when a folder has no CSV or XLSX file.
var ErrNoStockFile = errors.New("no csv or xlsx file in drive folder")

type Service struct {
	srv *drive.Service
}

func NewService(ctx context.Context, credentialsJSON string) (*Service, error) {
	// Parse credentials from JSON
	config, err := google.JWTConfigFromJSON(
		[]byte(credentialsJSON),
		drive.DriveReadonlyScope,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account credentials: %w", err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}

	return &Service{srv: srv}, nil
}

type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
	Size         int64  `json:"size,string,omitempty"`
}

// IsStockFile reports whether the file can be read as a stock snapshot.
func (f *File) IsStockFile() bool {
	switch strings.ToLower(path.Ext(f.Name)) {
	case ".csv", ".xlsx":
		return true
	}
	return false
}

func (s *Service) ListFiles(ctx context.Context, folderID string) ([]*File, error) {
	var files []*File

	if folderID == "" {
		folderID = "root"
	}

	err := s.srv.Files.List().
		Context(ctx).
		Q(fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folderID))).
		Fields("nextPageToken, files(id, name, mimeType, modifiedTime, size)").
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				files = append(files, &File{
					ID:           f.Id,
					Name:         f.Name,
					MimeType:     f.MimeType,
					ModifiedTime: f.ModifiedTime,
					Size:         f.Size,
				})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve files: %w", err)
	}

	return files, nil
}

// LatestStockFile returns the most recently modified CSV or XLSX file in a
// folder. folder is either a Drive folder id or a slash separated path.
func (s *Service) LatestStockFile(ctx context.Context, folder string) (*File, error) {
	folderID := folder
	if strings.Contains(folder, "/") {
		id, err := s.FindFolderByPath(ctx, folder)
		if err != nil {
			return nil, err
		}
		folderID = id
	}

	files, err := s.ListFiles(ctx, folderID)
	if err != nil {
		return nil, err
	}
	latest := pickLatest(files)
	if latest == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoStockFile, folder)
	}
	return latest, nil
}

func (s *Service) DownloadFile(ctx context.Context, fileID string, w io.Writer) error {
	resp, err := s.srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("unable to download file: %w", err)
	}
	defer resp.Body.Close()

	_, err = io.Copy(w, resp.Body)
	return err
}

func (s *Service) FindFolderByPath(ctx context.Context, folderPath string) (string, error) {
	if folderPath == "" {
		return "root", nil
	}

	currentID := "root"
	for _, folder := range strings.Split(folderPath, "/") {
		if folder == "" {
			continue
		}

		result, err := s.srv.Files.List().
			Context(ctx).
			Q(fmt.Sprintf("'%s' in parents and name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false",
				escapeQuery(currentID), escapeQuery(folder))).
			Fields("files(id, name)").
			Do()
		if err != nil {
			return "", fmt.Errorf("error finding folder %s: %w", folder, err)
		}

		if len(result.Files) == 0 {
			return "", fmt.Errorf("folder not found: %s", folder)
		}

		currentID = result.Files[0].Id
	}

	return currentID, nil
}

// pickLatest orders by RFC 3339 modified time, which sorts lexically.
func pickLatest(files []*File) *File {
	candidates := make([]*File, 0, len(files))
	for _, f := range files {
		if f.IsStockFile() {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ModifiedTime > candidates[j].ModifiedTime
	})
	return candidates[0]
}

func escapeQuery(v string) string {
	return strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), "'", `\'`)
}
