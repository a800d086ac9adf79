package dropbox

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"goportfolio/internal/core"
	"goportfolio/internal/observability"
)

// folderAPI is the listing subset of Client.
type folderAPI interface {
	ListFolder(ctx context.Context, path string, recursive bool) (*ListFolderResult, error)
	ListFolderContinue(ctx context.Context, cursor string) (*ListFolderResult, error)
}

// Listing is the outcome of scanning one root folder. Errors holds the folders
// and pages that were skipped; Files holds everything that was listed.
type Listing struct {
	Files          []core.FileRef `json:"files"`
	Errors         []ScanError    `json:"errors"`
	FoldersScanned int            `json:"folders_scanned"`
	// Extensions counts every listed file by lowercase extension, images or not.
	Extensions map[string]int `json:"extensions"`
}

// Lister enumerates image files below a folder.
type Lister struct {
	api       folderAPI
	recursive bool
	now       func() time.Time
}

// NewLister creates a Lister. In recursive mode each folder tree is listed with a
// single paginated call; otherwise subfolders are walked with a work stack.
func NewLister(api folderAPI, recursive bool) *Lister {
	return &Lister{api: api, recursive: recursive, now: time.Now}
}

// ListImages scans folder and returns the image files found.
// Folder and page failures are recorded in the listing and do not stop the scan.
// An error is returned only when the credentials were rejected, or when the root
// folder could not be listed and nothing was found.
func (l *Lister) ListImages(ctx context.Context, folder string) (*Listing, error) {
	listing := &Listing{Extensions: make(map[string]int)}
	seen := make(map[string]struct{})

	stack := []string{folder}
	var rootErr error

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return listing, err
		}

		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		subfolders, err := l.scanFolder(ctx, current, listing, seen)
		if err != nil {
			if isAuthFailure(err) {
				return listing, err
			}
			if current == folder {
				rootErr = err
			}
		}
		if !l.recursive {
			stack = append(stack, subfolders...)
		}
	}

	if rootErr != nil && len(listing.Files) == 0 {
		return listing, core.NewUpstreamListError(folder, rootErr)
	}
	return listing, nil
}

// scanFolder lists one folder, following pagination sequentially.
// Files are appended to listing; subfolders are returned for the work stack.
func (l *Lister) scanFolder(ctx context.Context, folder string, listing *Listing, seen map[string]struct{}) ([]string, error) {
	listing.FoldersScanned++

	page, err := l.api.ListFolder(ctx, folder, l.recursive)
	if err != nil {
		l.recordError(listing, folder, err)
		return nil, err
	}

	var subfolders []string
	for {
		for _, entry := range page.Entries {
			switch e := entry.(type) {
			case FileEntry:
				l.addFile(listing, seen, e)
			case FolderEntry:
				if e.PathDisplay != folder {
					subfolders = append(subfolders, e.PathDisplay)
				}
			case DeletedEntry:
			}
		}

		if !page.HasMore || page.Cursor == "" {
			return subfolders, nil
		}

		page, err = l.api.ListFolderContinue(ctx, page.Cursor)
		if err != nil {
			// Keep what the earlier pages produced.
			l.recordError(listing, folder, err)
			return subfolders, err
		}
	}
}

func (l *Lister) addFile(listing *Listing, seen map[string]struct{}, e FileEntry) {
	ext := strings.ToLower(path.Ext(e.Name))
	listing.Extensions[ext]++

	if !core.IsImageName(e.Name) {
		return
	}

	key := e.PathLower
	if key == "" {
		key = strings.ToLower(e.PathDisplay)
	}
	if _, dup := seen[key]; dup {
		return
	}
	seen[key] = struct{}{}

	listing.Files = append(listing.Files, core.FileRef{
		Name: e.Name,
		Path: e.PathDisplay,
		Size: e.Size,
	})
}

func (l *Lister) recordError(listing *Listing, folder string, err error) {
	scanErr := ScanError{
		Folder:    folder,
		Message:   err.Error(),
		Timestamp: l.now().UTC(),
	}
	listing.Errors = append(listing.Errors, scanErr)
	observability.ObserveScanError("list")
	slog.Error("folder scan failed",
		"folder", scanErr.Folder,
		"error", scanErr.Message,
		"timestamp", scanErr.Timestamp,
	)
}

func isAuthFailure(err error) bool {
	return core.IsType(err, core.ErrorTypeUpstreamAuth) || core.IsType(err, core.ErrorTypeCredential)
}
