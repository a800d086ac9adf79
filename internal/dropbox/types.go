// Package dropbox lists image folders on Dropbox and turns file paths into
// temporary download links.
package dropbox

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one item of a folder listing. Concrete types are FileEntry,
// FolderEntry and DeletedEntry.
type Entry interface {
	entryTag() string
}

// FileEntry is a listed file.
type FileEntry struct {
	Name        string `json:"name"`
	PathDisplay string `json:"path_display"`
	PathLower   string `json:"path_lower"`
	Size        int64  `json:"size"`
}

// FolderEntry is a listed folder.
type FolderEntry struct {
	Name        string `json:"name"`
	PathDisplay string `json:"path_display"`
	PathLower   string `json:"path_lower"`
}

// DeletedEntry is only returned when deleted entries are requested.
type DeletedEntry struct {
	Name        string `json:"name"`
	PathDisplay string `json:"path_display"`
}

func (FileEntry) entryTag() string    { return "file" }
func (FolderEntry) entryTag() string  { return "folder" }
func (DeletedEntry) entryTag() string { return "deleted" }

// taggedEntry decodes the ".tag" discriminated union.
type taggedEntry struct {
	Entry Entry
}

func (t *taggedEntry) UnmarshalJSON(data []byte) error {
	var head struct {
		Tag string `json:".tag"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Tag {
	case "file":
		var e FileEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		t.Entry = e
	case "folder":
		var e FolderEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		t.Entry = e
	case "deleted":
		var e DeletedEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		t.Entry = e
	default:
		// Tags added by the provider later are dropped from the page.
		t.Entry = nil
	}
	return nil
}

// ListFolderResult is one page of a folder listing.
type ListFolderResult struct {
	Entries []Entry
	Cursor  string
	HasMore bool
}

type listFolderResponse struct {
	Entries []taggedEntry `json:"entries"`
	Cursor  string        `json:"cursor"`
	HasMore bool          `json:"has_more"`
}

func (r *listFolderResponse) result() *ListFolderResult {
	out := &ListFolderResult{
		Entries: make([]Entry, 0, len(r.Entries)),
		Cursor:  r.Cursor,
		HasMore: r.HasMore,
	}
	for _, e := range r.Entries {
		if e.Entry != nil {
			out.Entries = append(out.Entries, e.Entry)
		}
	}
	return out
}

// LinkResult is one entry of a batch link response. Concrete types are
// LinkSuccess and LinkFailure.
type LinkResult interface {
	linkTag() string
}

// LinkSuccess carries a resolved temporary link.
type LinkSuccess struct {
	Link string `json:"link"`
}

// LinkFailure carries the provider's failure reason for one path.
type LinkFailure struct {
	Reason string
}

func (LinkSuccess) linkTag() string { return "success" }
func (LinkFailure) linkTag() string { return "failure" }

type taggedLink struct {
	Result LinkResult
}

func (t *taggedLink) UnmarshalJSON(data []byte) error {
	var head struct {
		Tag     string `json:".tag"`
		Link    string `json:"link"`
		Failure struct {
			Tag string `json:".tag"`
		} `json:"failure"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Tag {
	case "success":
		t.Result = LinkSuccess{Link: head.Link}
	case "failure":
		reason := head.Failure.Tag
		if reason == "" {
			reason = "unknown"
		}
		t.Result = LinkFailure{Reason: reason}
	default:
		t.Result = LinkFailure{Reason: fmt.Sprintf("unexpected tag %q", head.Tag)}
	}
	return nil
}

// ResolvedLink is a path paired with its temporary URL.
type ResolvedLink struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// ScanError records a folder or page that could not be listed.
type ScanError struct {
	Folder    string    `json:"folder"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Account is the subset of users/get_current_account used for diagnostics.
type Account struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      struct {
		DisplayName string `json:"display_name"`
	} `json:"name"`
}
