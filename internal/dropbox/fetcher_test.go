package dropbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goportfolio/internal/core"
	"goportfolio/internal/pkg/apiclient"
)

func TestFetcher_ResolvesListedImages(t *testing.T) {
	folders := &fakeFolders{pages: map[string][][]Entry{
		"/base": {{file("/base", "a.jpg"), file("/base", "b.jpg"), file("/base", "c.jpg")}},
	}}
	links := &fakeDropbox{
		failBatch:  func(string) bool { return true },
		failSingle: func(path string) bool { return path == "/base/b.jpg" },
	}
	fetcher := NewFetcher(NewLister(folders, true), NewResolver(newTestClient(t, links), 1))

	result, err := fetcher.Fetch(context.Background(), "/base")

	require.NoError(t, err)
	require.Len(t, result.Assets, 2)
	assert.Equal(t, core.ImageAsset{Name: "a.jpg", Path: "/base/a.jpg", URL: "https://dl.example/base/a.jpg", Size: 100}, result.Assets[0])
	assert.Equal(t, "/base/c.jpg", result.Assets[1].Path)
	assert.Equal(t, 1, result.Unresolved)
}

func TestFetcher_ListingFailure(t *testing.T) {
	folders := &fakeFolders{listErr: map[string]error{
		"/base": core.NewUpstreamError(ServiceName, http.StatusBadGateway, "boom", true, nil),
	}}
	fetcher := NewFetcher(NewLister(folders, true), NewResolver(newTestClient(t, &fakeDropbox{}), 1))

	result, err := fetcher.Fetch(context.Background(), "/base")

	require.Error(t, err)
	assert.Empty(t, result.Assets)
	assert.Len(t, result.Listing.Errors, 1)
}

func TestClient_ListFolderDecodesTaggedEntries(t *testing.T) {
	var requests []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		requests = append(requests, req)

		switch r.URL.Path {
		case "/files/list_folder":
			_, _ = w.Write([]byte(`{
				"entries": [
					{".tag": "folder", "name": "sub", "path_display": "/Sub", "path_lower": "/sub"},
					{".tag": "file", "name": "A.JPG", "path_display": "/Sub/A.JPG", "path_lower": "/sub/a.jpg", "size": 2048},
					{".tag": "something_new", "name": "x"}
				],
				"cursor": "c1",
				"has_more": true
			}`))
		case "/files/list_folder/continue":
			_, _ = w.Write([]byte(`{"entries": [{".tag": "deleted", "name": "old.png", "path_display": "/old.png"}], "cursor": "c2", "has_more": false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := apiclient.DefaultConfig(ServiceName, server.URL)
	client := NewClient(apiclient.New(server.Client(), cfg, nil))

	page, err := client.ListFolder(context.Background(), "/", true)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, FolderEntry{Name: "sub", PathDisplay: "/Sub", PathLower: "/sub"}, page.Entries[0])
	assert.Equal(t, FileEntry{Name: "A.JPG", PathDisplay: "/Sub/A.JPG", PathLower: "/sub/a.jpg", Size: 2048}, page.Entries[1])
	assert.True(t, page.HasMore)
	assert.Equal(t, "c1", page.Cursor)

	next, err := client.ListFolderContinue(context.Background(), page.Cursor)
	require.NoError(t, err)
	require.Len(t, next.Entries, 1)
	assert.IsType(t, DeletedEntry{}, next.Entries[0])
	assert.False(t, next.HasMore)

	require.Len(t, requests, 2)
	assert.Equal(t, "", requests[0]["path"], "root folder is sent as an empty path")
	assert.Equal(t, true, requests[0]["recursive"])
	assert.Equal(t, "c1", requests[1]["cursor"])
	assert.Equal(t, int64(2), client.Calls())
}
