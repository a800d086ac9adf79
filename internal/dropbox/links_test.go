package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goportfolio/internal/pkg/apiclient"
)

// fakeDropbox is an httptest Dropbox with call accounting for link endpoints.
type fakeDropbox struct {
	mu          sync.Mutex
	batchSizes  []int
	singleCalls int
	failBatch   func(first string) bool
	failSingle  func(path string) bool
	batchReply  func(path string) map[string]any
}

func (f *fakeDropbox) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/get_temporary_link_batch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Entries []struct {
				Path string `json:"path"`
			} `json:"entries"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		f.batchSizes = append(f.batchSizes, len(req.Entries))
		f.mu.Unlock()

		if f.failBatch != nil && f.failBatch(req.Entries[0].Path) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error_summary":"internal_error/"}`))
			return
		}

		entries := make([]map[string]any, len(req.Entries))
		for i, e := range req.Entries {
			if f.batchReply != nil {
				entries[i] = f.batchReply(e.Path)
				continue
			}
			entries[i] = map[string]any{".tag": "success", "link": "https://dl.example" + e.Path}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"entries": entries})
	})
	mux.HandleFunc("/files/get_temporary_link", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Path string `json:"path"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		f.mu.Lock()
		f.singleCalls++
		f.mu.Unlock()

		if f.failSingle != nil && f.failSingle(req.Path) {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error_summary":"path/not_found/"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"link": "https://dl.example" + req.Path})
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeDropbox) *Client {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	cfg := apiclient.DefaultConfig(ServiceName, server.URL)
	cfg.MaxRetries = 0
	cfg.CircuitBreaker = nil
	return NewClient(apiclient.New(server.Client(), cfg, nil))
}

func numberedPaths(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("/img/%02d.jpg", i)
	}
	return out
}

func TestResolveLinks_BatchesOf25(t *testing.T) {
	f := &fakeDropbox{}
	resolver := NewResolver(newTestClient(t, f), 1)

	links := resolver.ResolveLinks(context.Background(), numberedPaths(60))

	require.Len(t, links, 60)
	assert.Equal(t, []int{25, 25, 10}, f.batchSizes)
	assert.Equal(t, 0, f.singleCalls)
	assert.Equal(t, "/img/00.jpg", links[0].Path)
	assert.Equal(t, "https://dl.example/img/59.jpg", links[59].URL)
}

func TestResolveLinks_FailedBatchFallsBackToIndividualCalls(t *testing.T) {
	f := &fakeDropbox{
		failBatch: func(first string) bool { return first == "/img/25.jpg" },
	}
	resolver := NewResolver(newTestClient(t, f), 0)

	links := resolver.ResolveLinks(context.Background(), numberedPaths(60))

	require.Len(t, links, 60)
	sizes := append([]int(nil), f.batchSizes...)
	sort.Ints(sizes)
	assert.Equal(t, []int{10, 25, 25}, sizes, "exactly 3 batch calls")
	assert.Equal(t, 25, f.singleCalls, "second chunk resolved one path at a time")

	for i, link := range links {
		assert.Equal(t, fmt.Sprintf("/img/%02d.jpg", i), link.Path, "order preserved")
	}
}

func TestResolveLinks_IndividualFailuresAreOmitted(t *testing.T) {
	f := &fakeDropbox{
		failBatch:  func(string) bool { return true },
		failSingle: func(path string) bool { return path == "/img/01.jpg" },
	}
	resolver := NewResolver(newTestClient(t, f), 1)

	links := resolver.ResolveLinks(context.Background(), numberedPaths(3))

	require.Len(t, links, 2)
	assert.Equal(t, "/img/00.jpg", links[0].Path)
	assert.Equal(t, "/img/02.jpg", links[1].Path)
}

func TestResolveLinks_TaggedFailureEntries(t *testing.T) {
	f := &fakeDropbox{
		batchReply: func(path string) map[string]any {
			if path == "/img/01.jpg" {
				return map[string]any{".tag": "failure", "failure": map[string]any{".tag": "path"}}
			}
			return map[string]any{".tag": "success", "link": "https://dl.example" + path}
		},
	}
	resolver := NewResolver(newTestClient(t, f), 1)

	links := resolver.ResolveLinks(context.Background(), numberedPaths(3))

	require.Len(t, links, 2)
	assert.Equal(t, 0, f.singleCalls, "a tagged failure is not retried individually")
}

func TestResolveLinks_Empty(t *testing.T) {
	resolver := NewResolver(newTestClient(t, &fakeDropbox{}), 1)
	assert.Empty(t, resolver.ResolveLinks(context.Background(), nil))
}

func TestChunk(t *testing.T) {
	chunks := chunk(numberedPaths(51), 25)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 25)
	assert.Len(t, chunks[1], 25)
	assert.Len(t, chunks[2], 1)
}
