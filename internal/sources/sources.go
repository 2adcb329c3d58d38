// Package sources implements the per-source strategies of a company
// intelligence fetch: website discovery, the company website with its
// subpages, the LinkedIn company page and the Kununu employer page.
//
// A source never returns an error for network-level failure. Each reports a
// Status instead, and the orchestrator keeps going with what it got.
package sources

import (
	"context"
	"strings"

	"github.com/sells-group/axia-cli/internal/fetcher"
	"github.com/sells-group/axia-cli/pkg/duckduckgo"
)

// Status tags the outcome of a source fetch.
type Status string

const (
	StatusNotFound    Status = "not_found"
	StatusFetchFailed Status = "fetch_failed"
	StatusSuccess     Status = "success"
)

// Searcher is the subset of the search client the sources need.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []duckduckgo.Result
}

// searchResults is how many hits each source lookup asks for.
const searchResults = 5

// fetchPage fetches url and treats an empty 2xx body as unavailable.
func fetchPage(ctx context.Context, f fetcher.Fetcher, url string) (string, bool) {
	body, ok := f.Fetch(ctx, url)
	if !ok || strings.TrimSpace(body) == "" {
		return "", false
	}
	return body, true
}

// firstMatching returns the first result URL containing marker.
func firstMatching(results []duckduckgo.Result, marker string) string {
	for _, r := range results {
		if strings.Contains(r.URL, marker) {
			return r.URL
		}
	}
	return ""
}
