// Package fetcher is the shared page download primitive used by every
// company-intelligence source. A fetch either yields the (size-capped) body
// or reports that the page is not available; it never returns an error.
package fetcher

import "context"

// Fetcher downloads a single page.
type Fetcher interface {
	// Fetch returns the response body and true on a 2xx response, or
	// ("", false) on any transport failure or non-2xx status.
	Fetch(ctx context.Context, url string) (string, bool)
}
