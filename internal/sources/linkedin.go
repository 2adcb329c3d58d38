package sources

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/axia-cli/internal/extract"
	"github.com/sells-group/axia-cli/internal/fetcher"
)

// LinkedInResult is the outcome of a LinkedIn company page fetch. URL is set
// for fetch_failed and success.
type LinkedInResult struct {
	Status Status            `json:"status"`
	URL    string            `json:"url,omitempty"`
	Text   string            `json:"-"`
	Facts  map[string]string `json:"facts,omitempty"`
}

// LinkedIn locates and reads a company's LinkedIn page.
type LinkedIn struct {
	search Searcher
	fetch  fetcher.Fetcher
	log    *zap.Logger
}

// NewLinkedIn creates a LinkedIn source.
func NewLinkedIn(s Searcher, f fetcher.Fetcher) *LinkedIn {
	return &LinkedIn{
		search: s,
		fetch:  f,
		log:    zap.L().With(zap.String("component", "source.linkedin")),
	}
}

// Fetch searches for the company page and extracts its facts.
func (l *LinkedIn) Fetch(ctx context.Context, companyName string) *LinkedInResult {
	results := l.search.Search(ctx, companyName+" site:linkedin.com/company", searchResults)
	pageURL := firstMatching(results, "linkedin.com/company")
	if pageURL == "" {
		l.log.Debug("linkedin page not found", zap.String("company", companyName))
		return &LinkedInResult{Status: StatusNotFound}
	}

	html, ok := fetchPage(ctx, l.fetch, pageURL)
	if !ok {
		l.log.Debug("linkedin fetch failed", zap.String("url", pageURL))
		return &LinkedInResult{Status: StatusFetchFailed, URL: pageURL}
	}

	text := extract.ToReadableText(html)
	return &LinkedInResult{
		Status: StatusSuccess,
		URL:    pageURL,
		Text:   text,
		Facts:  extract.ExtractLinkedInFacts(text),
	}
}
