package sources

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/axia-cli/internal/extract"
	"github.com/sells-group/axia-cli/internal/fetcher"
)

// KununuTextLimit caps the stored employer-page text, in characters.
const KununuTextLimit = 10_000

// KununuResult is the outcome of a Kununu employer page fetch. Text is
// truncated to KununuTextLimit; Rating is "" when none was found.
type KununuResult struct {
	Status Status `json:"status"`
	URL    string `json:"url,omitempty"`
	Text   string `json:"-"`
	Rating string `json:"rating,omitempty"`
}

// Kununu locates and reads a company's Kununu page.
type Kununu struct {
	search Searcher
	fetch  fetcher.Fetcher
	log    *zap.Logger
}

// NewKununu creates a Kununu source.
func NewKununu(s Searcher, f fetcher.Fetcher) *Kununu {
	return &Kununu{
		search: s,
		fetch:  f,
		log:    zap.L().With(zap.String("component", "source.kununu")),
	}
}

// Fetch searches for the employer page and extracts its rating.
func (k *Kununu) Fetch(ctx context.Context, companyName string) *KununuResult {
	results := k.search.Search(ctx, companyName+" site:kununu.com", searchResults)
	pageURL := firstMatching(results, "kununu.com")
	if pageURL == "" {
		k.log.Debug("kununu page not found", zap.String("company", companyName))
		return &KununuResult{Status: StatusNotFound}
	}

	html, ok := fetchPage(ctx, k.fetch, pageURL)
	if !ok {
		k.log.Debug("kununu fetch failed", zap.String("url", pageURL))
		return &KununuResult{Status: StatusFetchFailed, URL: pageURL}
	}

	// The rating can sit anywhere on the page, so match before truncating.
	text := extract.ToReadableText(html)
	rating, _ := extract.ExtractRating(text)
	return &KununuResult{
		Status: StatusSuccess,
		URL:    pageURL,
		Text:   extract.Truncate(text, KununuTextLimit),
		Rating: rating,
	}
}
