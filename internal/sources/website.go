package sources

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/axia-cli/internal/extract"
	"github.com/sells-group/axia-cli/internal/fetcher"
)

// Website page names, in merge order.
const (
	PageHomepage  = "homepage"
	PageAbout     = "about"
	PageTeam      = "team"
	PageImpressum = "impressum"
	PageContact   = "contact"
	PageProducts  = "products"
)

// SubpageVariants lists the paths tried for each subpage, in order. The first
// variant that yields content wins.
var SubpageVariants = []struct {
	Name  string
	Paths []string
}{
	{PageAbout, []string{"/about", "/about-us", "/ueber-uns", "/unternehmen", "/company"}},
	{PageTeam, []string{"/team", "/about/team", "/ueber-uns/team", "/management"}},
	{PageImpressum, []string{"/impressum", "/imprint", "/legal"}},
	{PageContact, []string{"/contact", "/kontakt"}},
	{PageProducts, []string{"/products", "/produkte", "/services", "/leistungen"}},
}

// Page is one fetched website page as readable text.
type Page struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Text string `json:"text"`
}

// WebsiteResult is the outcome of a website fetch. Pages are in merge order.
type WebsiteResult struct {
	Status    Status            `json:"status"`
	BaseURL   string            `json:"base_url"`
	Pages     []Page            `json:"pages,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Impressum map[string]string `json:"impressum,omitempty"`
}

// Page returns the named page, if it was fetched.
func (r *WebsiteResult) Page(name string) (Page, bool) {
	if r == nil {
		return Page{}, false
	}
	for _, p := range r.Pages {
		if p.Name == name {
			return p, true
		}
	}
	return Page{}, false
}

// Website fetches a company website and its well-known subpages.
type Website struct {
	fetch fetcher.Fetcher
	log   *zap.Logger
}

// NewWebsite creates a Website source.
func NewWebsite(f fetcher.Fetcher) *Website {
	return &Website{
		fetch: f,
		log:   zap.L().With(zap.String("component", "source.website")),
	}
}

// Fetch downloads the homepage and one variant per subpage category.
func (w *Website) Fetch(ctx context.Context, baseURL string) *WebsiteResult {
	baseURL = strings.TrimRight(baseURL, "/")
	res := &WebsiteResult{Status: StatusFetchFailed, BaseURL: baseURL}

	if html, ok := fetchPage(ctx, w.fetch, baseURL); ok {
		res.Pages = append(res.Pages, Page{Name: PageHomepage, URL: baseURL, Text: extract.ToReadableText(html)})
		res.Meta = extract.ExtractMetaTags(html)
	}

	for _, sp := range SubpageVariants {
		for _, path := range sp.Paths {
			u := baseURL + path
			html, ok := fetchPage(ctx, w.fetch, u)
			if !ok {
				continue
			}
			res.Pages = append(res.Pages, Page{Name: sp.Name, URL: u, Text: extract.ToReadableText(html)})
			break
		}
	}

	if imp, ok := res.Page(PageImpressum); ok {
		res.Impressum = extract.ExtractImpressumFacts(imp.Text)
	}

	if len(res.Pages) > 0 {
		res.Status = StatusSuccess
	}
	w.log.Debug("website fetched",
		zap.String("base_url", baseURL),
		zap.Int("pages", len(res.Pages)),
		zap.String("status", string(res.Status)),
	)
	return res
}
