// Package duckduckgo searches DuckDuckGo's HTML endpoint and parses the
// result links. It never returns an error: any failure yields no results.
package duckduckgo

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/axia-cli/internal/resilience"
)

const (
	defaultBaseURL    = "https://html.duckduckgo.com/html/"
	defaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultMaxResults = 5
)

// Result is a single search hit.
type Result struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Client defines the search operation.
type Client interface {
	// Search returns up to maxResults hits in page order. maxResults <= 0
	// means 5.
	Search(ctx context.Context, query string, maxResults int) []Result
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom endpoint (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithLimiter replaces the outbound pacing limiter. nil disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) { c.limiter = l }
}

// WithBreaker replaces the circuit breaker. nil disables it.
func WithBreaker(b *resilience.CircuitBreaker) Option {
	return func(c *httpClient) { c.breaker = b }
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	log     *zap.Logger
}

// NewClient creates a search client with a 15s timeout, 1 request/s
// pacing and a default circuit breaker.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(1, 1),
		breaker: resilience.NewCircuitBreaker(resilience.BreakerConfigFrom(0, 0)),
		log:     zap.L().With(zap.String("component", "duckduckgo")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, maxResults int) []Result {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	var (
		results []Result
		err     error
	)
	if c.breaker != nil {
		results, err = resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]Result, error) {
			return c.search(ctx, query, maxResults)
		})
	} else {
		results, err = c.search(ctx, query, maxResults)
	}
	if err != nil {
		c.log.Warn("search failed",
			zap.String("query", query),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err),
		)
		return []Result{}
	}
	return results
}

func (c *httpClient) search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "duckduckgo: rate limiter wait")
		}
	}

	reqURL := c.baseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "duckduckgo: create request")
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "duckduckgo: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := eris.Errorf("duckduckgo: unexpected status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "duckduckgo: parse results")
	}

	results := make([]Result, 0, maxResults)
	doc.Find("a.result__a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		results = append(results, Result{
			Title: strings.TrimSpace(s.Text()),
			URL:   unwrapRedirect(strings.TrimSpace(href)),
		})
		return len(results) < maxResults
	})

	return results, nil
}

// unwrapRedirect returns the target of a DuckDuckGo redirect link
// ("//duckduckgo.com/l/?uddg=<encoded>&rut=..."), or href unchanged.
func unwrapRedirect(href string) string {
	if !strings.Contains(href, "uddg=") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	// Query() already percent-decodes the value.
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
