package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Browser-like defaults. Some company sites serve an empty shell or a 403
// to obvious bots.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultAcceptLanguage = "de-DE,de;q=0.9,en;q=0.8"
	DefaultMaxBytes       = 100_000
	DefaultTimeout        = 15 * time.Second
)

// Options configures a PageFetcher. Zero values fall back to the defaults
// above; RatePerSec <= 0 means 5 requests/s per host.
type Options struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
	Timeout        time.Duration
	MaxBytes       int64
	RatePerSec     float64
	Burst          int
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(min(a.currentRate*1.2, a.maxRate))
}

// OnRateLimit halves the rate after a 429.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.setLocked(max(a.currentRate*0.5, a.minRate))
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

func (a *AdaptiveLimiter) setLocked(r rate.Limit) {
	a.currentRate = r
	a.limiter.SetLimit(r)
}

// PageFetcher implements Fetcher over net/http with per-host pacing.
type PageFetcher struct {
	client *http.Client
	opts   Options
	log    *zap.Logger

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// Option customizes a PageFetcher.
type Option func(*PageFetcher)

// WithHTTPClient replaces the underlying http.Client. Its Timeout is left
// as given.
func WithHTTPClient(c *http.Client) Option {
	return func(f *PageFetcher) { f.client = c }
}

// New creates a PageFetcher.
func New(opts Options, options ...Option) *PageFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Accept == "" {
		opts.Accept = DefaultAccept
	}
	if opts.AcceptLanguage == "" {
		opts.AcceptLanguage = DefaultAcceptLanguage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.Burst <= 0 {
		opts.Burst = max(1, int(opts.RatePerSec))
	}

	f := &PageFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		log:      zap.L().With(zap.String("component", "fetcher")),
		limiters: make(map[string]*AdaptiveLimiter),
	}
	for _, o := range options {
		o(f)
	}
	return f
}

// Fetch implements Fetcher.
func (f *PageFetcher) Fetch(ctx context.Context, rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		f.log.Debug("invalid url", zap.String("url", rawURL))
		return "", false
	}

	lim := f.limiterFor(u.Host)
	if err := lim.Wait(ctx); err != nil {
		f.log.Debug("rate limiter wait", zap.String("url", rawURL), zap.Error(err))
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		f.log.Debug("create request", zap.String("url", rawURL), zap.Error(err))
		return "", false
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", f.opts.Accept)
	req.Header.Set("Accept-Language", f.opts.AcceptLanguage)

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Debug("fetch failed", zap.String("url", rawURL), zap.Error(err))
		return "", false
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		lim.OnRateLimit()
		f.log.Warn("rate limited (429), slowing host",
			zap.String("host", u.Host),
			zap.Float64("new_rate", float64(lim.Limit())),
		)
		return "", false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.log.Debug("non-success status", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes))
	if err != nil {
		f.log.Debug("read body", zap.String("url", rawURL), zap.Error(err))
		return "", false
	}
	lim.OnSuccess()

	return string(body), true
}

func (f *PageFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(rate.Limit(f.opts.RatePerSec), f.opts.Burst)
		f.limiters[host] = lim
	}
	return lim
}
