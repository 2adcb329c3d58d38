package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestFetcher(opts Options) *PageFetcher {
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 1000
	}
	return New(opts)
}

func TestFetch_SendsBrowserHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, DefaultAccept, r.Header.Get("Accept"))
		assert.Equal(t, "de-DE,de;q=0.9,en;q=0.8", r.Header.Get("Accept-Language"))
		_, _ = w.Write([]byte("<html>hello</html>"))
	}))
	defer srv.Close()

	body, ok := newTestFetcher(Options{}).Fetch(context.Background(), srv.URL+"/about")
	require.True(t, ok)
	assert.Equal(t, "<html>hello</html>", body)
}

func TestFetch_TruncatesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", DefaultMaxBytes+5000)))
	}))
	defer srv.Close()

	body, ok := newTestFetcher(Options{}).Fetch(context.Background(), srv.URL)
	require.True(t, ok)
	assert.Len(t, body, DefaultMaxBytes)
}

func TestFetch_CustomMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	body, ok := newTestFetcher(Options{MaxBytes: 4}).Fetch(context.Background(), srv.URL)
	require.True(t, ok)
	assert.Equal(t, "0123", body)
}

func TestFetch_NonSuccessIsUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"forbidden", http.StatusForbidden},
		{"server error", http.StatusInternalServerError},
		{"bad request", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("error page"))
			}))
			defer srv.Close()

			body, ok := newTestFetcher(Options{}).Fetch(context.Background(), srv.URL)
			assert.False(t, ok)
			assert.Empty(t, body)
		})
	}
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	body, ok := newTestFetcher(Options{}).Fetch(context.Background(), addr)
	assert.False(t, ok)
	assert.Empty(t, body)
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, ok := newTestFetcher(Options{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	assert.False(t, ok)
}

func TestFetch_InvalidURL(t *testing.T) {
	f := newTestFetcher(Options{})
	for _, u := range []string{"", "not a url", "://missing-scheme", "/relative/path"} {
		_, ok := f.Fetch(context.Background(), u)
		assert.False(t, ok, u)
	}
}

func TestFetch_RateLimitSlowsHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher(Options{RatePerSec: 100})
	_, ok := f.Fetch(context.Background(), srv.URL)
	assert.False(t, ok)

	lim := f.limiterFor(srv.Listener.Addr().String())
	assert.Equal(t, rate.Limit(50), lim.Limit())
}

func TestFetch_LimiterPerHost(t *testing.T) {
	f := newTestFetcher(Options{})
	a := f.limiterFor("acme.de")
	b := f.limiterFor("example.com")
	assert.NotSame(t, a, b)
	assert.Same(t, a, f.limiterFor("acme.de"))
}

func TestFetch_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := newTestFetcher(Options{}).Fetch(ctx, srv.URL)
	assert.False(t, ok)
}

func TestAdaptiveLimiter(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 1)

	lim.OnRateLimit()
	assert.Equal(t, rate.Limit(5), lim.Limit())
	lim.OnRateLimit()
	lim.OnRateLimit()
	assert.Equal(t, rate.Limit(2.5), lim.Limit(), "floor is initial/4")

	for range 20 {
		lim.OnSuccess()
	}
	assert.Equal(t, rate.Limit(20), lim.Limit(), "ceiling is 2x initial")
}

func TestNew_Defaults(t *testing.T) {
	f := New(Options{})
	assert.Equal(t, DefaultTimeout, f.client.Timeout)
	assert.Equal(t, int64(DefaultMaxBytes), f.opts.MaxBytes)
	assert.Equal(t, 5.0, f.opts.RatePerSec)
	assert.Equal(t, 5, f.opts.Burst)

	custom := &http.Client{Timeout: time.Second}
	f = New(Options{}, WithHTTPClient(custom))
	assert.Same(t, custom, f.client)
}
