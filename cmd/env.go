package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/axia-cli/internal/analysis"
	"github.com/sells-group/axia-cli/internal/completion"
	"github.com/sells-group/axia-cli/internal/config"
	"github.com/sells-group/axia-cli/internal/fetcher"
	"github.com/sells-group/axia-cli/internal/intel"
	"github.com/sells-group/axia-cli/internal/resilience"
	"github.com/sells-group/axia-cli/internal/store"
	"github.com/sells-group/axia-cli/pkg/duckduckgo"
)

// initStore opens and migrates the configured store.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if err := c.Validate(config.ModeStore); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{MaxConns: c.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newSearchClient(c config.SearchConfig) duckduckgo.Client {
	return duckduckgo.NewClient(
		duckduckgo.WithBaseURL(c.BaseURL),
		duckduckgo.WithHTTPClient(&http.Client{Timeout: time.Duration(c.TimeoutSecs) * time.Second}),
		duckduckgo.WithLimiter(rate.NewLimiter(rate.Limit(c.RatePerSec), 1)),
		duckduckgo.WithBreaker(resilience.NewCircuitBreaker(searchBreakerConfig(c))),
	)
}

// searchBreakerConfig logs every transition of the search breaker. The hook
// runs under the breaker's lock, so it only logs.
func searchBreakerConfig(c config.SearchConfig) resilience.BreakerConfig {
	bc := resilience.BreakerConfigFrom(c.BreakerThreshold, c.BreakerResetSecs)
	bc.OnStateChange = func(from, to resilience.CircuitState) {
		log := zap.L().With(zap.String("component", "duckduckgo"))
		fields := []zap.Field{zap.Stringer("from", from), zap.Stringer("to", to)}
		if to == resilience.CircuitOpen {
			log.Warn("search circuit breaker opened", append(fields, zap.Duration("reset_after", bc.ResetTimeout))...)
			return
		}
		log.Info("search circuit breaker state changed", fields...)
	}
	return bc
}

func newPageFetcher(c config.FetchConfig) *fetcher.PageFetcher {
	return fetcher.New(fetcher.Options{
		UserAgent:      c.UserAgent,
		AcceptLanguage: c.AcceptLanguage,
		Timeout:        time.Duration(c.TimeoutSecs) * time.Second,
		MaxBytes:       c.MaxBytes,
		RatePerSec:     c.RatePerSec,
	})
}

func newOrchestrator(c *config.Config, st intel.Store) *intel.Orchestrator {
	return intel.New(newSearchClient(c.Search), newPageFetcher(c.Fetch), st)
}

// completionConfig maps the completion and anthropic sections onto a
// completion.Config. The anthropic provider takes its key and model from the
// anthropic section and always talks to the SDK's default endpoint.
func completionConfig(c *config.Config) completion.Config {
	cc := completion.Config{
		Provider:   c.Completion.Provider,
		APIKey:     c.Completion.APIKey,
		BaseURL:    c.Completion.BaseURL,
		Region:     c.Completion.Region,
		Model:      c.Completion.Model,
		MaxRetries: c.Completion.MaxRetries,
		Timeout:    time.Duration(c.Completion.TimeoutSecs) * time.Second,
	}
	if cc.Provider == completion.ProviderAnthropic {
		if c.Anthropic.Key != "" {
			cc.APIKey = c.Anthropic.Key
		}
		cc.Model = c.Anthropic.Model
		cc.BaseURL = ""
	}
	return cc
}

func newAnalyzer(c *config.Config, st store.Store) (*analysis.Analyzer, error) {
	if err := c.Validate(config.ModeAnalyze); err != nil {
		return nil, err
	}
	client, err := completion.New(completionConfig(c))
	if err != nil {
		return nil, err
	}
	return analysis.New(st, st, st, client), nil
}
