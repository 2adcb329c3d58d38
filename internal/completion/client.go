// Package completion sends chat completion requests to the configured
// upstream model and owns the retry policy around them.
package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Task tags a completion request.
type Task string

// Known tasks.
const (
	TaskTodoAnalysis      Task = "todo_analysis"
	TaskCompanyExtraction Task = "company_extraction"
	TaskGoalsExtraction   Task = "goals_extraction"
	TaskChat              Task = "chat"
)

// Structured reports whether the task expects a JSON object back.
func (t Task) Structured() bool {
	switch t {
	case TaskTodoAnalysis, TaskCompanyExtraction, TaskGoalsExtraction:
		return true
	}
	return false
}

// Request defaults.
const (
	DefaultSystemMessage = "You are a helpful assistant."
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 4000
	DefaultMaxRetries    = 3
	DefaultTimeout       = 120 * time.Second
)

// Providers.
const (
	ProviderLangdock  = "langdock"
	ProviderAnthropic = "anthropic"
)

// ErrNotConfigured is returned by New when credentials are missing.
var ErrNotConfigured = eris.New("completion: API credentials not configured")

// Request is one completion call. A nil Temperature means
// DefaultTemperature; a zero MaxTokens means DefaultMaxTokens.
type Request struct {
	Task          Task
	SystemMessage string
	UserPrompt    string
	Temperature   *float64
	MaxTokens     int
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(v float64) *float64 { return &v }

func (r Request) withDefaults() Request {
	if r.SystemMessage == "" {
		r.SystemMessage = DefaultSystemMessage
	}
	if r.Temperature == nil {
		r.Temperature = Temperature(DefaultTemperature)
	}
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	return r
}

// Result is the outcome of Complete. It never carries a Go error; failures
// are reported through Success and Error. Content is the raw answer text
// that Data was decoded from.
type Result struct {
	Success    bool           `json:"success"`
	Data       map[string]any `json:"data,omitempty"`
	Content    string         `json:"-"`
	Error      string         `json:"error,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	TokensUsed int            `json:"tokens_used"`
	Attempts   int            `json:"attempts"`
}

// Completer is what the analysis layer depends on.
type Completer interface {
	Complete(ctx context.Context, req Request) Result
}

// Config is the explicit configuration of a Client.
type Config struct {
	Provider   string        `validate:"omitempty,oneof=langdock anthropic"`
	APIKey     string        `validate:"required"`
	BaseURL    string        `validate:"required_unless=Provider anthropic"`
	Region     string        `validate:"-"`
	Model      string        `validate:"required"`
	MaxRetries int           `validate:"gte=0"`
	Timeout    time.Duration `validate:"gte=0"`
}

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries overrides the attempt limit. Values below 1 mean 1.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.maxRetries = n
	}
}

// WithSleep replaces the backoff sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithHTTPClient overrides the http.Client handed to the provider.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client implements Completer.
type Client struct {
	cfg        Config
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
	httpClient *http.Client
	sender     sender
	log        *zap.Logger
}

var validate = validator.New()

// New validates cfg and builds a Client. It fails with ErrNotConfigured
// when the key, base URL or model is empty.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, eris.Wrapf(ErrNotConfigured, "%v", err)
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderLangdock
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:        cfg,
		maxRetries: DefaultMaxRetries,
		sleep:      sleepContext,
		log:        zap.L().With(zap.String("component", "completion"), zap.String("provider", cfg.Provider)),
	}
	if cfg.MaxRetries > 0 {
		c.maxRetries = cfg.MaxRetries
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	switch cfg.Provider {
	case ProviderAnthropic:
		c.sender = newAnthropicSender(cfg, c.httpClient)
	default:
		c.sender = newLangdockSender(cfg, c.httpClient)
	}
	return c, nil
}

// MaxRetries is the attempt limit in effect.
func (c *Client) MaxRetries() int { return c.maxRetries }

// Complete runs the request through the retry state machine. It blocks
// during backoff sleeps and returns early only when ctx ends.
func (c *Client) Complete(ctx context.Context, req Request) Result {
	req = req.withDefaults()
	log := c.log.With(zap.String("task", string(req.Task)), zap.String("model", c.cfg.Model))

	for n := 1; ; n++ {
		log.Info("calling completion API", zap.Int("attempt", n))
		out := c.sender.send(ctx, req)
		st := next(n, c.maxRetries, out)

		switch st.kind {
		case stepSuccess:
			log.Info("completion response received", zap.Int("attempt", n), zap.Int("tokens_used", out.tokens))
			return Result{
				Success:    true,
				Data:       decodeContent(out.content),
				Content:    out.content,
				TokensUsed: out.tokens,
				Attempts:   n,
			}

		case stepTerminal:
			log.Error("completion failed",
				zap.Int("attempt", n),
				zap.Int("status", out.status),
				zap.String("body", out.body),
				zap.String("error", st.err),
			)
			return Result{Error: st.err, StatusCode: st.status, Attempts: n}

		case stepRetry:
			log.Warn("completion attempt failed, retrying",
				zap.Int("attempt", n),
				zap.Int("status", out.status),
				zap.Duration("delay", st.delay),
				zap.Error(out.err),
			)
			if err := c.sleep(ctx, st.delay); err != nil {
				return Result{Error: eris.Wrap(err, "completion: backoff interrupted").Error(), StatusCode: st.status, Attempts: n}
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// decodeContent parses content as a JSON object. Anything else, arrays and
// scalars included, is returned as {"analysis": content}.
func decodeContent(content string) map[string]any {
	var v any
	if err := json.Unmarshal([]byte(CleanJSONBlock(content)), &v); err == nil {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return map[string]any{"analysis": content}
}
