package completion

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sells-group/axia-cli/pkg/anthropic"
	"github.com/sells-group/axia-cli/pkg/langdock"
)

// sender performs exactly one upstream attempt.
type sender interface {
	send(ctx context.Context, req Request) outcome
}

type langdockSender struct {
	client langdock.Client
	model  string
}

func newLangdockSender(cfg Config, hc *http.Client) *langdockSender {
	return &langdockSender{
		client: langdock.NewClient(cfg.APIKey, cfg.BaseURL,
			langdock.WithRegion(cfg.Region),
			langdock.WithHTTPClient(hc),
		),
		model: cfg.Model,
	}
}

func (s *langdockSender) send(ctx context.Context, req Request) outcome {
	body := langdock.ChatCompletionRequest{
		Model: s.model,
		Messages: []langdock.Message{
			{Role: "system", Content: req.SystemMessage},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: *req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.Task.Structured() {
		body.ResponseFormat = langdock.JSONObject
	}

	resp, err := s.client.ChatCompletion(ctx, body)
	if err != nil {
		if apiErr, ok := langdock.AsAPIError(err); ok {
			return outcome{status: apiErr.StatusCode, retryAfter: apiErr.RetryAfter, body: apiErr.Body}
		}
		if errors.Is(err, langdock.ErrMalformedResponse) {
			return outcome{malformed: true, body: err.Error()}
		}
		return outcome{err: err}
	}

	content, ok := resp.Content()
	return outcome{content: content, hasContent: ok, tokens: resp.Usage.TotalTokens}
}

// jsonInstruction is appended to the system prompt of structured tasks for
// providers without a JSON response mode.
const jsonInstruction = "Respond with a single valid JSON object and nothing else."

type anthropicSender struct {
	client anthropic.Client
	model  string
}

func newAnthropicSender(cfg Config, hc *http.Client) *anthropicSender {
	opts := []anthropic.Option{anthropic.WithHTTPClient(hc)}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicSender{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
	}
}

func (s *anthropicSender) send(ctx context.Context, req Request) outcome {
	system := req.SystemMessage
	if req.Task.Structured() {
		system += "\n\n" + jsonInstruction
	}

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       s.model,
		MaxTokens:   int64(req.MaxTokens),
		System:      []anthropic.SystemBlock{{Text: system}},
		Messages:    []anthropic.Message{{Role: "user", Content: req.UserPrompt}},
		Temperature: req.Temperature,
	})
	if err != nil {
		if apiErr, ok := anthropic.AsAPIError(err); ok {
			return outcome{status: apiErr.StatusCode, retryAfter: apiErr.RetryAfter, body: apiErr.Body}
		}
		return outcome{err: err}
	}

	resp.Usage.LogCost(s.model, string(req.Task))
	content, ok := resp.Text()
	return outcome{content: content, hasContent: ok, tokens: int(resp.Usage.Total())}
}

// CleanJSONBlock removes a markdown code fence around a JSON answer.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	text = strings.TrimPrefix(text, "```")
	// Drop a language tag on the opening fence line.
	if idx := strings.Index(text, "\n"); idx >= 0 {
		first := text[:idx]
		if len(first) < 20 && !strings.ContainsAny(first, " {[") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
