package analysis

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/axia-cli/internal/completion"
	"github.com/sells-group/axia-cli/internal/model"
	"github.com/sells-group/axia-cli/internal/promptctx"
)

// ExtractCompanyFacts turns free text about a company into structured fields.
func (a *Analyzer) ExtractCompanyFacts(ctx context.Context, text string) (map[string]any, error) {
	return a.extract(ctx, model.PromptTypeCompanyExtraction, completion.TaskCompanyExtraction, text)
}

// ExtractGoalsAndKPIs turns free text into goals with KPIs.
func (a *Analyzer) ExtractGoalsAndKPIs(ctx context.Context, text string) (map[string]any, error) {
	return a.extract(ctx, model.PromptTypeGoalsExtraction, completion.TaskGoalsExtraction, text)
}

func (a *Analyzer) extract(ctx context.Context, promptType string, task completion.Task, text string) (map[string]any, error) {
	start := a.now()
	tmpl, err := a.activeTemplate(ctx, promptType)
	if err != nil {
		return nil, err
	}

	resp := a.completer.Complete(ctx, completion.Request{
		Task:          task,
		SystemMessage: tmpl.SystemMessage,
		UserPrompt:    promptctx.Render(tmpl.UserPromptTemplate, map[string]string{"text": text}),
		Temperature:   completion.Temperature(tmpl.Temperature),
		MaxTokens:     tmpl.MaxTokens,
	})

	entry := &model.AILog{
		PromptType:     promptType,
		SystemPromptID: &tmpl.ID,
		InputContext:   map[string]any{"text_length": len(text)},
		TokensUsed:     resp.TokensUsed,
		DurationMS:     a.now().Sub(start).Milliseconds(),
		Success:        resp.Success,
	}
	if !resp.Success {
		entry.Response = map[string]any{"error": resp.Error}
		entry.ErrorMessage = resp.Error
		a.append(ctx, entry)
		return nil, &CompletionError{Task: task, Message: resp.Error, StatusCode: resp.StatusCode}
	}

	entry.Response = resp.Data
	a.append(ctx, entry)
	a.log.Info("extraction completed", zap.String("prompt_type", promptType), zap.Int("fields", len(resp.Data)))
	return resp.Data, nil
}

// Chat settings.
const (
	ChatTemperature = 0.7
	ChatMaxTokens   = 2000
	ChatTimeout     = 60 * time.Second
	NoChatResponse  = "No response from AI"
)

// ChatReply is the answer to a chat message.
type ChatReply struct {
	Message    string `json:"message"`
	TokensUsed int    `json:"tokens_used"`
}

// Chat answers a free-form message, framed with the company's name, business
// model and active goals when company is set.
func (a *Analyzer) Chat(ctx context.Context, message string, company *model.Company) (*ChatReply, error) {
	start := a.now()
	ctx, cancel := context.WithTimeout(ctx, ChatTimeout)
	defer cancel()

	system := "You are a helpful AI assistant."
	user := message
	var companyID any
	if company != nil {
		companyID = company.ID
		system = "You are a helpful AI assistant assisting with strategic planning for " + company.Name + "."
		if company.BusinessModel != "" {
			system += " The company operates in the " + company.BusinessModel + " business model."
		}

		goals, err := a.goals.ListGoals(ctx, company.ID)
		if err != nil {
			a.log.Warn("chat: list goals failed", zap.Int64("company_id", company.ID), zap.Error(err))
		}
		user += activeGoalsBlock(goals)
	}

	resp := a.completer.Complete(ctx, completion.Request{
		Task:          completion.TaskChat,
		SystemMessage: system,
		UserPrompt:    user,
		Temperature:   completion.Temperature(ChatTemperature),
		MaxTokens:     ChatMaxTokens,
	})

	entry := &model.AILog{
		PromptType:   model.PromptTypeChat,
		InputContext: map[string]any{"message": message, "company_id": companyID},
		TokensUsed:   resp.TokensUsed,
		DurationMS:   a.now().Sub(start).Milliseconds(),
		Success:      resp.Success,
	}
	if !resp.Success {
		entry.Response = map[string]any{"error": resp.Error}
		entry.ErrorMessage = resp.Error
		a.append(ctx, entry)
		return nil, &CompletionError{Task: completion.TaskChat, Message: resp.Error, StatusCode: resp.StatusCode}
	}

	reply := resp.Content
	if strings.TrimSpace(reply) == "" {
		reply = NoChatResponse
	}
	entry.Response = map[string]any{"message": reply}
	a.append(ctx, entry)
	return &ChatReply{Message: reply, TokensUsed: resp.TokensUsed}, nil
}

// activeGoalsBlock renders "\n\nActive Goals:\n- title\n..." or "".
func activeGoalsBlock(goals []model.Goal) string {
	var sb strings.Builder
	for _, g := range goals {
		if !g.IsActive {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("\n\nActive Goals:\n")
		}
		sb.WriteString("- " + g.Title + "\n")
	}
	return sb.String()
}
