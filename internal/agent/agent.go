// Package agent implements the architect chat pipeline: per-user project
// context, prompt composition, model invocation, and extraction of the
// structured plan the dashboard can execute.
package agent

import (
	"context"
	"log"

	"blueprint/internal/config"
	"blueprint/internal/repo"
)

// Pipeline composes the four stages of a chat turn. It holds no per-request
// state; one instance serves concurrent requests. The client is injected at
// construction, built once at process start.
type Pipeline struct {
	Client Client
	Repo   repo.Repo
	Config *config.Config
	Logger *log.Logger
}

func New(client Client, r repo.Repo, cfg *config.Config, logger *log.Logger) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Pipeline{Client: client, Repo: r, Config: cfg, Logger: logger}
}

type ChatRequest struct {
	UserID      string
	Messages    []Message
	BasePrompt  string // overrides the configured persona prompt when set
	Interactive bool
}

type ChatResponse struct {
	// Content is the cleaned reply plus, when a plan was extracted, the
	// re-serialized normalized block.
	Content string
	Usage   *Usage
	// Plan is the normalized plan also embedded in Content, for callers that
	// want it without re-parsing.
	Plan *Plan
}

// Chat runs one turn: digest -> prompt -> model -> extract/normalize. Context
// and model failures propagate; malformed plan output degrades to a plain
// reply.
func (p *Pipeline) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	digest, err := ContextBuilder{Repo: p.Repo}.Build(ctx, req.UserID, ContextOptions{
		Take:           p.Config.Context.Projects,
		IncludeHistory: p.Config.Context.IncludeHistory,
	})
	if err != nil {
		return ChatResponse{}, err
	}

	basePrompt := req.BasePrompt
	if basePrompt == "" {
		basePrompt = p.Config.Agent.BasePrompt
	}
	system := ComposePrompt(basePrompt, digest, req.Interactive)

	completion, err := p.Client.Complete(ctx, CompletionRequest{
		System:      system,
		Messages:    mergeTranscript(req.Messages),
		Model:       p.Config.Agent.Model,
		MaxTokens:   p.Config.Agent.MaxTokens,
		Temperature: p.Config.Agent.Temperature,
	})
	if err != nil {
		return ChatResponse{}, err
	}

	clean, raw := Extractor{Logger: p.Logger}.Extract(completion.Text)
	plan := Normalize(raw, Defaults{
		Stack: p.Config.Defaults.Stack,
		Tags:  p.Config.Defaults.Tags,
	})
	return ChatResponse{
		Content: AppendPlanBlock(clean, plan),
		Usage:   completion.Usage,
		Plan:    plan,
	}, nil
}

// mergeTranscript collapses consecutive same-role turns and drops leading
// assistant turns, which the provider rejects.
func mergeTranscript(messages []Message) []Message {
	var merged []Message
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		if len(merged) == 0 && m.Role == RoleAssistant {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].Role == m.Role {
			merged[n-1].Content += "\n\n" + m.Content
			continue
		}
		merged = append(merged, m)
	}
	return merged
}
