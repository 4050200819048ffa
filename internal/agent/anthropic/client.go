// Package anthropic implements agent.Client on the Anthropic Messages API.
package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"blueprint/internal/agent"
)

type Client struct {
	client anthropic.Client
}

func New(apiKey string) *Client {
	return &Client{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// Complete sends one non-streaming Messages request and returns the first
// text block of the response.
func (c *Client) Complete(ctx context.Context, req agent.CompletionRequest) (agent.Completion, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case agent.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: req.System,
			Type: "text",
		}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return agent.Completion{}, &agent.InvocationError{Reason: "messages request failed", Err: err}
	}
	if resp == nil || len(resp.Content) == 0 {
		return agent.Completion{}, &agent.InvocationError{Reason: "empty response"}
	}

	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type != "text" {
			continue
		}
		return agent.Completion{
			Text: block.AsText().Text,
			Usage: &agent.Usage{
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: resp.Usage.OutputTokens,
			},
		}, nil
	}
	return agent.Completion{}, &agent.InvocationError{Reason: "response contained no text block"}
}
