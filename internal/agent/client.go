package agent

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role" enum:"user,assistant"`
	Content string `json:"content"`
}

// CompletionRequest is one non-streaming call to the text-generation model.
type CompletionRequest struct {
	System      string
	Messages    []Message
	Model       string
	MaxTokens   int64
	Temperature float64
}

type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type Completion struct {
	Text  string
	Usage *Usage
}

// Client produces one completion per call. Implementations must return an
// InvocationError when the provider call fails or yields no usable text; the
// pipeline does not retry.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// InvocationError wraps provider failures: transport errors, timeouts, and
// responses with no text content.
type InvocationError struct {
	Reason string
	Err    error
}

func (e *InvocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model invocation: %s: %v", e.Reason, e.Err)
	}
	return "model invocation: " + e.Reason
}

func (e *InvocationError) Unwrap() error { return e.Err }
