// Package llm defines the chat contract the narrator drives and the provider
// adapters that implement it.
package llm

import (
	"context"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallTypeFunction is the only tool call type providers emit.
const ToolCallTypeFunction = "function"

// FunctionCall names a function and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is one structured invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is one entry of a chat transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Name optionally labels the context block a message was built from.
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp,omitzero"`
}

// Tool is a function the model may call, described by a JSON schema.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoice controls whether the model may or must call tools.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// ChatOptions carries the tool configuration for one chat call.
type ChatOptions struct {
	Tools      []Tool
	ToolChoice ToolChoice
}

// Usage reports provider token accounting when available.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is the model's reply: text, tool calls, or both.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Client performs one chat round-trip.
type Client interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, messages []Message, opts ChatOptions) (Response, error)

// Chat calls f.
func (f ClientFunc) Chat(ctx context.Context, messages []Message, opts ChatOptions) (Response, error) {
	return f(ctx, messages, opts)
}
