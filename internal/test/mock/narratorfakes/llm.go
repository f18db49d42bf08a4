package narratorfakes

import (
	"context"
	"fmt"
	"slices"

	"github.com/louisbranch/storyroom/internal/services/narrator/llm"
)

// ChatCall records the inputs of one Chat invocation.
type ChatCall struct {
	Messages []llm.Message
	Options  llm.ChatOptions
}

// LLM replays scripted responses in order. When the script runs out, Repeat
// (if set) is returned for every further call.
type LLM struct {
	Responses []llm.Response
	Errs      []error
	Repeat    *llm.Response
	Calls     []ChatCall
}

// NewLLM returns a scripted LLM.
func NewLLM(responses ...llm.Response) *LLM {
	return &LLM{Responses: responses}
}

// Chat returns the next scripted response.
func (f *LLM) Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	idx := len(f.Calls)
	f.Calls = append(f.Calls, ChatCall{Messages: slices.Clone(messages), Options: opts})
	if idx < len(f.Errs) && f.Errs[idx] != nil {
		return llm.Response{}, f.Errs[idx]
	}
	if idx < len(f.Responses) {
		return f.Responses[idx], nil
	}
	if f.Repeat != nil {
		return *f.Repeat, nil
	}
	return llm.Response{}, fmt.Errorf("no scripted response for call %d", idx+1)
}

// ToolCallResponse builds a response carrying a single tool call.
func ToolCallResponse(id, name, arguments string) llm.Response {
	return llm.Response{ToolCalls: []llm.ToolCall{{
		ID:       id,
		Type:     llm.ToolCallTypeFunction,
		Function: llm.FunctionCall{Name: name, Arguments: arguments},
	}}}
}
