package mode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/storyroom/internal/platform/id"
	"github.com/louisbranch/storyroom/internal/services/narrator/event"
	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/llm"
	"github.com/louisbranch/storyroom/internal/services/narrator/tools"
)

// MaxToolRounds caps the LLM round-trips of one exploration turn.
const MaxToolRounds = 5

// ExplorationMode drives free-form play through the LLM tool-calling loop.
type ExplorationMode struct {
	deps     Dependencies
	handlers map[tools.Name]toolHandler
}

// NewExploration builds the exploration mode.
func NewExploration(deps Dependencies) (*ExplorationMode, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("exploration: %w", err)
	}
	m := &ExplorationMode{deps: deps.withDefaults()}
	m.handlers = m.handlerTable()
	return m, nil
}

// Name implements State.
func (m *ExplorationMode) Name() Name { return Exploration }

// Enter implements State.
func (m *ExplorationMode) Enter(context.Context) error {
	m.deps.Logger.Debug("entering mode", "mode", Exploration)
	return nil
}

// Exit implements State.
func (m *ExplorationMode) Exit(context.Context) error {
	m.deps.Logger.Debug("leaving mode", "mode", Exploration)
	return nil
}

// ProcessActions implements State.
func (m *ExplorationMode) ProcessActions(ctx context.Context, actions []game.PlayerAction, turn TurnContext, emit event.Emitter) (err error) {
	if turn.State == nil {
		return Fatal(errors.New("game state is required"))
	}
	logger := m.deps.Logger.With("room_id", turn.State.RoomID, "turn_id", turn.TurnID)
	ctx, span := m.deps.Tracer.Start(ctx, "exploration.turn", trace.WithAttributes(
		attribute.String("room.id", turn.State.RoomID),
		attribute.String("turn.id", turn.TurnID),
		attribute.Int("turn.actions", len(actions)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	m.deps.Engine.SyncCharacterStates(turn.State.Characters)

	messages, err := m.deps.Builder.Build(ctx, turn.State)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return Fatal(fmt.Errorf("build context: %w", err))
	}
	for _, action := range actions {
		messages = append(messages, llm.Message{
			Role:      llm.RoleUser,
			Content:   fmt.Sprintf("[%s] %s", action.Actor(), strings.TrimSpace(action.Text)),
			Timestamp: action.Timestamp,
		})
	}

	defs, err := tools.Definitions()
	if err != nil {
		return Fatal(fmt.Errorf("tool definitions: %w", err))
	}

	run := &turnRun{
		state:    turn.State,
		emit:     emit,
		resolver: newResolver(m.deps.Roster, turn.State, logger),
	}
	narrative, completed, err := m.toolLoop(ctx, run, messages, defs, logger)
	if err != nil {
		return err
	}
	if !completed {
		logger.Warn("tool round limit reached without narrative", "rounds", MaxToolRounds)
	}

	if m.deps.Updater != nil {
		if err := m.deps.Updater.Update(ctx, narrative, actions, turn.State); err != nil {
			logger.Warn("world context update failed", "error", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return emit(event.TurnEnd{})
}

// toolLoop calls the LLM until it answers without tool calls or MaxToolRounds
// is reached. completed reports whether a tool-free answer arrived.
func (m *ExplorationMode) toolLoop(ctx context.Context, run *turnRun, messages []llm.Message, defs []llm.Tool, logger *slog.Logger) (narrative string, completed bool, err error) {
	opts := llm.ChatOptions{Tools: defs, ToolChoice: llm.ToolChoiceAuto}
	for round := 1; round <= MaxToolRounds; round++ {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		resp, err := m.chat(ctx, messages, opts, round)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", false, ctxErr
			}
			return "", false, fmt.Errorf("llm round %d: %w", round, err)
		}

		if len(resp.ToolCalls) == 0 {
			narrative = strings.TrimSpace(resp.Content)
			if narrative != "" {
				if err := run.emit(event.Narrative{Text: narrative}); err != nil {
					return "", false, err
				}
			}
			return narrative, true, nil
		}

		calls := make([]llm.ToolCall, len(resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			if call.ID == "" {
				if call.ID, err = id.NewID(); err != nil {
					return "", false, fmt.Errorf("tool call id: %w", err)
				}
			}
			if call.Type == "" {
				call.Type = llm.ToolCallTypeFunction
			}
			calls[i] = call
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: calls})

		for _, call := range calls {
			content, err := m.dispatch(ctx, run, call)
			if err != nil {
				return "", false, err
			}
			logger.Debug("tool call handled", "tool", call.Function.Name, "round", round)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
				Content:    content,
			})
		}
	}
	return "", false, nil
}

func (m *ExplorationMode) chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions, round int) (llm.Response, error) {
	ctx, span := m.deps.Tracer.Start(ctx, "exploration.llm_round", trace.WithAttributes(
		attribute.Int("llm.round", round),
		attribute.Int("llm.messages", len(messages)),
	))
	defer span.End()
	resp, err := m.deps.LLM.Chat(ctx, messages, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return llm.Response{}, err
	}
	span.SetAttributes(attribute.Int("llm.tool_calls", len(resp.ToolCalls)))
	return resp, nil
}

// dispatch runs one tool call and renders its result message. Tool failures
// become {"error": ...} results; only a lost consumer aborts the turn.
func (m *ExplorationMode) dispatch(ctx context.Context, run *turnRun, call llm.ToolCall) (string, error) {
	handler, ok := m.handlers[tools.Name(call.Function.Name)]
	if !ok {
		return errorResult(fmt.Errorf("unknown tool %q", call.Function.Name)), nil
	}
	result, err := handler(ctx, run, call.Function.Arguments)
	if err != nil {
		var lost *emitError
		if errors.As(err, &lost) {
			return "", lost.err
		}
		m.deps.Logger.Warn("tool call failed", "tool", call.Function.Name, "error", err)
		return errorResult(err), nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err)), nil
	}
	return string(data), nil
}

func errorResult(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}

// turnRun is the per-turn state shared by tool handlers.
type turnRun struct {
	state    *game.GameState
	emit     event.Emitter
	resolver *resolver
}

// send emits an event, marking failures so dispatch can tell them apart from
// tool errors.
func (r *turnRun) send(e event.Event) error {
	if err := r.emit(e); err != nil {
		return &emitError{err: err}
	}
	return nil
}

type emitError struct {
	err error
}

func (e *emitError) Error() string { return e.err.Error() }
func (e *emitError) Unwrap() error { return e.err }
