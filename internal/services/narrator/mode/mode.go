// Package mode implements the per-mode state machine that drives a narrator
// turn.
//
// A mode turns one round of player actions into an ordered stream of events.
// Exploration runs the LLM tool-calling loop; combat is reserved.
package mode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/storyroom/internal/platform/otel"
	"github.com/louisbranch/storyroom/internal/services/narrator/event"
	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/llm"
	"github.com/louisbranch/storyroom/internal/services/narrator/rules"
	"github.com/louisbranch/storyroom/internal/services/narrator/worldcontext"
)

// Name identifies a mode.
type Name string

const (
	Exploration Name = "exploration"
	Combat      Name = "combat"
)

// ErrModeNotImplemented reports a transition to a reserved mode.
var ErrModeNotImplemented = errors.New("mode not implemented")

// TurnContext carries the per-turn inputs a mode works against.
type TurnContext struct {
	TurnID string
	State  *game.GameState
}

// State is one game mode.
type State interface {
	Name() Name
	Enter(ctx context.Context) error
	Exit(ctx context.Context) error
	// ProcessActions runs one turn, emitting events in order. It returns
	// ctx.Err() without emitting TurnEnd when ctx is canceled mid-turn.
	ProcessActions(ctx context.Context, actions []game.PlayerAction, turn TurnContext, emit event.Emitter) error
}

// PromptBuilder assembles the prompt for a turn.
type PromptBuilder interface {
	Build(ctx context.Context, state *game.GameState) ([]llm.Message, error)
}

// RosterSource lists the members of the room.
type RosterSource interface {
	RoomMembers(ctx context.Context) ([]game.Member, error)
}

// Dependencies are the collaborators every mode is constructed with.
type Dependencies struct {
	Builder PromptBuilder
	LLM     llm.Client
	Engine  *rules.Engine
	Roster  RosterSource
	// Updater is optional.
	Updater worldcontext.Updater
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

func (d Dependencies) validate() error {
	switch {
	case d.Builder == nil:
		return errors.New("prompt builder is required")
	case d.LLM == nil:
		return errors.New("llm client is required")
	case d.Engine == nil:
		return errors.New("rules engine is required")
	}
	return nil
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer("storyroom/narrator")
	}
	return d
}

// New constructs the named mode.
func New(name Name, deps Dependencies) (State, error) {
	switch name {
	case Exploration:
		m, err := NewExploration(deps)
		if err != nil {
			return nil, err
		}
		return m, nil
	case Combat:
		return nil, Fatal(fmt.Errorf("%w: %s", ErrModeNotImplemented, name))
	default:
		return nil, Fatal(fmt.Errorf("%w: unknown mode %q", ErrModeNotImplemented, name))
	}
}

// fatalError marks an error that must end the turn without recovery.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal returns true from IsFatal checks.
func (e *fatalError) Fatal() bool { return true }

// Fatal marks err as fatal to the turn.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err, or any error in its chain, ends the turn.
func IsFatal(err error) bool {
	var target interface{ Fatal() bool }
	if errors.As(err, &target) {
		return target.Fatal()
	}
	return false
}
