package rules

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/louisbranch/storyroom/internal/services/narrator/game"
)

// TemplateSource resolves character templates by id.
type TemplateSource interface {
	// FindByID returns the template and true, or false when no template exists.
	FindByID(ctx context.Context, id string) (game.CharacterTemplate, bool, error)
}

// Engine resolves mechanics against a per-session cache of character states
// and lazily resolved templates.
//
// States are held by pointer, so mutations made here are visible through the
// game.GameState the states were synced from.
type Engine struct {
	rng       RNG
	templates TemplateSource
	logger    *slog.Logger

	mu            sync.Mutex
	states        map[string]*game.CharacterState
	templateCache map[string]game.CharacterTemplate
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for non-fatal warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine builds an engine over the given RNG and template source.
func NewEngine(rng RNG, templates TemplateSource, opts ...Option) *Engine {
	e := &Engine{
		rng:           rng,
		templates:     templates,
		logger:        slog.Default(),
		states:        make(map[string]*game.CharacterState),
		templateCache: make(map[string]game.CharacterTemplate),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncCharacterStates replaces the state cache with states. Resolved templates
// are kept.
func (e *Engine) SyncCharacterStates(states map[string]*game.CharacterState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = maps.Clone(states)
	if e.states == nil {
		e.states = make(map[string]*game.CharacterState)
	}
}

// CharacterState returns the cached state for an instance id.
func (e *Engine) CharacterState(characterID string) (*game.CharacterState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.states[characterID]
	return state, ok
}

// Roll parses and rolls a dice formula.
func (e *Engine) Roll(formula string) (DiceRoll, error) {
	parsed, err := ParseFormula(formula)
	if err != nil {
		return DiceRoll{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return RollFormula(e.rng, parsed), nil
}

func (e *Engine) stateLocked(characterID string) (*game.CharacterState, error) {
	state, ok := e.states[characterID]
	if !ok || state == nil {
		return nil, fmt.Errorf("%w: %s", ErrCharacterNotFound, characterID)
	}
	return state, nil
}

// templateLocked resolves the template for a cached character, consulting the
// template source once per instance.
func (e *Engine) templateLocked(ctx context.Context, characterID string) (game.CharacterTemplate, error) {
	if template, ok := e.templateCache[characterID]; ok {
		return template, nil
	}
	state, err := e.stateLocked(characterID)
	if err != nil {
		return game.CharacterTemplate{}, err
	}
	if e.templates == nil {
		return game.CharacterTemplate{}, fmt.Errorf("%w: no template source for %s", ErrCharacterNotFound, characterID)
	}
	template, ok, err := e.templates.FindByID(ctx, state.TemplateID)
	if err != nil {
		return game.CharacterTemplate{}, fmt.Errorf("find template %s: %w", state.TemplateID, err)
	}
	if !ok {
		return game.CharacterTemplate{}, fmt.Errorf("%w: template %s for %s", ErrCharacterNotFound, state.TemplateID, characterID)
	}
	e.templateCache[characterID] = template
	return template, nil
}

// Template returns the resolved template for a cached character.
func (e *Engine) Template(ctx context.Context, characterID string) (game.CharacterTemplate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.templateLocked(ctx, characterID)
}
