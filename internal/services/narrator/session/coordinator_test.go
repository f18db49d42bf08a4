package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/louisbranch/storyroom/internal/services/narrator/event"
	"github.com/louisbranch/storyroom/internal/services/narrator/game"
	"github.com/louisbranch/storyroom/internal/services/narrator/mode"
	"github.com/louisbranch/storyroom/internal/services/narrator/turngate"
)

type scriptedMode struct {
	name    mode.Name
	script  []event.Event
	release chan struct{}
	started chan struct{}
	err     error

	entered int
	exited  int
	turns   []mode.TurnContext
}

func (m *scriptedMode) Name() mode.Name { return m.name }

func (m *scriptedMode) Enter(context.Context) error {
	m.entered++
	return nil
}

func (m *scriptedMode) Exit(context.Context) error {
	m.exited++
	return nil
}

func (m *scriptedMode) ProcessActions(ctx context.Context, _ []game.PlayerAction, turn mode.TurnContext, emit event.Emitter) error {
	m.turns = append(m.turns, turn)
	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		<-m.release
	}
	for _, e := range m.script {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(e); err != nil {
			return err
		}
	}
	return m.err
}

type modeSet struct {
	modes map[mode.Name]*scriptedMode
	built []mode.Name
}

func (s *modeSet) factory(name mode.Name, _ mode.Dependencies) (mode.State, error) {
	s.built = append(s.built, name)
	m, ok := s.modes[name]
	if !ok {
		return nil, mode.Fatal(mode.ErrModeNotImplemented)
	}
	return m, nil
}

func newTestCoordinator(t *testing.T, modes ...*scriptedMode) (*Coordinator, *modeSet) {
	t.Helper()
	set := &modeSet{modes: make(map[mode.Name]*scriptedMode)}
	for _, m := range modes {
		set.modes[m.name] = m
	}
	c, err := NewCoordinator(context.Background(), game.NewGameState("room-1"), mode.Dependencies{}, WithModeFactory(set.factory))
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c, set
}

func collect(t *testing.T, turn *Turn) []event.Event {
	t.Helper()
	var events []event.Event
	for e := range turn.Events() {
		events = append(events, e)
	}
	return events
}

func TestProcessTurnForwardsEventsInOrder(t *testing.T) {
	script := []event.Event{
		event.DiceRoll{CheckType: event.CheckAbility, DC: 10},
		event.Narrative{Text: "done"},
		event.TurnEnd{},
	}
	exploration := &scriptedMode{name: mode.Exploration, script: script}
	c, _ := newTestCoordinator(t, exploration)

	turn := c.ProcessTurn(context.Background(), []game.PlayerAction{{UserID: "u1", Text: "go"}})
	events := collect(t, turn)
	if err := turn.Err(); err != nil {
		t.Fatalf("turn error: %v", err)
	}
	if len(events) != len(script) {
		t.Fatalf("events = %+v", events)
	}
	for i := range script {
		if events[i].Type() != script[i].Type() {
			t.Fatalf("event %d = %s, want %s", i, events[i].Type(), script[i].Type())
		}
	}
	if exploration.entered != 1 || len(exploration.turns) != 1 || exploration.turns[0].State.RoomID != "room-1" || exploration.turns[0].TurnID == "" {
		t.Fatalf("mode = %+v", exploration)
	}
}

func TestActionRestrictionSwapsGate(t *testing.T) {
	exploration := &scriptedMode{name: mode.Exploration, script: []event.Event{
		event.ActionRestriction{CharacterIDs: []string{"c1"}, Reason: "only c1 fits"},
		event.TurnEnd{},
	}}
	c, _ := newTestCoordinator(t, exploration)

	if err := c.Run(context.Background(), nil, func(event.Event) error { return nil }); err != nil {
		t.Fatalf("run: %v", err)
	}
	status := c.GateStatus()
	if status.Kind != turngate.KindRestricted || status.Reason != "only c1 fits" {
		t.Fatalf("status = %+v", status)
	}
	if c.CanAct("u2", "c2") || !c.CanAct("u1", "c1") {
		t.Fatal("gate not applied")
	}
	if c.CanAdvance([]game.PlayerAction{{CharacterID: "c2"}}, 1) {
		t.Fatal("c1 has not acted")
	}

	exploration.script = []event.Event{event.ActionRestriction{}, event.TurnEnd{}}
	if err := c.Run(context.Background(), nil, func(event.Event) error { return nil }); err != nil {
		t.Fatalf("run: %v", err)
	}
	if c.GateStatus().Kind != turngate.KindAllPlayers {
		t.Fatalf("status = %+v, want all players", c.GateStatus())
	}
}

func TestModeTransitionSwitchesModeAndResetsGate(t *testing.T) {
	exploration := &scriptedMode{name: mode.Exploration, script: []event.Event{
		event.ActionRestriction{CharacterIDs: []string{"c1"}},
		event.ModeTransition{Mode: "downtime"},
		event.TurnEnd{},
	}}
	downtime := &scriptedMode{name: "downtime"}
	c, set := newTestCoordinator(t, exploration, downtime)

	if err := c.Run(context.Background(), nil, func(event.Event) error { return nil }); err != nil {
		t.Fatalf("run: %v", err)
	}
	if c.Mode() != "downtime" {
		t.Fatalf("mode = %s", c.Mode())
	}
	if exploration.exited != 1 || downtime.entered != 1 {
		t.Fatalf("exit/enter = %d/%d", exploration.exited, downtime.entered)
	}
	if c.GateStatus().Kind != turngate.KindAllPlayers {
		t.Fatalf("gate = %+v", c.GateStatus())
	}
	if len(set.built) != 2 || set.built[1] != "downtime" {
		t.Fatalf("built = %v", set.built)
	}
}

func TestCombatTransitionIsFatal(t *testing.T) {
	exploration := &scriptedMode{name: mode.Exploration, script: []event.Event{
		event.ModeTransition{Mode: string(mode.Combat), Reason: "ambush"},
		event.Narrative{Text: "never sent"},
		event.TurnEnd{},
	}}
	c, _ := newTestCoordinator(t, exploration)

	turn := c.ProcessTurn(context.Background(), nil)
	events := collect(t, turn)
	err := turn.Err()
	if !errors.Is(err, mode.ErrModeNotImplemented) || !mode.IsFatal(err) {
		t.Fatalf("error = %v, want fatal not implemented", err)
	}
	if len(events) != 1 || events[0].Type() != event.TypeModeTransition {
		t.Fatalf("events = %+v, want only the transition", events)
	}
	if c.Mode() != mode.Exploration {
		t.Fatalf("mode = %s", c.Mode())
	}
}

func TestCombatTransitionWithDefaultFactory(t *testing.T) {
	c := &Coordinator{state: game.NewGameState("room-1"), factory: mode.New, current: &scriptedMode{name: mode.Exploration}, gate: turngate.NewAllPlayers()}
	c.logger = newTestCoordinatorLogger()
	err := c.transition(context.Background(), mode.Combat)
	if !errors.Is(err, mode.ErrModeNotImplemented) {
		t.Fatalf("error = %v", err)
	}
}

func TestCancelingConsumerStopsTurn(t *testing.T) {
	exploration := &scriptedMode{name: mode.Exploration, script: []event.Event{
		event.Narrative{Text: "one"},
		event.Narrative{Text: "two"},
		event.TurnEnd{},
	}}
	c, _ := newTestCoordinator(t, exploration)
	ctx, cancel := context.WithCancel(context.Background())

	turn := c.ProcessTurn(ctx, nil)
	first := <-turn.Events()
	if first.Type() != event.TypeNarrative {
		t.Fatalf("first = %+v", first)
	}
	cancel()
	for e := range turn.Events() {
		if e.Type() == event.TypeTurnEnd {
			t.Fatal("turn end after cancel")
		}
	}
	if !errors.Is(turn.Err(), context.Canceled) {
		t.Fatalf("error = %v, want %v", turn.Err(), context.Canceled)
	}
}

func TestCloseStopsAbandonedTurn(t *testing.T) {
	exploration := &scriptedMode{name: mode.Exploration, script: []event.Event{
		event.Narrative{Text: "one"},
		event.Narrative{Text: "two"},
		event.TurnEnd{},
	}}
	c, _ := newTestCoordinator(t, exploration)

	turn := c.ProcessTurn(context.Background(), nil)
	if first := <-turn.Events(); first.Type() != event.TypeNarrative {
		t.Fatalf("first = %+v", first)
	}
	turn.Close()
	for e := range turn.Events() {
		if e.Type() == event.TypeTurnEnd {
			t.Fatal("turn end after close")
		}
	}
	if !errors.Is(turn.Err(), context.Canceled) {
		t.Fatalf("error = %v, want %v", turn.Err(), context.Canceled)
	}
	turn.Close()

	exploration.script = []event.Event{event.TurnEnd{}}
	next := c.ProcessTurn(context.Background(), nil)
	defer next.Close()
	if events := collect(t, next); len(events) != 1 || next.Err() != nil {
		t.Fatalf("next turn = %+v, %v", events, next.Err())
	}
}

func TestConcurrentTurnIsRejected(t *testing.T) {
	exploration := &scriptedMode{
		name:    mode.Exploration,
		script:  []event.Event{event.TurnEnd{}},
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	c, _ := newTestCoordinator(t, exploration)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		firstErr = c.Run(context.Background(), nil, func(event.Event) error { return nil })
	}()
	<-exploration.started

	if err := c.Run(context.Background(), nil, func(event.Event) error { return nil }); !errors.Is(err, ErrTurnInProgress) {
		t.Fatalf("error = %v, want %v", err, ErrTurnInProgress)
	}
	close(exploration.release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first turn: %v", firstErr)
	}
}

type recordingSaver struct {
	saved int
	err   error
}

func (s *recordingSaver) SaveRoomState(context.Context, *game.GameState) error {
	s.saved++
	return s.err
}

func TestStateSavedAfterCompletedTurn(t *testing.T) {
	exploration := &scriptedMode{name: mode.Exploration, script: []event.Event{event.TurnEnd{}}}
	saver := &recordingSaver{}
	c, err := NewCoordinator(context.Background(), game.NewGameState("room-1"), mode.Dependencies{},
		WithModeFactory(func(mode.Name, mode.Dependencies) (mode.State, error) { return exploration, nil }),
		WithStateSaver(saver),
	)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	if err := c.Run(context.Background(), nil, func(event.Event) error { return nil }); err != nil {
		t.Fatalf("run: %v", err)
	}
	if saver.saved != 1 {
		t.Fatalf("saved = %d, want 1", saver.saved)
	}

	exploration.script = nil
	exploration.err = errors.New("llm down")
	if err := c.Run(context.Background(), nil, func(event.Event) error { return nil }); err == nil {
		t.Fatal("expected error")
	}
	if saver.saved != 1 {
		t.Fatalf("saved = %d, want 1 after failed turn", saver.saved)
	}
}

func TestNewCoordinatorRequiresState(t *testing.T) {
	if _, err := NewCoordinator(context.Background(), nil, mode.Dependencies{}); err == nil {
		t.Fatal("expected error")
	}
}
