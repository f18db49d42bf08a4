package rulesmcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/storyroom/internal/services/narrator/rules"
	"github.com/louisbranch/storyroom/internal/services/narrator/seed"
	"github.com/louisbranch/storyroom/internal/services/narrator/storage/sqlite"
	"github.com/louisbranch/storyroom/internal/test/mock/narratorfakes"
)

type harness struct {
	store   *sqlite.Store
	session *mcp.ClientSession
}

func newHarness(t *testing.T, faces ...int) *harness {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	f, err := seed.Load(filepath.Join("..", "seed", "testdata", "tavern.yaml"))
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if err := seed.Apply(context.Background(), store, f); err != nil {
		t.Fatalf("apply seed: %v", err)
	}

	srv, err := New(store, narratorfakes.NewRNG(faces...), "tavern")
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer connectCancel()
	session, err := client.Connect(connectCtx, clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		select {
		case <-serveErr:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return &harness{store: store, session: session}
}

func (h *harness) call(t *testing.T, name string, args any, out any) *mcp.CallToolResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := h.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if out != nil && !result.IsError {
		raw, err := json.Marshal(result.StructuredContent)
		if err != nil {
			t.Fatalf("marshal structured content: %v", err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s output: %v", name, err)
		}
	}
	return result
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, narratorfakes.NewRNG(1), ""); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestListTools(t *testing.T) {
	h := newHarness(t, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := h.session.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	got := map[string]bool{}
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, name := range []string{"roll_dice", "ability_check", "saving_throw", "apply_damage", "heal"} {
		if !got[name] {
			t.Fatalf("missing tool %s in %v", name, got)
		}
	}
}

func TestRollDice(t *testing.T) {
	h := newHarness(t, 3, 5)
	var roll rules.DiceRoll
	result := h.call(t, "roll_dice", map[string]any{"formula": "2d6+1"}, &roll)
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result.Content)
	}
	if roll.Total != 9 || len(roll.Rolls) != 2 {
		t.Fatalf("roll = %+v", roll)
	}

	result = h.call(t, "roll_dice", map[string]any{"formula": "banana"}, nil)
	if !result.IsError {
		t.Fatal("expected tool error for malformed formula")
	}
}

func TestAbilityCheckVerdict(t *testing.T) {
	h := newHarness(t, 12)
	var out CheckOutput
	result := h.call(t, "ability_check", map[string]any{
		"character_id": "c1",
		"ability":      "DEX",
		"dc":           15,
	}, &out)
	if result.IsError {
		t.Fatalf("unexpected tool error: %+v", result.Content)
	}
	if out.Result.Kept != 12 || out.Result.Modifier != 3 {
		t.Fatalf("result = %+v", out.Result)
	}
	if out.Success == nil || !*out.Success {
		t.Fatalf("success = %v, total %d", out.Success, out.Result.Total)
	}
}

func TestSavingThrowWithoutDC(t *testing.T) {
	h := newHarness(t, 4)
	var out CheckOutput
	h.call(t, "saving_throw", map[string]any{
		"character_id": "c2",
		"ability":      "strength",
	}, &out)
	if out.Success != nil {
		t.Fatalf("success = %v, want nil without dc", *out.Success)
	}
	if out.Result.Kept != 4 {
		t.Fatalf("result = %+v", out.Result)
	}
}

func TestCheckErrors(t *testing.T) {
	h := newHarness(t, 10)
	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"bad ability", "ability_check", map[string]any{"character_id": "c1", "ability": "luck"}},
		{"unknown character", "ability_check", map[string]any{"character_id": "c9", "ability": "dex"}},
		{"unknown room", "saving_throw", map[string]any{"room_id": "nowhere", "character_id": "c1", "ability": "dex"}},
		{"negative damage", "apply_damage", map[string]any{"character_id": "c1", "amount": -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := h.call(t, tt.tool, tt.args, nil); !result.IsError {
				t.Fatalf("expected tool error, got %+v", result.StructuredContent)
			}
		})
	}
}

func TestDamageAndHealPersist(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()

	var damage rules.DamageResult
	h.call(t, "apply_damage", map[string]any{"character_id": "c2", "amount": 25, "damage_type": "fire"}, &damage)
	if damage.CurrentHP != 0 || damage.Status != rules.StatusUnconscious {
		t.Fatalf("damage = %+v", damage)
	}
	state, err := h.store.LoadRoomState(ctx, "tavern")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c2 := state.Characters["c2"]; c2.CurrentHP != 0 || !c2.HasCondition(rules.ConditionUnconscious) {
		t.Fatalf("saved c2 = %+v", c2)
	}

	var heal rules.HealResult
	h.call(t, "heal", map[string]any{"character_id": "c2", "amount": 50}, &heal)
	if heal.CurrentHP != 28 || heal.Status != rules.StatusConscious {
		t.Fatalf("heal = %+v", heal)
	}
	state, err = h.store.LoadRoomState(ctx, "tavern")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if c2 := state.Characters["c2"]; c2.CurrentHP != 28 || c2.HasCondition(rules.ConditionUnconscious) {
		t.Fatalf("saved c2 = %+v", c2)
	}
}
