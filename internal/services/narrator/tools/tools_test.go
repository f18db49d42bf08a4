package tools

import (
	"slices"
	"testing"
)

func TestDefinitionsCoverEveryTool(t *testing.T) {
	defs, err := Definitions()
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}
	if len(defs) != len(All()) {
		t.Fatalf("definitions = %d, want %d", len(defs), len(All()))
	}
	for i, name := range All() {
		if defs[i].Name != string(name) {
			t.Fatalf("definition %d = %q, want %q", i, defs[i].Name, name)
		}
		if defs[i].Parameters["type"] != "object" {
			t.Fatalf("%s parameters type = %v", name, defs[i].Parameters["type"])
		}
	}
}

func TestCheckSchemaRequiresFieldsAndEnumeratesAbilities(t *testing.T) {
	defs, err := Definitions()
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}
	params := defs[0].Parameters

	required := toStrings(params["required"])
	for _, field := range []string{"characterId", "ability", "dc", "reason"} {
		if !slices.Contains(required, field) {
			t.Fatalf("required = %v, missing %q", required, field)
		}
	}
	if slices.Contains(required, "rollType") {
		t.Fatal("rollType should be optional")
	}

	props := params["properties"].(map[string]any)
	ability := props["ability"].(map[string]any)
	if enum := toStrings(ability["enum"]); len(enum) != 6 || enum[0] != "strength" {
		t.Fatalf("ability enum = %v", enum)
	}
	if dc := props["dc"].(map[string]any); dc["type"] != "number" {
		t.Fatalf("dc type = %v, want number", dc["type"])
	}
	rollType := props["rollType"].(map[string]any)
	if enum := toStrings(rollType["enum"]); !slices.Equal(enum, []string{"normal", "advantage", "disadvantage"}) {
		t.Fatalf("rollType enum = %v", enum)
	}
}

func TestDecode(t *testing.T) {
	args, err := Decode[CheckArgs](`{"characterId":"c1","ability":"dexterity","dc":15,"reason":"jump"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if args.CharacterID != "c1" || args.DC != 15 || args.RollType != "" {
		t.Fatalf("args = %+v", args)
	}

	empty, err := Decode[RestrictActionArgs]("  ")
	if err != nil || len(empty.CharacterIDs) != 0 {
		t.Fatalf("empty decode = %+v, %v", empty, err)
	}

	if _, err := Decode[CheckArgs](`{"dc": "fifteen"`); err == nil {
		t.Fatal("expected error for malformed arguments")
	}
}

func TestDifficultyRoundsUp(t *testing.T) {
	tcs := []struct {
		args string
		want int
	}{
		{args: `{"dc":15}`, want: 15},
		{args: `{"dc":12.5}`, want: 13},
		{args: `{"dc":1.2e1}`, want: 12},
		{args: `{"dc":14.0}`, want: 14},
		{args: `{}`, want: 0},
	}
	for _, tc := range tcs {
		args, err := Decode[CheckArgs](tc.args)
		if err != nil {
			t.Fatalf("decode %s: %v", tc.args, err)
		}
		if got := args.Difficulty(); got != tc.want {
			t.Fatalf("Difficulty(%s) = %d, want %d", tc.args, got, tc.want)
		}
	}

	group, err := Decode[GroupCheckArgs](`{"ability":"dexterity","dc":9.1}`)
	if err != nil {
		t.Fatalf("decode group: %v", err)
	}
	if got := group.Difficulty(); got != 10 {
		t.Fatalf("group difficulty = %d, want 10", got)
	}
}

func toStrings(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, _ := item.(string)
		out = append(out, s)
	}
	return out
}
