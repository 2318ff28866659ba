package types

import "testing"

func TestBuildValidate(t *testing.T) {
	tests := []struct {
		name     string
		build    Build
		wantCode ErrorCode
	}{
		{
			name: "valid build",
			build: Build{Name: "boss rush", Slots: []BuildSlot{
				{Position: 0, RelicID: "a"},
				{Position: 1, RelicID: "b"},
			}},
			wantCode: "",
		},
		{
			name: "too many slots",
			build: Build{Name: "hoard", Slots: []BuildSlot{
				{Position: 0, RelicID: "a"}, {Position: 1, RelicID: "b"},
				{Position: 2, RelicID: "c"}, {Position: 3, RelicID: "d"},
				{Position: 4, RelicID: "e"}, {Position: 5, RelicID: "f"},
				{Position: 6, RelicID: "g"}, {Position: 7, RelicID: "h"},
				{Position: 8, RelicID: "i"}, {Position: 9, RelicID: "j"},
			}},
			wantCode: ErrInvalidBuildSize,
		},
		{
			name: "duplicate relic",
			build: Build{Name: "twins", Slots: []BuildSlot{
				{Position: 0, RelicID: "a"},
				{Position: 1, RelicID: "a"},
			}},
			wantCode: ErrDuplicateRelics,
		},
		{
			name: "position clash",
			build: Build{Name: "overlap", Slots: []BuildSlot{
				{Position: 0, RelicID: "a"},
				{Position: 0, RelicID: "b"},
			}},
			wantCode: ErrInvalidBuildSize,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build.Validate()
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Validate error: %v", err)
				}
				return
			}
			if got := CodeOf(err); got != tt.wantCode {
				t.Errorf("code = %s, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestNormalizeSlots(t *testing.T) {
	b := Build{Slots: []BuildSlot{
		{Position: 7, RelicID: "c"},
		{Position: 2, RelicID: "a"},
		{Position: 4, RelicID: "b"},
	}}
	b.NormalizeSlots()
	want := []string{"a", "b", "c"}
	for i, s := range b.Slots {
		if s.Position != i {
			t.Errorf("slot %d position = %d, want dense %d", i, s.Position, i)
		}
		if s.RelicID != want[i] {
			t.Errorf("slot %d relic = %s, want %s", i, s.RelicID, want[i])
		}
	}
}

func TestMergedContext(t *testing.T) {
	base := &CombatContext{
		CombatStyle: StyleRanged,
		Conditions:  map[string]any{"enemy_type": "beast"},
	}
	b := Build{Slots: []BuildSlot{
		{Position: 0, RelicID: "a", ConditionOverrides: map[string]any{"chainPosition": 2}},
		{Position: 1, RelicID: "b", ConditionOverrides: map[string]any{"enemy_type": "dragon"}},
	}}
	merged := b.MergedContext(base)
	if merged.CombatStyle != StyleRanged {
		t.Errorf("style = %s, want ranged", merged.CombatStyle)
	}
	if et, _ := merged.EnemyType(); et != "dragon" {
		t.Errorf("enemy_type = %q, want later slot to win", et)
	}
	if cp, ok := merged.ChainPosition(); !ok || cp != 2 {
		t.Errorf("chain_position = %d, %v; want canonicalized override", cp, ok)
	}
	// The base map must not be mutated.
	if base.Conditions["enemy_type"] != "beast" {
		t.Error("MergedContext mutated the base context")
	}
}
