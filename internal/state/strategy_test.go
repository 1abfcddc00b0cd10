package state_test

import (
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/markovflow/internal/event"
	"github.com/gyaneshwarpardhi/markovflow/internal/state"
)

func makeEvent(actor, entity, action string, ctx map[string]string) *event.Event {
	return &event.Event{
		ID:        "test-evt",
		Timestamp: time.Now(),
		ActorID:   actor,
		EntityID:  entity,
		Action:    action,
		Context:   ctx,
	}
}

func TestStrategies(t *testing.T) {
	ev := makeEvent("seller_9", "item_123", "bid", map[string]string{"session_stage": "browse"})

	cases := []struct {
		strategy string
		want     string
	}{
		{"entity_action", "item_123:bid"},
		{"actor_action", "seller_9:bid"},
		{"action_only", "bid"},
		{"entity_action_stage", "item_123:bid@browse"},
	}

	reg := state.NewRegistry()
	for _, tc := range cases {
		t.Run(tc.strategy, func(t *testing.T) {
			s, err := reg.Get(tc.strategy)
			if err != nil {
				t.Fatalf("Get(%q): %v", tc.strategy, err)
			}
			if got := s.StateOf(ev); got != tc.want {
				t.Errorf("StateOf = %q, want %q", got, tc.want)
			}
			// Determinism: same event, same label.
			if got := s.StateOf(ev); got != tc.want {
				t.Errorf("second StateOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStageDefault(t *testing.T) {
	ev := makeEvent("a", "e", "view", nil)
	s, err := state.NewRegistry().Get("entity_action_stage")
	if err != nil {
		t.Fatal(err)
	}
	if got := s.StateOf(ev); got != "e:view@none" {
		t.Errorf("StateOf = %q, want e:view@none", got)
	}
}

func TestRegistryUnknown(t *testing.T) {
	if _, err := state.NewRegistry().Get("no_such"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
