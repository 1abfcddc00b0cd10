package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/markovflow/internal/alert"
	"github.com/gyaneshwarpardhi/markovflow/internal/event"
	"github.com/gyaneshwarpardhi/markovflow/internal/store"
)

func appendEvents(t *testing.T, s store.EventStore, n int) {
	t.Helper()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ev := &event.Event{
			ID:         fmt.Sprintf("evt-%03d", i),
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			ActorID:    "actor",
			EntityID:   "entity",
			Action:     "view",
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AppendEvent(context.Background(), ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
}

func TestMemoryEventsNewestFirst(t *testing.T) {
	m := store.NewMemory(10, 10)
	appendEvents(t, m, 5)

	got, err := m.RecentEvents(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != "evt-004" || got[2].ID != "evt-002" {
		t.Errorf("order = %s..%s, want evt-004..evt-002", got[0].ID, got[2].ID)
	}
}

func TestMemoryEventCapDropsOldest(t *testing.T) {
	m := store.NewMemory(3, 10)
	appendEvents(t, m, 5)

	got, err := m.RecentEvents(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (capped)", len(got))
	}
	if got[len(got)-1].ID != "evt-002" {
		t.Errorf("oldest kept = %s, want evt-002", got[len(got)-1].ID)
	}

	// Total count survives trimming.
	n, err := m.CountEvents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("CountEvents = %d, want 5", n)
	}
}

func TestMemoryAlerts(t *testing.T) {
	m := store.NewMemory(10, 2)
	for i := 0; i < 3; i++ {
		a := &alert.Alert{
			ID:          fmt.Sprintf("alert-%d", i),
			ScenarioID:  "sc",
			Severity:    alert.SeverityWarning,
			TriggeredAt: time.Now(),
		}
		if err := m.SaveAlert(context.Background(), a); err != nil {
			t.Fatal(err)
		}
	}

	got, err := m.RecentAlerts(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (capped)", len(got))
	}
	if got[0].ID != "alert-2" {
		t.Errorf("newest = %s, want alert-2", got[0].ID)
	}
}
