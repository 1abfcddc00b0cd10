// Package store persists ingested events and emitted alerts.
//
// Two implementations ship: a bounded in-memory store for single-node
// deployments and tests, and a postgres store for durable archives. The
// detector holds its working window in memory either way; the store is the
// audit trail.
package store

import (
	"context"

	"github.com/gyaneshwarpardhi/markovflow/internal/alert"
	"github.com/gyaneshwarpardhi/markovflow/internal/event"
)

// EventStore archives canonical events.
type EventStore interface {
	// AppendEvent records one normalized, validated event.
	AppendEvent(ctx context.Context, ev *event.Event) error
	// RecentEvents returns up to limit events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]*event.Event, error)
	// CountEvents returns the number of archived events.
	CountEvents(ctx context.Context) (int64, error)
}

// AlertStore archives emitted alerts.
type AlertStore interface {
	// SaveAlert records one alert.
	SaveAlert(ctx context.Context, a *alert.Alert) error
	// RecentAlerts returns up to limit alerts, newest first.
	RecentAlerts(ctx context.Context, limit int) ([]*alert.Alert, error)
}

// Store bundles both concerns; each implementation satisfies it.
type Store interface {
	EventStore
	AlertStore
	// Close releases underlying resources.
	Close() error
}
