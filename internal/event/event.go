package event

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validation errors returned by Validate, one per required field.
var (
	ErrMissingActor     = errors.New("event: actor_id is required")
	ErrMissingEntity    = errors.New("event: entity_id is required")
	ErrMissingAction    = errors.New("event: action is required")
	ErrMissingTimestamp = errors.New("event: timestamp is required")
)

// Event is the canonical input model for all observed marketplace actions.
// Immutable once ingested.
type Event struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	ActorID    string            `json:"actor_id"`
	EntityID   string            `json:"entity_id"`
	Action     string            `json:"action"` // "list", "bid", "purchase", etc.
	Context    map[string]string `json:"context,omitempty"`
	ReceivedAt time.Time         `json:"-"`
}

// Normalize fills server-side defaults and canonicalizes free-form fields.
// Called exactly once, at ingestion.
func (e *Event) Normalize(now time.Time) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.ActorID = strings.TrimSpace(e.ActorID)
	e.EntityID = strings.TrimSpace(e.EntityID)
	e.Action = strings.ToLower(strings.TrimSpace(e.Action))
	e.ReceivedAt = now
}

// Validate checks the required canonical fields. It returns the first
// violation so API callers get a single actionable message.
func (e *Event) Validate() error {
	if e.ActorID == "" {
		return ErrMissingActor
	}
	if e.EntityID == "" {
		return ErrMissingEntity
	}
	if e.Action == "" {
		return ErrMissingAction
	}
	if e.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// Stage returns the session stage carried in the context bag, or "none".
func (e *Event) Stage() string {
	if s, ok := e.Context["session_stage"]; ok && s != "" {
		return strings.ToLower(s)
	}
	return "none"
}
