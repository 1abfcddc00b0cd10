// Package state maps canonical events onto discrete Markov states.
//
// A Strategy is a pure, deterministic function from an event to a state
// label. The label is the vertex identity in the transition graph, so two
// strategies over the same event stream produce two different chains.
// Strategies must never mutate the event or consult external state.
package state

import "github.com/gyaneshwarpardhi/markovflow/internal/event"

// Strategy derives a state label from an event.
type Strategy interface {
	// Name returns the key this strategy is registered and configured under.
	Name() string
	// StateOf returns the state label for ev. Must be pure.
	StateOf(ev *event.Event) string
}

// EntityAction labels states as "<entity>:<action>". The default strategy:
// it keeps entity-level flow visible while collapsing actors.
type EntityAction struct{}

func (EntityAction) Name() string { return "entity_action" }

func (EntityAction) StateOf(ev *event.Event) string {
	return ev.EntityID + ":" + ev.Action
}

// ActorAction labels states as "<actor>:<action>", exposing per-seller
// behavior loops (self-dealing shows up as tight cycles between one actor's
// states).
type ActorAction struct{}

func (ActorAction) Name() string { return "actor_action" }

func (ActorAction) StateOf(ev *event.Event) string {
	return ev.ActorID + ":" + ev.Action
}

// ActionOnly collapses everything onto the action label. The coarsest chain;
// useful as a global traffic baseline.
type ActionOnly struct{}

func (ActionOnly) Name() string { return "action_only" }

func (ActionOnly) StateOf(ev *event.Event) string {
	return ev.Action
}

// EntityActionStage labels states as "<entity>:<action>@<stage>", where the
// stage comes from the event's context bag ("none" when absent).
type EntityActionStage struct{}

func (EntityActionStage) Name() string { return "entity_action_stage" }

func (EntityActionStage) StateOf(ev *event.Event) string {
	return ev.EntityID + ":" + ev.Action + "@" + ev.Stage()
}
