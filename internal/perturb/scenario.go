// Package perturb measures how the chain's equilibrium shifts when a set of
// actors or entities is hypothetically removed from the event population.
package perturb

import (
	"github.com/gyaneshwarpardhi/markovflow/internal/event"
)

// Scenario names an exclusion set. Applying it filters the event population;
// the chain is then rebuilt and re-solved for comparison against baseline.
type Scenario struct {
	ID              string   `yaml:"id" json:"id"`
	Name            string   `yaml:"name" json:"name"`
	ExcludeActors   []string `yaml:"exclude_actors" json:"exclude_actors,omitempty"`
	ExcludeEntities []string `yaml:"exclude_entities" json:"exclude_entities,omitempty"`
}

// Excludes reports whether ev is removed under this scenario.
func (s *Scenario) Excludes(ev *event.Event) bool {
	for _, a := range s.ExcludeActors {
		if ev.ActorID == a {
			return true
		}
	}
	for _, e := range s.ExcludeEntities {
		if ev.EntityID == e {
			return true
		}
	}
	return false
}

// Apply partitions events into the kept population and the excluded count.
// The input slice is never modified.
func (s *Scenario) Apply(events []*event.Event) (kept []*event.Event, excluded int) {
	kept = make([]*event.Event, 0, len(events))
	for _, ev := range events {
		if s.Excludes(ev) {
			excluded++
			continue
		}
		kept = append(kept, ev)
	}
	return kept, excluded
}
