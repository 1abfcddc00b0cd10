package markov

import (
	"sort"
	"time"

	"github.com/gyaneshwarpardhi/markovflow/internal/event"
	"github.com/gyaneshwarpardhi/markovflow/internal/state"
)

// Session is one actor's contiguous run of activity: consecutive states
// inside a session form the observed transitions.
type Session struct {
	ActorID string
	Start   time.Time
	End     time.Time
	States  []string
}

// Sessionize groups events per actor, orders them by timestamp, and splits
// each actor's stream wherever the gap between consecutive events exceeds
// gap. Each event is mapped to its state label via strat. The returned
// sessions are ordered by actor then start time.
func Sessionize(events []*event.Event, strat state.Strategy, gap time.Duration) []Session {
	byActor := make(map[string][]*event.Event)
	for _, ev := range events {
		byActor[ev.ActorID] = append(byActor[ev.ActorID], ev)
	}

	actors := make([]string, 0, len(byActor))
	for a := range byActor {
		actors = append(actors, a)
	}
	sort.Strings(actors)

	var sessions []Session
	for _, actor := range actors {
		stream := byActor[actor]
		sort.SliceStable(stream, func(i, j int) bool {
			return stream[i].Timestamp.Before(stream[j].Timestamp)
		})

		cur := Session{ActorID: actor, Start: stream[0].Timestamp}
		for i, ev := range stream {
			if i > 0 && ev.Timestamp.Sub(stream[i-1].Timestamp) > gap {
				cur.End = stream[i-1].Timestamp
				sessions = append(sessions, cur)
				cur = Session{ActorID: actor, Start: ev.Timestamp}
			}
			cur.States = append(cur.States, strat.StateOf(ev))
		}
		cur.End = stream[len(stream)-1].Timestamp
		sessions = append(sessions, cur)
	}
	return sessions
}

// BuildMatrix sessionizes events and accumulates every session's consecutive
// state pairs into a normalized transition matrix.
func BuildMatrix(events []*event.Event, strat state.Strategy, gap time.Duration) *Matrix {
	b := NewBuilder()
	for _, s := range Sessionize(events, strat, gap) {
		b.ObserveSeq(s.States)
	}
	return b.Build()
}
