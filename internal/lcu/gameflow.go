package lcu

import (
	"sync"

	"swellvoice/internal/match"
)

// Gameflow phases reported by the LCU that matter for presence
const (
	PhaseNone            = "None"
	PhaseInProgress      = "InProgress"
	PhasePreEndOfGame    = "PreEndOfGame"
	PhaseWaitingForStats = "WaitingForStats"
	PhaseEndOfGame       = "EndOfGame"
	PhaseReconnect       = "Reconnect"
)

// PhaseEvent maps a gameflow phase onto a match event
func PhaseEvent(phase string) (match.Event, bool) {
	switch phase {
	case PhaseInProgress:
		return match.Event{Name: match.EventMatchStart, Source: match.SourceLCU}, true
	case PhasePreEndOfGame, PhaseWaitingForStats, PhaseEndOfGame:
		return match.Event{Name: match.EventMatchEnd, Source: match.SourceLCU}, true
	default:
		return match.Event{}, false
	}
}

// PhaseFilter turns a stream of phases into match events, dropping repeats
// of the same phase and of the same event kind.
type PhaseFilter struct {
	mu        sync.Mutex
	lastPhase string
	lastEvent match.EventName
}

// Next returns the event for phase, if it is new
func (f *PhaseFilter) Next(phase string) (match.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if phase == f.lastPhase {
		return match.Event{}, false
	}
	f.lastPhase = phase

	ev, ok := PhaseEvent(phase)
	if !ok {
		// Back in the lobby: the next InProgress is a new match. Reconnect
		// rejoins the same match and keeps the latch.
		if phase != PhaseReconnect {
			f.lastEvent = ""
		}
		return match.Event{}, false
	}
	if ev.Name == f.lastEvent {
		return match.Event{}, false
	}
	f.lastEvent = ev.Name
	return ev, true
}

// Reset forgets the last phase, e.g. after the LCU reconnects
func (f *PhaseFilter) Reset() {
	f.mu.Lock()
	f.lastPhase = ""
	f.lastEvent = ""
	f.mu.Unlock()
}
