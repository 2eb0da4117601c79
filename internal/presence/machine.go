// Package presence turns live client observations into presence records.
//
// The Machine is a pure step function over observations driven by an
// injected clock and fallback store; the Tracker owns one Machine and feeds
// it from a poll loop.
package presence

import (
	"time"

	"swellvoice/internal/logger"
	"swellvoice/internal/match"
	"swellvoice/internal/metrics"

	"go.uber.org/zap"
)

// State is the coarse presence state
type State string

const (
	OutOfMatch     State = "OUT_OF_MATCH"
	InMatchPending State = "IN_MATCH_PENDING"
	InMatchReady   State = "IN_MATCH_READY"
)

// AllStates lists every state, used for the state gauge
var AllStates = []string{string(OutOfMatch), string(InMatchPending), string(InMatchReady)}

// DefaultGraceWindow debounces the end of a match
const DefaultGraceWindow = 15 * time.Second

// maxFallbackSkew bounds how long before the reported game start a fallback
// id may have been minted and still belong to that game
const maxFallbackSkew = 2 * time.Minute

// FallbackStore persists the fallback match id across restarts
type FallbackStore interface {
	CurrentMatchID() (string, error)
	SetCurrentMatchID(id string) error
	ClearCurrentMatchID() error
}

// Record is what the UI sees after every tick
type Record struct {
	InGame       bool                `json:"inGame"`
	Ready        bool                `json:"ready"`
	State        State               `json:"state"`
	Team         match.Team          `json:"team,omitempty"`
	RoomName     string              `json:"roomName,omitempty"`
	IdentityName string              `json:"identityName,omitempty"`
	Roster       []match.RosterEntry `json:"roster,omitempty"`
	Names        []string            `json:"names,omitempty"`
	Mode         string              `json:"mode,omitempty"`
	Map          string              `json:"map,omitempty"`
	MatchTimeSec float64             `json:"matchTimeSec,omitempty"`
	// Retained marks a room carried over from an earlier tick while the
	// source is unavailable
	Retained bool   `json:"retained,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Options configures a Machine
type Options struct {
	GraceWindow time.Duration
	Resolver    *match.Resolver
	Store       FallbackStore
	Now         func() time.Time
	Log         *zap.Logger
}

// Machine is the presence state machine. It is not safe for concurrent use.
type Machine struct {
	grace    time.Duration
	resolver *match.Resolver
	store    FallbackStore
	now      func() time.Time
	log      *zap.Logger

	state        State
	fallbackID   string
	lastMatchEnd time.Time
	lastSuccess  time.Time
	matchOver    bool
	latchedAt    time.Time
	down         bool
	verified     bool
	seen         map[string]struct{}
	lastRoom     *match.RoomIdentity
}

// NewMachine creates a machine and loads any persisted fallback id
func NewMachine(opts Options) *Machine {
	m := &Machine{
		grace:    opts.GraceWindow,
		resolver: opts.Resolver,
		store:    opts.Store,
		now:      opts.Now,
		log:      logger.OrNop(opts.Log),
		state:    OutOfMatch,
		seen:     make(map[string]struct{}),
	}
	if m.grace <= 0 {
		m.grace = DefaultGraceWindow
	}
	if m.resolver == nil {
		m.resolver = match.NewResolver("")
	}
	if m.now == nil {
		m.now = time.Now
	}

	if m.store != nil {
		id, err := m.store.CurrentMatchID()
		if err != nil {
			m.log.Warn("failed to load fallback match id", zap.Error(err))
		}
		m.fallbackID = id
	}
	return m
}

// State returns the state after the last step
func (m *Machine) State() State { return m.state }

// FallbackID returns the active fallback match id, if any
func (m *Machine) FallbackID() string { return m.fallbackID }

// Step advances the machine by one tick. extra carries events observed
// elsewhere (the launcher's gameflow phase) since the previous tick.
func (m *Machine) Step(obs match.Observation, extra []match.Event) Record {
	now := m.now()

	quiet := m.lastSuccess
	if m.latchedAt.After(quiet) {
		quiet = m.latchedAt
	}
	if obs.OK() && m.down && now.Sub(quiet) > m.grace {
		// back after the source was gone long enough for this to be a new
		// game; event ids restart with every game
		clear(m.seen)
		m.matchOver = false
	}
	m.down = !obs.OK()
	if obs.OK() {
		m.lastSuccess = now
		if !m.verified {
			m.verified = true
			m.verifyFallback(now, obs.Snapshot)
		}
	}

	events := extra
	if obs.OK() {
		events = append(append([]match.Event(nil), extra...), obs.Snapshot.Events...)
	}
	for _, ev := range events {
		if ev.Key != "" {
			if _, dup := m.seen[ev.Key]; dup {
				continue
			}
			m.seen[ev.Key] = struct{}{}
		}
		switch ev.Name {
		case match.EventMatchStart:
			if ev.Source == match.SourceLCU {
				clear(m.seen)
			}
			m.onMatchStart(now, obs)
		case match.EventMatchEnd:
			m.log.Debug("match end", zap.String("source", string(ev.Source)))
			m.lastMatchEnd = now
		}
	}

	if m.graceExpired(now) {
		m.reset(now)
		return m.emit(Record{State: OutOfMatch, Error: errString(obs)})
	}

	if !obs.OK() {
		rec := Record{State: OutOfMatch, Error: errString(obs)}
		if m.lastRoom != nil && m.lastMatchEnd.IsZero() && now.Sub(m.lastSuccess) > m.grace {
			m.lastRoom = nil
		}
		if m.lastRoom != nil {
			fillRoom(&rec, *m.lastRoom)
			rec.Retained = true
		}
		return m.emit(rec)
	}

	if m.matchOver {
		return m.emit(Record{State: OutOfMatch})
	}

	snap := obs.Snapshot
	rec := Record{
		InGame:       true,
		State:        InMatchPending,
		Team:         snap.Team,
		IdentityName: snap.IdentityName,
		Mode:         snap.Mode,
		Map:          snap.Map,
		MatchTimeSec: snap.GameTime.Seconds(),
	}
	if room, ok := m.resolver.Derive(snap, m.fallbackID); ok {
		m.lastRoom = &room
		fillRoom(&rec, room)
		rec.Ready = true
		rec.State = InMatchReady
	}
	return m.emit(rec)
}

func (m *Machine) onMatchStart(now time.Time, obs match.Observation) {
	m.lastMatchEnd = time.Time{}
	m.matchOver = false

	if m.fallbackID != "" {
		return
	}
	if obs.OK() && obs.Snapshot.MatchID != "" {
		return
	}

	id := match.NewFallbackID(now)
	m.fallbackID = id
	if m.store != nil {
		if err := m.store.SetCurrentMatchID(id); err != nil {
			m.log.Warn("failed to persist fallback match id", zap.Error(err))
		}
	}
	metrics.FallbackMinted.Inc()
	m.log.Info("minted fallback match id", zap.String("id", id))
}

func (m *Machine) graceExpired(now time.Time) bool {
	return !m.lastMatchEnd.IsZero() && now.Sub(m.lastMatchEnd) > m.grace
}

// reset clears everything tied to the finished match. The latch holds
// until a new MatchStart or an outage longer than the grace window.
func (m *Machine) reset(now time.Time) {
	m.log.Info("grace window elapsed, resetting presence")
	m.clearFallback()
	m.lastMatchEnd = time.Time{}
	m.lastRoom = nil
	m.matchOver = true
	m.latchedAt = now
	metrics.GraceResets.Inc()
}

// verifyFallback drops a persisted fallback id minted before the match the
// source now reports
func (m *Machine) verifyFallback(now time.Time, snap *match.Snapshot) {
	if m.fallbackID == "" {
		return
	}
	minted, ok := match.FallbackTime(m.fallbackID)
	if ok && !minted.Before(now.Add(-snap.GameTime-maxFallbackSkew)) {
		return
	}
	m.log.Info("discarding stale fallback match id", zap.String("id", m.fallbackID))
	m.clearFallback()
}

func (m *Machine) clearFallback() {
	m.fallbackID = ""
	if m.store != nil {
		if err := m.store.ClearCurrentMatchID(); err != nil {
			m.log.Warn("failed to clear fallback match id", zap.Error(err))
		}
	}
}

func (m *Machine) emit(rec Record) Record {
	m.state = rec.State
	return rec
}

func fillRoom(rec *Record, room match.RoomIdentity) {
	rec.Team = room.Team
	rec.RoomName = room.RoomName
	rec.IdentityName = room.IdentityName
	rec.Roster = room.Roster
	rec.Names = room.Names()
}

func errString(obs match.Observation) string {
	switch {
	case obs.OK():
		return ""
	case obs.Err != nil:
		return obs.Err.Error()
	default:
		return "no snapshot"
	}
}
