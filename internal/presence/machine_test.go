package presence

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"swellvoice/internal/match"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type memStore struct {
	id     string
	writes int
}

func (s *memStore) CurrentMatchID() (string, error) { return s.id, nil }
func (s *memStore) SetCurrentMatchID(id string) error {
	s.id = id
	s.writes++
	return nil
}
func (s *memStore) ClearCurrentMatchID() error {
	s.id = ""
	return nil
}

var errUnavailable = errors.New("live client not available")

func newTestMachine(store *memStore) (*Machine, *fakeClock) {
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	m := NewMachine(Options{
		GraceWindow: 15 * time.Second,
		Resolver:    match.NewResolver("lolvoice"),
		Store:       store,
		Now:         clock.Now,
	})
	return m, clock
}

func teamPlayers(team match.Team, n int) []match.PlayerInfo {
	players := make([]match.PlayerInfo, 0, n)
	for i := 0; i < n; i++ {
		players = append(players, match.PlayerInfo{
			DisplayName: fmt.Sprintf("%s-player-%d#TAG", team, i),
			CharacterID: "Ahri",
			Team:        team,
		})
	}
	return players
}

func ok(snap *match.Snapshot) match.Observation {
	return match.Observation{Snapshot: snap}
}

func failed() match.Observation {
	return match.Observation{Err: errUnavailable}
}

func start() match.Event {
	return match.Event{Name: match.EventMatchStart, Key: "GameStart#0", Source: match.SourceLiveClient}
}

func end(id int) match.Event {
	return match.Event{Name: match.EventMatchEnd, Key: fmt.Sprintf("GameEnd#%d", id), Source: match.SourceLiveClient}
}

func inMatch(events ...match.Event) *match.Snapshot {
	return &match.Snapshot{
		Team:         match.TeamOrder,
		IdentityName: "ORDER-player-0#TAG",
		Players:      append(teamPlayers(match.TeamOrder, 5), teamPlayers(match.TeamChaos, 5)...),
		Events:       events,
	}
}

func TestEndToEndFallbackRoom(t *testing.T) {
	store := &memStore{}
	m, clock := newTestMachine(store)

	rec := m.Step(failed(), nil)
	if rec.InGame || rec.Ready || rec.Error == "" {
		t.Fatalf("expected out of match with error, got %+v", rec)
	}

	clock.Advance(2 * time.Second)
	rec = m.Step(ok(&match.Snapshot{Team: match.TeamOrder, Events: []match.Event{start()}}), nil)
	fallback := m.FallbackID()
	if fallback == "" {
		t.Fatal("expected a fallback match id after MatchStart")
	}
	if store.id != fallback {
		t.Errorf("fallback not persisted: store has %q", store.id)
	}

	clock.Advance(2 * time.Second)
	rec = m.Step(ok(inMatch(start())), nil)

	if !rec.Ready || !rec.InGame || rec.State != InMatchReady {
		t.Fatalf("expected ready record, got %+v", rec)
	}
	if want := "lolvoice-" + fallback + "-ORDER"; rec.RoomName != want {
		t.Errorf("room name = %q, want %q", rec.RoomName, want)
	}
	if len(rec.Roster) != 5 || len(rec.Names) != 5 {
		t.Errorf("expected 5 teammates, got roster=%d names=%d", len(rec.Roster), len(rec.Names))
	}
	if store.writes != 1 {
		t.Errorf("fallback minted %d times, want 1", store.writes)
	}
}

func TestFallbackIdempotence(t *testing.T) {
	store := &memStore{}
	m, clock := newTestMachine(store)

	m.Step(ok(inMatch(start())), nil)
	first := m.FallbackID()

	for i := 0; i < 3; i++ {
		clock.Advance(2 * time.Second)
		lcuStart := match.Event{Name: match.EventMatchStart, Source: match.SourceLCU}
		restart := match.Event{Name: match.EventMatchStart, Key: fmt.Sprintf("GameStart#%d", 100+i)}
		m.Step(ok(inMatch(start(), restart)), []match.Event{lcuStart})
	}

	if m.FallbackID() != first {
		t.Errorf("fallback changed from %q to %q", first, m.FallbackID())
	}
	if store.writes != 1 {
		t.Errorf("store written %d times, want 1", store.writes)
	}
}

func TestServerMatchIDSkipsFallback(t *testing.T) {
	store := &memStore{}
	m, _ := newTestMachine(store)

	snap := inMatch(start())
	snap.MatchID = "6412345678"
	rec := m.Step(ok(snap), nil)

	if m.FallbackID() != "" {
		t.Errorf("no fallback expected with a server id, got %q", m.FallbackID())
	}
	if rec.RoomName != "lolvoice-6412345678-ORDER" {
		t.Errorf("unexpected room %q", rec.RoomName)
	}
}

func TestPendingWithoutTeam(t *testing.T) {
	m, _ := newTestMachine(&memStore{})

	rec := m.Step(ok(&match.Snapshot{Players: teamPlayers(match.TeamOrder, 5)}), nil)
	if !rec.InGame || rec.Ready || rec.State != InMatchPending {
		t.Errorf("expected pending record, got %+v", rec)
	}
	if rec.RoomName != "" {
		t.Errorf("pending record should carry no room, got %q", rec.RoomName)
	}
}

func TestGraceWindow(t *testing.T) {
	store := &memStore{}
	m, clock := newTestMachine(store)

	ready := m.Step(ok(inMatch(start())), nil)
	if !ready.Ready {
		t.Fatalf("expected ready, got %+v", ready)
	}

	clock.Advance(10 * time.Second)
	rec := m.Step(ok(inMatch(start(), end(7))), nil)
	if !rec.Ready {
		t.Fatalf("match end alone must not drop the room, got %+v", rec)
	}

	// source goes away during the end of game screens
	for _, step := range []time.Duration{2 * time.Second, 5 * time.Second, 8 * time.Second} {
		clock.Advance(step)
		rec = m.Step(failed(), nil)
		if rec.InGame || rec.Ready {
			t.Fatalf("failure tick should not be in game: %+v", rec)
		}
		if !rec.Retained || rec.RoomName != ready.RoomName || len(rec.Roster) != 5 {
			t.Fatalf("room should be retained inside the grace window, got %+v", rec)
		}
		if m.FallbackID() == "" {
			t.Fatal("fallback cleared before the grace window elapsed")
		}
	}

	// exactly 15s after the end: not yet expired
	if rec.Error == "" {
		t.Error("failure record should carry the error")
	}

	clock.Advance(time.Millisecond)
	rec = m.Step(failed(), nil)
	if rec.Retained || rec.RoomName != "" || rec.InGame || rec.Ready {
		t.Errorf("expected full reset, got %+v", rec)
	}
	if m.FallbackID() != "" || store.id != "" {
		t.Errorf("fallback should be cleared, machine=%q store=%q", m.FallbackID(), store.id)
	}
}

func TestMatchEndIsNotRefreshedByReplayedEvents(t *testing.T) {
	m, clock := newTestMachine(&memStore{})

	m.Step(ok(inMatch(start(), end(3))), nil)
	for i := 0; i < 8; i++ {
		clock.Advance(2 * time.Second)
		m.Step(ok(inMatch(start(), end(3))), nil)
	}

	if m.State() != OutOfMatch {
		t.Errorf("grace should have expired 16s after the first MatchEnd, state %s", m.State())
	}
}

func TestMatchOverLatch(t *testing.T) {
	m, clock := newTestMachine(&memStore{})

	m.Step(ok(inMatch(start())), nil)
	clock.Advance(10 * time.Second)
	m.Step(ok(inMatch(start(), end(9))), nil)

	clock.Advance(16 * time.Second)
	rec := m.Step(ok(inMatch(start(), end(9))), nil)
	if rec.InGame || rec.State != OutOfMatch {
		t.Fatalf("expected reset after grace, got %+v", rec)
	}

	// the finished match is still visible but must not flap back in
	clock.Advance(2 * time.Second)
	rec = m.Step(ok(inMatch(start(), end(9))), nil)
	if rec.InGame {
		t.Fatalf("finished match flapped back in: %+v", rec)
	}

	// client closes, next game starts with fresh event ids
	clock.Advance(2 * time.Second)
	m.Step(failed(), nil)
	clock.Advance(60 * time.Second)
	rec = m.Step(ok(inMatch(start())), nil)
	if !rec.Ready {
		t.Fatalf("new match should be ready, got %+v", rec)
	}
	if want := match.NewFallbackID(clock.Now()); m.FallbackID() != want {
		t.Errorf("expected new fallback %q, got %q", want, m.FallbackID())
	}
}

func TestLCUMatchStartReleasesLatch(t *testing.T) {
	m, clock := newTestMachine(&memStore{})

	m.Step(ok(inMatch(start(), end(1))), nil)
	clock.Advance(16 * time.Second)
	m.Step(ok(inMatch(start(), end(1))), nil)

	clock.Advance(2 * time.Second)
	rec := m.Step(ok(inMatch(start(), end(1))), []match.Event{{Name: match.EventMatchStart, Source: match.SourceLCU}})
	if !rec.Ready {
		t.Errorf("injected MatchStart should release the latch, got %+v", rec)
	}
}

func TestPersistedFallbackKeptThroughStartupOutage(t *testing.T) {
	minted := time.UnixMilli(1_700_000_000_000).Add(-10 * time.Minute)
	store := &memStore{id: match.NewFallbackID(minted)}
	m, clock := newTestMachine(store)

	m.Step(failed(), nil)
	clock.Advance(4 * time.Second)
	m.Step(failed(), nil)
	if m.FallbackID() != store.id || store.id == "" {
		t.Fatalf("fallback dropped during an outage: machine=%q store=%q", m.FallbackID(), store.id)
	}

	clock.Advance(2 * time.Second)
	snap := inMatch(start())
	snap.GameTime = 10 * time.Minute
	rec := m.Step(ok(snap), nil)
	if want := "lolvoice-" + match.NewFallbackID(minted) + "-ORDER"; rec.RoomName != want {
		t.Errorf("room = %q, want %q", rec.RoomName, want)
	}
	if store.writes != 0 {
		t.Errorf("no new fallback expected, store written %d times", store.writes)
	}
}

func TestPersistedFallbackSurvivesMidMatchRestart(t *testing.T) {
	minted := time.UnixMilli(1_700_000_000_000).Add(-20 * time.Minute)
	store := &memStore{id: match.NewFallbackID(minted)}
	m, _ := newTestMachine(store)

	snap := inMatch(start())
	snap.GameTime = 20*time.Minute + 30*time.Second
	rec := m.Step(ok(snap), nil)
	if want := "lolvoice-" + store.id + "-ORDER"; rec.RoomName != want {
		t.Errorf("restart should reuse the persisted fallback, got %q want %q", rec.RoomName, want)
	}
	if store.writes != 0 {
		t.Errorf("no new fallback expected, store written %d times", store.writes)
	}
}

func TestStaleFallbackReplacedInNewMatch(t *testing.T) {
	store := &memStore{id: "local-1600000000000"}
	m, clock := newTestMachine(store)

	snap := inMatch(start())
	snap.GameTime = 30 * time.Second
	rec := m.Step(ok(snap), nil)

	want := match.NewFallbackID(clock.Now())
	if m.FallbackID() != want || store.id != want {
		t.Errorf("expected fresh fallback %q, machine=%q store=%q", want, m.FallbackID(), store.id)
	}
	if rec.RoomName != "lolvoice-"+want+"-ORDER" {
		t.Errorf("unexpected room %q", rec.RoomName)
	}
}

func TestFinishedMatchStaysOverAfterBriefOutage(t *testing.T) {
	store := &memStore{}
	m, clock := newTestMachine(store)

	m.Step(ok(inMatch(start())), nil)
	clock.Advance(10 * time.Second)
	m.Step(ok(inMatch(start(), end(9))), nil)
	clock.Advance(16 * time.Second)
	if rec := m.Step(ok(inMatch(start(), end(9))), nil); rec.InGame {
		t.Fatalf("expected reset after grace, got %+v", rec)
	}

	clock.Advance(2 * time.Second)
	m.Step(failed(), nil)

	// end of game screen is still up
	clock.Advance(2 * time.Second)
	rec := m.Step(ok(inMatch(start(), end(9))), nil)
	if rec.InGame || rec.Ready || rec.RoomName != "" {
		t.Errorf("finished match came back after a brief outage: %+v", rec)
	}
	if m.FallbackID() != "" || store.writes != 1 {
		t.Errorf("no fallback expected, got %q after %d writes", m.FallbackID(), store.writes)
	}
}

func TestFinishedMatchStaysOverWhenGraceEndsDuringOutage(t *testing.T) {
	m, clock := newTestMachine(&memStore{})

	m.Step(ok(inMatch(start())), nil)
	clock.Advance(10 * time.Second)
	m.Step(ok(inMatch(start(), end(4))), nil)

	clock.Advance(5 * time.Second)
	m.Step(failed(), nil)
	clock.Advance(11 * time.Second)
	if rec := m.Step(failed(), nil); rec.RoomName != "" {
		t.Fatalf("expected reset after grace, got %+v", rec)
	}

	clock.Advance(time.Second)
	rec := m.Step(ok(inMatch(start(), end(4))), nil)
	if rec.InGame {
		t.Errorf("finished match flapped back in: %+v", rec)
	}
}

func TestRetainedRoomExpiresWithoutMatchEnd(t *testing.T) {
	m, clock := newTestMachine(&memStore{})

	m.Step(ok(inMatch(start())), nil)

	clock.Advance(10 * time.Second)
	if rec := m.Step(failed(), nil); !rec.Retained {
		t.Fatalf("short gap should retain the room, got %+v", rec)
	}

	clock.Advance(10 * time.Second)
	if rec := m.Step(failed(), nil); rec.Retained || rec.RoomName != "" {
		t.Errorf("room should be dropped after a long outage, got %+v", rec)
	}
}
