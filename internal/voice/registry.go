package voice

import (
	"sort"
	"strings"
)

// Participant is a remote member of the session
type Participant struct {
	Key         string  `json:"key"`
	DisplayName string  `json:"displayName"`
	Connected   bool    `json:"connected"`
	Speaking    bool    `json:"speaking"`
	Volume      float64 `json:"volume"`
	Muted       bool    `json:"muted"`
}

type sinkEntry struct {
	key  string
	sink Sink
}

// registry is keyed by participant key and track sid, so replayed or out of
// order callbacks never attach twice or miss a key
type registry struct {
	participants map[string]*Participant
	sinks        map[string]sinkEntry
	speakers     map[string]bool
	// track sid -> participant key while an attach is in flight
	attaching map[string]string
}

func newRegistry() *registry {
	return &registry{
		participants: make(map[string]*Participant),
		sinks:        make(map[string]sinkEntry),
		speakers:     make(map[string]bool),
		attaching:    make(map[string]string),
	}
}

// ParticipantKey normalizes a participant name or identity
func ParticipantKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *registry) connect(key, name string) *Participant {
	p, ok := r.participants[key]
	if !ok {
		p = &Participant{Key: key, DisplayName: name}
		r.participants[key] = p
	}
	if name != "" {
		p.DisplayName = name
	}
	p.Connected = true
	p.Speaking = r.speakers[key]
	return p
}

// disconnect removes the participant and returns its sinks for detaching
func (r *registry) disconnect(key string) []Sink {
	delete(r.participants, key)
	var sinks []Sink
	for sid, e := range r.sinks {
		if e.key == key {
			sinks = append(sinks, e.sink)
			delete(r.sinks, sid)
		}
	}
	for sid, k := range r.attaching {
		if k == key {
			delete(r.attaching, sid)
		}
	}
	return sinks
}

// hasSink is true for attached and attaching tracks
func (r *registry) hasSink(sid string) bool {
	if _, ok := r.attaching[sid]; ok {
		return true
	}
	_, ok := r.sinks[sid]
	return ok
}

func (r *registry) reserve(sid, key string) {
	r.attaching[sid] = key
}

// claim ends a reservation. ok is false when the track was unsubscribed or
// its participant left while the attach was in flight.
func (r *registry) claim(sid string) (key string, ok bool) {
	key, ok = r.attaching[sid]
	delete(r.attaching, sid)
	return key, ok
}

func (r *registry) addSink(sid, key string, sink Sink) {
	r.sinks[sid] = sinkEntry{key: key, sink: sink}
}

// removeSink drops the track, and its participant once no track is left
func (r *registry) removeSink(sid string) (Sink, bool) {
	if key, ok := r.attaching[sid]; ok {
		delete(r.attaching, sid)
		r.dropIfIdle(key)
		return nil, false
	}
	e, ok := r.sinks[sid]
	if !ok {
		return nil, false
	}
	delete(r.sinks, sid)
	r.dropIfIdle(e.key)
	return e.sink, true
}

func (r *registry) dropIfIdle(key string) {
	for _, e := range r.sinks {
		if e.key == key {
			return
		}
	}
	for _, k := range r.attaching {
		if k == key {
			return
		}
	}
	delete(r.participants, key)
}

// drain empties the registry and returns every sink
func (r *registry) drain() []Sink {
	sinks := make([]Sink, 0, len(r.sinks))
	for _, e := range r.sinks {
		sinks = append(sinks, e.sink)
	}
	clear(r.sinks)
	clear(r.participants)
	clear(r.speakers)
	clear(r.attaching)
	return sinks
}

func (r *registry) setSpeakers(keys []string) {
	clear(r.speakers)
	for _, k := range keys {
		r.speakers[k] = true
	}
	for key, p := range r.participants {
		p.Speaking = r.speakers[key]
	}
}

// withSinks counts participants that have at least one sink
func (r *registry) withSinks() int {
	seen := make(map[string]bool)
	for _, e := range r.sinks {
		seen[e.key] = true
	}
	return len(seen)
}

func (r *registry) snapshot() []Participant {
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (r *registry) activeSpeakers() []string {
	out := make([]string, 0, len(r.speakers))
	for k := range r.speakers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
