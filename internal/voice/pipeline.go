// Package voice owns the local microphone chain and the remote rendering
// chain of a voice session. Media primitives come from an Engine; this
// package decides what is enabled, how loud each sink plays and in which
// order everything is released.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"swellvoice/internal/logger"
	"swellvoice/internal/metrics"

	"go.uber.org/zap"
)

// Status is the session lifecycle
type Status string

const (
	StatusIdle            Status = "idle"
	StatusRequestingToken Status = "requesting-token"
	StatusConnecting      Status = "connecting"
	StatusConnected       Status = "connected"
	StatusError           Status = "error"
	StatusClosed          Status = "closed"
)

// ErrClosed is returned by Join when the session was left or replaced while joining
var ErrClosed = errors.New("voice session closed")

// TokenSource fetches the media server url and access token
type TokenSource func(ctx context.Context) (url, token string, err error)

// State is a snapshot for the UI
type State struct {
	Status       Status        `json:"status"`
	Error        string        `json:"error,omitempty"`
	Room         string        `json:"room,omitempty"`
	Muted        bool          `json:"muted"`
	MuteAll      bool          `json:"muteAll"`
	PTTHeld      bool          `json:"pttHeld"`
	TrackEnabled bool          `json:"trackEnabled"`
	Participants []Participant `json:"participants"`
	Speakers     []string      `json:"speakers"`
	Settings     Settings      `json:"settings"`
}

// resources are released in field order
type resources struct {
	sinks   []Sink
	track   LocalTrack
	mic     Microphone
	graph   AudioGraph
	session Session
}

// Pipeline runs at most one session at a time. All methods are safe for concurrent use.
type Pipeline struct {
	engine   Engine
	log      *zap.Logger
	onChange func(State)

	mu         sync.Mutex
	gen        uint64
	settings   Settings
	status     Status
	errMsg     string
	room       string
	muted      bool
	muteAll    bool
	pttHeld    bool
	volumes    map[string]float64
	mutedUsers map[string]bool
	reg        *registry
	pending    []Event

	session Session
	mic     Microphone
	graph   AudioGraph
	track   LocalTrack
}

// NewPipeline creates an idle pipeline. onChange receives a snapshot after every change.
func NewPipeline(engine Engine, settings Settings, log *zap.Logger, onChange func(State)) *Pipeline {
	return &Pipeline{
		engine:     engine,
		log:        logger.OrNop(log),
		onChange:   onChange,
		settings:   settings.Normalize(),
		status:     StatusIdle,
		volumes:    make(map[string]float64),
		mutedUsers: make(map[string]bool),
		reg:        newRegistry(),
	}
}

// Join leaves any current session and connects to room. It returns once the
// microphone is published or the attempt failed; failures also land in State.
func (p *Pipeline) Join(ctx context.Context, room string, tokens TokenSource) error {
	p.Leave()

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.room = room
	p.errMsg = ""
	p.pending = nil
	p.status = StatusRequestingToken
	p.mu.Unlock()
	p.changed()

	url, token, err := tokens(ctx)
	if err != nil {
		return p.fail(gen, err)
	}

	if !p.adopt(gen, func() { p.status = StatusConnecting }) {
		return ErrClosed
	}
	p.changed()

	session, err := p.engine.Connect(ctx, url, token)
	if err != nil {
		return p.fail(gen, fmt.Errorf("connect: %w", err))
	}
	if !p.adopt(gen, func() { p.session = session }) {
		p.release(resources{session: session})
		return ErrClosed
	}
	p.replayPending(ctx, session.ID())

	p.mu.Lock()
	opts, gain := p.settings.Capture(), p.settings.MicGain
	p.mu.Unlock()

	mic, err := p.engine.OpenMicrophone(ctx, opts)
	if err != nil {
		return p.fail(gen, fmt.Errorf("microphone: %w", err))
	}
	if !p.adopt(gen, func() { p.mic = mic }) {
		p.release(resources{mic: mic})
		return ErrClosed
	}

	graph, err := p.engine.NewGainGraph(ctx, mic, gain)
	if err != nil {
		return p.fail(gen, fmt.Errorf("gain graph: %w", err))
	}
	adopted := p.adopt(gen, func() {
		p.graph = graph
		p.track = graph.Track()
		if p.settings.MicGain != gain {
			p.setGainLocked()
		}
		// gated before it is published
		p.pttHeld = false
		p.applyGateLocked()
	})
	if !adopted {
		p.release(resources{track: graph.Track(), graph: graph})
		return ErrClosed
	}

	if err := session.Publish(ctx, graph.Track()); err != nil {
		return p.fail(gen, fmt.Errorf("publish: %w", err))
	}

	if !p.adopt(gen, func() { p.status = StatusConnected }) {
		return ErrClosed
	}
	metrics.VoiceSessions.WithLabelValues(string(StatusConnected)).Inc()
	p.log.Info("voice connected", zap.String("room", room))
	p.changed()
	return nil
}

// adopt runs fn under the lock if gen is still the active attempt
func (p *Pipeline) adopt(gen uint64, fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return false
	}
	fn()
	return true
}

// fail tears the attempt down and records err as the session error
func (p *Pipeline) fail(gen uint64, err error) error {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return ErrClosed
	}
	p.gen++
	room := p.room
	res := p.detachLocked()
	p.room = room
	p.status = StatusError
	p.errMsg = err.Error()
	p.mu.Unlock()

	p.log.Warn("voice session failed", zap.Error(err))
	p.release(res)
	metrics.VoiceSessions.WithLabelValues(string(StatusError)).Inc()
	p.changed()
	return err
}

// Leave tears the session down. When it returns no further callbacks reach
// the released session.
func (p *Pipeline) Leave() {
	p.mu.Lock()
	if p.status == StatusIdle || p.status == StatusClosed {
		p.mu.Unlock()
		return
	}
	p.gen++
	res := p.detachLocked()
	p.status = StatusClosed
	p.errMsg = ""
	p.mu.Unlock()

	p.release(res)
	metrics.VoiceSessions.WithLabelValues(string(StatusClosed)).Inc()
	p.log.Info("voice session closed")
	p.changed()
}

// detachLocked nulls every reference so late callbacks find nothing to act on
func (p *Pipeline) detachLocked() resources {
	res := resources{
		sinks:   p.reg.drain(),
		track:   p.track,
		mic:     p.mic,
		graph:   p.graph,
		session: p.session,
	}
	p.track, p.mic, p.graph, p.session = nil, nil, nil, nil
	p.pending = nil
	p.pttHeld = false
	p.room = ""
	p.updateGaugesLocked()
	return res
}

// release runs teardown in order: sinks, track, capture, gain context, session.
// Every step swallows its own error.
func (p *Pipeline) release(res resources) {
	for _, s := range res.sinks {
		p.swallow("sink", s.Detach())
	}
	if res.track != nil {
		p.swallow("track", res.track.Stop())
	}
	if res.mic != nil {
		p.swallow("microphone", res.mic.Stop())
	}
	if res.graph != nil {
		p.swallow("graph", res.graph.Close())
	}
	if res.session != nil {
		p.swallow("session", res.session.Disconnect())
	}
}

func (p *Pipeline) swallow(step string, err error) {
	if err == nil {
		return
	}
	metrics.TeardownErrors.WithLabelValues(step).Inc()
	p.log.Debug("teardown step failed", zap.String("step", step), zap.Error(err))
}

// effects are engine calls decided under the lock and run after it is
// released, so a slow webview round-trip never delays the push-to-talk gate
type effects struct {
	detach  []Sink
	release *resources
	attach  *attachment
	routes  []route
}

type attachment struct {
	gen uint64
	sid string
}

type route struct {
	sink   Sink
	device string
}

// HandleEvent applies one session callback. Replays and unknown keys are no-ops.
func (p *Pipeline) HandleEvent(ctx context.Context, ev Event) {
	p.mu.Lock()
	if p.session == nil {
		// the session may report members before Connect returned
		if p.status == StatusConnecting && ev.Session != "" {
			p.pending = append(p.pending, ev)
		}
		p.mu.Unlock()
		return
	}
	if ev.Session != "" && ev.Session != p.session.ID() {
		p.mu.Unlock()
		return
	}
	fx := p.handleLocked(ev)
	p.mu.Unlock()

	for _, s := range fx.detach {
		p.swallow("sink", s.Detach())
	}
	if fx.release != nil {
		p.release(*fx.release)
	}
	p.route(fx.routes)
	if fx.attach != nil {
		p.attach(ctx, *fx.attach)
	}
	p.changed()
}

func (p *Pipeline) replayPending(ctx context.Context, sessionID string) {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, ev := range pending {
		if ev.Session == sessionID {
			p.HandleEvent(ctx, ev)
		}
	}
}

func (p *Pipeline) handleLocked(ev Event) effects {
	name := ev.Name
	if name == "" {
		name = ev.Participant
	}
	key := ParticipantKey(name)

	var fx effects
	switch ev.Kind {
	case EventParticipantConnected:
		if key != "" {
			p.reg.connect(key, name)
		}

	case EventParticipantDisconnected:
		if key != "" {
			fx.detach = p.reg.disconnect(key)
		}

	case EventTrackSubscribed:
		if ev.TrackKind != "" && ev.TrackKind != "audio" {
			break
		}
		if ev.TrackSID == "" || p.reg.hasSink(ev.TrackSID) {
			break
		}
		if key != "" {
			p.reg.connect(key, name)
		}
		p.reg.reserve(ev.TrackSID, key)
		fx.attach = &attachment{gen: p.gen, sid: ev.TrackSID}

	case EventTrackUnsubscribed:
		if sink, ok := p.reg.removeSink(ev.TrackSID); ok {
			fx.detach = append(fx.detach, sink)
		}

	case EventActiveSpeakers:
		keys := make([]string, 0, len(ev.Speakers))
		for _, s := range ev.Speakers {
			if k := ParticipantKey(s); k != "" {
				keys = append(keys, k)
			}
		}
		p.reg.setSpeakers(keys)

	case EventDisconnected:
		p.gen++
		res := p.detachLocked()
		p.status = StatusError
		p.errMsg = "disconnected"
		if ev.Reason != "" {
			p.errMsg += ": " + ev.Reason
		}
		metrics.VoiceSessions.WithLabelValues(string(StatusError)).Inc()
		fx.release = &res
		return fx
	}

	p.updateGaugesLocked()
	return fx
}

// attach creates the sink for a reserved track. A sink that arrives after
// the session ended or the track went away is detached again.
func (p *Pipeline) attach(ctx context.Context, a attachment) {
	sink, err := p.engine.AttachSink(ctx, a.sid)

	p.mu.Lock()
	key, reserved := p.reg.claim(a.sid)
	if a.gen != p.gen || !reserved {
		p.mu.Unlock()
		if err == nil {
			p.swallow("sink", sink.Detach())
		}
		return
	}
	if err != nil {
		p.reg.dropIfIdle(key)
		p.updateGaugesLocked()
		p.mu.Unlock()
		p.log.Warn("failed to attach remote track", zap.String("track", a.sid), zap.Error(err))
		return
	}
	p.reg.addSink(a.sid, key, sink)
	routes := p.applySinkLocked(key, sink)
	p.updateGaugesLocked()
	p.mu.Unlock()

	p.route(routes)
}

// SetMuted sets the local mute
func (p *Pipeline) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.applyGateLocked()
	p.mu.Unlock()
	p.changed()
}

// ToggleMute flips the local mute and returns the new value
func (p *Pipeline) ToggleMute() bool {
	p.mu.Lock()
	p.muted = !p.muted
	muted := p.muted
	p.applyGateLocked()
	p.mu.Unlock()
	p.changed()
	return muted
}

// SetMuteAll silences every remote participant
func (p *Pipeline) SetMuteAll(muteAll bool) {
	p.mu.Lock()
	p.muteAll = muteAll
	routes := p.applySinksLocked()
	p.mu.Unlock()
	p.route(routes)
	p.changed()
}

// SetParticipantVolume sets one participant's volume in [0,1]
func (p *Pipeline) SetParticipantVolume(name string, volume float64) {
	key := ParticipantKey(name)
	if key == "" {
		return
	}
	p.mu.Lock()
	p.volumes[key] = Clamp01(volume)
	routes := p.applySinksLocked()
	p.mu.Unlock()
	p.route(routes)
	p.changed()
}

// SetParticipantMuted mutes one participant locally
func (p *Pipeline) SetParticipantMuted(name string, muted bool) {
	key := ParticipantKey(name)
	if key == "" {
		return
	}
	p.mu.Lock()
	if muted {
		p.mutedUsers[key] = true
	} else {
		delete(p.mutedUsers, key)
	}
	routes := p.applySinksLocked()
	p.mu.Unlock()
	p.route(routes)
	p.changed()
}

// KeyDown handles a key press; only the configured key with push-to-talk on matters
func (p *Pipeline) KeyDown(code string) {
	p.mu.Lock()
	if !p.settings.PTTEnabled || code != p.settings.PTTKey || p.pttHeld {
		p.mu.Unlock()
		return
	}
	p.pttHeld = true
	p.applyGateLocked()
	p.mu.Unlock()
	p.changed()
}

// KeyUp handles a key release; the gate closes immediately
func (p *Pipeline) KeyUp(code string) {
	p.mu.Lock()
	if code != p.settings.PTTKey || !p.pttHeld {
		p.mu.Unlock()
		return
	}
	p.pttHeld = false
	p.applyGateLocked()
	p.mu.Unlock()
	p.changed()
}

// UpdateSettings applies new settings live. restart reports that capture
// options changed while a session is active; those need a fresh session.
func (p *Pipeline) UpdateSettings(s Settings) (restart bool) {
	s = s.Normalize()

	p.mu.Lock()
	old := p.settings
	p.settings = s
	if old.MicGain != s.MicGain {
		p.setGainLocked()
	}
	if !s.PTTEnabled || s.PTTKey != old.PTTKey {
		p.pttHeld = false
	}
	p.applyGateLocked()
	routes := p.applySinksLocked()
	restart = p.session != nil && NeedsRestart(old, s)
	p.mu.Unlock()

	p.route(routes)
	p.changed()
	return restart
}

// Settings returns the current settings
func (p *Pipeline) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// Room returns the room of the active or pending session
func (p *Pipeline) Room() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.room
}

// State returns a snapshot
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	participants := p.reg.snapshot()
	for i := range participants {
		key := participants[i].Key
		vol, ok := p.volumes[key]
		if !ok {
			vol = DefaultParticipantVolume
		}
		participants[i].Volume = vol
		participants[i].Muted = p.mutedUsers[key]
	}

	return State{
		Status:       p.status,
		Error:        p.errMsg,
		Room:         p.room,
		Muted:        p.muted,
		MuteAll:      p.muteAll,
		PTTHeld:      p.pttHeld,
		TrackEnabled: p.track != nil && p.gateLocked(),
		Participants: participants,
		Speakers:     p.reg.activeSpeakers(),
		Settings:     p.settings,
	}
}

func (p *Pipeline) changed() {
	if p.onChange != nil {
		p.onChange(p.State())
	}
}

func (p *Pipeline) gateLocked() bool {
	return TrackEnabled(p.muted, p.settings.PTTEnabled, p.pttHeld)
}

func (p *Pipeline) applyGateLocked() {
	if p.track == nil {
		return
	}
	if err := p.track.SetEnabled(p.gateLocked()); err != nil {
		p.log.Warn("failed to gate microphone", zap.Error(err))
	}
}

func (p *Pipeline) setGainLocked() {
	if p.graph == nil {
		return
	}
	if err := p.graph.SetGain(p.settings.MicGain); err != nil {
		p.log.Warn("failed to set mic gain", zap.Error(err))
	}
}

func (p *Pipeline) mixLocked() Mix {
	return Mix{
		MuteAll: p.muteAll,
		Master:  p.settings.MasterVolume,
		Volume:  p.volumes,
		Muted:   p.mutedUsers,
	}
}

// applySinksLocked sets volumes and returns the sinks that need re-routing
func (p *Pipeline) applySinksLocked() []route {
	var routes []route
	for _, e := range p.reg.sinks {
		routes = append(routes, p.applySinkLocked(e.key, e.sink)...)
	}
	return routes
}

func (p *Pipeline) applySinkLocked(key string, sink Sink) []route {
	if err := sink.SetVolume(p.mixLocked().VolumeFor(key)); err != nil {
		p.log.Debug("failed to set sink volume", zap.String("participant", key), zap.Error(err))
	}
	out := p.settings.OutputDeviceID
	if out != "" && sink.OutputDevice() != out {
		return []route{{sink: sink, device: out}}
	}
	return nil
}

// route switches output devices; each switch is a round-trip to the engine
func (p *Pipeline) route(routes []route) {
	for _, r := range routes {
		if err := r.sink.SetOutputDevice(r.device); err != nil {
			p.log.Debug("failed to route sink", zap.String("device", r.device), zap.Error(err))
		}
	}
}

func (p *Pipeline) updateGaugesLocked() {
	metrics.VoiceSinks.Set(float64(len(p.reg.sinks)))
	metrics.VoiceParticipants.Set(float64(p.reg.withSinks()))
}
