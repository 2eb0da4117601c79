package bridge

import (
	"context"
	"sync"

	"swellvoice/internal/voice"
)

// Engine implements voice.Engine over the bridge
type Engine struct {
	b *Bridge
}

// NewEngine wraps a bridge
func NewEngine(b *Bridge) *Engine {
	return &Engine{b: b}
}

var _ voice.Engine = (*Engine)(nil)

type handleReply struct {
	ID     string `json:"id"`
	Track  string `json:"track,omitempty"`
	Device string `json:"device,omitempty"`
}

func (e *Engine) Connect(ctx context.Context, url, token string) (voice.Session, error) {
	var r handleReply
	err := e.b.Call(ctx, "session.connect", map[string]any{"url": url, "token": token, "autoSubscribe": true}, &r)
	if err != nil {
		return nil, err
	}
	return &session{b: e.b, id: r.ID}, nil
}

func (e *Engine) OpenMicrophone(ctx context.Context, opts voice.CaptureOptions) (voice.Microphone, error) {
	var r handleReply
	if err := e.b.Call(ctx, "mic.open", opts, &r); err != nil {
		return nil, err
	}
	return &microphone{b: e.b, id: r.ID}, nil
}

func (e *Engine) NewGainGraph(ctx context.Context, mic voice.Microphone, gain float64) (voice.AudioGraph, error) {
	var micID string
	if m, ok := mic.(*microphone); ok {
		micID = m.id
	}
	var r handleReply
	if err := e.b.Call(ctx, "graph.create", map[string]any{"mic": micID, "gain": voice.ClampGain(gain)}, &r); err != nil {
		return nil, err
	}
	return &graph{b: e.b, id: r.ID, track: &track{b: e.b, id: r.Track}}, nil
}

func (e *Engine) AttachSink(ctx context.Context, trackSID string) (voice.Sink, error) {
	var r handleReply
	if err := e.b.Call(ctx, "sink.attach", map[string]any{"trackSid": trackSID}, &r); err != nil {
		return nil, err
	}
	return &sink{b: e.b, id: r.ID, device: r.Device}, nil
}

// release runs a teardown call with its own deadline
func (b *Bridge) release(method, id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return b.Call(ctx, method, map[string]any{"id": id}, nil)
}

type session struct {
	b  *Bridge
	id string
}

func (s *session) ID() string { return s.id }

func (s *session) Publish(ctx context.Context, t voice.LocalTrack) error {
	var trackID string
	if lt, ok := t.(*track); ok {
		trackID = lt.id
	}
	return s.b.Call(ctx, "session.publish", map[string]any{"id": s.id, "track": trackID}, nil)
}

func (s *session) Disconnect() error { return s.b.release("session.disconnect", s.id) }

type microphone struct {
	b  *Bridge
	id string
}

func (m *microphone) Stop() error { return m.b.release("mic.stop", m.id) }

type graph struct {
	b     *Bridge
	id    string
	track *track
}

func (g *graph) SetGain(gain float64) error {
	g.b.Notify("graph.gain", map[string]any{"id": g.id, "gain": voice.ClampGain(gain)})
	return nil
}

func (g *graph) Track() voice.LocalTrack { return g.track }

func (g *graph) Close() error { return g.b.release("graph.close", g.id) }

type track struct {
	b  *Bridge
	id string
}

func (t *track) SetEnabled(enabled bool) error {
	t.b.Notify("track.enabled", map[string]any{"id": t.id, "enabled": enabled})
	return nil
}

func (t *track) Stop() error { return t.b.release("track.stop", t.id) }

type sink struct {
	b  *Bridge
	id string

	mu     sync.Mutex
	device string
}

func (s *sink) SetVolume(volume float64) error {
	s.b.Notify("sink.volume", map[string]any{"id": s.id, "volume": voice.Clamp01(volume)})
	return nil
}

func (s *sink) OutputDevice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *sink) SetOutputDevice(deviceID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.b.timeout)
	defer cancel()
	if err := s.b.Call(ctx, "sink.device", map[string]any{"id": s.id, "device": deviceID}, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.device = deviceID
	s.mu.Unlock()
	return nil
}

func (s *sink) Detach() error { return s.b.release("sink.detach", s.id) }
