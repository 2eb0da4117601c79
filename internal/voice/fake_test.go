package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// callLog records engine calls in order
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) reset() {
	l.mu.Lock()
	l.calls = nil
	l.mu.Unlock()
}

type fakeEngine struct {
	log        *callLog
	connectErr error
	micErr     error
	publishErr error
	stopErr    error

	mu      sync.Mutex
	session *fakeSession
	track   *fakeTrack
	graph   *fakeGraph
	sinks   map[string]*fakeSink
	onConn  func()

	// when set, AttachSink reports the sid on attachStarted and waits for attachGate
	attachStarted chan string
	attachGate    chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{log: &callLog{}, sinks: make(map[string]*fakeSink)}
}

func (e *fakeEngine) Connect(ctx context.Context, url, token string) (Session, error) {
	e.log.add("connect %s", url)
	if e.onConn != nil {
		e.onConn()
	}
	if e.connectErr != nil {
		return nil, e.connectErr
	}
	s := &fakeSession{id: "session-1", log: e.log, publishErr: e.publishErr}
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()
	return s, nil
}

func (e *fakeEngine) OpenMicrophone(ctx context.Context, opts CaptureOptions) (Microphone, error) {
	e.log.add("mic open echo=%v", opts.EchoCancellation)
	if e.micErr != nil {
		return nil, e.micErr
	}
	return &fakeMic{log: e.log, err: e.stopErr}, nil
}

func (e *fakeEngine) NewGainGraph(ctx context.Context, mic Microphone, gain float64) (AudioGraph, error) {
	e.log.add("graph gain=%.1f", gain)
	t := &fakeTrack{log: e.log}
	g := &fakeGraph{log: e.log, track: t, gain: gain}
	e.mu.Lock()
	e.track, e.graph = t, g
	e.mu.Unlock()
	return g, nil
}

func (e *fakeEngine) AttachSink(ctx context.Context, trackSID string) (Sink, error) {
	e.log.add("attach %s", trackSID)
	if e.attachStarted != nil {
		e.attachStarted <- trackSID
	}
	if e.attachGate != nil {
		select {
		case <-e.attachGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s := &fakeSink{sid: trackSID, log: e.log, device: "default"}
	e.mu.Lock()
	e.sinks[trackSID] = s
	e.mu.Unlock()
	return s, nil
}

func (e *fakeEngine) sink(sid string) *fakeSink {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sinks[sid]
}

type fakeSession struct {
	id         string
	log        *callLog
	publishErr error
}

func (s *fakeSession) ID() string { return s.id }
func (s *fakeSession) Publish(ctx context.Context, track LocalTrack) error {
	s.log.add("publish")
	return s.publishErr
}
func (s *fakeSession) Disconnect() error {
	s.log.add("session disconnect")
	return nil
}

type fakeMic struct {
	log *callLog
	err error
}

func (m *fakeMic) Stop() error {
	m.log.add("mic stop")
	return m.err
}

type fakeGraph struct {
	log   *callLog
	track *fakeTrack
	mu    sync.Mutex
	gain  float64
}

func (g *fakeGraph) SetGain(gain float64) error {
	g.mu.Lock()
	g.gain = gain
	g.mu.Unlock()
	return nil
}
func (g *fakeGraph) Track() LocalTrack { return g.track }
func (g *fakeGraph) Close() error {
	g.log.add("graph close")
	return errors.New("already closed")
}

type fakeTrack struct {
	log     *callLog
	mu      sync.Mutex
	enabled bool
	sets    int
}

func (t *fakeTrack) SetEnabled(enabled bool) error {
	t.mu.Lock()
	t.enabled = enabled
	t.sets++
	t.mu.Unlock()
	return nil
}
func (t *fakeTrack) isEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}
func (t *fakeTrack) Stop() error {
	t.log.add("track stop")
	return nil
}

type fakeSink struct {
	sid    string
	log    *callLog
	mu     sync.Mutex
	volume float64
	device string
	routes int
}

func (s *fakeSink) SetVolume(v float64) error {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
	return nil
}
func (s *fakeSink) OutputDevice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}
func (s *fakeSink) SetOutputDevice(id string) error {
	s.mu.Lock()
	s.device = id
	s.routes++
	s.mu.Unlock()
	return nil
}
func (s *fakeSink) Detach() error {
	s.log.add("detach %s", s.sid)
	return nil
}
func (s *fakeSink) vol() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func staticTokens(ctx context.Context) (string, string, error) {
	return "wss://voice.example", "token", nil
}
