// Package bridge carries media calls between the voice pipeline and the
// media engine running in the webview. Calls go out as "media:call" events
// and come back through Resolve; fire-and-forget updates go out as
// "media:notify"; session callbacks come in through Dispatch.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"swellvoice/internal/logger"
	"swellvoice/internal/voice"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event names emitted to the webview
const (
	EventCall   = "media:call"
	EventNotify = "media:notify"
)

const (
	defaultTimeout = 10 * time.Second
	queueSize      = 64
)

var (
	ErrTimeout    = errors.New("media call timed out")
	ErrNoHandler  = errors.New("no media event handler")
	ErrBadPayload = errors.New("invalid media event payload")
	ErrQueueFull  = errors.New("media event queue full")
)

// CallError is an error reported by the media engine
type CallError struct {
	Method  string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("media %s: %s", e.Method, e.Message)
}

// Emitter sends one event to the webview
type Emitter func(event string, payload any)

// Call is the payload of a media:call event
type Call struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Args   any    `json:"args,omitempty"`
}

// Notification is the payload of a media:notify event
type Notification struct {
	Method string `json:"method"`
	Args   any    `json:"args,omitempty"`
}

type reply struct {
	result string
	err    string
}

type inbound struct {
	kind    string
	payload string
}

// Bridge matches replies to outstanding calls
type Bridge struct {
	emit    Emitter
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	pending map[string]chan reply
	handler func(context.Context, voice.Event)

	queue chan inbound
}

// New creates a bridge. timeout bounds every call.
func New(emit Emitter, timeout time.Duration, log *zap.Logger) *Bridge {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Bridge{
		emit:    emit,
		timeout: timeout,
		log:     logger.OrNop(log),
		pending: make(map[string]chan reply),
		queue:   make(chan inbound, queueSize),
	}
}

// SetHandler sets the receiver of inbound session events
func (b *Bridge) SetHandler(fn func(context.Context, voice.Event)) {
	b.mu.Lock()
	b.handler = fn
	b.mu.Unlock()
}

// Call sends method to the media engine and waits for its reply. The reply
// result is JSON and is decoded into out when out is non-nil.
func (b *Bridge) Call(ctx context.Context, method string, args any, out any) error {
	id := uuid.NewString()
	ch := make(chan reply, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	b.emit(EventCall, Call{ID: id, Method: method, Args: args})

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	var r reply
	select {
	case r = <-ch:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		b.log.Warn("media call timed out", zap.String("method", method), zap.String("id", id))
		return fmt.Errorf("%s: %w", method, ErrTimeout)
	}

	if r.err != "" {
		return &CallError{Method: method, Message: r.err}
	}
	if out != nil && r.result != "" {
		if err := json.Unmarshal([]byte(r.result), out); err != nil {
			return fmt.Errorf("media %s: bad reply: %w", method, err)
		}
	}
	return nil
}

// Notify sends a fire-and-forget update
func (b *Bridge) Notify(method string, args any) {
	b.emit(EventNotify, Notification{Method: method, Args: args})
}

// Resolve delivers the reply for call id. It reports false for unknown or
// already answered ids.
func (b *Bridge) Resolve(id, result, errMsg string) bool {
	b.mu.Lock()
	ch, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()

	if !ok {
		b.log.Debug("reply for unknown media call", zap.String("id", id))
		return false
	}
	ch <- reply{result: result, err: errMsg}
	return true
}

// Dispatch decodes an inbound session event and hands it to the handler
func (b *Bridge) Dispatch(kind, payload string) error {
	var ev voice.Event
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	}
	if kind != "" {
		ev.Kind = voice.EventKind(kind)
	}
	if ev.Kind == "" {
		return ErrBadPayload
	}

	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()
	if handler == nil {
		return ErrNoHandler
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	handler(ctx, ev)
	return nil
}

// Enqueue queues an inbound event for Run. Handlers may issue calls whose
// replies arrive on another binding call, so events are never handled on
// the caller's goroutine.
func (b *Bridge) Enqueue(kind, payload string) error {
	select {
	case b.queue <- inbound{kind: kind, payload: payload}:
		return nil
	default:
		b.log.Warn("dropping media event", zap.String("kind", kind))
		return ErrQueueFull
	}
}

// Run dispatches queued events in order until ctx is done
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-b.queue:
			if err := b.Dispatch(in.kind, in.payload); err != nil {
				b.log.Debug("media event not dispatched", zap.String("kind", in.kind), zap.Error(err))
			}
		}
	}
}

// Pending returns the number of unanswered calls
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
