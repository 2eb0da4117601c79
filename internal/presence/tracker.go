package presence

import (
	"context"
	"sync"
	"time"

	"swellvoice/internal/logger"
	"swellvoice/internal/match"
	"swellvoice/internal/metrics"

	"go.uber.org/zap"
)

const injectBuffer = 32

// Observer produces one observation per call
type Observer interface {
	Observe(ctx context.Context) match.Observation
}

// Tracker polls an Observer and steps the Machine on a fixed cadence
type Tracker struct {
	observer Observer
	machine  *Machine
	interval time.Duration
	publish  func(Record)
	log      *zap.Logger

	injected chan match.Event

	mu     sync.RWMutex
	latest Record
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a tracker; publish is called with every record
func NewTracker(observer Observer, machine *Machine, interval time.Duration, publish func(Record), log *zap.Logger) *Tracker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Tracker{
		observer: observer,
		machine:  machine,
		interval: interval,
		publish:  publish,
		log:      logger.OrNop(log),
		injected: make(chan match.Event, injectBuffer),
		latest:   Record{State: OutOfMatch},
	}
}

// Start runs the poll loop until Stop or ctx is cancelled. The first tick runs immediately.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go t.loop(ctx, done)
}

// Stop cancels the loop and waits for the in-flight tick to finish
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Inject queues an event for the next tick. Never blocks; events are dropped
// when the queue is full.
func (t *Tracker) Inject(events ...match.Event) {
	for _, ev := range events {
		select {
		case t.injected <- ev:
		default:
			t.log.Warn("dropping injected event", zap.String("event", string(ev.Name)))
		}
	}
}

// Latest returns the most recent record
func (t *Tracker) Latest() Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}

func (t *Tracker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	// re-armed only after a tick returns, so ticks never overlap
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			t.tick(ctx)
			timer.Reset(t.interval)
		}
	}
}

func (t *Tracker) tick(ctx context.Context) {
	start := time.Now()
	obs := t.observer.Observe(ctx)
	metrics.PollDuration.Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		return
	}

	result := "ok"
	if !obs.OK() {
		result = "unavailable"
	}
	metrics.PollTicks.WithLabelValues(result).Inc()

	rec := t.machine.Step(obs, t.drain())
	metrics.SetPresenceState(string(rec.State), AllStates...)

	t.mu.Lock()
	t.latest = rec
	t.mu.Unlock()

	if t.publish != nil {
		t.publish(rec)
	}
}

func (t *Tracker) drain() []match.Event {
	var events []match.Event
	for {
		select {
		case ev := <-t.injected:
			events = append(events, ev)
		default:
			return events
		}
	}
}
