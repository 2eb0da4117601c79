// Package metrics holds the prometheus collectors for presence, join and voice.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Presence
var (
	PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swell_poll_ticks_total",
		Help: "Live client poll ticks by result",
	}, []string{"result"})

	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swell_poll_duration_seconds",
		Help:    "Time spent fetching the live client snapshot",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 3},
	})

	PresenceState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swell_presence_state",
		Help: "1 for the current presence state, 0 otherwise",
	}, []string{"state"})

	FallbackMinted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swell_fallback_match_ids_minted_total",
		Help: "Fallback match ids created on match start",
	})

	GraceResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swell_grace_resets_total",
		Help: "Presence resets after the end-of-match grace window",
	})
)

// Join
var (
	JoinAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swell_join_attempts_total",
		Help: "Join POST attempts by outcome",
	}, []string{"outcome"})

	JoinDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swell_join_duration_seconds",
		Help:    "Wall time of a full join including wake and retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Voice
var (
	VoiceParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swell_voice_participants",
		Help: "Remote participants with at least one attached sink",
	})

	VoiceSinks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swell_voice_sinks",
		Help: "Attached remote audio sinks",
	})

	VoiceSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swell_voice_sessions_total",
		Help: "Voice sessions by final status",
	}, []string{"status"})

	TeardownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swell_voice_teardown_errors_total",
		Help: "Swallowed errors during voice teardown by step",
	}, []string{"step"})
)

// SetPresenceState flips the state gauge so exactly one label reads 1
func SetPresenceState(current string, all ...string) {
	for _, s := range all {
		if s == current {
			PresenceState.WithLabelValues(s).Set(1)
		} else {
			PresenceState.WithLabelValues(s).Set(0)
		}
	}
}

// Server exposes /metrics on a loopback address
type Server struct {
	srv *http.Server
}

// NewServer builds the metrics endpoint
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves in the background; listen errors are passed to onErr
func (s *Server) Start(onErr func(error)) {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && onErr != nil {
			onErr(err)
		}
	}()
}

// Shutdown stops the endpoint
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
