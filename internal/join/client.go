// Package join obtains voice session credentials from the backend.
package join

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"swellvoice/internal/logger"
	"swellvoice/internal/metrics"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultWakeTimeout = 8 * time.Second
	defaultJoinTimeout = 20 * time.Second
)

// ErrNoRoom is returned when a join is requested without a room
var ErrNoRoom = errors.New("no room to join")

// Request is the join body
type Request struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
	Name     string `json:"name"`
}

// Credentials are what the media session needs to connect
type Credentials struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// JoinError is returned when a join fails
type JoinError struct {
	Status   int
	Message  string
	Attempts int
	Err      error
}

func (e *JoinError) Error() string {
	var b strings.Builder
	b.WriteString("join failed")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	switch {
	case e.Message != "":
		b.WriteString(": " + e.Message)
	case e.Err != nil:
		b.WriteString(": " + e.Err.Error())
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	return b.String()
}

func (e *JoinError) Unwrap() error { return e.Err }

// Config tunes a Client
type Config struct {
	WakeTimeout time.Duration
	JoinTimeout time.Duration
	Policy      RetryPolicy
}

// Client talks to the join backend. One keep-alive transport is shared by
// the wake call and every attempt.
type Client struct {
	httpClient  *http.Client
	wakeTimeout time.Duration
	joinTimeout time.Duration
	policy      RetryPolicy
	log         *zap.Logger

	// newTimer overrides the backoff timer; nil uses a real one
	newTimer func() backoff.Timer
}

// NewClient creates a join client
func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.WakeTimeout <= 0 {
		cfg.WakeTimeout = defaultWakeTimeout
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = defaultJoinTimeout
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = DefaultPolicy()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 2
	transport.IdleConnTimeout = 90 * time.Second

	return &Client{
		httpClient:  &http.Client{Transport: transport},
		wakeTimeout: cfg.WakeTimeout,
		joinTimeout: cfg.JoinTimeout,
		policy:      cfg.Policy,
		log:         logger.OrNop(log),
	}
}

// Join wakes the backend and requests credentials for req.Room
func (c *Client) Join(ctx context.Context, backendBase string, req Request) (*Credentials, error) {
	if strings.TrimSpace(req.Room) == "" {
		return nil, &JoinError{Message: "no room available", Err: ErrNoRoom}
	}
	base := strings.TrimRight(backendBase, "/")
	start := time.Now()
	defer func() { metrics.JoinDuration.Observe(time.Since(start).Seconds()) }()

	c.wake(ctx, base)

	var (
		creds    *Credentials
		attempts int
	)
	op := func() error {
		attempts++
		got, status, err := c.post(ctx, base, req)
		if err == nil {
			if err := checkToken(got, req.Room); err != nil {
				metrics.JoinAttempts.WithLabelValues("fatal").Inc()
				return backoff.Permanent(err)
			}
			metrics.JoinAttempts.WithLabelValues("ok").Inc()
			creds = got
			return nil
		}

		if ctx.Err() != nil {
			return backoff.Permanent(&JoinError{Err: ctx.Err()})
		}
		var transportErr error
		if status == 0 {
			transportErr = err
		}
		if !c.policy.Retryable(status, transportErr) {
			metrics.JoinAttempts.WithLabelValues("fatal").Inc()
			return backoff.Permanent(err)
		}
		metrics.JoinAttempts.WithLabelValues("retryable").Inc()
		return err
	}

	notify := func(err error, wait time.Duration) {
		c.log.Warn("join attempt failed, retrying",
			zap.String("room", req.Room),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(c.policy.backOff(), ctx), notify, timer)
	if err != nil {
		var jerr *JoinError
		if !errors.As(err, &jerr) {
			jerr = &JoinError{Err: err}
		}
		jerr.Attempts = attempts
		c.log.Warn("join failed", zap.String("room", req.Room), zap.Error(jerr))
		return nil, jerr
	}

	c.log.Info("joined", zap.String("room", req.Room), zap.Int("attempts", attempts))
	return creds, nil
}

// wake pings the health endpoint so a sleeping backend starts booting.
// Any outcome is ignored.
func (c *Client) wake(ctx context.Context, base string) {
	ctx, cancel := context.WithTimeout(ctx, c.wakeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("wake failed", zap.Error(err))
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// post performs a single join attempt. status is 0 when no response arrived.
func (c *Client) post(ctx context.Context, base string, body Request) (*Credentials, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.joinTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, &JoinError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/join", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, &JoinError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &JoinError{Message: "network error", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &JoinError{Message: "network error", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &errBody)
		msg := errBody.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, resp.StatusCode, &JoinError{Status: resp.StatusCode, Message: msg}
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil || creds.Token == "" || creds.URL == "" {
		// a malformed success is not going to improve on retry
		return nil, resp.StatusCode, &JoinError{Status: resp.StatusCode, Message: "invalid join response"}
	}
	return &creds, resp.StatusCode, nil
}

// checkToken rejects tokens minted for another room and records the expiry
func checkToken(creds *Credentials, room string) error {
	info, ok := InspectToken(creds.Token)
	if !ok {
		return nil
	}
	if info.Room != "" && info.Room != room {
		return &JoinError{Message: fmt.Sprintf("token is for room %q, expected %q", info.Room, room)}
	}
	creds.ExpiresAt = info.ExpiresAt
	return nil
}
