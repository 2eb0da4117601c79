package join

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
)

type fakeTimer struct {
	mu    sync.Mutex
	waits []time.Duration
	c     chan time.Time
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.mu.Lock()
	t.waits = append(t.waits, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

func (t *fakeTimer) Stop()               {}
func (t *fakeTimer) C() <-chan time.Time { return t.c }
func (t *fakeTimer) recorded() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.waits...)
}

type joinServer struct {
	*httptest.Server
	wakes    atomic.Int32
	joins    atomic.Int32
	lastBody Request
	mu       sync.Mutex
}

// newJoinServer replies to the n-th join with handle(n)
func newJoinServer(t *testing.T, handle func(n int, w http.ResponseWriter, r *http.Request)) *joinServer {
	t.Helper()
	js := &joinServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		js.wakes.Add(1)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/join", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body Request
		json.NewDecoder(r.Body).Decode(&body)
		js.mu.Lock()
		js.lastBody = body
		js.mu.Unlock()
		handle(int(js.joins.Add(1)), w, r)
	})
	js.Server = httptest.NewServer(mux)
	t.Cleanup(js.Server.Close)
	return js
}

func newTestClient(joinTimeout time.Duration) (*Client, *fakeTimer) {
	c := NewClient(Config{WakeTimeout: time.Second, JoinTimeout: joinTimeout}, nil)
	timer := newFakeTimer()
	c.newTimer = func() backoff.Timer { return timer }
	return c, timer
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestJoinRetriesUntilSuccess(t *testing.T) {
	srv := newJoinServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		if n < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "waking up"})
			return
		}
		writeJSON(w, http.StatusOK, Credentials{Token: "opaque-token", URL: "wss://voice.example"})
	})
	c, timer := newTestClient(time.Second)

	req := Request{Room: "lolvoice-local-1-ORDER", Identity: "id-1", Name: "Ahri Main#EUW"}
	creds, err := c.Join(context.Background(), srv.URL+"/", req)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if creds.Token != "opaque-token" || creds.URL != "wss://voice.example" {
		t.Errorf("unexpected credentials %+v", creds)
	}
	if got := srv.joins.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if got := srv.wakes.Load(); got != 1 {
		t.Errorf("expected 1 wake call, got %d", got)
	}

	waits := timer.recorded()
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 4*time.Second {
		t.Errorf("expected backoff [1s 4s], got %v", waits)
	}

	srv.mu.Lock()
	body := srv.lastBody
	srv.mu.Unlock()
	if body != req {
		t.Errorf("server saw body %+v, want %+v", body, req)
	}
}

func TestJoinFatalStatusIsNotRetried(t *testing.T) {
	srv := newJoinServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "room is required"})
	})
	c, timer := newTestClient(time.Second)

	_, err := c.Join(context.Background(), srv.URL, Request{Room: "r", Identity: "i", Name: "n"})

	var jerr *JoinError
	if !errors.As(err, &jerr) {
		t.Fatalf("expected JoinError, got %v", err)
	}
	if jerr.Status != http.StatusBadRequest || jerr.Message != "room is required" || jerr.Attempts != 1 {
		t.Errorf("unexpected error %+v", jerr)
	}
	if got := srv.joins.Load(); got != 1 {
		t.Errorf("expected a single attempt, got %d", got)
	}
	if waits := timer.recorded(); len(waits) != 0 {
		t.Errorf("expected no backoff, got %v", waits)
	}
}

func TestJoinTimeoutsExhaustAttempts(t *testing.T) {
	release := make(chan struct{})
	srv := newJoinServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)
	c, timer := newTestClient(50 * time.Millisecond)

	_, err := c.Join(context.Background(), srv.URL, Request{Room: "r", Identity: "i", Name: "n"})

	var jerr *JoinError
	if !errors.As(err, &jerr) {
		t.Fatalf("expected JoinError, got %v", err)
	}
	if jerr.Attempts != 3 || jerr.Status != 0 {
		t.Errorf("unexpected error %+v", jerr)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected a deadline error in the chain, got %v", err)
	}
	if waits := timer.recorded(); len(waits) != 2 || waits[0] != time.Second || waits[1] != 4*time.Second {
		t.Errorf("expected backoff [1s 4s], got %v", waits)
	}
}

func TestJoinWithoutRoomMakesNoCalls(t *testing.T) {
	srv := newJoinServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Credentials{Token: "t", URL: "u"})
	})
	c, _ := newTestClient(time.Second)

	_, err := c.Join(context.Background(), srv.URL, Request{Identity: "i", Name: "n"})
	if !errors.Is(err, ErrNoRoom) {
		t.Fatalf("expected ErrNoRoom, got %v", err)
	}
	if srv.wakes.Load() != 0 || srv.joins.Load() != 0 {
		t.Error("no network calls expected without a room")
	}
}

func TestJoinSurvivesWakeFailure(t *testing.T) {
	var joins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		joins.Add(1)
		writeJSON(w, http.StatusOK, Credentials{Token: "t", URL: "u"})
	}))
	defer srv.Close()

	c, _ := newTestClient(time.Second)
	if _, err := c.Join(context.Background(), srv.URL, Request{Room: "r"}); err != nil {
		t.Fatalf("wake failure must not fail the join: %v", err)
	}
	if joins.Load() != 1 {
		t.Errorf("expected one join, got %d", joins.Load())
	}
}

func TestJoinRejectsTokenForOtherRoom(t *testing.T) {
	token := signedToken(t, "lolvoice-123-CHAOS", time.Now().Add(time.Hour))
	srv := newJoinServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Credentials{Token: token, URL: "wss://voice.example"})
	})
	c, _ := newTestClient(time.Second)

	_, err := c.Join(context.Background(), srv.URL, Request{Room: "lolvoice-123-ORDER"})
	var jerr *JoinError
	if !errors.As(err, &jerr) {
		t.Fatalf("expected JoinError, got %v", err)
	}
	if srv.joins.Load() != 1 {
		t.Errorf("a token mismatch must not be retried, got %d attempts", srv.joins.Load())
	}
}

func TestJoinReportsTokenExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	token := signedToken(t, "lolvoice-123-ORDER", exp)
	srv := newJoinServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Credentials{Token: token, URL: "wss://voice.example"})
	})
	c, _ := newTestClient(time.Second)

	creds, err := c.Join(context.Background(), srv.URL, Request{Room: "lolvoice-123-ORDER"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !creds.ExpiresAt.Equal(exp) {
		t.Errorf("expiry = %v, want %v", creds.ExpiresAt, exp)
	}
}

func TestJoinCancelledContext(t *testing.T) {
	srv := newJoinServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
	})
	c := NewClient(Config{JoinTimeout: time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Join(ctx, srv.URL, Request{Room: "r"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func signedToken(t *testing.T, room string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   "id-1",
		"exp":   exp.Unix(),
		"video": map[string]interface{}{"room": room, "roomJoin": true},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}
