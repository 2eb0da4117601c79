package lcu

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"swellvoice/internal/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType represents LCU WebSocket event types
type EventType int

const (
	EventTypeSubscribe   EventType = 5
	EventTypeUnsubscribe EventType = 6
	EventTypeEvent       EventType = 8
)

const gameflowPhaseTopic = "OnJsonApiEvent_lol-gameflow_v1_gameflow-phase"

// PhaseHandler is called for every gameflow phase update
type PhaseHandler func(phase string)

// WebSocketClient handles LCU WebSocket connection
type WebSocketClient struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	isConnected  bool
	stopChan     chan struct{}
	phaseHandler PhaseHandler
	log          *zap.Logger

	// urlFor builds the dial target; replaced in tests
	urlFor func(creds *Credentials) string
}

// NewWebSocketClient creates a new WebSocket client
func NewWebSocketClient(log *zap.Logger) *WebSocketClient {
	return &WebSocketClient{
		stopChan: make(chan struct{}),
		log:      logger.OrNop(log),
		urlFor: func(creds *Credentials) string {
			return fmt.Sprintf("wss://127.0.0.1:%s", creds.Port)
		},
	}
}

// SetPhaseHandler sets the callback for gameflow phase events
func (w *WebSocketClient) SetPhaseHandler(handler PhaseHandler) {
	w.mu.Lock()
	w.phaseHandler = handler
	w.mu.Unlock()
}

// Connect establishes WebSocket connection to LCU and subscribes to gameflow updates
func (w *WebSocketClient) Connect(creds *Credentials) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isConnected {
		return nil
	}

	dialer := websocket.Dialer{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
	}

	header := http.Header{}
	header.Set("Authorization", creds.AuthHeader())

	conn, _, err := dialer.Dial(w.urlFor(creds), header)
	if err != nil {
		return fmt.Errorf("failed to connect to LCU WebSocket: %w", err)
	}

	if err := conn.WriteJSON([]interface{}{EventTypeSubscribe, gameflowPhaseTopic}); err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to gameflow: %w", err)
	}

	w.conn = conn
	w.isConnected = true

	go w.listen(conn, w.stopChan)

	return nil
}

// listen reads messages from the WebSocket
func (w *WebSocketClient) listen(conn *websocket.Conn, stop chan struct{}) {
	defer func() {
		w.mu.Lock()
		if w.conn == conn {
			w.isConnected = false
			w.conn = nil
		}
		w.mu.Unlock()
		conn.Close()
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			w.log.Debug("lcu websocket closed", zap.Error(err))
			return
		}
		w.handleMessage(message)
	}
}

// handleMessage processes incoming WebSocket messages
func (w *WebSocketClient) handleMessage(data []byte) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return
	}
	if len(raw) < 3 {
		return
	}

	var eventType EventType
	if err := json.Unmarshal(raw[0], &eventType); err != nil || eventType != EventTypeEvent {
		return
	}

	var eventName string
	if err := json.Unmarshal(raw[1], &eventName); err != nil || eventName != gameflowPhaseTopic {
		return
	}

	var eventData struct {
		EventType string `json:"eventType"`
		URI       string `json:"uri"`
		Data      string `json:"data"`
	}
	if err := json.Unmarshal(raw[2], &eventData); err != nil {
		w.log.Debug("failed to parse gameflow event", zap.Error(err))
		return
	}

	w.mu.Lock()
	handler := w.phaseHandler
	w.mu.Unlock()

	if handler != nil && eventData.EventType != "Delete" {
		handler(eventData.Data)
	}
}

// Disconnect closes the WebSocket connection
func (w *WebSocketClient) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()

	close(w.stopChan)
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.isConnected = false
	w.stopChan = make(chan struct{})
}

// IsConnected returns whether the WebSocket is connected
func (w *WebSocketClient) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isConnected
}
