package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EventLCUStatus reports the League Client connection to the frontend
const EventLCUStatus = "lcu:status"

const lcuRequestTimeout = 3 * time.Second

// ConnectionStatus is the payload of lcu:status
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
	Port      string `json:"port,omitempty"`
}

// pollForLeagueClient continuously checks for the League Client and keeps
// the gameflow websocket attached while it runs
func (a *App) pollForLeagueClient() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	wasConnected := false

	// Try immediately on startup
	if a.tryConnect() {
		wasConnected = true
		a.connectWebSocket()
	}

	for {
		select {
		case <-a.stopPoll:
			return
		case <-ticker.C:
			isConnected := a.lcuConnected()

			switch {
			case isConnected && !wasConnected:
				wasConnected = true
				a.connectWebSocket()
			case !isConnected:
				if wasConnected {
					a.wsClient.Disconnect()
					a.phases.Reset()
					a.emit(EventLCUStatus, ConnectionStatus{Message: "League Disconnected. Waiting..."})
					a.log.Info("league client disconnected")
					wasConnected = false
				}
				if a.tryConnect() {
					wasConnected = true
					a.connectWebSocket()
				}
			case !a.wsClient.IsConnected():
				// HTTP reachable but the websocket dropped
				a.connectWebSocket()
			}
		}
	}
}

func (a *App) lcuConnected() bool {
	ctx, cancel := context.WithTimeout(a.context(), lcuRequestTimeout)
	defer cancel()
	return a.lcuClient.IsConnected(ctx)
}

// connectWebSocket subscribes to gameflow phase changes
func (a *App) connectWebSocket() {
	creds := a.lcuClient.GetCredentials()
	if creds == nil {
		return
	}

	if err := a.wsClient.Connect(creds); err != nil {
		a.log.Warn("websocket connection failed", zap.Error(err))
		return
	}
	a.log.Info("websocket connected, listening for gameflow")

	go a.fetchInitialGameflow()
}

// tryConnect attempts to connect to the League Client
func (a *App) tryConnect() bool {
	ctx, cancel := context.WithTimeout(a.context(), lcuRequestTimeout)
	defer cancel()

	if err := a.lcuClient.Connect(ctx); err != nil {
		a.emit(EventLCUStatus, ConnectionStatus{Message: "Waiting for League..."})
		return false
	}

	status := a.GetConnectionStatus()
	a.emit(EventLCUStatus, status)
	a.log.Info("league client connected", zap.String("port", status.Port))
	return true
}

// GetConnectionStatus returns the current LCU connection status
func (a *App) GetConnectionStatus() ConnectionStatus {
	creds := a.lcuClient.GetCredentials()
	if creds == nil {
		return ConnectionStatus{Message: "Waiting for League..."}
	}
	return ConnectionStatus{Connected: true, Message: "League Connected!", Port: creds.Port}
}

// fetchInitialGameflow feeds the phase current at connect time
func (a *App) fetchInitialGameflow() {
	ctx, cancel := context.WithTimeout(a.context(), lcuRequestTimeout)
	defer cancel()

	phase, err := a.lcuClient.GetGameflowPhase(ctx)
	if err != nil {
		a.log.Warn("failed to get initial gameflow phase", zap.Error(err))
		return
	}
	a.log.Debug("initial gameflow phase", zap.String("phase", phase))
	a.onGameflowPhase(phase)
}

// onGameflowPhase turns phase transitions into match events for the tracker
func (a *App) onGameflowPhase(phase string) {
	ev, ok := a.phases.Next(phase)
	if !ok {
		return
	}
	a.log.Info("gameflow event", zap.String("phase", phase), zap.String("event", string(ev.Name)))
	a.tracker.Inject(ev)
}

// GetGameflowPhase returns the current gameflow phase
func (a *App) GetGameflowPhase() (string, error) {
	ctx, cancel := context.WithTimeout(a.context(), lcuRequestTimeout)
	defer cancel()
	return a.lcuClient.GetGameflowPhase(ctx)
}
