package main

import (
	"swellvoice/internal/presence"

	"go.uber.org/zap"
)

// EventPresence carries every presence record to the frontend
const EventPresence = "presence:update"

// onPresence is called by the tracker after every tick
func (a *App) onPresence(rec presence.Record) {
	a.emit(EventPresence, rec)

	if room := a.pipeline.Room(); shouldLeaveVoice(room, rec) {
		a.log.Info("leaving voice", zap.String("room", room), zap.String("presence", string(rec.State)))
		go a.pipeline.Leave()
	}
}

// shouldLeaveVoice decides whether the joined room is gone. A retained room
// or a pending record keeps the session; a different ready room or a full
// reset ends it.
func shouldLeaveVoice(joined string, rec presence.Record) bool {
	if joined == "" {
		return false
	}
	if rec.Ready {
		return rec.RoomName != joined
	}
	if rec.InGame || rec.Retained {
		return false
	}
	return rec.RoomName == ""
}

// GetPresence returns the latest presence record
func (a *App) GetPresence() presence.Record {
	return a.tracker.Latest()
}

// GetIdentity returns this installation's identity
func (a *App) GetIdentity() string {
	return a.identity
}
