package main

import (
	"context"
	"errors"

	"swellvoice/internal/join"
	"swellvoice/internal/voice"
)

// EventVoiceState carries pipeline snapshots to the frontend
const EventVoiceState = "voice:state"

// JoinParams are the optional overrides of a token request
type JoinParams struct {
	Room string `json:"room"`
	Name string `json:"name"`
}

// RequestToken asks the backend for credentials. Empty fields are taken from
// the latest presence record.
func (a *App) RequestToken(params JoinParams) (*join.Credentials, error) {
	req := a.joinRequest(params)
	return a.joiner.Join(a.context(), a.cfg.Backend.URL, req)
}

func (a *App) joinRequest(params JoinParams) join.Request {
	rec := a.tracker.Latest()
	req := join.Request{Room: params.Room, Identity: a.identity, Name: params.Name}
	if req.Room == "" {
		req.Room = rec.RoomName
	}
	if req.Name == "" {
		req.Name = rec.IdentityName
	}
	if req.Name == "" {
		req.Name = a.identity
	}
	return req
}

// JoinVoice joins the room of the latest presence record, or room when set
func (a *App) JoinVoice(room string) error {
	req := a.joinRequest(JoinParams{Room: room})
	if req.Room == "" {
		return &join.JoinError{Message: "no room available", Err: join.ErrNoRoom}
	}

	a.joinMu.Lock()
	defer a.joinMu.Unlock()

	err := a.pipeline.Join(a.context(), req.Room, func(ctx context.Context) (string, string, error) {
		creds, err := a.joiner.Join(ctx, a.cfg.Backend.URL, req)
		if err != nil {
			return "", "", err
		}
		return creds.URL, creds.Token, nil
	})
	if errors.Is(err, voice.ErrClosed) {
		return nil
	}
	return err
}

// LeaveVoice tears the session down
func (a *App) LeaveVoice() {
	a.pipeline.Leave()
}

// SetMuted sets the local microphone mute
func (a *App) SetMuted(muted bool) {
	a.pipeline.SetMuted(muted)
}

// ToggleMute flips the local mute and returns the new value
func (a *App) ToggleMute() bool {
	return a.pipeline.ToggleMute()
}

// SetMuteAll silences every remote participant
func (a *App) SetMuteAll(muteAll bool) {
	a.pipeline.SetMuteAll(muteAll)
}

// SetParticipantVolume sets one teammate's volume in [0,1]
func (a *App) SetParticipantVolume(name string, volume float64) {
	a.pipeline.SetParticipantVolume(name, volume)
}

// SetParticipantMuted mutes one teammate locally
func (a *App) SetParticipantMuted(name string, muted bool) {
	a.pipeline.SetParticipantMuted(name, muted)
}

// KeyDown forwards a key press (KeyboardEvent.code) to push-to-talk
func (a *App) KeyDown(code string) {
	a.pipeline.KeyDown(code)
}

// KeyUp forwards a key release to push-to-talk
func (a *App) KeyUp(code string) {
	a.pipeline.KeyUp(code)
}

// GetVoiceState returns the current voice snapshot
func (a *App) GetVoiceState() voice.State {
	return a.pipeline.State()
}

func (a *App) onVoiceState(st voice.State) {
	a.emit(EventVoiceState, st)
}

// rejoin restarts the session after capture options changed
func (a *App) rejoin() {
	room := a.pipeline.Room()
	if room == "" {
		return
	}
	if err := a.JoinVoice(room); err != nil {
		a.log.Warn("rejoin failed: " + err.Error())
	}
}

func (a *App) context() context.Context {
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}
