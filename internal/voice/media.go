package voice

import "context"

// Engine is the real-time media runtime. It lives outside this process's Go
// code (the webview) and is reached through the bridge package.
type Engine interface {
	Connect(ctx context.Context, url, token string) (Session, error)
	OpenMicrophone(ctx context.Context, opts CaptureOptions) (Microphone, error)
	// NewGainGraph routes mic through a gain stage and returns the graph
	NewGainGraph(ctx context.Context, mic Microphone, gain float64) (AudioGraph, error)
	// AttachSink renders a subscribed remote track
	AttachSink(ctx context.Context, trackSID string) (Sink, error)
}

// Session is a connected publish/subscribe media session
type Session interface {
	ID() string
	Publish(ctx context.Context, track LocalTrack) error
	Disconnect() error
}

// Microphone is the raw capture
type Microphone interface {
	Stop() error
}

// AudioGraph is the gain-processing context between the mic and the published track
type AudioGraph interface {
	SetGain(gain float64) error
	Track() LocalTrack
	Close() error
}

// LocalTrack is the processed, published microphone track
type LocalTrack interface {
	SetEnabled(enabled bool) error
	Stop() error
}

// Sink plays one remote track
type Sink interface {
	SetVolume(volume float64) error
	OutputDevice() string
	SetOutputDevice(deviceID string) error
	Detach() error
}

// EventKind names session callbacks
type EventKind string

const (
	EventParticipantConnected    EventKind = "participantConnected"
	EventParticipantDisconnected EventKind = "participantDisconnected"
	EventTrackSubscribed         EventKind = "trackSubscribed"
	EventTrackUnsubscribed       EventKind = "trackUnsubscribed"
	EventActiveSpeakers          EventKind = "activeSpeakers"
	EventDisconnected            EventKind = "disconnected"
)

// Event is one session callback. Callbacks may repeat or arrive out of order.
type Event struct {
	Kind EventKind `json:"kind"`
	// Session is the id of the session that raised the event
	Session     string   `json:"session,omitempty"`
	Participant string   `json:"participant,omitempty"`
	Name        string   `json:"name,omitempty"`
	TrackSID    string   `json:"trackSid,omitempty"`
	TrackKind   string   `json:"trackKind,omitempty"`
	Speakers    []string `json:"speakers,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}
