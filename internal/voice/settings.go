package voice

// DefaultPTTKey is the push-to-talk key code used until the user picks one
const DefaultPTTKey = "KeyV"

// Settings are the live audio settings
type Settings struct {
	MicDeviceID      string  `json:"micDeviceId,omitempty"`
	EchoCancellation bool    `json:"echoCancellation"`
	NoiseSuppression bool    `json:"noiseSuppression"`
	AutoGainControl  bool    `json:"autoGainControl"`
	MicGain          float64 `json:"micGain"`
	PTTEnabled       bool    `json:"pttEnabled"`
	PTTKey           string  `json:"pttKey"`
	OutputDeviceID   string  `json:"outputDeviceId,omitempty"`
	MasterVolume     float64 `json:"masterVolume"`
}

// DefaultSettings returns the out-of-the-box settings
func DefaultSettings() Settings {
	return Settings{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		MicGain:          1,
		PTTKey:           DefaultPTTKey,
		MasterVolume:     1,
	}
}

// Normalize clamps values into range and fills a missing key
func (s Settings) Normalize() Settings {
	s.MicGain = ClampGain(s.MicGain)
	s.MasterVolume = Clamp01(s.MasterVolume)
	if s.PTTKey == "" {
		s.PTTKey = DefaultPTTKey
	}
	return s
}

// CaptureOptions are the microphone constraints
type CaptureOptions struct {
	DeviceID         string `json:"deviceId,omitempty"`
	EchoCancellation bool   `json:"echoCancellation"`
	NoiseSuppression bool   `json:"noiseSuppression"`
	AutoGainControl  bool   `json:"autoGainControl"`
}

// Capture returns the microphone constraints for these settings
func (s Settings) Capture() CaptureOptions {
	return CaptureOptions{
		DeviceID:         s.MicDeviceID,
		EchoCancellation: s.EchoCancellation,
		NoiseSuppression: s.NoiseSuppression,
		AutoGainControl:  s.AutoGainControl,
	}
}

// NeedsRestart reports whether moving from old to new changes the capture
// constraints, which only take effect on a fresh session
func NeedsRestart(old, new Settings) bool {
	return old.Capture() != new.Capture()
}
