package voice

// DefaultParticipantVolume is applied to a participant on first appearance
const DefaultParticipantVolume = 0.8

// Clamp01 limits v to [0,1]
func Clamp01(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// ClampGain limits a mic gain to [0,2]
func ClampGain(g float64) float64 {
	switch {
	case g < 0 || g != g:
		return 0
	case g > 2:
		return 2
	}
	return g
}

// EffectiveVolume is the playback volume for one remote participant
func EffectiveVolume(volume, master float64, muteAll, muted bool) float64 {
	if muteAll || muted {
		return 0
	}
	return Clamp01(volume) * Clamp01(master)
}

// Mix is the pure mixer state: settings plus per-participant flags
type Mix struct {
	MuteAll bool
	Master  float64
	Volume  map[string]float64
	Muted   map[string]bool
}

// VolumeFor returns the effective volume for a participant key
func (m Mix) VolumeFor(key string) float64 {
	vol, ok := m.Volume[key]
	if !ok {
		vol = DefaultParticipantVolume
	}
	return EffectiveVolume(vol, m.Master, m.MuteAll, m.Muted[key])
}
