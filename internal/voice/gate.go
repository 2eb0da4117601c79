package voice

// TrackEnabled is the push-to-talk gate on the published track
func TrackEnabled(muted, pttEnabled, pttHeld bool) bool {
	return !muted && (!pttEnabled || pttHeld)
}
