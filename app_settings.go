package main

import (
	"swellvoice/internal/voice"

	"go.uber.org/zap"
)

// loadSettings reads the persisted settings over the defaults
func (a *App) loadSettings() voice.Settings {
	s := voice.DefaultSettings()
	if _, err := a.store.LoadSettings(&s); err != nil {
		a.log.Warn("failed to load settings, using defaults", zap.Error(err))
		s = voice.DefaultSettings()
	}
	return s.Normalize()
}

// GetSettings returns the live audio settings
func (a *App) GetSettings() voice.Settings {
	return a.pipeline.Settings()
}

// UpdateSettings applies and persists new audio settings. Capture changes
// rejoin the current room in the background.
func (a *App) UpdateSettings(s voice.Settings) error {
	s = s.Normalize()
	restart := a.pipeline.UpdateSettings(s)
	setPushToTalkKey(s.PTTKey)

	if err := a.store.SaveSettings(s); err != nil {
		a.log.Warn("failed to save settings", zap.Error(err))
		return err
	}
	if restart {
		go a.rejoin()
	}
	return nil
}
