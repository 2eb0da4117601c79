//go:build !windows

package main

// RegisterPushToTalkHook is a no-op off Windows; the frontend forwards key
// events while the overlay has focus
func (a *App) RegisterPushToTalkHook() {}

func setPushToTalkKey(code string) {}
