package main

// MediaReply answers a media:call issued by the bridge
func (a *App) MediaReply(id, result, errMsg string) {
	a.bridge.Resolve(id, result, errMsg)
}

// MediaEvent delivers a session callback from the media engine
func (a *App) MediaEvent(kind, payload string) error {
	return a.bridge.Enqueue(kind, payload)
}
