package relay

func resetSetup() {
	setupMu.Lock()
	instance = nil
	setupMu.Unlock()
}
