//go:build !wasm

package deckplugin

import "sync"

var (
	logMu sync.Mutex
	logs  []string
)

func record(level, msg string) {
	logMu.Lock()
	logs = append(logs, level+": "+msg)
	logMu.Unlock()
}

// LogDebug records a message when built for the host.
func LogDebug(msg string) { record("debug", msg) }

// LogInfo records a message when built for the host.
func LogInfo(msg string) { record("info", msg) }

// LogError records a message when built for the host.
func LogError(msg string) { record("error", msg) }

// Logs returns the messages recorded outside a WASM runtime.
func Logs() []string {
	logMu.Lock()
	defer logMu.Unlock()

	return append([]string(nil), logs...)
}
