// Package hook runs external executables when the program scene changes.
//
// A hook lives in its own directory under the hooks directory and is
// described by a hook.json manifest. The transition is written to the
// executable's stdin as JSON; the executable answers with a Response on
// stdout.
package hook

import "time"

// ManifestFile is the manifest name looked up in each hook directory.
const ManifestFile = "hook.json"

// Manifest describes a hook.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`
	// Scenes limits the hook to switches onto these scenes. Empty means all.
	Scenes []string `json:"scenes,omitempty"`
}

// Event is sent to a hook on stdin.
type Event struct {
	ID       string    `json:"id"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Position float64   `json:"position"`
	At       time.Time `json:"at"`
}

// Response is what a hook prints on stdout.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Matches reports whether the hook wants switches onto scene.
func (h *Hook) Matches(scene string) bool {
	if len(h.Manifest.Scenes) == 0 {
		return true
	}
	for _, s := range h.Manifest.Scenes {
		if s == scene {
			return true
		}
	}
	return false
}
