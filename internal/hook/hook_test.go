package hook

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeHook creates a hook directory under dir with the given manifest and
// shell script body.
func writeHook(t *testing.T, dir string, manifest Manifest, script string) *Hook {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	path := filepath.Join(dir, manifest.Name)
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("failed to create hook dir: %v", err)
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	if script != "" {
		if err := os.WriteFile(filepath.Join(path, manifest.Executable), []byte(script), 0755); err != nil {
			t.Fatalf("failed to write script: %v", err)
		}
	}

	return &Hook{
		Manifest:   manifest,
		Path:       path,
		Executable: filepath.Join(path, manifest.Executable),
	}
}

func TestHook_Matches(t *testing.T) {
	tests := []struct {
		name   string
		scenes []string
		scene  string
		want   bool
	}{
		{"no filter", nil, "LEFT CAMERA", true},
		{"listed", []string{"LEFT CAMERA", "RIGHT CAMERA"}, "RIGHT CAMERA", true},
		{"not listed", []string{"LEFT CAMERA"}, "RIGHT CAMERA", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Hook{Manifest: Manifest{Name: "h", Scenes: tt.scenes}}
			if got := h.Matches(tt.scene); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.scene, got, tt.want)
			}
		})
	}
}
