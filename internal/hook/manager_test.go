package hook

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestManager_Discover(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, Manifest{
		Name:        "lights",
		Version:     "1.0.0",
		Description: "Dim the key light on the wide shot",
		Executable:  "run.sh",
		Scenes:      []string{"WIDE"},
	}, "")
	writeHook(t, dir, Manifest{Name: "chat", Executable: "run.sh"}, "")

	m := NewManager(dir)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	hooks := m.List()
	if len(hooks) != 2 {
		t.Fatalf("expected 2 hooks, got %d", len(hooks))
	}
	if hooks[0].Manifest.Name != "chat" || hooks[1].Manifest.Name != "lights" {
		t.Errorf("List() not sorted by name: %q, %q", hooks[0].Manifest.Name, hooks[1].Manifest.Name)
	}

	lights := hooks[1]
	if lights.Path != filepath.Join(dir, "lights") {
		t.Errorf("Path = %q", lights.Path)
	}
	if lights.Executable != filepath.Join(dir, "lights", "run.sh") {
		t.Errorf("Executable = %q", lights.Executable)
	}
	if len(lights.Manifest.Scenes) != 1 || lights.Manifest.Scenes[0] != "WIDE" {
		t.Errorf("Scenes = %v", lights.Manifest.Scenes)
	}
}

func TestManager_Discover_Skips(t *testing.T) {
	dir := t.TempDir()

	// Invalid JSON.
	bad := filepath.Join(dir, "bad")
	if err := os.MkdirAll(bad, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, ManifestFile), []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}

	// No manifest.
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0755); err != nil {
		t.Fatal(err)
	}

	// No executable.
	writeHook(t, dir, Manifest{Name: "incomplete"}, "")

	// A stray file.
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(dir)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if n := len(m.List()); n != 0 {
		t.Errorf("expected no hooks, got %d", n)
	}
}

func TestManager_Discover_NonExistentDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "missing"))
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if n := len(m.List()); n != 0 {
		t.Errorf("expected no hooks, got %d", n)
	}
}

func TestManager_Get(t *testing.T) {
	dir := t.TempDir()
	writeHook(t, dir, Manifest{Name: "lights", Executable: "run.sh"}, "")

	m := NewManager(dir)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	h, err := m.Get("lights")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if h.Manifest.Name != "lights" {
		t.Errorf("Name = %q", h.Manifest.Name)
	}

	if _, err := m.Get("nope"); !errors.Is(err, ErrHookNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrHookNotFound", err)
	}
	if m.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", m.Dir(), dir)
	}
}
