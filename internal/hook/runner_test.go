package hook

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/autocam/internal/app"
)

// recordingScript appends the event to out and reports success.
func recordingScript(out string) string {
	return "#!/bin/sh\ncat >> " + out + "\necho >> " + out + "\necho '{\"success\":true}'\n"
}

func waitForLines(t *testing.T, path string, n int) []string {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, _ := os.ReadFile(path)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(data) > 0 && len(lines) >= n {
			return lines
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d hook runs", n)
	return nil
}

func TestRunner(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "events.log")
	writeHook(t, dir, Manifest{Name: "all", Executable: "run.sh"}, recordingScript(out))
	writeHook(t, dir, Manifest{Name: "wide-only", Executable: "run.sh", Scenes: []string{"WIDE"}},
		"#!/bin/sh\necho wide >> "+out+"\necho '{\"success\":true}'\n")

	m := NewManager(dir)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	r := NewRunner(m, NewExecutor(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Failed switches never reach hooks.
	r.Notify(app.Transition{ID: uuid.New(), To: "WIDE", Applied: false})
	r.Notify(app.Transition{ID: uuid.New(), From: "WIDE", To: "CLOSE", Position: 0.2, Applied: true, At: time.Now()})

	lines := waitForLines(t, out, 1)
	if !strings.Contains(lines[0], `"to":"CLOSE"`) || !strings.Contains(lines[0], `"from":"WIDE"`) {
		t.Errorf("unexpected event: %s", lines[0])
	}

	r.Notify(app.Transition{ID: uuid.New(), From: "CLOSE", To: "WIDE", Applied: true})
	lines = waitForLines(t, out, 3)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", len(lines), lines)
	}
	if lines[2] != "wide" && lines[1] != "wide" {
		t.Errorf("scene filtered hook did not run: %v", lines)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestRunner_NotifyNeverBlocks(t *testing.T) {
	r := NewRunner(NewManager(t.TempDir()), NewExecutor(time.Second))

	// Nobody drains the queue.
	finished := make(chan struct{})
	go func() {
		for i := 0; i < queueSize*2; i++ {
			r.Notify(app.Transition{To: "WIDE", Applied: true})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	if n := len(r.queue); n != queueSize {
		t.Errorf("queue length = %d, want %d", n, queueSize)
	}
}
