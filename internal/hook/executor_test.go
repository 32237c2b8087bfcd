package hook

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestExecutor_Execute(t *testing.T) {
	h := writeHook(t, t.TempDir(), Manifest{Name: "ok", Executable: "run.sh"}, `#!/bin/sh
cat > /dev/null
echo '{"success":true}'
`)

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), h, Event{To: "LEFT CAMERA"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.Error != "" {
		t.Errorf("expected empty error, got %q", resp.Error)
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	// The script fails unless the event names the target scene.
	h := writeHook(t, t.TempDir(), Manifest{Name: "echo", Executable: "run.sh"}, `#!/bin/sh
INPUT=$(cat)
case "$INPUT" in
  *'"to":"RIGHT CAMERA"'*) echo '{"success":true}' ;;
  *) echo "{\"success\":false,\"error\":\"unexpected input\"}" ;;
esac
`)

	ev := Event{ID: "abc", From: "LEFT CAMERA", To: "RIGHT CAMERA", Position: 0.71}
	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), h, ev)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.Success {
		t.Errorf("hook did not see the event: %q", resp.Error)
	}
}

func TestExecutor_Execute_ErrorResponse(t *testing.T) {
	h := writeHook(t, t.TempDir(), Manifest{Name: "fail", Executable: "run.sh"}, `#!/bin/sh
echo '{"success":false,"error":"lights offline"}'
`)

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), h, Event{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Success {
		t.Error("expected success=false")
	}
	if resp.Error != "lights offline" {
		t.Errorf("Error = %q, want %q", resp.Error, "lights offline")
	}
}

func TestExecutor_Execute_InvalidJSON(t *testing.T) {
	h := writeHook(t, t.TempDir(), Manifest{Name: "garbage", Executable: "run.sh"}, `#!/bin/sh
echo 'not json'
`)

	_, err := NewExecutor(5*time.Second).Execute(context.Background(), h, Event{})
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
	if !strings.Contains(err.Error(), "parse hook garbage response") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExecutor_Execute_NonZeroExit(t *testing.T) {
	h := writeHook(t, t.TempDir(), Manifest{Name: "crash", Executable: "run.sh"}, `#!/bin/sh
echo 'boom' >&2
exit 3
`)

	_, err := NewExecutor(5*time.Second).Execute(context.Background(), h, Event{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	h := writeHook(t, t.TempDir(), Manifest{Name: "slow", Executable: "run.sh"}, `#!/bin/sh
sleep 10
echo '{"success":true}'
`)

	start := time.Now()
	_, err := NewExecutor(100*time.Millisecond).Execute(context.Background(), h, Event{})
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Execute() took %s, timeout not enforced", elapsed)
	}
}

func TestNewExecutor(t *testing.T) {
	if e := NewExecutor(0); e.timeout != DefaultTimeout {
		t.Errorf("timeout = %s, want %s", e.timeout, DefaultTimeout)
	}
	if e := NewExecutor(time.Second); e.timeout != time.Second {
		t.Errorf("timeout = %s, want 1s", e.timeout)
	}
}
