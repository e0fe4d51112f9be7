package hook

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/healthbridge/healthbridge/internal/confidence"
	"github.com/healthbridge/healthbridge/internal/translate"
)

// writeHook creates a hook directory with a manifest and a shell script.
func writeHook(t *testing.T, root, name string, events []Event, script string) string {
	t.Helper()

	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create hook dir: %v", err)
	}

	manifest := Manifest{
		Name:       name,
		Version:    "1.0.0",
		Executable: "run.sh",
		Events:     events,
		Config:     json.RawMessage(`{"target":"nurse-station"}`),
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return dir
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}
}

const okScript = `#!/bin/sh
cat > /dev/null
echo '{"success":true,"message":"done"}'
`

func TestManager_Discover(t *testing.T) {
	root := t.TempDir()
	writeHook(t, root, "type-text", []Event{EventTranslation}, okScript)
	writeHook(t, root, "resign-prompt", []Event{EventLowConfidence}, okScript)

	// Directories without a manifest and invalid manifests are skipped.
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(root, "broken")
	if err := os.MkdirAll(bad, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bad, ManifestFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(root)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	hooks := m.List()
	if len(hooks) != 2 {
		t.Fatalf("expected 2 hooks, got %d", len(hooks))
	}
	if hooks[0].Manifest.Name != "resign-prompt" || hooks[1].Manifest.Name != "type-text" {
		t.Errorf("hooks not sorted by name: %q, %q", hooks[0].Manifest.Name, hooks[1].Manifest.Name)
	}

	h, err := m.Get("type-text")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if h.Executable != filepath.Join(root, "type-text", "run.sh") {
		t.Errorf("unexpected executable path %q", h.Executable)
	}

	if _, err := m.Get("missing"); !errors.Is(err, ErrHookNotFound) {
		t.Errorf("expected ErrHookNotFound, got %v", err)
	}

	low := m.ForEvent(EventLowConfidence)
	if len(low) != 1 || low[0].Manifest.Name != "resign-prompt" {
		t.Errorf("ForEvent(low_confidence) = %v", low)
	}
}

func TestManager_Discover_MissingDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() on missing dir should not fail: %v", err)
	}
	if len(m.List()) != 0 {
		t.Error("expected no hooks")
	}

	if err := NewManager("").Discover(); err != nil {
		t.Errorf("Discover() with empty dir should not fail: %v", err)
	}
}

func TestExecutor_Execute(t *testing.T) {
	skipOnWindows(t)

	tests := []struct {
		name        string
		script      string
		timeout     time.Duration
		wantErr     string
		wantSuccess bool
		wantMessage string
	}{
		{
			name:        "success",
			script:      okScript,
			timeout:     5 * time.Second,
			wantSuccess: true,
			wantMessage: "done",
		},
		{
			name: "echoes request",
			script: `#!/bin/sh
INPUT=$(cat)
case "$INPUT" in
  *'"event":"low_confidence"'*'"target":"nurse-station"'*) echo '{"success":true,"message":"saw request"}' ;;
  *) echo '{"success":false,"error":"unexpected request"}' ;;
esac
`,
			timeout:     5 * time.Second,
			wantSuccess: true,
			wantMessage: "saw request",
		},
		{
			name: "error response",
			script: `#!/bin/sh
echo '{"success":false,"error":"display unavailable"}'
`,
			timeout:     5 * time.Second,
			wantSuccess: false,
		},
		{
			name: "invalid json",
			script: `#!/bin/sh
echo 'not valid json'
`,
			timeout: 5 * time.Second,
			wantErr: "failed to parse hook response",
		},
		{
			name: "non-zero exit",
			script: `#!/bin/sh
echo "Error: something failed" >&2
exit 1
`,
			timeout: 5 * time.Second,
			wantErr: "something failed",
		},
		{
			name: "timeout",
			script: `#!/bin/sh
sleep 10
echo '{"success":true}'
`,
			timeout: 100 * time.Millisecond,
			wantErr: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeHook(t, root, "h", []Event{EventLowConfidence}, tt.script)

			m := NewManager(root)
			if err := m.Discover(); err != nil {
				t.Fatalf("Discover() failed: %v", err)
			}
			h, err := m.Get("h")
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}

			req := &Request{Event: EventLowConfidence, Translation: translate.Result{ID: "t-1"}}
			resp, err := NewExecutor(tt.timeout).Execute(context.Background(), h, req)

			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q does not contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() failed: %v", err)
			}
			if resp.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v (error %q)", resp.Success, tt.wantSuccess, resp.Error)
			}
			if tt.wantMessage != "" && resp.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", resp.Message, tt.wantMessage)
			}
		})
	}
}

func TestDispatcher_Events(t *testing.T) {
	d := NewDispatcher(NewManager(""), NewExecutor(time.Second), 60)

	tests := []struct {
		name string
		r    translate.Result
		want int
	}{
		{"confident", translate.Result{Confidence: confidence.Result{Score: 85}}, 1},
		{"boundary", translate.Result{Confidence: confidence.Result{Score: 60}}, 1},
		{"low", translate.Result{Confidence: confidence.Result{Score: 59}}, 2},
		{"failed", translate.Result{Error: "timeout", Confidence: confidence.Result{Score: 90}}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := d.Events(tt.r)
			if len(events) != tt.want {
				t.Errorf("Events() = %v, want %d events", events, tt.want)
			}
			if events[0] != EventTranslation {
				t.Errorf("first event = %q, want translation", events[0])
			}
		})
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	skipOnWindows(t)

	root := t.TempDir()
	writeHook(t, root, "type-text", []Event{EventTranslation}, okScript)
	writeHook(t, root, "resign-prompt", []Event{EventLowConfidence}, `#!/bin/sh
cat > /dev/null
echo '{"success":false,"error":"no display"}'
`)

	m := NewManager(root)
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	d := NewDispatcher(m, NewExecutor(5*time.Second), 60)

	confident := translate.Result{ID: "a", Translation: "thank you", Confidence: confidence.Result{Score: 92}}
	runs := d.Dispatch(context.Background(), confident)
	if len(runs) != 1 || runs[0].Hook != "type-text" || !runs[0].Success {
		t.Errorf("confident result runs = %+v", runs)
	}

	low := translate.Result{ID: "b", Translation: "[unclear]", Confidence: confidence.Result{Score: 12}}
	runs = d.Dispatch(context.Background(), low)
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %+v", runs)
	}
	if runs[1].Hook != "resign-prompt" || runs[1].Event != EventLowConfidence {
		t.Errorf("unexpected second run %+v", runs[1])
	}
	if runs[1].Success || runs[1].Message != "no display" {
		t.Errorf("failed hook should be reported, got %+v", runs[1])
	}
}
