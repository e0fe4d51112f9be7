// Package main provides a hook that asks the signer to repeat a sign when
// a translation comes back with low confidence. It posts a macOS
// notification and can optionally play an alert sound.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Request represents the input from the hook executor.
type Request struct {
	Event       string          `json:"event"`
	Translation Translation     `json:"translation"`
	Config      json.RawMessage `json:"config"`
}

// Translation carries the fields of a translation result this hook reads.
type Translation struct {
	ID          string `json:"id"`
	Translation string `json:"translation"`
	Error       string `json:"error,omitempty"`
	Confidence  struct {
		Score        int      `json:"score"`
		Level        string   `json:"level"`
		Alternatives []string `json:"alternatives"`
		Explanation  string   `json:"explanation"`
	} `json:"confidence"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Config controls the notification.
type Config struct {
	Title string `json:"title"`
	Sound string `json:"sound"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	if req.Event != "low_confidence" {
		writeResponse(Response{Error: fmt.Sprintf("unsupported event: %s", req.Event)})
		return
	}

	cfg := Config{Title: "Please sign again"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeResponse(Response{Error: fmt.Sprintf("failed to parse config: %v", err)})
			return
		}
	}

	body := notificationBody(req.Translation)
	if err := runAppleScript(buildNotificationScript(cfg, body)); err != nil {
		writeResponse(Response{Error: fmt.Sprintf("notification failed: %v", err)})
		return
	}
	writeResponse(Response{Success: true, Message: body})
}

// notificationBody describes why the translation needs another attempt.
func notificationBody(t Translation) string {
	if t.Error != "" {
		return "The sign could not be translated."
	}

	var b strings.Builder
	if t.Confidence.Explanation != "" {
		b.WriteString(t.Confidence.Explanation)
	} else {
		fmt.Fprintf(&b, "Confidence %d%%.", t.Confidence.Score)
	}
	if len(t.Confidence.Alternatives) > 1 {
		fmt.Fprintf(&b, " Did you mean %s?", strings.Join(t.Confidence.Alternatives, " or "))
	}
	return b.String()
}

// buildNotificationScript generates an AppleScript that displays a notification.
func buildNotificationScript(cfg Config, body string) string {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, escape(body), escape(cfg.Title))
	if cfg.Sound != "" {
		script += fmt.Sprintf(` sound name "%s"`, escape(cfg.Sound))
	}
	return script
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func writeResponse(resp Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}

// runAppleScript executes an AppleScript command and returns any error.
func runAppleScript(script string) error {
	cmd := exec.Command("osascript", "-e", script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
