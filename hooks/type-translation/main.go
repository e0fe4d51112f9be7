// Package main provides a hook that types each translation into the
// frontmost macOS application via AppleScript.
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
		Score int    `json:"score"`
		Level string `json:"level"`
	} `json:"confidence"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Config controls what gets typed.
type Config struct {
	MinScore    int  `json:"min_score"`
	AppendSpace bool `json:"append_space"`
	PressReturn bool `json:"press_return"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	if req.Event != "translation" {
		writeResponse(Response{Error: fmt.Sprintf("unsupported event: %s", req.Event)})
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeResponse(Response{Error: fmt.Sprintf("failed to parse config: %v", err)})
			return
		}
	}

	text, ok := typedText(req.Translation, cfg)
	if !ok {
		writeResponse(Response{Success: true, Message: "skipped"})
		return
	}

	if err := runAppleScript(buildKeystrokeScript(text, cfg.PressReturn)); err != nil {
		writeResponse(Response{Error: fmt.Sprintf("keystroke failed: %v", err)})
		return
	}
	writeResponse(Response{Success: true, Message: fmt.Sprintf("typed %d characters", len(text))})
}

// typedText returns the text to type for t, or false when nothing should be
// typed: failed or sentinel translations and scores below the minimum.
func typedText(t Translation, cfg Config) (string, bool) {
	text := strings.TrimSpace(t.Translation)
	if t.Error != "" || text == "" || strings.HasPrefix(text, "[") {
		return "", false
	}
	if t.Confidence.Score < cfg.MinScore {
		return "", false
	}
	if cfg.AppendSpace {
		text += " "
	}
	return text, true
}

// buildKeystrokeScript generates an AppleScript that types text.
func buildKeystrokeScript(text string, pressReturn bool) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(text)
	script := fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, escaped)
	if pressReturn {
		script += "\n" + `tell application "System Events" to key code 36`
	}
	return script
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
