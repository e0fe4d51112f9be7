// Package tray provides the macOS menu bar controls for HealthBridge.
package tray

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/getlantern/systray"

	"github.com/healthbridge/healthbridge/internal/translate"
)

// maxTitleRunes bounds the translation text shown in the menu.
const maxTitleRunes = 40

// Tray represents the macOS system tray application.
type Tray struct {
	onToggle   func(enabled bool) error
	onSettings func()
	onQuit     func()
	enabled    bool
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuLast   *systray.MenuItem
	menuLevel  *systray.MenuItem
}

// New creates a new Tray with live translation enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback for the enable toggle. A non-nil error leaves
// the previous state in place.
func (t *Tray) OnToggle(fn func(enabled bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetTitle("HealthBridge")
	systray.SetTooltip("HealthBridge sign translation")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle live translation")
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem("Last: none", "Last translation")
	t.menuLast.Disable()
	t.menuLevel = systray.AddMenuItem("Confidence: -", "Confidence of the last translation")
	t.menuLevel.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit HealthBridge")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleToggle() {
	t.mu.RLock()
	enabled := !t.enabled
	callback := t.onToggle
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		if err := callback(enabled); err != nil {
			systray.SetTooltip("HealthBridge: " + err.Error())
			return
		}
	}
	t.SetEnabled(enabled)
}

func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Quit stops the tray event loop and returns from Run.
func (t *Tray) Quit() {
	systray.Quit()
}

// SetEnabled updates the toggle without invoking the callback.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// SetLast shows r as the last translation.
func (t *Tray) SetLast(r translate.Result) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLast != nil {
		t.menuLast.SetTitle(lastTitle(r))
	}
	if t.menuLevel != nil {
		t.menuLevel.SetTitle(levelTitle(r))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Translating"
	}
	return "○ Paused"
}

func lastTitle(r translate.Result) string {
	text := r.Translation
	if text == "" {
		return "Last: none"
	}
	if utf8.RuneCountInString(text) > maxTitleRunes {
		runes := []rune(text)
		text = string(runes[:maxTitleRunes-1]) + "…"
	}
	return "Last: " + text
}

func levelTitle(r translate.Result) string {
	if r.Failed() {
		return "Confidence: translation failed"
	}
	return fmt.Sprintf("Confidence: %d (%s)", r.Confidence.Score, r.Confidence.Level)
}
