// Package tray provides the macOS menu bar interface: the active scene, a
// switching toggle and quit.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/autocam/internal/app"
	"github.com/ayusman/autocam/internal/scene"
)

// Tray represents the macOS system tray application.
type Tray struct {
	onToggle func(enabled bool)
	onStatus func()
	onQuit   func()
	enabled  bool
	active   scene.ID
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuActive *systray.MenuItem
}

// New creates a new Tray instance showing the given enabled state.
func New(enabled bool) *Tray {
	return &Tray{
		enabled: enabled,
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnStatus sets the callback function to be called when the status menu item is clicked.
func (t *Tray) OnStatus(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStatus = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called and must run on the main thread.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray event loop.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("autocam")
	systray.SetTooltip("autocam scene switcher")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle automatic scene switching")
	systray.AddSeparator()

	t.menuActive = systray.AddMenuItem(activeTitle(t.active), "Scene on program")
	t.menuActive.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuStatus := systray.AddMenuItem("Open Status...", "Open status in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit autocam")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuStatus.ClickedCh:
				t.handleStatus()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.menuToggle.SetTitle(toggleTitle(enabled))
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// handleStatus handles the status menu item click.
func (t *Tray) handleStatus() {
	t.mu.RLock()
	callback := t.onStatus
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Notify shows a committed transition. It is safe to call before Run.
func (t *Tray) Notify(tr app.Transition) {
	if !tr.Applied {
		return
	}
	t.SetActive(tr.To)
}

// SetActive updates the active scene display in the menu.
func (t *Tray) SetActive(id scene.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active = id
	if t.menuActive != nil {
		t.menuActive.SetTitle(activeTitle(id))
	}
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

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// Active returns the scene shown as active.
func (t *Tray) Active() scene.ID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Switching enabled"
	}
	return "○ Switching paused"
}

func activeTitle(id scene.ID) string {
	if id == scene.None {
		return "Scene: none"
	}
	return "Scene: " + string(id)
}
