// Package tray provides a system tray interface showing the live rep count.
package tray

import (
	"context"
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/repcounter/internal/rep"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle  func(enabled bool)
	onRestart func()
	onOpen    func()
	onQuit    func()
	enabled   bool
	snapshot  rep.Snapshot
	mu        sync.RWMutex

	quit        func()
	ready       bool
	quitPending bool

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuReps   *systray.MenuItem
	menuPhase  *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled:  true,
		snapshot: rep.Snapshot{Phase: rep.PhaseUnknown},
		quit:     systray.Quit,
	}
}

// OnToggle sets the callback function to be called when counting is paused or resumed.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnRestart sets the callback for the restart session menu item.
func (t *Tray) OnRestart(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRestart = fn
}

// OnOpen sets the callback for the open web UI menu item.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
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

// Quit removes the tray icon and makes Run return. Called before the tray
// is ready, it takes effect as soon as it is.
func (t *Tray) Quit() {
	t.mu.Lock()
	if !t.ready {
		t.quitPending = true
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.quit()
}

// markReady records that systray is running and reports whether a quit
// arrived before it was.
func (t *Tray) markReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ready = true
	return t.quitPending
}

func (t *Tray) onReady() {
	if t.markReady() {
		t.quit()
		return
	}

	systray.SetTitle("Reps: 0")
	systray.SetTooltip("Push-up counter")

	t.mu.Lock()
	reps, phase := labels(t.snapshot)
	t.menuReps = systray.AddMenuItem(reps, "Repetitions in this session")
	t.menuReps.Disable()
	t.menuPhase = systray.AddMenuItem(phase, "Current arm position")
	t.menuPhase.Disable()
	systray.AddSeparator()

	t.menuToggle = systray.AddMenuItem(toggleLabel(t.enabled), "Pause or resume counting")
	t.mu.Unlock()

	menuRestart := systray.AddMenuItem("Restart Session", "Start counting from zero")
	menuOpen := systray.AddMenuItem("Open Counter...", "Open the counter in the browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit the rep counter")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuRestart.ClickedCh:
				t.call(func() func() { return t.onRestart })
			case <-menuOpen.ClickedCh:
				t.call(func() func() { return t.onOpen })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				t.quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// call runs the callback returned by get outside the lock.
func (t *Tray) call(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleLabel(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	if callback != nil {
		callback(enabled)
	}
}

// Show displays the count and phase of snap.
func (t *Tray) Show(snap rep.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := snap.RepCount != t.snapshot.RepCount || snap.Phase != t.snapshot.Phase
	t.snapshot = snap
	if !changed || t.menuReps == nil {
		return
	}

	reps, phase := labels(snap)
	t.menuReps.SetTitle(reps)
	t.menuPhase.SetTitle(phase)
	systray.SetTitle(reps)
}

// Follow shows every update until ctx is done or the channel closes.
func (t *Tray) Follow(ctx context.Context, updates <-chan rep.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			t.Show(u.Snapshot)
		}
	}
}

// Snapshot returns the last shown snapshot.
func (t *Tray) Snapshot() rep.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func labels(snap rep.Snapshot) (reps, phase string) {
	return fmt.Sprintf("Reps: %d", snap.RepCount), fmt.Sprintf("Phase: %s", snap.Phase)
}

func toggleLabel(enabled bool) string {
	if enabled {
		return "● Counting"
	}
	return "○ Paused"
}
