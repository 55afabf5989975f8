package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	"chokewatch/internal/quiet"
	"chokewatch/internal/worker"

	tea "github.com/charmbracelet/bubbletea"
)

func TestApp_LoadsStoredWindow(t *testing.T) {
	setupTest(t)
	store := &memStore{w: &quiet.Window{Start: 22, End: 7}, at: time.Now()}
	app := newTestApp(store, nil)
	run(t, app, app.Init())

	if got := app.Selected(); got != (quiet.Window{Start: 22, End: 7}) {
		t.Errorf("selectors = %+v, want 22-7", got)
	}
	if got := app.QuietLabel(); got != "Quiet hours set to 10 PM – 7 AM" {
		t.Errorf("label = %q", got)
	}
	if !strings.Contains(app.View(), "Quiet hours set to 10 PM – 7 AM") {
		t.Error("view should show the stored window")
	}
}

func TestApp_UnsetStartsAtMidnight(t *testing.T) {
	setupTest(t)
	app := newTestApp(&memStore{}, nil)
	run(t, app, app.Init())

	if got := app.Selected(); got != (quiet.Window{}) {
		t.Errorf("selectors = %+v, want both at 12 AM", got)
	}
	if !strings.Contains(app.View(), "Quiet hours are off") {
		t.Error("view should say quiet hours are off")
	}
}

func TestApp_SelectAndSave(t *testing.T) {
	setupTest(t)
	store := &memStore{}
	app := newTestApp(store, nil)
	run(t, app, app.Init())

	// Start: 12 AM -> 10 PM by going back two hours.
	press(t, app, "k", "k")
	// End: 12 AM -> 7 AM.
	press(t, app, "tab", "j", "j", "j", "j", "j", "j", "j")
	press(t, app, "enter")

	w, _, ok := store.Stat(context.Background())
	if !ok || w != (quiet.Window{Start: 22, End: 7}) {
		t.Fatalf("stored = %+v ok=%v, want 22-7", w, ok)
	}
	if app.QuietLabel() != "Quiet hours set to 10 PM – 7 AM" {
		t.Errorf("label = %q", app.QuietLabel())
	}
	if !strings.Contains(app.View(), "Saved") {
		t.Error("status line should confirm the save")
	}
}

func TestApp_SaveFailureShownInStatus(t *testing.T) {
	setupTest(t)
	store := &memStore{putErr: errDiskFull}
	app := newTestApp(store, nil)
	run(t, app, app.Init())

	press(t, app, "enter")

	if app.stored != nil {
		t.Error("failed save should not update the label")
	}
	if !strings.Contains(app.View(), "Save failed: disk full") {
		t.Errorf("view should show the failure:\n%s", app.View())
	}
	if app.saving {
		t.Error("saving flag should reset after failure")
	}
}

func TestApp_ClearWithConfirmation(t *testing.T) {
	setupTest(t)
	store := &memStore{w: &quiet.Window{Start: 9, End: 18}}
	app := newTestApp(store, nil)
	run(t, app, app.Init())

	press(t, app, "c")
	if !app.confirmClear {
		t.Fatal("clear should ask for confirmation")
	}
	if !strings.Contains(app.View(), "Turn quiet hours off?") {
		t.Error("confirmation should be rendered")
	}

	press(t, app, "n")
	if store.cleared != 0 || app.stored == nil {
		t.Fatal("canceled clear removed the window")
	}

	press(t, app, "c", "y")
	if store.cleared != 1 {
		t.Errorf("cleared = %d, want 1", store.cleared)
	}
	if app.stored != nil || app.QuietLabel() != "Quiet hours are off" {
		t.Errorf("label = %q after clear", app.QuietLabel())
	}
}

func TestApp_ClearWhenUnset(t *testing.T) {
	setupTest(t)
	store := &memStore{}
	app := newTestApp(store, nil)
	run(t, app, app.Init())

	press(t, app, "c")
	if app.confirmClear || store.cleared != 0 {
		t.Error("clearing an unset window should be refused")
	}
}

func TestApp_SelectorsWrap(t *testing.T) {
	setupTest(t)
	app := newTestApp(&memStore{}, nil)

	press(t, app, "k")
	if app.start.Value() != 23 {
		t.Errorf("start = %d after moving back from 12 AM, want 23", app.start.Value())
	}
	press(t, app, "j")
	if app.start.Value() != 0 {
		t.Errorf("start = %d, want 0", app.start.Value())
	}
}

func TestApp_FocusSwitch(t *testing.T) {
	setupTest(t)
	app := newTestApp(&memStore{}, nil)

	if !app.start.Focused() || app.end.Focused() {
		t.Fatal("start selector should have initial focus")
	}
	press(t, app, "tab")
	if app.start.Focused() || !app.end.Focused() {
		t.Error("tab should move focus to end")
	}
	press(t, app, "shift+tab")
	if !app.start.Focused() {
		t.Error("shift+tab should move focus back to start")
	}
}

func TestApp_ShowsController(t *testing.T) {
	setupTest(t)
	reg := fakeRegistry{snap: worker.Snapshot{
		Controller: "abc",
		Instances: map[string]worker.Instance{
			"abc": {ID: "abc", Version: "1.4.0", State: worker.StateActive},
		},
	}}
	app := newTestApp(&memStore{}, reg)
	run(t, app, app.Init())

	if !strings.Contains(app.View(), "worker 1.4.0 (active)") {
		t.Errorf("view should name the controlling worker:\n%s", app.View())
	}
}

func TestApp_NoController(t *testing.T) {
	setupTest(t)
	app := newTestApp(&memStore{}, fakeRegistry{snap: worker.Snapshot{}})
	run(t, app, app.Init())

	if !strings.Contains(app.View(), "no worker running") {
		t.Error("view should say no worker is running")
	}
}

func TestApp_HelpToggle(t *testing.T) {
	setupTest(t)
	app := newTestApp(&memStore{}, nil)
	app.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	press(t, app, "?")
	if !app.showHelp {
		t.Fatal("? should open help")
	}
	if !strings.Contains(app.View(), "Save quiet hours") {
		t.Error("help overlay should be rendered")
	}

	// Keys other than close are swallowed while help is open.
	press(t, app, "j")
	if app.start.Value() != 0 {
		t.Error("selector moved while help was open")
	}

	press(t, app, "esc")
	if app.showHelp {
		t.Error("esc should close help")
	}
}

func TestApp_Quit(t *testing.T) {
	setupTest(t)
	app := newTestApp(&memStore{}, nil)

	_, cmd := app.Update(keyMsg("q"))
	if !run(t, app, cmd) {
		t.Error("q should quit")
	}
	if app.View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestApp_StatusExpires(t *testing.T) {
	setupTest(t)
	app := newTestApp(&memStore{}, nil)

	app.SetStatus("Saved", false)
	until := app.statusUntil
	app.Update(clearStatusMsg{until: until})
	if app.status != "" {
		t.Error("status should clear when its timer fires")
	}

	app.SetStatus("first", false)
	first := app.statusUntil
	app.statusUntil = first.Add(time.Second)
	app.status = "second"
	app.Update(clearStatusMsg{until: first})
	if app.status != "second" {
		t.Error("an older timer cleared a newer status")
	}
}
