// Package ui provides the terminal settings screen for chokewatch.
// This file contains the App model: two hour selectors bound to the quiet
// hours record, a label describing what is stored and the version of the
// worker currently handling pushes.
package ui

import (
	"fmt"
	"strings"
	"time"

	"chokewatch/internal/config"
	"chokewatch/internal/quiet"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Field identifies each hour selector.
type Field int

const (
	FieldStart Field = iota
	FieldEnd
)

// AppConfig holds user configuration for the app behavior.
type AppConfig struct {
	Keys         *config.KeysConfig
	ConfirmClear bool
}

// App is the settings screen model.
type App struct {
	store       PreferenceStore
	registry    ControllerSource
	styles      *Styles
	config      *AppConfig
	start       *HourSelector
	end         *HourSelector
	focus       Field
	helpOverlay *HelpOverlay

	// stored is the window currently persisted; nil when unset.
	stored    *quiet.Window
	updatedAt time.Time
	loaded    bool

	controller    string
	controllerErr bool

	saving       bool
	confirmClear bool
	showHelp     bool
	width        int
	height       int
	status       string
	statusErr    bool
	statusUntil  time.Time
	quitting     bool

	keys     KeyMap
	helpKeys HelpKeyMap

	statusTimer func(ttl time.Duration, until time.Time) tea.Cmd
}

// NewApp creates the settings screen. Loading is deferred to Init() to
// keep the constructor non-blocking. registry may be nil.
func NewApp(store PreferenceStore, registry ControllerSource, styles *Styles, cfg *AppConfig) *App {
	if cfg == nil {
		cfg = &AppConfig{Keys: &config.KeysConfig{}, ConfirmClear: true}
	}
	if cfg.Keys == nil {
		cfg.Keys = &config.KeysConfig{}
	}

	keys := NewKeyMap(cfg.Keys)
	app := &App{
		store:       store,
		registry:    registry,
		styles:      styles,
		config:      cfg,
		start:       NewHourSelector("Start"),
		end:         NewHourSelector("End"),
		focus:       FieldStart,
		helpOverlay: NewHelpOverlay(styles, keys),
		keys:        keys,
		helpKeys:    DefaultHelpKeyMap(),
		statusTimer: clearStatusAfter,
	}
	app.start.SetFocused(true)
	return app
}

// Init loads the stored window and the controller asynchronously.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		loadPrefsCmd(a.store),
		loadControllerCmd(a.registry),
	)
}

// Update handles all messages and routes them appropriately.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.helpOverlay.SetSize(msg.Width, msg.Height)
		return a, nil

	case prefsLoadedMsg:
		a.loaded = true
		if msg.ok {
			w := msg.window
			a.stored = &w
			a.updatedAt = msg.updatedAt
			a.start.SetValue(w.Start)
			a.end.SetValue(w.End)
		}
		return a, nil

	case prefsSavedMsg:
		a.saving = false
		if msg.err != nil {
			return a, a.SetStatus("Save failed: "+msg.err.Error(), true)
		}
		w := msg.window
		a.stored = &w
		a.updatedAt = time.Now()
		return a, a.SetStatus("Saved", false)

	case prefsClearedMsg:
		a.saving = false
		if msg.err != nil {
			return a, a.SetStatus("Clear failed: "+msg.err.Error(), true)
		}
		a.stored = nil
		a.updatedAt = time.Time{}
		return a, a.SetStatus("Quiet hours turned off", false)

	case controllerLoadedMsg:
		switch {
		case msg.err != nil:
			a.controller = "registry unreadable: " + msg.err.Error()
			a.controllerErr = true
		case !msg.ok:
			a.controller = "no worker running"
		default:
			a.controller = fmt.Sprintf("worker %s (%s)", versionOrDev(msg.instance.Version), msg.instance.State)
		}
		return a, nil

	case clearStatusMsg:
		if !a.statusUntil.After(msg.until) {
			a.status = ""
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.confirmClear {
		switch msg.String() {
		case "y", "Y", "enter":
			a.confirmClear = false
			a.saving = true
			return a, clearPrefsCmd(a.store)
		case "n", "N", "esc":
			a.confirmClear = false
			return a, a.SetStatus("Canceled", false)
		}
		return a, nil
	}

	if a.showHelp {
		if key.Matches(msg, a.helpKeys.Close) {
			a.showHelp = false
		}
		return a, nil
	}

	switch {
	case key.Matches(msg, a.keys.Quit):
		a.quitting = true
		return a, tea.Quit

	case key.Matches(msg, a.keys.Help):
		a.showHelp = true
		return a, nil

	case key.Matches(msg, a.keys.NextField), key.Matches(msg, a.keys.PrevField):
		a.toggleFocus()
		return a, nil

	case key.Matches(msg, a.keys.Up):
		a.focused().Prev()
		return a, nil

	case key.Matches(msg, a.keys.Down):
		a.focused().Next()
		return a, nil

	case key.Matches(msg, a.keys.Save):
		if a.saving {
			return a, a.SetStatus("Busy", true)
		}
		a.saving = true
		return a, savePrefsCmd(a.store, a.Selected())

	case key.Matches(msg, a.keys.Clear):
		if a.stored == nil {
			return a, a.SetStatus("Quiet hours are not set", true)
		}
		if a.saving {
			return a, a.SetStatus("Busy", true)
		}
		if a.config.ConfirmClear {
			a.confirmClear = true
			return a, nil
		}
		a.saving = true
		return a, clearPrefsCmd(a.store)
	}

	return a, nil
}

// Selected returns the window currently chosen in the selectors.
func (a *App) Selected() quiet.Window {
	return quiet.Window{Start: a.start.Value(), End: a.end.Value()}
}

// QuietLabel describes the stored window.
func (a *App) QuietLabel() string {
	if a.stored == nil {
		return "Quiet hours are off"
	}
	return "Quiet hours set to " + a.stored.String()
}

func (a *App) focused() *HourSelector {
	if a.focus == FieldEnd {
		return a.end
	}
	return a.start
}

func (a *App) toggleFocus() {
	if a.focus == FieldStart {
		a.focus = FieldEnd
	} else {
		a.focus = FieldStart
	}
	a.start.SetFocused(a.focus == FieldStart)
	a.end.SetFocused(a.focus == FieldEnd)
}

// View renders the screen.
func (a *App) View() string {
	if a.quitting {
		return ""
	}
	if a.confirmClear {
		return a.renderConfirmClear()
	}
	if a.showHelp {
		return a.helpOverlay.View()
	}

	var b strings.Builder

	b.WriteString(a.styles.TitleStyle.Render("chokewatch · quiet hours"))
	b.WriteString("\n\n")

	var pane strings.Builder
	pane.WriteString(a.styles.PaneTitleStyle.Render("Silence chokepoint alerts between"))
	pane.WriteString("\n")
	pane.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		a.start.View(a.styles),
		"   ",
		a.end.View(a.styles),
	))
	pane.WriteString("\n\n")

	switch {
	case !a.loaded:
		pane.WriteString(a.styles.UnsetLabelStyle.Render("Loading…"))
	case a.stored == nil:
		pane.WriteString(a.styles.UnsetLabelStyle.Render(a.QuietLabel()))
	default:
		pane.WriteString(a.styles.QuietLabelStyle.Render("🔕 " + a.QuietLabel()))
		if !a.updatedAt.IsZero() {
			pane.WriteString("\n")
			pane.WriteString(a.styles.ControllerStyle.Render("saved " + a.updatedAt.Local().Format("Jan 2 15:04")))
		}
	}
	if a.controller != "" {
		pane.WriteString("\n")
		style := a.styles.ControllerStyle
		if a.controllerErr {
			style = a.styles.ErrorStyle
		}
		pane.WriteString(style.Render(a.controller))
	}

	b.WriteString(a.styles.PaneStyle.Render(pane.String()))
	b.WriteString("\n")

	if a.status != "" && time.Now().Before(a.statusUntil) {
		style := a.styles.StatusStyle
		if a.statusErr {
			style = a.styles.ErrorStyle
		}
		b.WriteString(style.Render(a.status))
		b.WriteString("\n")
	}

	b.WriteString(a.styles.RenderHelp(
		"tab", "switch",
		"j/k", "change",
		"enter", "save",
		"c", "clear",
		"?", "help",
		"q", "quit",
	))

	return b.String()
}

func (a *App) renderConfirmClear() string {
	overlayWidth := 50
	if a.width > 0 {
		overlayWidth = min(50, max(20, a.width-4))
	}

	overlayStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(a.styles.ColorDanger).
		Padding(1, 2).
		Width(overlayWidth)

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(a.styles.ColorDanger).
		MarginBottom(1)

	hintStyle := lipgloss.NewStyle().
		Foreground(a.styles.ColorTextMuted)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Turn quiet hours off?"))
	b.WriteString("\n\n")
	b.WriteString(a.styles.FieldLabelStyle.Render("All alerts will be shown again."))
	b.WriteString("\n\n")
	b.WriteString(hintStyle.Render("[y/enter] turn off    [n/esc] cancel"))

	return RenderCentered(overlayStyle.Render(b.String()), a.width, a.height)
}

// SetStatus shows msg in the status line and schedules its removal.
func (a *App) SetStatus(msg string, isErr bool) tea.Cmd {
	a.status = msg
	a.statusErr = isErr
	ttl := 5 * time.Second
	if isErr {
		ttl = 8 * time.Second
	}
	a.statusUntil = time.Now().Add(ttl)
	return a.statusTimer(ttl, a.statusUntil)
}

func versionOrDev(v string) string {
	if v == "" {
		return "dev"
	}
	return v
}

// Run starts the Bubble Tea program.
func Run(store PreferenceStore, registry ControllerSource, styles *Styles, cfg *AppConfig) error {
	p := tea.NewProgram(NewApp(store, registry, styles, cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
