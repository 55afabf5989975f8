// Package ui provides the terminal settings screen for chokewatch.
// This file defines key bindings using the Bubble Tea key package for
// type-safe key matching, help text generation and user customization.
package ui

import (
	"strings"

	"chokewatch/internal/config"

	"github.com/charmbracelet/bubbles/key"
)

// parseKeys splits a comma-separated string into individual keys.
// If the input is empty, returns the default keys.
func parseKeys(customKeys string, defaultKeys ...string) []string {
	if customKeys == "" {
		return defaultKeys
	}
	keys := strings.Split(customKeys, ",")
	result := make([]string, 0, len(keys))
	for _, k := range keys {
		trimmed := strings.TrimSpace(k)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// KeyMap defines the settings screen key bindings.
type KeyMap struct {
	Quit      key.Binding
	Help      key.Binding
	NextField key.Binding
	PrevField key.Binding
	Up        key.Binding
	Down      key.Binding
	Save      key.Binding
	Clear     key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return NewKeyMap(&config.KeysConfig{})
}

// NewKeyMap creates key bindings from config.
func NewKeyMap(cfg *config.KeysConfig) KeyMap {
	if cfg == nil {
		cfg = &config.KeysConfig{}
	}
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys(parseKeys(cfg.Quit, "q", "ctrl+c")...),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys(parseKeys(cfg.Help, "?")...),
			key.WithHelp("?", "help"),
		),
		NextField: key.NewBinding(
			key.WithKeys(parseKeys(cfg.NextField, "tab", "right", "l")...),
			key.WithHelp("tab", "next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys(parseKeys(cfg.PrevField, "shift+tab", "left", "h")...),
			key.WithHelp("shift+tab", "previous field"),
		),
		Up: key.NewBinding(
			key.WithKeys(parseKeys(cfg.Up, "k", "up")...),
			key.WithHelp("k/↑", "earlier"),
		),
		Down: key.NewBinding(
			key.WithKeys(parseKeys(cfg.Down, "j", "down")...),
			key.WithHelp("j/↓", "later"),
		),
		Save: key.NewBinding(
			key.WithKeys(parseKeys(cfg.Save, "enter", "s")...),
			key.WithHelp("enter", "save"),
		),
		Clear: key.NewBinding(
			key.WithKeys(parseKeys(cfg.Clear, "c")...),
			key.WithHelp("c", "clear"),
		),
	}
}

// ShortHelp returns the short help (implements help.KeyMap).
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextField, k.Down, k.Save, k.Clear, k.Help, k.Quit}
}

// FullHelp returns the full help (implements help.KeyMap).
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextField, k.PrevField, k.Up, k.Down},
		{k.Save, k.Clear},
		{k.Help, k.Quit},
	}
}

// HelpKeyMap defines keys for closing the help overlay.
type HelpKeyMap struct {
	Close key.Binding
}

// DefaultHelpKeyMap returns the default help overlay key bindings.
func DefaultHelpKeyMap() HelpKeyMap {
	return HelpKeyMap{
		Close: key.NewBinding(
			key.WithKeys("?", "esc", "q", "enter", " "),
			key.WithHelp("any key", "close"),
		),
	}
}
