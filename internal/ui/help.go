package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
)

// HelpOverlay renders a help screen
type HelpOverlay struct {
	width  int
	height int
	styles *Styles
	keys   KeyMap
}

// NewHelpOverlay creates a new help overlay
func NewHelpOverlay(styles *Styles, keys KeyMap) *HelpOverlay {
	return &HelpOverlay{
		styles: styles,
		keys:   keys,
	}
}

// SetSize sets the overlay dimensions
func (h *HelpOverlay) SetSize(width, height int) {
	h.width = width
	h.height = height
}

// View renders the help overlay
func (h *HelpOverlay) View() string {
	overlayWidth := 56
	if h.width > 0 {
		overlayWidth = min(56, max(20, h.width-4))
	}

	overlayStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(h.styles.ColorPrimary).
		Padding(1, 2).
		Width(overlayWidth)

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(h.styles.ColorPrimary).
		MarginBottom(1)

	sectionStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(h.styles.ColorAccent).
		MarginTop(1)

	keyStyle := lipgloss.NewStyle().
		Foreground(h.styles.ColorWarning).
		Width(20)

	descStyle := lipgloss.NewStyle().
		Foreground(h.styles.ColorText)

	mutedStyle := lipgloss.NewStyle().
		Foreground(h.styles.ColorTextMuted).
		Italic(true)

	var b strings.Builder

	b.WriteString(titleStyle.Render("chokewatch - Quiet Hours"))
	b.WriteString("\n\n")

	sections := []struct {
		name string
		keys [][2]string
	}{
		{"Selecting hours", [][2]string{
			{bindingKeys(h.keys.NextField), "Next selector"},
			{bindingKeys(h.keys.PrevField), "Previous selector"},
			{bindingKeys(h.keys.Up), "One hour earlier"},
			{bindingKeys(h.keys.Down), "One hour later"},
		}},
		{"Saving", [][2]string{
			{bindingKeys(h.keys.Save), "Save quiet hours"},
			{bindingKeys(h.keys.Clear), "Turn quiet hours off"},
		}},
		{"General", [][2]string{
			{bindingKeys(h.keys.Help), "Toggle help"},
			{bindingKeys(h.keys.Quit), "Quit"},
		}},
	}
	for i, sec := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(sectionStyle.Render(sec.name))
		b.WriteString("\n")
		for _, kv := range sec.keys {
			b.WriteString(keyStyle.Render(kv[0]) + descStyle.Render(kv[1]) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("Notifications arriving inside the window are not shown."))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("Press ? or Esc to close"))

	content := overlayStyle.Render(b.String())

	return lipgloss.Place(
		h.width,
		h.height,
		lipgloss.Center,
		lipgloss.Center,
		content,
	)
}

// bindingKeys renders the first two keys of a binding, e.g. "k / up".
func bindingKeys(b key.Binding) string {
	keys := b.Keys()
	if len(keys) > 2 {
		keys = keys[:2]
	}
	return strings.Join(keys, " / ")
}

// RenderCentered centers content in the terminal
func RenderCentered(content string, width, height int) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}
