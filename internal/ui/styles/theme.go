// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the host.
type Theme struct {
	// Name is "dark" or "light" after resolving "auto".
	Name   string
	IsDark bool

	Width  int
	Height int

	App lipgloss.Style

	// Navbar
	Navbar      lipgloss.Style
	NavbarBrand lipgloss.Style
	NavbarLink  lipgloss.Style
	NavbarUser  lipgloss.Style

	// Chat
	Title        lipgloss.Style
	Label        lipgloss.Style
	Question     lipgloss.Style
	Answer       lipgloss.Style
	Loading      lipgloss.Style
	Error        lipgloss.Style
	SectionTitle lipgloss.Style
	Divider      lipgloss.Style

	// Forms
	Form        lipgloss.Style
	FormFocused lipgloss.Style
	Button      lipgloss.Style

	Help    lipgloss.Style
	Warning lipgloss.Style
}

// NewTheme creates a theme. name is "dark", "light" or "auto"; "auto" asks
// the terminal for its background.
func NewTheme(name string) *Theme {
	var isDark bool
	switch strings.ToLower(name) {
	case "light":
		isDark = false
	case "dark":
		isDark = true
	default:
		isDark = termenv.HasDarkBackground()
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{IsDark: isDark, Name: "light"}
	if isDark {
		t.Name = "dark"
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.App = lipgloss.NewStyle().Padding(0, 1)

	t.Navbar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextPrimary).
		Padding(0, 1)
	t.NavbarBrand = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.NavbarLink = lipgloss.NewStyle().Foreground(Cyan).Underline(true)
	t.NavbarUser = lipgloss.NewStyle().Foreground(Emerald)

	t.Title = lipgloss.NewStyle().Bold(true).Foreground(Purple).MarginBottom(1)
	t.Label = lipgloss.NewStyle().Bold(true).Foreground(TextSecondary)
	t.Question = lipgloss.NewStyle().Foreground(Cyan)
	t.Answer = lipgloss.NewStyle().Foreground(TextPrimary)
	t.Loading = lipgloss.NewStyle().Italic(true).Foreground(TextMuted)
	t.Error = lipgloss.NewStyle().Bold(true).Foreground(Rose)
	t.SectionTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple).MarginTop(1)
	t.Divider = lipgloss.NewStyle().Foreground(Overlay)

	t.Form = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.FormFocused = t.Form.BorderForeground(Purple)
	t.Button = lipgloss.NewStyle().
		Bold(true).
		Foreground(SurfaceDim).
		Background(Purple).
		Padding(0, 2)

	t.Help = lipgloss.NewStyle().Foreground(TextMuted)
	t.Warning = lipgloss.NewStyle().Foreground(Amber)
}

// SetSize updates the theme dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// ContentWidth returns the usable width inside App padding, at least 20.
func (t *Theme) ContentWidth() int {
	w := t.Width - t.App.GetHorizontalFrameSize()
	if w < 20 {
		return 20
	}
	return w
}

// Rule returns a horizontal divider of the content width.
func (t *Theme) Rule() string {
	return t.Divider.Render(strings.Repeat("─", t.ContentWidth()))
}
