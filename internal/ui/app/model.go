// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app is the Bubble Tea host: a navbar with the signed-in user, the
// ask form with its answer, saved chats and chat history, and the login and
// sign-up forms.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/askchat/internal/auth"
	"github.com/jeranaias/askchat/internal/chat"
	"github.com/jeranaias/askchat/internal/session"
	"github.com/jeranaias/askchat/internal/ui/styles"
)

// statusRefresh is how often the navbar session countdown is redrawn.
const statusRefresh = 30 * time.Second

// Screen identifies the active view.
type Screen int

const (
	ScreenChat Screen = iota
	ScreenLogin
	ScreenRegister
)

// Deps are the components the host drives.
type Deps struct {
	Controller *chat.Controller
	Auth       *auth.Flow
	Sessions   *session.Store
	Supervisor *session.Supervisor
	Theme      *styles.Theme

	// RenderMarkdown renders answers with glamour.
	RenderMarkdown bool
	Logger         *slog.Logger
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx  context.Context
	deps Deps
	keys KeyMap

	screen Screen
	query  textinput.Model
	fields []textinput.Model
	focus  int

	spinner  spinner.Model
	viewport viewport.Model
	markdown *markdown

	// pending counts submissions whose answer has not arrived yet.
	pending int
	// notice is a one-line status shown under the input.
	notice string
	// signedIn is the last username seen; cleared when the session ends.
	signedIn string

	width  int
	height int
}

// New creates the host model. ctx bounds every backend call it starts.
func New(ctx context.Context, deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Theme == nil {
		deps.Theme = styles.NewTheme("dark")
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type your Question..."
	ti.CharLimit = 4096
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = deps.Theme.Loading

	vp := viewport.New(80, 20)

	m := Model{
		ctx:      ctx,
		deps:     deps,
		keys:     DefaultKeyMap(),
		screen:   ScreenChat,
		query:    ti,
		spinner:  sp,
		viewport: vp,
		width:    80,
		height:   24,
	}
	if deps.RenderMarkdown {
		m.markdown = newMarkdown(deps.Theme.Name)
	}
	m.deps.Theme.SetSize(m.width, m.height)
	m.refresh()
	return m
}

// Init starts the navbar countdown.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, statusTick())
}

// Screen returns the active screen.
func (m Model) Screen() Screen {
	return m.screen
}

func statusTick() tea.Cmd {
	return tea.Tick(statusRefresh, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

// newFields builds the form inputs for screen.
func newFields(screen Screen) []textinput.Model {
	mk := func(placeholder string, password bool) textinput.Model {
		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = placeholder
		ti.CharLimit = 256
		if password {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		return ti
	}
	var fields []textinput.Model
	if screen == ScreenRegister {
		fields = append(fields, mk("username", false))
	}
	fields = append(fields, mk("Email", false), mk("Password", true))
	fields[0].Focus()
	return fields
}

// openForm switches to the login or sign-up screen.
func (m *Model) openForm(screen Screen) {
	m.screen = screen
	m.fields = newFields(screen)
	m.focus = 0
	m.query.Blur()
	m.deps.Auth.ClearError()
}

// closeForm returns to the chat screen.
func (m *Model) closeForm() {
	m.screen = ScreenChat
	m.fields = nil
	m.focus = 0
	m.query.Focus()
}

func (m *Model) focusField(i int) {
	n := len(m.fields)
	m.focus = ((i % n) + n) % n
	for j := range m.fields {
		if j == m.focus {
			m.fields[j].Focus()
		} else {
			m.fields[j].Blur()
		}
	}
}

// fieldValue returns the raw value of the named form field.
func (m Model) fieldValue(name string) string {
	offset := 0
	if m.screen == ScreenRegister {
		if name == "username" {
			return m.fields[0].Value()
		}
		offset = 1
	}
	switch name {
	case "email":
		return m.fields[offset].Value()
	case "password":
		return m.fields[offset+1].Value()
	}
	return ""
}

// resize lays out the viewport below the navbar, title and input.
func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.deps.Theme.SetSize(width, height)
	m.query.Width = m.deps.Theme.ContentWidth() - 4
	m.viewport.Width = m.deps.Theme.ContentWidth()
	vh := height - chromeHeight
	if vh < 3 {
		vh = 3
	}
	m.viewport.Height = vh
	m.refresh()
}

// refresh re-renders the scrollable chat content.
func (m *Model) refresh() {
	v := m.deps.Controller.Snapshot()
	if v.Authenticated {
		m.signedIn = v.Username
	}
	m.viewport.SetContent(m.renderContent(v))
}
