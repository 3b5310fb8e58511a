// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/askchat/internal/auth"
	"github.com/jeranaias/askchat/internal/chat"
	"github.com/jeranaias/askchat/internal/session"
)

// Update handles messages and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if m.screen == ScreenChat {
			return m.updateChat(msg)
		}
		return m.updateForm(msg)

	case answerMsg:
		if m.pending > 0 {
			m.pending--
		}
		v := m.deps.Controller.Snapshot()
		if msg.result.State == chat.StateAnswered && v.Query == "" {
			m.query.SetValue("")
		}
		m.refresh()
		return m, nil

	case savedChatsMsg:
		m.refresh()
		return m, nil

	case authResultMsg:
		if msg.err == nil {
			m.closeForm()
			m.notice = ""
		}
		m.refresh()
		return m, nil

	case session.ResetMsg:
		m.query.SetValue("")
		m.pending = 0
		if m.signedIn != "" {
			m.notice = "Session ended."
		}
		m.signedIn = ""
		m.refresh()
		return m, nil

	case statusTickMsg:
		return m, statusTick()

	case spinner.TickMsg:
		if m.pending == 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}
	return m, nil
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctrl := m.deps.Controller
	switch {
	case key.Matches(msg, m.keys.Submit):
		question := m.query.Value()
		if strings.TrimSpace(question) == "" {
			return m, nil
		}
		m.pending++
		m.notice = ""
		ctx := m.ctx
		return m, tea.Batch(
			func() tea.Msg { return answerMsg{result: ctrl.Submit(ctx, question)} },
			m.spinner.Tick,
		)

	case key.Matches(msg, m.keys.SavedChats):
		if !m.deps.Sessions.IsAuthenticated() {
			return m, nil
		}
		ctx := m.ctx
		return m, func() tea.Msg { return savedChatsMsg{visible: ctrl.ToggleSavedChats(ctx)} }

	case key.Matches(msg, m.keys.ClearChat):
		ctrl.ClearHistory()
		m.notice = "Chat history cleared."
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Logout):
		if m.deps.Sessions.IsAuthenticated() {
			m.deps.Sessions.Logout()
		}
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Login):
		if !m.deps.Sessions.IsAuthenticated() {
			m.openForm(ScreenLogin)
		}
		return m, nil

	case key.Matches(msg, m.keys.Register):
		if !m.deps.Sessions.IsAuthenticated() {
			m.openForm(ScreenRegister)
		}
		return m, nil

	case key.Matches(msg, m.keys.ScrollUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.query, cmd = m.query.Update(msg)
	ctrl.SetQuery(m.query.Value())
	return m, cmd
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.closeForm()
		return m, nil

	case key.Matches(msg, m.keys.NextField):
		m.focusField(m.focus + 1)
		return m, nil

	case key.Matches(msg, m.keys.PrevField):
		m.focusField(m.focus - 1)
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		if m.focus < len(m.fields)-1 {
			m.focusField(m.focus + 1)
			return m, nil
		}
		return m, m.submitForm()
	}

	var cmd tea.Cmd
	m.fields[m.focus], cmd = m.fields[m.focus].Update(msg)
	return m, cmd
}

// submitForm runs login or registration off the update loop.
func (m Model) submitForm() tea.Cmd {
	flow := m.deps.Auth
	ctx := m.ctx
	if m.screen == ScreenRegister {
		form := auth.RegisterForm{
			Username: m.fieldValue("username"),
			Email:    m.fieldValue("email"),
			Password: m.fieldValue("password"),
		}
		return func() tea.Msg { return authResultMsg{err: flow.Register(ctx, form)} }
	}
	form := auth.LoginForm{
		Email:    m.fieldValue("email"),
		Password: m.fieldValue("password"),
	}
	return func() tea.Msg { return authResultMsg{err: flow.Login(ctx, form)} }
}
