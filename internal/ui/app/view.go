// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/askchat/internal/chat"
	"github.com/jeranaias/askchat/internal/session"
	"github.com/jeranaias/askchat/internal/util"
)

const (
	brand = "askchat"

	// chromeHeight is the navbar, title, bordered input, notice and help.
	chromeHeight = 9

	// expiryWarningMinutes is when the session countdown turns amber.
	expiryWarningMinutes = 5
)

// View renders the active screen.
func (m Model) View() string {
	var body string
	switch m.screen {
	case ScreenLogin, ScreenRegister:
		body = m.viewForm()
	default:
		body = m.viewChat()
	}
	return m.deps.Theme.App.Render(lipgloss.JoinVertical(lipgloss.Left, m.viewNavbar(), body))
}

func (m Model) viewNavbar() string {
	th := m.deps.Theme
	left := th.NavbarBrand.Render(brand)

	var right string
	if id, ok := m.deps.Sessions.Identity(); ok {
		parts := []string{th.NavbarUser.Render("Welcome, " + id.Username)}
		if m.deps.Supervisor != nil {
			if st := m.deps.Supervisor.Status(); st.HasExpiry {
				remaining := "session " + session.FormatDuration(st.Remaining)
				if st.Remaining.Minutes() < expiryWarningMinutes {
					remaining = th.Warning.Render(remaining)
				}
				parts = append(parts, remaining)
			}
		}
		parts = append(parts, th.NavbarLink.Render("Logout")+" "+th.Help.Render("(C-o)"))
		right = strings.Join(parts, "  ")
	} else {
		right = th.NavbarLink.Render("Login") + " " + th.Help.Render("(C-g)") + "  " +
			th.NavbarLink.Render("Sign-Up") + " " + th.Help.Render("(C-r)")
	}

	gap := th.ContentWidth() - lipgloss.Width(left) - lipgloss.Width(right) - th.Navbar.GetHorizontalFrameSize()
	if gap < 1 {
		gap = 1
	}
	return th.Navbar.Width(th.ContentWidth()).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) viewChat() string {
	th := m.deps.Theme
	var b strings.Builder
	b.WriteString(th.Title.Render("Ask a Question!"))
	b.WriteString("\n")
	b.WriteString(th.FormFocused.Width(th.ContentWidth() - 2).Render(m.query.View()))
	b.WriteString("\n")
	b.WriteString(th.Help.Render(m.notice))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	help := helpLine(m.keys.Submit, m.keys.ClearChat)
	if m.deps.Sessions.IsAuthenticated() {
		help = helpLine(m.keys.Submit, m.keys.SavedChats, m.keys.ClearChat, m.keys.Logout)
	}
	b.WriteString(th.Help.Render(help + " • " + helpLine(m.keys.Quit)))
	return b.String()
}

// renderContent renders the answer, saved chats and chat history.
func (m Model) renderContent(v chat.View) string {
	th := m.deps.Theme
	width := th.ContentWidth()
	var b strings.Builder

	b.WriteString(th.Label.Render("Answer: "))
	switch {
	case v.State == chat.StateSubmitting, m.pending > 0 && v.State == chat.StateIdle:
		b.WriteString(m.spinner.View() + " " + th.Loading.Render(chat.LoadingText))
	case v.State == chat.StateFailed:
		b.WriteString(th.Error.Render(v.Answer))
	case v.State == chat.StateAnswered && m.markdown != nil:
		b.WriteString("\n" + m.markdown.render(v.Answer, width))
	default:
		b.WriteString(th.Answer.Render(v.Answer))
	}
	b.WriteString("\n")

	if v.Authenticated {
		label := "Load Previous Chats"
		if v.SavedChatsVisible {
			label = "Hide Previous Chats"
		}
		b.WriteString("\n" + th.NavbarLink.Render(label) + " " + th.Help.Render("(C-s)") + "\n")
	}

	if v.SavedChatsVisible && len(v.SavedChats) > 0 {
		b.WriteString(th.SectionTitle.Render("Saved Chats") + "\n")
		for _, saved := range v.SavedChats {
			for _, msg := range saved.Messages {
				b.WriteString(m.renderTurn(msg.Question, msg.Answer, width))
			}
			b.WriteString(th.Rule() + "\n")
		}
	}

	if len(v.Conversation) > 0 {
		b.WriteString(th.SectionTitle.Render("Chat History") + "\n")
		for _, turn := range v.Conversation {
			b.WriteString(m.renderTurn(turn.Question, turn.Answer, width))
			b.WriteString(th.Rule() + "\n")
		}
		b.WriteString(th.NavbarLink.Render("Clear Chat History") + " " + th.Help.Render("(C-l)") + "\n")
	}
	return b.String()
}

func (m Model) renderTurn(question, answer string, width int) string {
	th := m.deps.Theme
	wrap := lipgloss.NewStyle().Width(width)
	q := th.Label.Render("Q: ") + th.Question.Render(util.OneLine(question))
	a := th.Label.Render("A: ") + th.Answer.Render(answer)
	return wrap.Render(q) + "\n" + wrap.Render(a) + "\n"
}

func (m Model) viewForm() string {
	th := m.deps.Theme
	flow := m.deps.Auth

	title, button, busy := "Login", "Login", "Logging in..."
	if m.screen == ScreenRegister {
		title, button, busy = "Register", "Register", "Registering..."
	}

	var b strings.Builder
	b.WriteString(th.Title.Render(title))
	b.WriteString("\n")
	if e := flow.Error(); e != "" {
		b.WriteString(th.Error.Render(e))
		b.WriteString("\n")
	}

	width := th.ContentWidth() / 2
	if width < 30 {
		width = 30
	}
	for i, f := range m.fields {
		style := th.Form
		if i == m.focus {
			style = th.FormFocused
		}
		b.WriteString(style.Width(width).Render(f.View()))
		b.WriteString("\n")
	}

	if flow.Loading() {
		b.WriteString(th.Button.Render(busy))
	} else {
		b.WriteString(th.Button.Render(button))
	}
	b.WriteString("\n\n")
	b.WriteString(th.Help.Render(helpLine(m.keys.NextField, m.keys.Submit, m.keys.Back, m.keys.Quit)))
	return b.String()
}
