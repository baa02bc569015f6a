// Package tui is the terminal display for a support conversation. It owns
// no conversation state of its own: every change goes through a workspace
// and the model re-renders the workspace view.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
	"github.com/zhouzirui/support-desk/client/internal/service/chat"
	"github.com/zhouzirui/support-desk/client/internal/service/conversation"
	"github.com/zhouzirui/support-desk/client/internal/service/dispatch"
)

// Workspace is the slice of chat.Workspace the terminal drives.
type Workspace interface {
	SetContact(ctx context.Context, raw string) ([]support.SessionSummary, error)
	Resume(ctx context.Context, sessionID string) (chat.View, error)
	Send(ctx context.Context, text string) (dispatch.Outcome, error)
	Choose(ctx context.Context, action string) (dispatch.Outcome, error)
	Reset() chat.View
	View() chat.View
}

type stage int

const (
	stageContact stage = iota
	stageSessions
	stageChat
)

const welcomeText = "Hello! How can I help you today?"

type contactSetMsg struct {
	sessions []support.SessionSummary
	err      error
}

type resumedMsg struct {
	view chat.View
	err  error
}

type outcomeMsg struct {
	outcome dispatch.Outcome
	err     error
}

type theme struct {
	header    lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	notice    lipgloss.Style
	errorText lipgloss.Style
	choice    lipgloss.Style
	selected  lipgloss.Style
	muted     lipgloss.Style
}

func newTheme() theme {
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	muted := lipgloss.Color("#9ca3d8")

	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue),
		user:      lipgloss.NewStyle().Foreground(mint).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(blue).Bold(true),
		notice:    lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd166")),
		errorText: lipgloss.NewStyle().Foreground(pink).Bold(true),
		choice:    lipgloss.NewStyle().Foreground(blue),
		selected:  lipgloss.NewStyle().Foreground(pink).Bold(true),
		muted:     lipgloss.NewStyle().Foreground(muted),
	}
}

// Options configures a new terminal model.
type Options struct {
	// Contact, when set, is submitted as soon as the program starts.
	Contact string
	Timeout time.Duration
}

// Model is the bubbletea model of the terminal client.
type Model struct {
	ws      Workspace
	opts    Options
	stage   stage
	input   textinput.Model
	spinner spinner.Model
	theme   theme

	view     chat.View
	sessions []support.SessionSummary
	cursor   int
	waiting  bool
	notice   string
	errText  string

	width  int
	height int
}

// New builds the model around ws.
func New(ws Workspace, opts Options) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Placeholder = "Enter your email address"
	input.SetValue(opts.Contact)
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	return Model{
		ws:      ws,
		opts:    opts,
		stage:   stageContact,
		input:   input,
		spinner: sp,
		theme:   newTheme(),
		view:    ws.View(),
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if strings.TrimSpace(m.opts.Contact) != "" {
		cmds = append(cmds, m.setContactCmd(m.opts.Contact))
	}
	return tea.Batch(cmds...)
}

func (m Model) requestContext() (context.Context, context.CancelFunc) {
	if m.opts.Timeout > 0 {
		// Backend calls carry their own timeout; this bounds history loads.
		return context.WithTimeout(context.Background(), m.opts.Timeout)
	}
	return context.WithCancel(context.Background())
}

func (m Model) setContactCmd(raw string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		sessions, err := m.ws.SetContact(ctx, raw)
		return contactSetMsg{sessions: sessions, err: err}
	}
}

func (m Model) resumeCmd(sessionID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		view, err := m.ws.Resume(ctx, sessionID)
		return resumedMsg{view: view, err: err}
	}
}

func (m Model) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		outcome, err := m.ws.Send(context.Background(), text)
		return outcomeMsg{outcome: outcome, err: err}
	}
}

func (m Model) chooseCmd(action string) tea.Cmd {
	return func() tea.Msg {
		outcome, err := m.ws.Choose(context.Background(), action)
		return outcomeMsg{outcome: outcome, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case contactSetMsg:
		m.waiting = false
		m.view = m.ws.View()
		if msg.err != nil && m.view.Contact.IsZero() {
			m.errText = support.UserMessage(support.KindOf(msg.err))
			return m, nil
		}
		m.errText = ""
		if msg.err != nil {
			m.notice = "Previous sessions are unavailable right now."
		}
		m.sessions = msg.sessions
		m.input.Reset()
		if len(m.sessions) > 0 {
			m.stage = stageSessions
			m.cursor = 0
			m.input.Blur()
			return m, nil
		}
		m.enterChat()
		return m, nil

	case resumedMsg:
		m.waiting = false
		if msg.err != nil {
			m.errText = support.UserMessage(support.KindOf(msg.err))
			return m, nil
		}
		m.errText = ""
		m.view = msg.view
		m.enterChat()
		return m, nil

	case outcomeMsg:
		m.waiting = false
		m.view = m.ws.View()
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.errText = ""
		m.notice = msg.outcome.Notice
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.stage {
		case stageContact:
			return m.updateContact(msg)
		case stageSessions:
			return m.updateSessions(msg)
		default:
			return m.updateChat(msg)
		}
	}

	return m, nil
}

func (m Model) updateContact(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "enter" {
		if m.waiting {
			return m, nil
		}
		m.waiting = true
		return m, m.setContactCmd(m.input.Value())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// updateSessions moves through the picker. Row 0 starts a new conversation,
// row i resumes sessions[i-1].
func (m Model) updateSessions(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rows := len(m.sessions) + 1
	switch msg.String() {
	case "up", "k":
		m.cursor = (m.cursor + rows - 1) % rows
	case "down", "j":
		m.cursor = (m.cursor + 1) % rows
	case "esc", "n":
		m.enterChat()
	case "enter":
		if m.cursor == 0 {
			m.enterChat()
			return m, nil
		}
		if m.waiting {
			return m, nil
		}
		m.waiting = true
		return m, m.resumeCmd(m.sessions[m.cursor-1].SessionID)
	}
	return m, nil
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if idx, ok := choiceIndex(key); ok && m.input.Value() == "" && idx < len(m.view.Offer) {
		if m.waiting {
			return m, nil
		}
		m.waiting = true
		m.notice = ""
		return m, m.chooseCmd(m.view.Offer[idx].Action)
	}

	if key == "enter" {
		text := strings.TrimSpace(m.input.Value())
		switch text {
		case "":
			return m, nil
		case "/quit":
			return m, tea.Quit
		case "/new", "/clear":
			m.input.Reset()
			m.view = m.ws.Reset()
			m.waiting = false
			m.notice = ""
			return m, nil
		}
		if m.waiting || m.view.Terminal {
			return m, nil
		}
		m.input.Reset()
		m.waiting = true
		m.notice = ""
		return m, m.sendCmd(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) enterChat() {
	m.stage = stageChat
	m.view = m.ws.View()
	m.input.Placeholder = "Type a message, /new for a fresh conversation"
	m.input.Focus()
}

func (m Model) View() string {
	var b strings.Builder

	title := "Support chat"
	if !m.view.Contact.IsZero() {
		title += " · " + m.view.Contact.String()
	}
	if m.view.SessionID != "" {
		title += " · session " + m.view.SessionID
	}
	b.WriteString(m.theme.header.Render(title))
	b.WriteString("\n")

	switch m.stage {
	case stageContact:
		b.WriteString("\nPlease enter your email to start chatting.\n\n")
		b.WriteString(m.input.View())
		if m.waiting {
			b.WriteString("\n" + m.spinner.View() + " Checking...")
		}
	case stageSessions:
		b.WriteString(m.renderSessions())
	default:
		b.WriteString(m.renderTranscript())
		b.WriteString("\n")
		b.WriteString(m.input.View())
	}

	if m.errText != "" {
		b.WriteString("\n" + m.theme.errorText.Render(m.errText))
	}
	return b.String()
}

func (m Model) renderSessions() string {
	var b strings.Builder
	b.WriteString("\nPrevious conversations (enter to open, n for new):\n\n")

	rows := make([]string, 0, len(m.sessions)+1)
	rows = append(rows, "Start a new conversation")
	for _, s := range m.sessions {
		preview := "(no messages)"
		if s.LastMessagePreview != nil {
			preview = truncate(*s.LastMessagePreview, 50)
		}
		rows = append(rows, fmt.Sprintf("%s  %d messages  %s",
			s.UpdatedAt.Local().Format("2006-01-02 15:04"), s.MessageCount, preview))
	}

	for i, row := range rows {
		if i == m.cursor {
			b.WriteString(m.theme.selected.Render("▸ " + row))
		} else {
			b.WriteString("  " + row)
		}
		b.WriteString("\n")
	}
	if m.waiting {
		b.WriteString(m.spinner.View() + " Loading history...\n")
	}
	return b.String()
}

func (m Model) renderTranscript() string {
	var lines []string
	wrap := lipgloss.NewStyle()
	if m.width > 0 {
		wrap = wrap.Width(m.width - 2)
	}

	if len(m.view.Turns) == 0 {
		lines = append(lines, m.theme.assistant.Render("Assistant: ")+welcomeText)
	}
	for _, turn := range m.view.Turns {
		label := m.theme.user.Render("You: ")
		if turn.Role == support.RoleAssistant {
			label = m.theme.assistant.Render("Assistant: ")
		}
		lines = append(lines, wrap.Render(label+turn.Text))
		if turn.TicketCreated {
			lines = append(lines, m.theme.notice.Render(ticketBadge(turn.TicketID)))
		}
	}

	for i, d := range m.view.Offer {
		if i >= 9 {
			break
		}
		line := fmt.Sprintf("[%d] %s", i+1, d.Label)
		if d.Description != "" {
			line += m.theme.muted.Render("  " + d.Description)
		}
		lines = append(lines, m.theme.choice.Render(line))
	}

	switch {
	case m.waiting || m.view.State == conversation.AwaitingReply:
		lines = append(lines, m.spinner.View()+" Assistant is typing...")
	case m.view.Terminal:
		lines = append(lines, m.theme.notice.Render("This conversation has ended. Type /new to start again."))
	}
	if m.notice != "" {
		lines = append(lines, m.theme.notice.Render(m.notice))
	}

	out := strings.Join(lines, "\n")
	if m.height > 0 {
		all := strings.Split(out, "\n")
		if keep := m.height - 5; keep > 0 && len(all) > keep {
			all = all[len(all)-keep:]
		}
		out = strings.Join(all, "\n")
	}
	return "\n" + out + "\n"
}

// choiceIndex maps the keys 1-9 to offer positions.
func choiceIndex(key string) (int, bool) {
	if len(key) != 1 || key[0] < '1' || key[0] > '9' {
		return 0, false
	}
	return int(key[0] - '1'), true
}

func ticketBadge(id *int) string {
	if id == nil {
		return "Ticket created"
	}
	return fmt.Sprintf("Ticket #%d created", *id)
}

func truncate(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "…"
}
