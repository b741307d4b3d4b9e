// Package tui provides the Bubble Tea interfaces: a live chat with the agent
// and a viewer for saved transcripts.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/parley/internal/session"
	"github.com/fakeyudi/parley/internal/transcript"
)

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabConversation tabID = iota
	tabSummary
	tabErrors
	tabCount
)

var tabNames = [tabCount]string{"Conversation", "Summary", "Errors"}

// transcriptMsg delivers a re-parsed transcript in follow mode.
type transcriptMsg struct {
	t   *transcript.Transcript
	err error
}

// ── Model ────────────────────

// Model is the Bubble Tea model for viewing a saved transcript.
type Model struct {
	transcript *transcript.Transcript
	filename   string
	following  bool
	reloadErr  error
	activeTab  tabID
	viewports  [tabCount]viewport.Model
	width      int
	height     int
	ready      bool
}

// New creates a viewer for t loaded from filename.
func New(t *transcript.Transcript, filename string) Model {
	return Model{
		transcript: t,
		filename:   filepath.Base(filename),
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
			return m, nil
		case "1", "2", "3":
			m.activeTab = tabID(msg.String()[0] - '1')
			return m, nil
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil

	case transcriptMsg:
		m.reloadErr = msg.err
		if msg.err == nil && msg.t != nil {
			m.transcript = msg.t
			if m.ready {
				for i := tabID(0); i < tabCount; i++ {
					m.viewports[i].SetContent(m.renderTab(i))
				}
				m.viewports[tabConversation].GotoBottom()
			}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render("  parley  " + m.filename)

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-3 jump  q quit"
	if m.following {
		hint += "  · following"
	}
	if m.reloadErr != nil {
		hint += "  · reload failed: " + m.reloadErr.Error()
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabConversation:
		return RenderConversation(m.transcript.Messages, m.labels(), m.width)
	case tabSummary:
		return m.renderSummary()
	case tabErrors:
		return m.renderErrors()
	}
	return ""
}

func (m *Model) labels() Labels {
	l := Labels{Human: m.transcript.Meta.Operator, Agent: m.transcript.Meta.Agent}
	if l.Human == "" {
		l.Human = "You"
	}
	if l.Agent == "" {
		l.Agent = "Agent"
	}
	return l
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m *Model) renderSummary() string {
	meta := m.transcript.Meta
	var sb strings.Builder
	sb.WriteString(heading("Transcript"))

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("ID:", meta.ID)
	sessionID := meta.SessionID
	if sessionID == "" {
		sessionID = dimStyle.Render("(not started)")
	}
	row("Session:", sessionID)
	if meta.Server != "" {
		row("Server:", meta.Server)
	}
	if meta.Operator != "" {
		row("Operator:", meta.Operator)
	}
	row("Saved:", meta.SavedAt.Local().Format("2006-01-02 15:04:05 MST"))
	if meta.PendingApproval {
		row("Status:", "awaiting approval")
	}

	counts := map[session.Role]int{}
	for _, msg := range m.transcript.Messages {
		counts[msg.Role]++
	}
	sb.WriteString(heading("Counts"))
	row("Human:", fmt.Sprintf("%d", counts[session.RoleHuman]))
	row("Agent:", fmt.Sprintf("%d", counts[session.RoleAssistant]))
	row("Errors:", fmt.Sprintf("%d", counts[session.RoleSystemError]))
	return sb.String()
}

func (m *Model) renderErrors() string {
	var errs []string
	for _, msg := range m.transcript.Messages {
		if msg.Role == session.RoleSystemError {
			errs = append(errs, msg.Content)
		}
	}
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Errors (%d)", len(errs))))
	if len(errs) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for i, e := range errs {
		num := dimStyle.Render(fmt.Sprintf("  %3d.", i+1))
		sb.WriteString(num + "  " + errorStyle.Render(e) + "\n\n")
	}
	return sb.String()
}

// Run starts the viewer for t. When follow is set the file at path is
// watched and the view refreshes on every rewrite.
func Run(t *transcript.Transcript, path string, follow bool) error {
	m := New(t, path)
	m.following = follow
	p := tea.NewProgram(m, tea.WithAltScreen())

	if follow {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go transcript.Watch(ctx, path, func(t *transcript.Transcript, err error) {
			p.Send(transcriptMsg{t: t, err: err})
		})
	}

	_, err := p.Run()
	return err
}
