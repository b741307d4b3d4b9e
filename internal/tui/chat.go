package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/parley/internal/controller"
	"github.com/fakeyudi/parley/internal/session"
)

var (
	humanLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	agentLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	approvalStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("226")).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	disabledInputStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("238")).
				Padding(0, 1)
)

// Messages delivered to the chat model.
type (
	// snapshotMsg carries controller state after every event.
	snapshotMsg controller.Snapshot
	// opDoneMsg reports the end of a Send/Decide/Reset call.
	opDoneMsg struct{ err error }
	// savedMsg reports a transcript write.
	savedMsg struct {
		path string
		err  error
	}
)

// Labels are the display names used for each side of the conversation.
type Labels struct {
	Human string
	Agent string
}

// Saver writes the current conversation somewhere durable.
type Saver interface {
	Save(s session.State) (string, error)
}

// ChatOptions configures a ChatModel.
type ChatOptions struct {
	Server string
	Labels Labels
	// Saver is optional; without it ctrl+s is disabled.
	Saver Saver
}

// ChatModel is the Bubble Tea model for an interactive conversation.
type ChatModel struct {
	ctrl *controller.Controller
	opts ChatOptions

	snap   controller.Snapshot
	status string

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	width    int
	height   int
	ready    bool
}

// NewChat creates a chat model driving ctrl.
func NewChat(ctrl *controller.Controller, opts ChatOptions) ChatModel {
	if opts.Labels.Human == "" {
		opts.Labels.Human = "You"
	}
	if opts.Labels.Agent == "" {
		opts.Labels.Agent = "Agent"
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textarea.New()
	ti.Placeholder = "Type a message… (Enter to send)"
	ti.CharLimit = 4000
	ti.ShowLineNumbers = false
	ti.SetWidth(80)
	ti.SetHeight(3)
	ti.Focus()

	return ChatModel{
		ctrl:    ctrl,
		opts:    opts,
		snap:    ctrl.Snapshot(),
		spinner: s,
		input:   ti,
	}
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.layout()
		return m, nil

	case snapshotMsg:
		snap := controller.Snapshot(msg)
		if m.snap.Newer(snap) {
			return m, nil
		}
		m.snap = snap
		m.syncInput()
		m.refresh()
		return m, nil

	case opDoneMsg:
		if msg.err != nil {
			m.status = rejectionText(msg.err)
		}
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.status = "save failed: " + msg.err.Error()
		} else {
			m.status = "saved " + msg.path
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	if m.snap.CanSend() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m ChatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "ctrl+n":
		m.status = ""
		return m, m.run(func(ctx context.Context) error { return m.ctrl.Reset(ctx) })

	case "ctrl+s":
		if m.opts.Saver == nil {
			m.status = "no transcript directory configured"
			return m, nil
		}
		saver, state := m.opts.Saver, m.snap.Session
		return m, func() tea.Msg {
			path, err := saver.Save(state)
			return savedMsg{path: path, err: err}
		}

	case "pgup", "pgdown", "up", "down":
		if !m.snap.CanSend() || msg.String() == "pgup" || msg.String() == "pgdown" {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	if m.snap.CanDecide() {
		switch strings.ToLower(msg.String()) {
		case "y", "a":
			m.status = ""
			return m, m.run(func(ctx context.Context) error { return m.ctrl.Approve(ctx) })
		case "n", "r":
			m.status = ""
			return m, m.run(func(ctx context.Context) error { return m.ctrl.Reject(ctx) })
		}
		return m, nil
	}

	if msg.String() == "enter" {
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.input.Reset()
		m.status = ""
		return m, m.run(func(ctx context.Context) error { return m.ctrl.Send(ctx, text) })
	}

	if !m.snap.CanSend() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// run performs op off the UI goroutine. State changes arrive separately as
// snapshotMsg through the observer.
func (m ChatModel) run(op func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: op(context.Background())}
	}
}

func rejectionText(err error) string {
	switch {
	case errors.Is(err, controller.ErrBusy):
		return "still waiting for the agent"
	case errors.Is(err, controller.ErrApprovalPending):
		return "approve (y) or reject (n) the proposal first"
	case errors.Is(err, controller.ErrNoApprovalPending):
		return "nothing to approve"
	case errors.Is(err, controller.ErrEmptyMessage):
		return ""
	default:
		return err.Error()
	}
}

func (m *ChatModel) syncInput() {
	if m.snap.CanSend() {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

// layout sizes the components: title(1) + viewport + banner(1) + input(5) + status(1).
func (m *ChatModel) layout() {
	vpHeight := m.height - 8
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport = viewport.New(m.width, vpHeight)
	m.input.SetWidth(max(m.width-4, 10))
	m.refresh()
}

func (m *ChatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(RenderConversation(m.snap.Session.History, m.opts.Labels, m.width))
	m.viewport.GotoBottom()
}

func (m ChatModel) View() string {
	if !m.ready {
		return "Loading…"
	}

	sessionLabel := "new session"
	if m.snap.Session.ID != "" {
		sessionLabel = "session " + m.snap.Session.ID
	}
	title := titleStyle.Width(m.width).Render("  parley  " + m.opts.Server + "  ·  " + sessionLabel)

	banner := ""
	if m.snap.Session.PendingApproval {
		banner = approvalStyle.Render("APPROVAL REQUIRED  [y] approve  [n] reject")
	}

	box := inputStyle
	if !m.snap.CanSend() {
		box = disabledInputStyle
	}
	input := box.Width(max(m.width-2, 10)).Render(m.input.View())

	left := "  enter send  ctrl+n new  ctrl+s save  pgup/pgdn scroll  esc quit"
	if m.snap.Session.Busy {
		left = "  " + m.spinner.View() + " " + m.snap.State.String()
	}
	if m.status != "" {
		left += "  ·  " + m.status
	}
	right := fmt.Sprintf("%d messages", len(m.snap.Session.History))
	pad := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", pad) + right)

	return lipgloss.JoinVertical(lipgloss.Left, title, m.viewport.View(), banner, input, statusBar)
}

// RenderConversation formats msgs for a terminal of the given width.
func RenderConversation(msgs []session.Message, labels Labels, width int) string {
	if len(msgs) == 0 {
		return "\n" + dimStyle.Render("  Start the conversation below.") + "\n"
	}
	body := lipgloss.NewStyle().PaddingLeft(2).Width(max(width-2, 20))

	var sb strings.Builder
	for _, msg := range msgs {
		sb.WriteString("\n")
		switch msg.Role {
		case session.RoleHuman:
			sb.WriteString(humanLabelStyle.Render("  "+labels.Human) + "\n")
			sb.WriteString(body.Render(msg.Content) + "\n")
		case session.RoleSystemError:
			sb.WriteString(body.Inherit(errorStyle).Render("⚠ "+msg.Content) + "\n")
		default:
			sb.WriteString(agentLabelStyle.Render("  "+labels.Agent) + "\n")
			sb.WriteString(body.Render(msg.Content) + "\n")
		}
	}
	return sb.String()
}

// RunChat starts the interactive chat TUI for ctrl.
func RunChat(ctrl *controller.Controller, opts ChatOptions) error {
	p := tea.NewProgram(NewChat(ctrl, opts), tea.WithAltScreen())
	ctrl.AddObserver(controller.ObserverFunc(func(_ context.Context, ev controller.Event) {
		p.Send(snapshotMsg(ev.Snapshot))
	}))
	_, err := p.Run()
	return err
}
