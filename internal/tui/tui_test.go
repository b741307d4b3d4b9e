package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fakeyudi/parley/internal/controller"
	"github.com/fakeyudi/parley/internal/session"
	"github.com/fakeyudi/parley/internal/transcript"
	"github.com/fakeyudi/parley/internal/transport"
)

type echoTransport struct {
	pending   bool
	decisions []bool
}

func (e *echoTransport) SendMessage(_ context.Context, _, text string) (*transport.ChatReply, error) {
	return &transport.ChatReply{
		History:          []session.Message{session.Human(text), session.Assistant("echo " + text)},
		SessionID:        "s-1",
		RequiresApproval: e.pending,
	}, nil
}

func (e *echoTransport) SubmitApproval(_ context.Context, _ string, approved bool) (*transport.ApprovalReply, error) {
	e.decisions = append(e.decisions, approved)
	return &transport.ApprovalReply{Message: session.Assistant("APPROVED.")}, nil
}

func keys(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func sized(m tea.Model) tea.Model {
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

// drive runs cmd and feeds its result, plus the controller's state, back in.
func drive(t *testing.T, m tea.Model, cmd tea.Cmd, ctrl *controller.Controller) tea.Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	m, _ = m.Update(cmd())
	m, _ = m.Update(snapshotMsg(ctrl.Snapshot()))
	return m
}

func TestChatSendShowsConversation(t *testing.T) {
	ctrl := controller.New(&echoTransport{})
	var m tea.Model = sized(NewChat(ctrl, ChatOptions{Server: "http://x", Labels: Labels{Human: "Ana", Agent: "Concierge"}}))

	m, _ = m.Update(keys("hola"))
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = drive(t, m, cmd, ctrl)

	view := m.View()
	for _, want := range []string{"Ana", "hola", "Concierge", "echo hola", "session s-1"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if got := m.(ChatModel).input.Value(); got != "" {
		t.Errorf("input should be cleared, got %q", got)
	}
}

func TestChatEmptyEnterDoesNothing(t *testing.T) {
	ctrl := controller.New(&echoTransport{})
	var m tea.Model = sized(NewChat(ctrl, ChatOptions{}))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("enter on empty input should not start a request")
	}
}

func TestChatApprovalKeys(t *testing.T) {
	et := &echoTransport{pending: true}
	ctrl := controller.New(et)
	var m tea.Model = sized(NewChat(ctrl, ChatOptions{}))

	m, _ = m.Update(keys("book"))
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = drive(t, m, cmd, ctrl)

	if !strings.Contains(m.View(), "APPROVAL REQUIRED") {
		t.Fatalf("expected approval banner:\n%s", m.View())
	}

	// Typing is ignored while a decision is pending.
	m, _ = m.Update(keys("x"))
	if got := m.(ChatModel).input.Value(); got != "" {
		t.Errorf("input should stay empty, got %q", got)
	}

	m, cmd = m.Update(keys("n"))
	m = drive(t, m, cmd, ctrl)

	if len(et.decisions) != 1 || et.decisions[0] {
		t.Fatalf("want one rejection, got %v", et.decisions)
	}
	if strings.Contains(m.View(), "APPROVAL REQUIRED") {
		t.Error("banner should clear after the decision")
	}
}

func TestChatResetClearsConversation(t *testing.T) {
	ctrl := controller.New(&echoTransport{})
	var m tea.Model = sized(NewChat(ctrl, ChatOptions{}))

	m, _ = m.Update(keys("hi"))
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = drive(t, m, cmd, ctrl)

	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	m = drive(t, m, cmd, ctrl)

	view := m.View()
	if !strings.Contains(view, "new session") || strings.Contains(view, "echo hi") {
		t.Errorf("expected an empty new session:\n%s", view)
	}
}

// gatedTransport holds SendMessage until release is closed.
type gatedTransport struct {
	echoTransport
	entered chan struct{}
	release chan struct{}
}

func (g *gatedTransport) SendMessage(ctx context.Context, id, text string) (*transport.ChatReply, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.echoTransport.SendMessage(ctx, id, text)
}

func TestChatIgnoresStaleSnapshot(t *testing.T) {
	gt := &gatedTransport{entered: make(chan struct{}), release: make(chan struct{})}
	var events []controller.Event
	var mu sync.Mutex
	ctrl := controller.New(gt, controller.WithObserver(controller.ObserverFunc(func(_ context.Context, ev controller.Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})))
	var m tea.Model = sized(NewChat(ctrl, ChatOptions{}))

	done := make(chan error, 1)
	go func() { done <- ctrl.Send(context.Background(), "hola") }()
	<-gt.entered
	if err := ctrl.Reset(context.Background()); err == nil {
		t.Fatal("reset should be rejected while busy")
	}
	close(gt.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	var rejected, settled controller.Snapshot
	mu.Lock()
	for _, ev := range events {
		switch ev.Type {
		case controller.EventRejected:
			rejected = ev.Snapshot
		case controller.EventTransition:
			settled = ev.Snapshot
		}
	}
	mu.Unlock()

	// Deliver the completion first and the busy rejection last.
	m, _ = m.Update(snapshotMsg(settled))
	m, _ = m.Update(snapshotMsg(rejected))

	got := m.(ChatModel).snap
	if got.Session.Busy || got.State != controller.Idle {
		t.Fatalf("stale snapshot applied: busy=%v state=%s", got.Session.Busy, got.State)
	}
	if !strings.Contains(m.View(), "echo hola") {
		t.Errorf("conversation lost:\n%s", m.View())
	}
}

type memorySaver struct{ saved []session.State }

func (s *memorySaver) Save(st session.State) (string, error) {
	s.saved = append(s.saved, st)
	return "/tmp/parley-x.md", nil
}

func TestChatSave(t *testing.T) {
	saver := &memorySaver{}
	ctrl := controller.New(&echoTransport{})
	var m tea.Model = sized(NewChat(ctrl, ChatOptions{Saver: saver}))

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	m, _ = m.Update(cmd())
	if len(saver.saved) != 1 {
		t.Fatalf("want one save, got %d", len(saver.saved))
	}
	if !strings.Contains(m.View(), "saved /tmp/parley-x.md") {
		t.Errorf("status should report the path:\n%s", m.View())
	}
}

func TestRenderConversationErrors(t *testing.T) {
	out := RenderConversation([]session.Message{
		session.Human("hi"),
		session.SystemError("connection error: HTTP error: 500"),
	}, Labels{Human: "You", Agent: "Agent"}, 80)
	if !strings.Contains(out, "connection error: HTTP error: 500") {
		t.Errorf("error message missing:\n%s", out)
	}
	if strings.Contains(out, "Agent") {
		t.Errorf("errors must not be attributed to the agent:\n%s", out)
	}
}

func TestViewerTabsAndReload(t *testing.T) {
	tr := &transcript.Transcript{
		Meta: transcript.Meta{ID: "01ABC", SessionID: "abc123", SavedAt: time.Now()},
		Messages: []session.Message{
			session.Human("hola"),
			session.SystemError("approval error: timeout"),
		},
	}
	var m tea.Model = sized(New(tr, "/tmp/parley-01ABC.md"))

	if view := m.View(); !strings.Contains(view, "parley-01ABC.md") || !strings.Contains(view, "hola") {
		t.Fatalf("unexpected view:\n%s", view)
	}

	m, _ = m.Update(keys("3"))
	if view := m.View(); !strings.Contains(view, "Errors (1)") {
		t.Errorf("errors tab:\n%s", view)
	}

	updated := *tr
	updated.Messages = append(updated.Messages, session.Human("otra"), session.Assistant("vale"))
	m, _ = m.Update(keys("1"))
	m, _ = m.Update(transcriptMsg{t: &updated})
	if view := m.View(); !strings.Contains(view, "vale") {
		t.Errorf("reload not shown:\n%s", view)
	}
}
