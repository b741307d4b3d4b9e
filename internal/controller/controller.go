// Package controller drives one conversation with the agent service. It
// owns the session state, applies optimistic updates, allows a single
// request in flight and reconciles replies and failures into the history.
package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fakeyudi/parley/internal/session"
	"github.com/fakeyudi/parley/internal/transport"
)

// Transport is the remote side of the conversation.
type Transport interface {
	SendMessage(ctx context.Context, sessionID, text string) (*transport.ChatReply, error)
	SubmitApproval(ctx context.Context, sessionID string, approved bool) (*transport.ApprovalReply, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers o to receive every event.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// WithSessionID seeds the controller with an existing server session so the
// first message continues it instead of starting a new one.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.seedID = id }
}

// WithReopenOnApprovalFailure re-opens the approval gate when submitting a
// decision fails. By default the gate stays closed after a failed decision.
func WithReopenOnApprovalFailure(reopen bool) Option {
	return func(c *Controller) { c.reopenOnApprovalFailure = reopen }
}

// Controller serializes all access to one session.State. The Busy flag is
// the single-flight guard: a call made while a request is outstanding is
// rejected, never queued.
type Controller struct {
	transport Transport
	observers []Observer

	seedID                  string
	reopenOnApprovalFailure bool

	mu    sync.Mutex
	seq   uint64
	state State
	sess  *session.State
}

// New creates an Idle controller with an empty session.
func New(t Transport, opts ...Option) *Controller {
	c := &Controller{transport: t, state: Idle}
	for _, opt := range opts {
		opt(c)
	}
	c.sess = c.freshSession()
	return c
}

func (c *Controller) freshSession() *session.State {
	s := session.New()
	s.ID = c.seedID
	return s
}

// AddObserver registers o after construction. Intended for presentation
// layers that are built after the controller.
func (c *Controller) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Snapshot returns a detached copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// CanSend reports whether Send would currently be accepted for non-empty text.
func (c *Controller) CanSend() bool { return c.Snapshot().CanSend() }

// CanDecide reports whether Approve or Reject would currently be accepted.
func (c *Controller) CanDecide() bool { return c.Snapshot().CanDecide() }

// Send submits text as the operator's next message. The message is appended
// to the history immediately and the call blocks until the server replies or
// the request fails. Transport failures are recorded in the history, not
// returned; the only errors are guard rejections matching ErrRejected.
func (c *Controller) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	var rejected error
	switch {
	case strings.TrimSpace(text) == "":
		rejected = ErrEmptyMessage
	case c.sess.Busy:
		rejected = ErrBusy
	case c.sess.PendingApproval:
		rejected = ErrApprovalPending
	}
	if rejected != nil {
		ev := c.rejectLocked(rejected)
		c.mu.Unlock()
		c.notify(ctx, ev)
		return rejected
	}

	c.sess.AppendMessage(session.Human(text))
	c.sess.Busy = true
	sessionID := c.sess.ID
	started := c.transitionLocked(AwaitingChatReply, nil)
	c.mu.Unlock()
	c.notify(ctx, started)

	reply, err := c.transport.SendMessage(ctx, sessionID, text)

	c.mu.Lock()
	var events []Event
	prefix := "connection error: "
	if err == nil {
		if err = c.sess.AssignID(reply.SessionID); err != nil {
			prefix = "session error: "
		}
	}
	if err != nil {
		c.sess.AppendMessage(session.SystemError(prefix + describe(err)))
		c.sess.Busy = false
		events = append(events,
			c.transitionLocked(Failed, err),
			c.transitionLocked(Idle, nil),
		)
	} else {
		c.sess.ReplaceHistory(reply.History)
		c.sess.PendingApproval = reply.RequiresApproval
		c.sess.Busy = false
		next := Idle
		if c.sess.PendingApproval {
			next = PendingApproval
		}
		events = append(events, c.transitionLocked(next, nil))
	}
	c.mu.Unlock()

	c.notify(ctx, events...)
	return nil
}

// Approve confirms the agent's pending proposal.
func (c *Controller) Approve(ctx context.Context) error { return c.Decide(ctx, true) }

// Reject declines the agent's pending proposal.
func (c *Controller) Reject(ctx context.Context) error { return c.Decide(ctx, false) }

// Decide submits the operator's approval decision. The approval gate is
// closed before the request is sent so a second decision cannot be made.
// Like Send, only guard rejections are returned as errors.
func (c *Controller) Decide(ctx context.Context, approved bool) error {
	c.mu.Lock()
	var rejected error
	switch {
	case c.sess.Busy:
		rejected = ErrBusy
	case !c.sess.PendingApproval:
		rejected = ErrNoApprovalPending
	}
	if rejected != nil {
		ev := c.rejectLocked(rejected)
		c.mu.Unlock()
		c.notify(ctx, ev)
		return rejected
	}

	c.sess.PendingApproval = false
	c.sess.Busy = true
	sessionID := c.sess.ID
	started := c.transitionLocked(AwaitingApprovalDecision, nil)
	c.mu.Unlock()
	c.notify(ctx, started)

	reply, err := c.transport.SubmitApproval(ctx, sessionID, approved)

	c.mu.Lock()
	var events []Event
	if err != nil {
		c.sess.AppendMessage(session.SystemError("approval error: " + describe(err)))
		c.sess.Busy = false
		next := Idle
		if c.reopenOnApprovalFailure {
			c.sess.PendingApproval = true
			next = PendingApproval
		}
		events = append(events,
			c.transitionLocked(Failed, err),
			c.transitionLocked(next, nil),
		)
	} else {
		c.sess.AppendMessage(reply.Message)
		c.sess.Busy = false
		events = append(events, c.transitionLocked(Idle, nil))
	}
	c.mu.Unlock()

	c.notify(ctx, events...)
	return nil
}

// Reset discards the current conversation and starts an empty one. The next
// message opens a new server session. Rejected while a request is in flight.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.sess.Busy {
		ev := c.rejectLocked(ErrBusy)
		c.mu.Unlock()
		c.notify(ctx, ev)
		return ErrBusy
	}

	from := c.state
	c.sess = session.New()
	c.state = Idle
	c.seq++
	ev := Event{
		Type:      EventReset,
		From:      from,
		To:        Idle,
		Timestamp: time.Now(),
		Snapshot:  c.snapshotLocked(),
	}
	c.mu.Unlock()

	c.notify(ctx, ev)
	return nil
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{Seq: c.seq, State: c.state, Session: c.sess.Clone()}
}

func (c *Controller) transitionLocked(to State, err error) Event {
	ev := Event{
		Type:      EventTransition,
		From:      c.state,
		To:        to,
		Timestamp: time.Now(),
		Err:       err,
	}
	c.state = to
	c.seq++
	ev.Snapshot = c.snapshotLocked()
	return ev
}

func (c *Controller) rejectLocked(err error) Event {
	return Event{
		Type:      EventRejected,
		From:      c.state,
		To:        c.state,
		Timestamp: time.Now(),
		Snapshot:  c.snapshotLocked(),
		Err:       err,
	}
}

func (c *Controller) notify(ctx context.Context, events ...Event) {
	c.mu.Lock()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, ev := range events {
		for _, o := range observers {
			o.OnEvent(ctx, ev)
		}
	}
}

// describe renders a failure for the conversation history.
func describe(err error) string {
	var te *transport.TransportError
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}
