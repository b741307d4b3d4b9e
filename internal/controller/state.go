package controller

import (
	"errors"
	"fmt"

	"github.com/fakeyudi/parley/internal/session"
)

// State is the controller's position in the conversation protocol.
type State int

const (
	Idle State = iota
	AwaitingChatReply
	AwaitingApprovalDecision
	// PendingApproval blocks new messages until the operator decides.
	PendingApproval
	// Failed is transient; the controller always settles back to Idle.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingChatReply:
		return "awaiting-chat-reply"
	case AwaitingApprovalDecision:
		return "awaiting-approval-decision"
	case PendingApproval:
		return "pending-approval"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrRejected is matched by every guard rejection. A rejected call leaves
// the conversation untouched.
var ErrRejected = errors.New("rejected")

var (
	ErrEmptyMessage      = fmt.Errorf("%w: message is empty", ErrRejected)
	ErrBusy              = fmt.Errorf("%w: a request is already in flight", ErrRejected)
	ErrApprovalPending   = fmt.Errorf("%w: waiting for an approval decision", ErrRejected)
	ErrNoApprovalPending = fmt.Errorf("%w: nothing is awaiting approval", ErrRejected)
)

// Snapshot is a detached copy of the controller's observable state.
type Snapshot struct {
	// Seq increases with every change to the state. Snapshots with equal Seq
	// describe the same state; a lower Seq is stale.
	Seq     uint64
	State   State
	Session session.State
}

// Newer reports whether s describes a later state than other.
func (s Snapshot) Newer(other Snapshot) bool { return s.Seq > other.Seq }

// CanSend reports whether a new message would be accepted.
func (s Snapshot) CanSend() bool {
	return !s.Session.Busy && !s.Session.PendingApproval
}

// CanDecide reports whether approve/reject would be accepted.
func (s Snapshot) CanDecide() bool {
	return !s.Session.Busy && s.Session.PendingApproval
}
