// Package session holds the in-memory record of one conversation with the
// agent service.
package session

import (
	"errors"
	"slices"
)

// Role identifies who produced a message.
type Role string

const (
	RoleHuman       Role = "human"
	RoleAssistant   Role = "assistant"
	RoleSystemError Role = "system-error"
)

// ErrSessionMismatch is returned by AssignID when the state already belongs
// to a different session.
var ErrSessionMismatch = errors.New("session id already assigned")

// Message is a single entry in the conversation history. Content is opaque.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Human returns a human-authored message.
func Human(content string) Message { return Message{Role: RoleHuman, Content: content} }

// Assistant returns an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// SystemError returns a client-generated error message.
func SystemError(content string) Message { return Message{Role: RoleSystemError, Content: content} }

// State is the authoritative client-side record of one conversation.
// It is not safe for concurrent use; the owner serializes access.
type State struct {
	// ID is empty until the server assigns one.
	ID              string    `json:"id,omitempty"`
	History         []Message `json:"history"`
	PendingApproval bool      `json:"pending_approval"`
	Busy            bool      `json:"busy"`
}

// New returns an empty State for a conversation that has not reached the
// server yet.
func New() *State {
	return &State{History: []Message{}}
}

// HasSession reports whether the server has assigned an identifier.
func (s *State) HasSession() bool { return s.ID != "" }

// AssignID records the server-assigned identifier. Re-assigning the same
// identifier is a no-op; a different one returns ErrSessionMismatch.
func (s *State) AssignID(id string) error {
	switch {
	case id == "":
		return nil
	case s.ID == "":
		s.ID = id
		return nil
	case s.ID == id:
		return nil
	default:
		return ErrSessionMismatch
	}
}

// AppendMessage adds m to the end of the history.
func (s *State) AppendMessage(m Message) {
	s.History = append(s.History, m)
}

// ReplaceHistory swaps the whole history for a copy of msgs.
func (s *State) ReplaceHistory(msgs []Message) {
	s.History = make([]Message, len(msgs))
	copy(s.History, msgs)
}

// Clone returns a deep copy; the history slice is not shared.
func (s *State) Clone() State {
	c := *s
	c.History = slices.Clone(s.History)
	if c.History == nil {
		c.History = []Message{}
	}
	return c
}

// LastMessage returns the most recent message, if any.
func (s *State) LastMessage() (Message, bool) {
	if len(s.History) == 0 {
		return Message{}, false
	}
	return s.History[len(s.History)-1], true
}
