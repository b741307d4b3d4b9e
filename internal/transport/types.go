package transport

import "github.com/fakeyudi/parley/internal/session"

// ChatRequest is the body of POST /chat. A nil SessionID starts a new
// session on the server.
type ChatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}

// WireMessage is one entry of full_history.
type WireMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	FullHistory      []WireMessage `json:"full_history"`
	SessionID        string        `json:"session_id"`
	RequiresApproval bool          `json:"requires_approval"`
	Response         string        `json:"response,omitempty"`
}

// ApprovalRequest is the body of POST /approve.
type ApprovalRequest struct {
	SessionID string `json:"session_id"`
	Approved  bool   `json:"approved"`
}

// ApprovalResponse is the body returned by POST /approve.
type ApprovalResponse struct {
	Response string `json:"response"`
}

// ChatReply is the decoded outcome of a successful /chat call.
type ChatReply struct {
	// History is the server's full, authoritative conversation.
	History          []session.Message
	SessionID        string
	RequiresApproval bool
	// Response echoes the server's last message text; informational only.
	Response string
}

// ApprovalReply is the decoded outcome of a successful /approve call.
type ApprovalReply struct {
	Message session.Message
}

// ToMessages converts wire history into session messages.
func ToMessages(in []WireMessage) []session.Message {
	out := make([]session.Message, len(in))
	for i, w := range in {
		out[i] = session.Message{Role: session.RoleFromWire(w.Type), Content: w.Content}
	}
	return out
}

// FromMessages converts session messages into wire history.
func FromMessages(in []session.Message) []WireMessage {
	out := make([]WireMessage, len(in))
	for i, m := range in {
		out[i] = WireMessage{Type: m.Role.WireType(), Content: m.Content}
	}
	return out
}
