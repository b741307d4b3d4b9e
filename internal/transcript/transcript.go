// Package transcript exports conversations to Markdown or JSON files.
// A transcript is a record for people to read, not a way to resume: the
// conversation itself always lives on the agent server.
package transcript

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fakeyudi/parley/internal/session"
)

const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Transcript is the complete, renderable record of one conversation.
type Transcript struct {
	Meta     Meta              `json:"meta"`
	Messages []session.Message `json:"messages"`
}

// Meta holds summary metadata about the conversation.
type Meta struct {
	ID              string    `json:"id"` // ULID, stable across autosaves
	SessionID       string    `json:"session_id,omitempty"`
	Server          string    `json:"server,omitempty"`
	Operator        string    `json:"operator,omitempty"`
	Agent           string    `json:"agent,omitempty"`
	PendingApproval bool      `json:"pending_approval,omitempty"`
	SavedAt         time.Time `json:"saved_at"`
}

// New captures s under meta. A missing ID is generated and SavedAt is set to now.
func New(meta Meta, s session.State) *Transcript {
	if meta.ID == "" {
		meta.ID = ulid.Make().String()
	}
	meta.SessionID = s.ID
	meta.PendingApproval = s.PendingApproval
	meta.SavedAt = time.Now().UTC()
	msgs := make([]session.Message, len(s.History))
	copy(msgs, s.History)
	return &Transcript{Meta: meta, Messages: msgs}
}

// Ext returns the file extension for format.
func Ext(format string) string {
	if format == FormatJSON {
		return ".json"
	}
	return ".md"
}

// Filename returns the canonical file name for t in format.
func Filename(t *Transcript, format string) string {
	return "parley-" + t.Meta.ID + Ext(format)
}
