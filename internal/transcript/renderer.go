package transcript

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fakeyudi/parley/internal/session"
)

const (
	versionSentinel = "<!-- parley-transcript-version: 1 -->"
	dataPrefix      = "<!-- parley-data: "
	dataSuffix      = " -->"
)

// Renderer serializes a Transcript to bytes.
type Renderer interface {
	Render(t *Transcript) ([]byte, error)
}

// RendererFor returns the renderer for format, Markdown when unrecognized.
func RendererFor(format string) Renderer {
	if format == FormatJSON {
		return &JSONRenderer{}
	}
	return &MarkdownRenderer{}
}

// JSONRenderer renders a Transcript as indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Render(t *Transcript) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// MarkdownRenderer renders a Transcript as human-readable Markdown with
// an embedded base64 JSON payload for lossless round-trip parsing.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Render(t *Transcript) ([]byte, error) {
	jsonBytes, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(jsonBytes)

	var sb strings.Builder

	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, encoded, dataSuffix)

	fmt.Fprintf(&sb, "# Conversation with %s · %s\n\n",
		agentName(t.Meta),
		t.Meta.SavedAt.Format("2006-01-02 15:04:05 MST"),
	)

	sb.WriteString("## Summary\n\n")
	if t.Meta.SessionID != "" {
		fmt.Fprintf(&sb, "- Session: `%s`\n", t.Meta.SessionID)
	} else {
		sb.WriteString("- Session: _not started_\n")
	}
	if t.Meta.Server != "" {
		fmt.Fprintf(&sb, "- Server: %s\n", t.Meta.Server)
	}
	if t.Meta.Operator != "" {
		fmt.Fprintf(&sb, "- Operator: %s\n", t.Meta.Operator)
	}
	fmt.Fprintf(&sb, "- Messages: %d\n", len(t.Messages))
	if t.Meta.PendingApproval {
		sb.WriteString("- Status: **awaiting approval**\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Conversation\n\n")
	if len(t.Messages) == 0 {
		sb.WriteString("_No messages._\n\n")
	}
	for _, m := range t.Messages {
		switch m.Role {
		case session.RoleSystemError:
			fmt.Fprintf(&sb, "> **Error:** %s\n\n", m.Content)
		case session.RoleHuman:
			fmt.Fprintf(&sb, "### %s\n\n%s\n\n", operatorName(t.Meta), strings.TrimRight(m.Content, "\n"))
		default:
			fmt.Fprintf(&sb, "### %s\n\n%s\n\n", agentName(t.Meta), strings.TrimRight(m.Content, "\n"))
		}
	}

	return []byte(sb.String()), nil
}

func operatorName(m Meta) string {
	if m.Operator == "" {
		return "You"
	}
	return m.Operator
}

func agentName(m Meta) string {
	if m.Agent == "" {
		return "Agent"
	}
	return m.Agent
}
