package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fakeyudi/parley/internal/agentstub"
	"github.com/fakeyudi/parley/internal/profile"
	"github.com/fakeyudi/parley/internal/session"
	"github.com/fakeyudi/parley/internal/transcript"
)

// executeCommand runs a cobra command with the given args and captures combined output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// sandbox isolates a test from the real home and state directories, writes
// a profile so the first-run wizard stays quiet, and clears flag state left
// by earlier executions.
func sandbox(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "state"))
	for _, k := range []string{"PARLEY_SERVER_BASE_URL", "PARLEY_TRANSCRIPT_DIR", "PARLEY_TRANSCRIPT_AUTOSAVE"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	require.NoError(t, profile.Save(&profile.Profile{Name: "Ana", AssistantName: "Concierge"}))

	color.NoColor = true
	serverFlag, logLevelFlag = "", ""
	chatPlain, chatSession = false, ""
	sendSession, sendApprove, sendReject, sendJSON = "", false, false, false
	plainOutput, followFile, configJSON = false, false, false
	activeProfile = nil
	rootCmd.SetIn(nil)
	return home
}

func stubServer(t *testing.T) string {
	t.Helper()
	srv, err := agentstub.New(agentstub.Config{Logger: zap.NewNop(), Mode: "test"})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestSendPrintsReply(t *testing.T) {
	sandbox(t)
	url := stubServer(t)

	out, err := executeCommand(rootCmd, "send", "--server", url, "hola")
	require.NoError(t, err)
	assert.Contains(t, out, "Concierge: Received: hola")
	assert.Contains(t, out, "session ")
}

func TestSendApprove(t *testing.T) {
	sandbox(t)
	url := stubServer(t)

	out, err := executeCommand(rootCmd, "send", "--server", url, "--approve", "book", "a", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "Proposal: book a table.")
	assert.Contains(t, out, agentstub.ApprovedText)
	assert.NotContains(t, out, "approval pending")
}

func TestSendLeavesProposalPending(t *testing.T) {
	sandbox(t)
	url := stubServer(t)

	out, err := executeCommand(rootCmd, "send", "--server", url, "--json", "book a table")
	require.NoError(t, err)
	assert.Contains(t, out, `"pending_approval": true`)
	assert.Contains(t, out, "approval pending on session")
}

func TestSendApproveAndRejectConflict(t *testing.T) {
	sandbox(t)
	_, err := executeCommand(rootCmd, "send", "--approve", "--reject", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be used together")
}

func TestSendNetworkFailure(t *testing.T) {
	sandbox(t)
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	out, err := executeCommand(rootCmd, "send", "--server", url, "hola")
	require.Error(t, err)
	assert.ErrorIs(t, err, errExchangeFailed)
	assert.Contains(t, out, "connection error")
}

func TestConfigShowsFlagOverride(t *testing.T) {
	sandbox(t)

	out, err := executeCommand(rootCmd, "config", "--server", "http://agent.example:9000")
	require.NoError(t, err)
	assert.Contains(t, out, "server.base_url = http://agent.example:9000")
	assert.Contains(t, out, "transcript.format = markdown")
}

func TestConfigRejectsInvalidServer(t *testing.T) {
	sandbox(t)

	_, err := executeCommand(rootCmd, "config", "--server", "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestViewPlain(t *testing.T) {
	home := sandbox(t)
	tr := transcript.New(transcript.Meta{SessionID: "abc123"}, session.State{
		ID: "abc123",
		History: []session.Message{
			session.Human("hola"),
			session.Assistant("Received: hola"),
			session.SystemError("connection error: timeout"),
		},
	})
	path, err := transcript.Save(home, transcript.FormatMarkdown, tr)
	require.NoError(t, err)

	out, err := executeCommand(rootCmd, "view", "--plain", path)
	require.NoError(t, err)
	for _, want := range []string{"## Summary", "abc123", "Ana: hola", "Concierge: Received: hola", "connection error: timeout", "1 exchange(s) failed"} {
		assert.Contains(t, out, want)
	}
}

func TestViewMissingFile(t *testing.T) {
	home := sandbox(t)
	_, err := executeCommand(rootCmd, "view", "--plain", filepath.Join(home, "nope.md"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file not found")
}

func TestChatPlainREPL(t *testing.T) {
	home := sandbox(t)
	t.Setenv("PARLEY_TRANSCRIPT_DIR", home)
	url := stubServer(t)

	rootCmd.SetIn(strings.NewReader("hola\nbook a table\nhello\nn\n/save\n/quit\n"))
	out, err := executeCommand(rootCmd, "chat", "--plain", "--server", url)
	require.NoError(t, err)

	assert.Contains(t, out, "Received: hola")
	assert.Contains(t, out, "The agent needs your approval to continue.")
	assert.Contains(t, out, "a proposal is waiting")
	assert.Contains(t, out, agentstub.RejectedText)
	assert.Contains(t, out, "saved ")

	matches, err := filepath.Glob(filepath.Join(home, "parley-*.md"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	saved, err := transcript.Load(matches[0])
	require.NoError(t, err)
	assert.Len(t, saved.Messages, 5)
}

func TestREPLUnknownCommand(t *testing.T) {
	sandbox(t)
	url := stubServer(t)

	rootCmd.SetIn(strings.NewReader("/frobnicate\n"))
	out, err := executeCommand(rootCmd, "chat", "--plain", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "unknown command /frobnicate")
}

// flakyAgent fails its first /chat call with a 500 and then answers with
// only the latest exchange, recording every message it receives.
type flakyAgent struct {
	mu       sync.Mutex
	calls    int
	received []string
}

func (a *flakyAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.mu.Lock()
	a.calls++
	first := a.calls == 1
	a.received = append(a.received, req.Message)
	a.mu.Unlock()

	if first {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"full_history": []map[string]string{
			{"type": "human", "content": req.Message},
			{"type": "ai", "content": "REPLY-TEXT"},
		},
		"session_id":        "s-1",
		"requires_approval": false,
		"response":          "REPLY-TEXT",
	})
}

func TestREPLPrintsReplyAfterFailedSend(t *testing.T) {
	sandbox(t)
	agent := &flakyAgent{}
	ts := httptest.NewServer(agent)
	t.Cleanup(ts.Close)

	rootCmd.SetIn(strings.NewReader("first\nsecond\n"))
	out, err := executeCommand(rootCmd, "chat", "--plain", "--server", ts.URL)
	require.NoError(t, err)

	assert.Contains(t, out, "connection error: HTTP error: 500")
	assert.Contains(t, out, "Concierge: REPLY-TEXT")
}

func TestREPLSendsLineUntrimmed(t *testing.T) {
	sandbox(t)
	agent := &flakyAgent{calls: 1}
	ts := httptest.NewServer(agent)
	t.Cleanup(ts.Close)

	rootCmd.SetIn(strings.NewReader("  indented text  \n"))
	out, err := executeCommand(rootCmd, "chat", "--plain", "--server", ts.URL)
	require.NoError(t, err)

	assert.Contains(t, out, "REPLY-TEXT")
	agent.mu.Lock()
	defer agent.mu.Unlock()
	assert.Equal(t, []string{"  indented text  "}, agent.received)
}

func TestSendPrintsOnlyLatestTurn(t *testing.T) {
	sandbox(t)
	url := stubServer(t)

	_, err := executeCommand(rootCmd, "send", "--server", url, "--session", "s-42", "uno")
	require.NoError(t, err)

	sandbox(t)
	out, err := executeCommand(rootCmd, "send", "--server", url, "--session", "s-42", "dos")
	require.NoError(t, err)
	assert.Contains(t, out, "Received: dos")
	assert.NotContains(t, out, "Received: uno")
}
