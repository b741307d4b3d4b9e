package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/parley/internal/session"
	"github.com/fakeyudi/parley/internal/transport"
)

func newClient(t *testing.T, h http.HandlerFunc) *transport.Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := transport.New(ts.URL)
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := transport.New("   ")
	require.Error(t, err)

	c, err := transport.New("http://example.test/")
	require.NoError(t, err)
	assert.Equal(t, "http://example.test", c.BaseURL())
}

func TestSendMessage(t *testing.T) {
	var got map[string]any
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"full_history": [
				{"type": "human", "content": "¿Qué tiempo hace en Madrid?"},
				{"type": "ai", "content": "Hace 20°C en Madrid."}
			],
			"session_id": "abc123",
			"requires_approval": false,
			"response": "Hace 20°C en Madrid."
		}`))
	})

	t.Run("new session sends null id", func(t *testing.T) {
		reply, err := c.SendMessage(context.Background(), "", "¿Qué tiempo hace en Madrid?")
		require.NoError(t, err)

		assert.Contains(t, got, "session_id")
		assert.Nil(t, got["session_id"])
		assert.Equal(t, "¿Qué tiempo hace en Madrid?", got["message"])

		assert.Equal(t, "abc123", reply.SessionID)
		assert.False(t, reply.RequiresApproval)
		assert.Equal(t, []session.Message{
			session.Human("¿Qué tiempo hace en Madrid?"),
			session.Assistant("Hace 20°C en Madrid."),
		}, reply.History)
	})

	t.Run("existing session sends id", func(t *testing.T) {
		_, err := c.SendMessage(context.Background(), "abc123", "hola")
		require.NoError(t, err)
		assert.Equal(t, "abc123", got["session_id"])
	})
}

func TestSubmitApproval(t *testing.T) {
	var got transport.ApprovalRequest
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/approve", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"response": "APPROVED. The plan was confirmed."}`))
	})

	reply, err := c.SubmitApproval(context.Background(), "abc123", true)
	require.NoError(t, err)
	assert.Equal(t, transport.ApprovalRequest{SessionID: "abc123", Approved: true}, got)
	assert.Equal(t, session.Assistant("APPROVED. The plan was confirmed."), reply.Message)
}

func TestFailuresAreTransportErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"detail":"boom"}`},
		{"not found", http.StatusNotFound, `{"detail":"session not found"}`},
		{"malformed body", http.StatusOK, `{"full_history": [`},
		{"missing session id", http.StatusOK, `{"full_history": [], "requires_approval": false}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			_, err := c.SendMessage(context.Background(), "", "hi")
			require.Error(t, err)

			var te *transport.TransportError
			require.True(t, errors.As(err, &te), "got %T", err)
			assert.Equal(t, transport.OpChat, te.Op)
			if tc.status != http.StatusOK {
				assert.Equal(t, tc.status, te.StatusCode)
			}
		})
	}
}

func TestNetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, err := transport.New(url)
	require.NoError(t, err)

	_, err = c.SubmitApproval(context.Background(), "abc123", false)
	var te *transport.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, transport.OpApprove, te.Op)
	assert.Zero(t, te.StatusCode)
	assert.NotNil(t, te.Unwrap())
}

func TestTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	c.WithTimeout(50 * time.Millisecond)

	_, err := c.SendMessage(context.Background(), "", "slow")
	var te *transport.TransportError
	require.ErrorAs(t, err, &te)
	assert.Zero(t, te.StatusCode)
}
