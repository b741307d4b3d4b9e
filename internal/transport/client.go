// Package transport talks to the agent service's /chat and /approve
// endpoints.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fakeyudi/parley/internal/session"
)

const (
	DefaultBaseURL   = "http://127.0.0.1:8000"
	DefaultTimeout   = 60 * time.Second
	DefaultUserAgent = "parley"

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 8 << 20
)

// Client is a stateless client for the agent service. Each call is a single
// non-idempotent request with no retry.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Client for the service at baseURL.
func New(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("transport: base URL is required")
	}
	return &Client{
		baseURL:    baseURL,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}, nil
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithTimeout bounds every request. Zero or negative leaves the current
// timeout in place.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
	return c
}

// WithUserAgent sets the User-Agent header.
func (c *Client) WithUserAgent(ua string) *Client {
	if ua != "" {
		c.userAgent = ua
	}
	return c
}

// WithLogger sets the logger used for request outcomes.
func (c *Client) WithLogger(l *zap.Logger) *Client {
	if l != nil {
		c.logger = l.Named("transport")
	}
	return c
}

// BaseURL returns the service location.
func (c *Client) BaseURL() string { return c.baseURL }

// SendMessage posts text to /chat. An empty sessionID asks the server to
// start a new session.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (*ChatReply, error) {
	req := ChatRequest{Message: text}
	if sessionID != "" {
		req.SessionID = &sessionID
	}

	var resp ChatResponse
	if err := c.post(ctx, OpChat, "/chat", req, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		return nil, newError(OpChat, http.StatusOK, nil, "response carried no session_id")
	}

	return &ChatReply{
		History:          ToMessages(resp.FullHistory),
		SessionID:        resp.SessionID,
		RequiresApproval: resp.RequiresApproval,
		Response:         resp.Response,
	}, nil
}

// SubmitApproval posts the human decision for sessionID to /approve.
func (c *Client) SubmitApproval(ctx context.Context, sessionID string, approved bool) (*ApprovalReply, error) {
	req := ApprovalRequest{SessionID: sessionID, Approved: approved}

	var resp ApprovalResponse
	if err := c.post(ctx, OpApprove, "/approve", req, &resp); err != nil {
		return nil, err
	}
	return &ApprovalReply{Message: session.Assistant(resp.Response)}, nil
}

// post sends body as JSON and decodes a 2xx reply into out. Every failure is
// a *TransportError.
func (c *Client) post(ctx context.Context, op, path string, body, out any) error {
	requestID := uuid.NewString()
	log := c.logger.With(zap.String("op", op), zap.String("request_id", requestID))
	start := time.Now()

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return newError(op, 0, err, "failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return newError(op, 0, err, "failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Warn("request failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return newError(op, 0, err, "request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		log.Warn("read body failed", zap.Int("status", resp.StatusCode), zap.Error(err))
		return newError(op, resp.StatusCode, err, "failed to read response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("non-success status",
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("body", snippet(raw)),
		)
		return newError(op, resp.StatusCode, nil, "HTTP error: %d", resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		log.Warn("decode failed", zap.Int("status", resp.StatusCode), zap.Error(err))
		return newError(op, resp.StatusCode, err, "failed to decode response: %v", err)
	}

	log.Debug("request ok", zap.Int("status", resp.StatusCode), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// snippet trims a body for logging.
func snippet(b []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "…"
	}
	return s
}
