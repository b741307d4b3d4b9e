package agentstub

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fakeyudi/parley/internal/session"
	"github.com/fakeyudi/parley/internal/transport"
)

const (
	ApprovedText = "APPROVED. The plan was confirmed and the booking completed."
	RejectedText = "PROPOSAL REJECTED. Please adjust your request."
)

func (srv *Server) mapHandlers() {
	srv.gin.Use(gin.Recovery(), srv.accessLog())

	srv.gin.GET("/health", srv.healthCheck)
	srv.gin.POST("/chat", srv.chat)
	srv.gin.POST("/approve", srv.approve)
}

// accessLog records one line per request.
func (srv *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		srv.l.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetHeader("X-Request-ID")),
		)
	}
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

func (srv *Server) chat(c *gin.Context) {
	var req transport.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		detail(c, http.StatusUnprocessableEntity, "message must not be empty")
		return
	}

	id := ""
	if req.SessionID != nil {
		id = *req.SessionID
	}
	rateKey := id
	if rateKey == "" {
		rateKey = "ip:" + c.ClientIP()
	}
	if err := srv.limiter.Allow(rateKey); err != nil {
		detail(c, http.StatusTooManyRequests, err.Error())
		return
	}

	if id == "" {
		id = uuid.NewString()
	}
	conv := srv.lookupOrCreate(id)

	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.pending {
		detail(c, http.StatusConflict, "an approval decision is pending for this session")
		return
	}

	reply, proposal := srv.respond(req.Message)
	conv.append(transport.WireMessage{Type: session.WireHuman, Content: req.Message})
	conv.append(transport.WireMessage{Type: session.WireAI, Content: reply})
	conv.pending = proposal

	srv.l.Debug("chat",
		zap.String("session_id", id),
		zap.Int("history", len(conv.history)),
		zap.Bool("requires_approval", proposal),
	)
	c.JSON(http.StatusOK, transport.ChatResponse{
		FullHistory:      conv.snapshot(),
		SessionID:        id,
		RequiresApproval: proposal,
		Response:         reply,
	})
}

func (srv *Server) approve(c *gin.Context) {
	var req transport.ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return
	}
	if err := srv.limiter.Allow(req.SessionID); err != nil {
		detail(c, http.StatusTooManyRequests, err.Error())
		return
	}

	conv, ok := srv.sessions.Get(req.SessionID)
	if !ok {
		detail(c, http.StatusNotFound, "session not found")
		return
	}

	conv.mu.Lock()
	defer conv.mu.Unlock()
	if !conv.pending {
		detail(c, http.StatusConflict, "nothing is awaiting approval")
		return
	}

	text := RejectedText
	if req.Approved {
		text = ApprovedText
	}
	conv.pending = false
	conv.append(transport.WireMessage{Type: session.WireAI, Content: text})

	srv.l.Debug("approve",
		zap.String("session_id", req.SessionID),
		zap.Bool("approved", req.Approved),
	)
	c.JSON(http.StatusOK, transport.ApprovalResponse{Response: text})
}

// respond produces the scripted reply and whether it is a proposal.
func (srv *Server) respond(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	for _, t := range srv.triggers {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return "Proposal: " + strings.TrimSpace(msg) + ". Awaiting human approval before booking.", true
		}
	}
	return "Received: " + strings.TrimSpace(msg), false
}
