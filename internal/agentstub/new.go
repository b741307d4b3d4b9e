// Package agentstub is a scripted stand-in for the agent service. It speaks
// the same /chat and /approve protocol but has no reasoning: every reply is
// canned, and messages containing a trigger word produce a proposal that
// needs an approval decision.
package agentstub

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// Defaults for Config fields left zero.
const (
	DefaultMaxSessions = 1000
	DefaultSessionTTL  = 30 * time.Minute
	DefaultRatePerMin  = 120
)

// DefaultTriggers start a proposal when found in a message, case-insensitively.
var DefaultTriggers = []string{"book", "reserva"}

// Server holds all dependencies for the stand-in agent.
type Server struct {
	gin      *gin.Engine
	l        *zap.Logger
	mode     string
	triggers []string

	createMu sync.Mutex
	sessions *expirable.LRU[string, *conversation]
	limiter  *rateLimiter
}

// Config is the dependency bag passed to New().
type Config struct {
	Logger *zap.Logger
	// Mode is the gin mode: release, debug or test.
	Mode        string
	MaxSessions int
	SessionTTL  time.Duration
	RatePerMin  int
	Triggers    []string
}

// New creates a Server with its routes registered.
func New(cfg Config) (*Server, error) {
	if cfg.Mode == "" {
		cfg.Mode = gin.ReleaseMode
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.RatePerMin == 0 {
		cfg.RatePerMin = DefaultRatePerMin
	}
	if len(cfg.Triggers) == 0 {
		cfg.Triggers = DefaultTriggers
	}

	srv := &Server{
		l:        cfg.Logger,
		mode:     cfg.Mode,
		triggers: cfg.Triggers,
	}
	if err := srv.validate(cfg); err != nil {
		return nil, err
	}

	gin.SetMode(cfg.Mode)
	srv.gin = gin.New()
	srv.l = cfg.Logger.Named("agentstub")
	srv.sessions = expirable.NewLRU[string, *conversation](cfg.MaxSessions, nil, cfg.SessionTTL)
	srv.limiter = newRateLimiter(cfg.RatePerMin, cfg.MaxSessions, cfg.SessionTTL)
	srv.mapHandlers()
	return srv, nil
}

func (srv *Server) validate(cfg Config) error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.MaxSessions < 0 {
		return errors.New("max sessions must be positive")
	}
	if cfg.SessionTTL < 0 {
		return errors.New("session ttl must be positive")
	}
	if cfg.RatePerMin < 0 {
		return errors.New("rate limit must be positive")
	}
	return nil
}

// Handler exposes the routes for embedding or httptest.
func (srv *Server) Handler() http.Handler { return srv.gin }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (srv *Server) Run(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.l.Info("listening", zap.String("addr", addr), zap.String("mode", srv.mode))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
