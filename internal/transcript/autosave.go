package transcript

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fakeyudi/parley/internal/controller"
	"github.com/fakeyudi/parley/internal/session"
)

// Options configures an Autosaver.
type Options struct {
	Dir    string
	Format string
	Meta   Meta
	// Auto rewrites the file after every settled exchange. When false only
	// explicit Save calls write.
	Auto   bool
	Logger *zap.Logger
}

// Autosaver keeps one transcript file per conversation. It is a
// controller.Observer: a reset starts a new file.
type Autosaver struct {
	opts   Options
	logger *zap.Logger

	mu   sync.Mutex
	id   string
	path string
}

// NewAutosaver creates an Autosaver writing to opts.Dir.
func NewAutosaver(opts Options) *Autosaver {
	if opts.Format == "" {
		opts.Format = FormatMarkdown
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autosaver{opts: opts, logger: logger.Named("transcript")}
}

// Save writes s to the conversation's file and returns its path.
func (a *Autosaver) Save(s session.State) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	meta := a.opts.Meta
	meta.ID = a.id
	t := New(meta, s)
	path, err := Save(a.opts.Dir, a.opts.Format, t)
	if err != nil {
		return "", err
	}
	a.id = t.Meta.ID
	a.path = path
	a.logger.Debug("transcript saved",
		zap.String("path", path),
		zap.Int("messages", len(t.Messages)),
	)
	return path, nil
}

// Path returns the file written by the last Save, empty before the first.
func (a *Autosaver) Path() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}

func (a *Autosaver) OnEvent(_ context.Context, ev controller.Event) {
	switch ev.Type {
	case controller.EventReset:
		a.mu.Lock()
		a.id, a.path = "", ""
		a.mu.Unlock()
	case controller.EventTransition:
		if !a.opts.Auto || len(ev.Snapshot.Session.History) == 0 {
			return
		}
		if ev.To != controller.Idle && ev.To != controller.PendingApproval {
			return
		}
		if _, err := a.Save(ev.Snapshot.Session); err != nil {
			a.logger.Warn("autosave failed", zap.Error(err))
		}
	}
}
