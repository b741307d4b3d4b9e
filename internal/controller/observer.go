package controller

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EventType identifies what happened inside the controller.
type EventType string

const (
	EventTransition EventType = "controller.transition"
	EventRejected   EventType = "controller.rejected"
	EventReset      EventType = "controller.reset"
)

// Event describes one observable change. For transitions into Failed, Err
// holds the transport failure; for rejections it holds the guard error.
type Event struct {
	Type      EventType
	From      State
	To        State
	Timestamp time.Time
	Snapshot  Snapshot
	Err       error
}

// Observer receives controller events. Events are delivered synchronously
// outside the controller's lock. Events raised by one call arrive in order,
// but events from concurrent calls may interleave: a rejection can arrive
// after the transition that followed it. Compare Snapshot.Seq to discard
// stale state.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) OnEvent(ctx context.Context, event Event) { f(ctx, event) }

// LogObserver writes every event to a zap logger.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver creates a LogObserver that emits to logger.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger.Named("controller")}
}

func (o *LogObserver) OnEvent(_ context.Context, event Event) {
	level := zapcore.InfoLevel
	switch {
	case event.Type == EventRejected:
		level = zapcore.DebugLevel
	case event.To == Failed:
		level = zapcore.WarnLevel
	}

	fields := []zap.Field{
		zap.String("from", event.From.String()),
		zap.String("to", event.To.String()),
		zap.String("session_id", event.Snapshot.Session.ID),
		zap.Int("history", len(event.Snapshot.Session.History)),
		zap.Bool("pending_approval", event.Snapshot.Session.PendingApproval),
		zap.Bool("busy", event.Snapshot.Session.Busy),
	}
	if event.Err != nil {
		fields = append(fields, zap.Error(event.Err))
	}

	if ce := o.logger.Check(level, string(event.Type)); ce != nil {
		ce.Write(fields...)
	}
}
