package monitor

import (
	"context"

	"github.com/andresmejia3/hush/internal/types"
)

// Sink receives transition events in the order they happen.
type Sink interface {
	HandleEvent(ctx context.Context, ev types.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev types.Event) error

func (f SinkFunc) HandleEvent(ctx context.Context, ev types.Event) error {
	return f(ctx, ev)
}

// Muter is anything that can switch audio on and off.
type Muter interface {
	SetMute(ctx context.Context, mute bool) error
}

// MuteSink mutes while the cue is visible.
type MuteSink struct {
	Muter Muter
}

func (s MuteSink) HandleEvent(ctx context.Context, ev types.Event) error {
	return s.Muter.SetMute(ctx, ev.Kind == types.CueAppeared)
}

// Recorder persists events under a session.
type Recorder interface {
	InsertEvent(ctx context.Context, sessionID int64, ev types.Event) error
}

// StoreSink writes every event to a Recorder.
type StoreSink struct {
	Recorder  Recorder
	SessionID int64
}

func (s StoreSink) HandleEvent(ctx context.Context, ev types.Event) error {
	return s.Recorder.InsertEvent(ctx, s.SessionID, ev)
}
