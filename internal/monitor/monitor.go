// Package monitor watches frames for a cue and reports when it appears and
// disappears.
//
// Detection is edge triggered: a run of frames that all show the cue produces
// one CueAppeared event, and the first frame without it produces one
// CueDisappeared. There is no multi-frame debounce, so a single flickering
// frame produces a pair of events.
package monitor

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/andresmejia3/hush/internal/types"
)

const (
	// DefaultInterval is the time between two detection passes.
	DefaultInterval = 33 * time.Millisecond
	// DefaultUnmuteDelay is the pause between a falling edge and its event.
	DefaultUnmuteDelay = 250 * time.Millisecond
)

// Source supplies the most recent frame.
type Source interface {
	Frame(ctx context.Context) (image.Image, error)
}

// Detection is the outcome of one detection pass.
type Detection struct {
	Present bool
	Region  string
	Text    string
}

// Detector decides whether the cue is visible in a frame.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) Detection
}

// Stats summarizes a finished Run.
type Stats struct {
	Ticks       int
	FrameErrors int
	Appeared    int
	Disappeared int
}

// Monitor drives the detection loop. Source and Detector are required.
type Monitor struct {
	Source   Source
	Detector Detector
	Sinks    []Sink

	// Interval defaults to DefaultInterval.
	Interval time.Duration
	// UnmuteDelay postpones CueDisappeared events. Zero disables the pause.
	UnmuteDelay time.Duration
	Logger      *slog.Logger

	stats Stats
}

func (m *Monitor) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Run polls until ctx is cancelled. On the way out it always emits one
// CueDisappeared event with Forced set, whatever the current state, so
// listeners can release anything they hold. Cancellation is not an error.
func (m *Monitor) Run(ctx context.Context) error {
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tracker Tracker
	defer func() {
		// ctx is already done; sinks still need a live context.
		ev := tracker.Release()
		ev.At = time.Now()
		m.emit(context.Background(), ev)
	}()

	for {
		if !m.step(ctx, &tracker) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// step runs one detection pass. It reports false once ctx is done.
func (m *Monitor) step(ctx context.Context, tracker *Tracker) bool {
	var det Detection
	frame, err := m.Source.Frame(ctx)
	if err != nil {
		m.stats.FrameErrors++
		m.logger().Debug("no frame", "err", err)
	} else {
		det = m.Detector.Detect(ctx, frame)
	}
	// A pass cut short by cancellation says nothing about the screen.
	if ctx.Err() != nil {
		return false
	}
	m.stats.Ticks++

	ev, changed := tracker.Observe(det.Present)
	if !changed {
		return true
	}

	switch ev.Kind {
	case types.CueAppeared:
		ev.Region, ev.Text = det.Region, det.Text
		m.logger().Info("cue appeared", "tick", ev.Tick, "region", det.Region, "text", det.Text)
	case types.CueDisappeared:
		if m.UnmuteDelay > 0 {
			t := time.NewTimer(m.UnmuteDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return false
			case <-t.C:
			}
		}
		m.logger().Info("cue disappeared", "tick", ev.Tick)
	}
	ev.At = time.Now()
	m.emit(ctx, ev)
	return true
}

func (m *Monitor) emit(ctx context.Context, ev types.Event) {
	switch ev.Kind {
	case types.CueAppeared:
		m.stats.Appeared++
	case types.CueDisappeared:
		m.stats.Disappeared++
	}
	for _, s := range m.Sinks {
		if err := s.HandleEvent(ctx, ev); err != nil {
			m.logger().Warn("event sink failed", "event", ev.Kind, "err", err)
		}
	}
}

// Stats returns counters for the last Run. Only call it once Run has returned.
func (m *Monitor) Stats() Stats {
	return m.stats
}
