package monitor

import "github.com/andresmejia3/hush/internal/types"

// Tracker turns a stream of presence samples into transition events.
// The zero value starts with the cue absent at tick 0.
type Tracker struct {
	present bool
	tick    int
}

// Observe records the sample for the current tick and advances the tick.
// It returns an event only when the sample differs from the previous one.
func (t *Tracker) Observe(present bool) (types.Event, bool) {
	tick := t.tick
	t.tick++
	if present == t.present {
		return types.Event{}, false
	}
	t.present = present

	kind := types.CueDisappeared
	if present {
		kind = types.CueAppeared
	}
	return types.Event{Kind: kind, Tick: tick}, true
}

// Present reports the last observed state.
func (t *Tracker) Present() bool { return t.present }

// Release forces the tracker back to absent and returns the forced
// CueDisappeared event, whether or not the cue was present.
func (t *Tracker) Release() types.Event {
	t.present = false
	return types.Event{Kind: types.CueDisappeared, Tick: t.tick, Forced: true}
}
