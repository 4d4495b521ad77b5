package logic

import "github.com/sweeney/delivery-sensor/internal/filter"

// DefaultLimitWindow is the stabilization window for each limit signal.
const DefaultLimitWindow = 10

// DeriveLatchState maps a pair of stabilized limit signals to a LatchState.
// Both or neither asserted is an Error.
func DeriveLatchState(open, close bool) LatchState {
	switch {
	case open && !close:
		return StateOpen
	case close && !open:
		return StateClosed
	default:
		return StateError
	}
}

// Latch is a single locking point with independent open and close limit
// sensing. Each limit is majority-filtered over a bounded window.
type Latch struct {
	open  *filter.Stabilizer[bool, bool]
	close *filter.Stabilizer[bool, bool]
}

// NewLatch creates a Latch whose limit signals are stabilized over window samples.
func NewLatch(window int) *Latch {
	return &Latch{
		open:  filter.NewMajority(window),
		close: filter.NewMajority(window),
	}
}

// SetState records one raw observation of both limits. Both values must be
// read at the same logical instant.
func (l *Latch) SetState(open, close bool) {
	l.open.Push(open)
	l.close.Push(close)
}

// OpenLimit returns the stabilized open-limit signal (false before any sample).
func (l *Latch) OpenLimit() bool {
	v, _ := l.open.Value()
	return v
}

// CloseLimit returns the stabilized close-limit signal (false before any sample).
func (l *Latch) CloseLimit() bool {
	v, _ := l.close.Value()
	return v
}

// State derives the latch state from the stabilized limits.
func (l *Latch) State() LatchState {
	return DeriveLatchState(l.OpenLimit(), l.CloseLimit())
}

// Door is an ordered collection of latches forming one mechanical assembly.
type Door struct {
	Latches []*Latch
}

// NewDoor creates a Door over the given latches.
func NewDoor(latches ...*Latch) *Door {
	return &Door{Latches: latches}
}

// State returns the common latch state, or Error if any latch is in Error,
// the latches disagree, or the door has no latches.
func (d *Door) State() LatchState {
	return AggregateDoorState(d.LatchStates())
}

// LatchStates returns the current state of each latch in order.
func (d *Door) LatchStates() []LatchState {
	states := make([]LatchState, len(d.Latches))
	for i, l := range d.Latches {
		states[i] = l.State()
	}
	return states
}

// AggregateDoorState folds per-latch states into a door state.
// Disagreement is never coerced to a best guess.
func AggregateDoorState(states []LatchState) LatchState {
	if len(states) == 0 {
		return StateError
	}
	first := states[0]
	for _, s := range states {
		if s == StateError || s != first {
			return StateError
		}
	}
	return first
}
