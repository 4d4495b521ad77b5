package logic

import (
	"testing"
)

func TestDeriveLatchStateTable(t *testing.T) {
	tests := []struct {
		open, close bool
		want        LatchState
	}{
		{true, false, StateOpen},
		{false, true, StateClosed},
		{true, true, StateError},
		{false, false, StateError},
	}

	for _, tt := range tests {
		if got := DeriveLatchState(tt.open, tt.close); got != tt.want {
			t.Errorf("DeriveLatchState(open=%v, close=%v) = %s, want %s", tt.open, tt.close, got, tt.want)
		}
	}
}

func TestLatchInitialStateIsError(t *testing.T) {
	l := NewLatch(DefaultLimitWindow)
	if l.OpenLimit() || l.CloseLimit() {
		t.Error("limits should default to false before any sample")
	}
	if got := l.State(); got != StateError {
		t.Errorf("expected ERROR before samples, got %s", got)
	}
}

func TestLatchRejectsSingleGlitch(t *testing.T) {
	l := NewLatch(DefaultLimitWindow)
	for i := 0; i < 9; i++ {
		l.SetState(false, true)
	}
	if got := l.State(); got != StateClosed {
		t.Fatalf("expected CLOSED, got %s", got)
	}

	// One bouncy sample on both limits does not flip the latch
	l.SetState(true, false)
	if got := l.State(); got != StateClosed {
		t.Errorf("expected CLOSED after single glitch, got %s", got)
	}
}

func TestLatchFollowsSustainedChange(t *testing.T) {
	l := NewLatch(DefaultLimitWindow)
	for i := 0; i < DefaultLimitWindow; i++ {
		l.SetState(false, true)
	}

	// Mid-travel: both limits released. Ties resolve to true, so the close
	// limit holds until falses outnumber trues.
	for i := 0; i < 5; i++ {
		l.SetState(false, false)
	}
	if got := l.State(); got != StateClosed {
		t.Errorf("expected CLOSED at 5/5 tie, got %s", got)
	}
	l.SetState(false, false)
	if got := l.State(); got != StateError {
		t.Errorf("expected ERROR mid-travel, got %s", got)
	}

	for i := 0; i < DefaultLimitWindow; i++ {
		l.SetState(true, false)
	}
	if got := l.State(); got != StateOpen {
		t.Errorf("expected OPEN, got %s", got)
	}
}

func TestDoorStates(t *testing.T) {
	filled := func(open, close bool) *Latch {
		l := NewLatch(3)
		for i := 0; i < 3; i++ {
			l.SetState(open, close)
		}
		return l
	}

	tests := []struct {
		name    string
		latches []*Latch
		want    LatchState
	}{
		{"both open", []*Latch{filled(true, false), filled(true, false)}, StateOpen},
		{"both closed", []*Latch{filled(false, true), filled(false, true)}, StateClosed},
		{"disagree", []*Latch{filled(true, false), filled(false, true)}, StateError},
		{"one error", []*Latch{filled(true, false), filled(true, true)}, StateError},
		{"both error", []*Latch{filled(false, false), filled(true, true)}, StateError},
		{"single latch", []*Latch{filled(false, true)}, StateClosed},
		{"no latches", nil, StateError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDoor(tt.latches...)
			if got := d.State(); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDoorLatchStatesOrder(t *testing.T) {
	open := NewLatch(1)
	open.SetState(true, false)
	closed := NewLatch(1)
	closed.SetState(false, true)

	got := NewDoor(open, closed).LatchStates()
	if len(got) != 2 || got[0] != StateOpen || got[1] != StateClosed {
		t.Errorf("unexpected latch states: %v", got)
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{Min: 50, Max: 350}
	tests := []struct {
		v    float64
		ok   bool
		want bool
	}{
		{200, true, true},
		{50, true, false},
		{350, true, false},
		{49.9, true, false},
		{50.1, true, true},
		{200, false, false},
	}
	for _, tt := range tests {
		if got := r.Contains(tt.v, tt.ok); got != tt.want {
			t.Errorf("Contains(%v, %v) = %v, want %v", tt.v, tt.ok, got, tt.want)
		}
	}
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{Sockets: [SocketCount]bool{true}, Temperature: 21.5, HasTemperature: true}
	if got := s.String(); got != "sockets=[true false false false false] temp=21.50" {
		t.Errorf("unexpected string: %s", got)
	}
	s.HasTemperature = false
	if got := s.String(); got != "sockets=[true false false false false] temp=n/a" {
		t.Errorf("unexpected string: %s", got)
	}
}
