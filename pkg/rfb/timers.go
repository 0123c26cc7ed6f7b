package rfb

import "time"

// Timer is a single one-shot or repeating deadline, polled by the
// embedder rather than backed by its own goroutine. The coordinator has
// no internal threads, so a Timer only ever tracks "when", and the
// embedder (or the Coordinator's own MsToNextUpdate/HandleTimeout pair)
// decides when to check it.
type Timer struct {
	deadline time.Time
	started  bool
	interval time.Duration
}

// Start arms the timer to fire once after d, relative to now.
func (t *Timer) Start(now time.Time, d time.Duration) {
	t.deadline = now.Add(d)
	t.started = true
	t.interval = 0
}

// Repeat arms the timer to fire after d, like Start, and records d as
// the timer's interval. The timer does not re-arm itself when it fires;
// the caller arms it again.
func (t *Timer) Repeat(now time.Time, d time.Duration) {
	t.deadline = now.Add(d)
	t.started = true
	t.interval = d
}

// Stop disarms the timer.
func (t *Timer) Stop() {
	t.started = false
}

// IsStarted reports whether the timer is currently armed.
func (t *Timer) IsStarted() bool {
	return t.started
}

// RemainingMs returns the milliseconds until the timer fires, or 0 if
// it is already due. It is meaningless (and returns 0) when !IsStarted.
func (t *Timer) RemainingMs(now time.Time) int {
	if !t.started {
		return 0
	}
	remaining := t.deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Milliseconds())
}

// Due reports whether the timer is armed and its deadline has passed.
func (t *Timer) Due(now time.Time) bool {
	return t.started && !now.Before(t.deadline)
}

// TimerSet owns the coordinator's four timers and dispatches expiry by
// pointer identity rather than an enum tag, so each timer stays
// self-describing at the call site instead of routing through a
// central tag switch.
type TimerSet struct {
	Frame      Timer
	Idle       Timer
	Disconnect Timer
	Connect    Timer
}

// NextDeadlineMs returns the smallest RemainingMs across every armed
// timer, or -1 if none are armed.
func (ts *TimerSet) NextDeadlineMs(now time.Time) int {
	best := -1
	for _, t := range ts.all() {
		if !t.IsStarted() {
			continue
		}
		ms := t.RemainingMs(now)
		if best == -1 || ms < best {
			best = ms
		}
	}
	return best
}

// Due returns every timer that is armed and past its deadline.
func (ts *TimerSet) Due(now time.Time) []*Timer {
	var due []*Timer
	for _, t := range ts.all() {
		if t.Due(now) {
			due = append(due, t)
		}
	}
	return due
}

func (ts *TimerSet) all() []*Timer {
	return []*Timer{&ts.Frame, &ts.Idle, &ts.Disconnect, &ts.Connect}
}
