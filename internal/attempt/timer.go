package attempt

import "time"

// Clock abstracts wall-clock time so sessions and timers are testable
// without real waits.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock is the default Clock backed by time.Now.
var SystemClock Clock = realClock{}

type TimerState int

const (
	TimerIdle TimerState = iota // no time limit, or torn down
	TimerRunning
	TimerExpired // terminal
)

// Timer is the countdown state machine for a timed attempt. It is
// advanced externally, one Tick per wall-clock second, so ordering with
// user mutations is whatever the caller's event loop guarantees.
type Timer struct {
	state     TimerState
	remaining int
	onExpire  func()
}

// NewTimer returns a Running timer, or an Idle one when seconds <= 0
// (no time limit). onExpire fires exactly once, on the tick that drains
// the countdown.
func NewTimer(seconds int, onExpire func()) *Timer {
	if seconds <= 0 {
		return &Timer{state: TimerIdle}
	}
	return &Timer{state: TimerRunning, remaining: seconds, onExpire: onExpire}
}

func (t *Timer) State() TimerState { return t.state }

func (t *Timer) Remaining() int { return t.remaining }

// Tick decrements the countdown by one second. On the transition to
// zero the timer enters Expired and fires its callback; later ticks are
// no-ops, so the forced submit can never double-fire.
func (t *Timer) Tick() {
	if t.state != TimerRunning {
		return
	}
	t.remaining--
	if t.remaining > 0 {
		return
	}
	t.remaining = 0
	t.state = TimerExpired
	if t.onExpire != nil {
		cb := t.onExpire
		t.onExpire = nil
		cb()
	}
}

// Stop tears the timer down after a manual submit or an abandoned
// attempt: no further decrements, no dangling expiry callback.
func (t *Timer) Stop() {
	if t.state == TimerRunning {
		t.state = TimerIdle
	}
	t.onExpire = nil
}
