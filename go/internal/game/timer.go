package game

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	deadlineArmed int32 = iota
	deadlineFired
	deadlineCanceled
)

// deadline is a one-shot timer where exactly one of firing or Cancel wins.
type deadline struct {
	state atomic.Int32
	timer clockwork.Timer
}

func armDeadline(clk clockwork.Clock, d time.Duration, fire func()) *deadline {
	dl := &deadline{}
	dl.timer = clk.AfterFunc(d, func() {
		if dl.state.CompareAndSwap(deadlineArmed, deadlineFired) {
			fire()
		}
	})
	return dl
}

// Cancel stops the deadline and reports whether it had not fired yet.
// Safe on a nil deadline.
func (dl *deadline) Cancel() bool {
	if dl == nil {
		return false
	}
	if !dl.state.CompareAndSwap(deadlineArmed, deadlineCanceled) {
		return false
	}
	stopAndDrainTimer(dl.timer)
	return true
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
