package hal

import "time"

// defaultTickPeriod is the wall-clock length of one kernel tick.
const defaultTickPeriod = time.Millisecond

// hostTime is the kernel clock of the host build. Wall-clock time since the
// previous advance accumulates until it covers whole tick periods; each
// period becomes one sequence number on the channel that App.Step feeds to
// System.TickAll. Ticks past the channel buffer are dropped, so a stalled
// kernel does not replay a burst of old ticks.
type hostTime struct {
	ch     chan uint64
	seq    uint64
	period time.Duration

	last time.Time
	acc  time.Duration
}

func newHostTime() *hostTime {
	return &hostTime{ch: make(chan uint64, 1024), period: defaultTickPeriod}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

// advance converts the wall-clock time since the last call into ticks. The
// first call emits a single tick.
func (t *hostTime) advance(now time.Time) {
	if t.last.IsZero() {
		t.last = now
		t.acc = 0
		t.stepN(1)
		return
	}

	t.acc += now.Sub(t.last)
	t.last = now

	ticks := uint64(t.acc / t.period)
	if ticks == 0 {
		return
	}
	t.acc = t.acc % t.period
	t.stepN(ticks)
}

func (t *hostTime) stepN(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
