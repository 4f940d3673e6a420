package kernel

import (
	"context"
	"sync"
)

// Wait flags move from intend-to-block to blocked under the waiting
// thread, or to ready-again under whoever ends the wait. The first
// transition wins.
const (
	waitNone uint32 = iota
	waitIntendToBlock
	waitBlocked
	waitReadyAgain
)

type waitRecord struct {
	queue     *ThreadQueue
	seq       uint64
	handle    *Wait
	sticky    bool
	timer     *watchdog
	status    Status
	onTimeout func(t *Thread, acts *prioActions)
}

// Wait is the outcome of a blocking operation. It completes once, when the
// thread is surrendered, flushed, or timed out.
type Wait struct {
	thread *Thread
	done   chan struct{}
	once   sync.Once
	status Status
}

func newWait(t *Thread) *Wait {
	return &Wait{thread: t, done: make(chan struct{})}
}

func completedWait(t *Thread, st Status) *Wait {
	w := newWait(t)
	w.complete(st)
	return w
}

func (w *Wait) complete(st Status) {
	w.once.Do(func() {
		w.status = st
		close(w.done)
	})
}

// Thread returns the waiting thread.
func (w *Wait) Thread() *Thread { return w.thread }

// Done is closed when the wait completes.
func (w *Wait) Done() <-chan struct{} { return w.done }

// Completed reports whether the wait is over.
func (w *Wait) Completed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Result returns the status of a completed wait. ok is false while the
// thread still waits.
func (w *Wait) Result() (st Status, ok bool) {
	if !w.Completed() {
		return 0, false
	}
	return w.status, true
}

// Wait blocks the calling goroutine until the wait completes or ctx ends.
func (w *Wait) Wait(ctx context.Context) (Status, error) {
	select {
	case <-w.done:
		return w.status, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// finishWait completes the handle of the last wait of t.
func (t *Thread) finishWait() {
	t.waitMu.Lock()
	h := t.wait.handle
	st := t.wait.status
	t.wait.handle = nil
	t.wait.sticky = false
	t.wait.onTimeout = nil
	t.waitMu.Unlock()
	t.waitFlags.Store(waitNone)
	if h != nil {
		h.complete(st)
	}
}

// resumeFromWait makes t ready after its wait ended.
func (t *Thread) resumeFromWait() {
	t.waitMu.Lock()
	sticky := t.wait.sticky
	t.waitMu.Unlock()
	if !sticky {
		t.clearState(StateWaitingForObject)
	}
	t.finishWait()
}

// Waiting reports whether t is enqueued on a thread queue.
func (t *Thread) Waiting() bool {
	t.waitMu.Lock()
	defer t.waitMu.Unlock()
	return t.wait.queue != nil
}
