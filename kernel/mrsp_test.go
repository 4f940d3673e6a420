package kernel

import "testing"

func TestMrsPOwnerHelpedOnWaiterProcessor(t *testing.T) {
	sys := newTestSystem(t, twoClusters())
	a, b := sys.Scheduler(0), sys.Scheduler(1)
	r, st := sys.NewMrsP("r", a, 3)
	if st != StatusSuccessful {
		t.Fatalf("NewMrsP() = %v, want %v", st, StatusSuccessful)
	}

	a1 := startThread(t, sys, a, "a1", 10)
	wantResult(t, r.Obtain(a1, true, 0), StatusSuccessful)
	if got := a1.Priority(); got != 3 {
		t.Fatalf("a1.Priority() = %d, want 3", got)
	}

	b1 := startThread(t, sys, b, "b1", 10)
	w := r.Obtain(b1, true, 0)
	wantPending(t, w)
	wantExecuting(t, sys, 1, b1)
	if got := b1.Priority(); got != 3 {
		t.Fatalf("b1.Priority() = %d, want 3", got)
	}

	a2 := startThread(t, sys, a, "a2", 1)
	wantExecuting(t, sys, 0, a2)
	wantExecuting(t, sys, 1, a1)
	if got := b1.SchedState(); got != ThreadReady {
		t.Fatalf("b1.SchedState() = %v, want %v", got, ThreadReady)
	}

	if st := r.Release(a1); st != StatusSuccessful {
		t.Fatalf("Release() = %v, want %v", st, StatusSuccessful)
	}
	wantResult(t, w, StatusSuccessful)
	wantExecuting(t, sys, 1, b1)
	if got := r.Owner(); got != b1 {
		t.Fatalf("Owner() = %s, want b1", threadName(got))
	}
	if got := a1.Priority(); got != 10 {
		t.Fatalf("a1.Priority() = %d, want 10", got)
	}
	if got := b1.Priority(); got != 3 {
		t.Fatalf("b1.Priority() = %d, want 3", got)
	}

	r.Release(b1)
	if got := b1.Priority(); got != 10 {
		t.Fatalf("b1.Priority() after release = %d, want 10", got)
	}
}

func TestMrsPCeilingPerScheduler(t *testing.T) {
	sys := newTestSystem(t, twoClusters())
	a, b := sys.Scheduler(0), sys.Scheduler(1)
	r, _ := sys.NewMrsP("r", a, 2)

	if got := r.Ceiling(b); got != 2 {
		t.Fatalf("Ceiling(B) = %d, want 2", got)
	}
	old, st := r.SetCeiling(b, 4)
	if st != StatusSuccessful || old != 2 {
		t.Fatalf("SetCeiling(B, 4) = %d, %v, want 2, %v", old, st, StatusSuccessful)
	}
	if _, st := r.SetCeiling(b, 256); st != StatusInvalidPriority {
		t.Fatalf("SetCeiling(B, 256) = %v, want %v", st, StatusInvalidPriority)
	}

	urgent := startThread(t, sys, a, "urgent", 1)
	wantResult(t, r.Obtain(urgent, true, 0), StatusInvalidPriority)

	tb := startThread(t, sys, b, "tb", 8)
	wantResult(t, r.Obtain(tb, true, 0), StatusSuccessful)
	if got := tb.Priority(); got != 4 {
		t.Fatalf("Priority() = %d, want 4", got)
	}
	if got := tb.Node(b).StickyLevel(); got != 2 {
		t.Fatalf("StickyLevel() = %d, want 2", got)
	}
	r.Release(tb)
	if got := tb.Priority(); got != 8 {
		t.Fatalf("Priority() after release = %d, want 8", got)
	}
	if got := tb.Node(b).StickyLevel(); got != 1 {
		t.Fatalf("StickyLevel() after release = %d, want 1", got)
	}
}

func TestMrsPOwnership(t *testing.T) {
	sys := newTestSystem(t, twoClusters())
	a, b := sys.Scheduler(0), sys.Scheduler(1)
	r, _ := sys.NewMrsP("r", a, 1)
	x := startThread(t, sys, a, "x", 10)
	y := startThread(t, sys, b, "y", 10)

	wantResult(t, r.Obtain(x, true, 0), StatusSuccessful)
	wantResult(t, r.Obtain(x, true, 0), StatusUnsatisfied)
	wantResult(t, r.Obtain(y, false, 0), StatusUnavailable)
	if st := r.Release(y); st != StatusNotOwner {
		t.Fatalf("Release(y) = %v, want %v", st, StatusNotOwner)
	}
	if st := r.Delete(); st != StatusResourceInUse {
		t.Fatalf("Delete() = %v, want %v", st, StatusResourceInUse)
	}
	r.Release(x)
	if st := r.Delete(); st != StatusSuccessful {
		t.Fatalf("Delete() = %v, want %v", st, StatusSuccessful)
	}
	wantResult(t, r.Obtain(y, true, 0), StatusObjectWasDeleted)
}

func TestMrsPTimeout(t *testing.T) {
	sys := newTestSystem(t, twoClusters())
	a, b := sys.Scheduler(0), sys.Scheduler(1)
	r, _ := sys.NewMrsP("r", a, 3)
	x := startThread(t, sys, a, "x", 10)
	y := startThread(t, sys, b, "y", 10)
	r.Obtain(x, true, 0)

	w := r.Obtain(y, true, 2)
	if got := y.Priority(); got != 3 {
		t.Fatalf("Priority() while waiting = %d, want 3", got)
	}
	tickWithin(t, sys, 1, 1)
	wantPending(t, w)
	tickWithin(t, sys, 1, 1)
	wantResult(t, w, StatusTimeout)
	wantExecuting(t, sys, 1, y)
	if got := y.Priority(); got != 10 {
		t.Fatalf("Priority() after timeout = %d, want 10", got)
	}
	if got := y.Node(b).StickyLevel(); got != 1 {
		t.Fatalf("StickyLevel() after timeout = %d, want 1", got)
	}
	if got := r.Queue().Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
	if got := r.Owner(); got != x {
		t.Fatalf("Owner() = %s, want x", threadName(got))
	}
}

func TestMrsPDeadlockStatus(t *testing.T) {
	sys := newTestSystem(t, twoClusters())
	a, b := sys.Scheduler(0), sys.Scheduler(1)
	r1, _ := sys.NewMrsP("r1", a, 1)
	r2, _ := sys.NewMrsP("r2", a, 1)
	x := startThread(t, sys, a, "x", 10)
	y := startThread(t, sys, b, "y", 10)

	r1.Obtain(x, true, 0)
	r2.Obtain(y, true, 0)
	wantPending(t, r2.Obtain(x, true, 0))
	wantResult(t, r1.Obtain(y, true, 0), StatusDeadlock)
	if sys.Halted() {
		t.Fatalf("Halted() = true, want false")
	}
	if got := r1.Queue().Len(); got != 0 {
		t.Fatalf("r1 Len() = %d, want 0", got)
	}
}

func TestMrsPStickyEnqueueWithDispatchDisabledHalts(t *testing.T) {
	sys := newTestSystem(t, singleCluster(2, PolicyFixedPriority))
	a := sys.Scheduler(0)
	r, _ := sys.NewMrsP("r", a, 1)
	x := startThread(t, sys, a, "x", 10)
	r.Obtain(x, true, 0)
	y := startThread(t, sys, a, "y", 5)
	var cpu *Processor
	for i := 0; i < 2; i++ {
		if p := sys.Processor(i); p.Executing() == y {
			cpu = p
		}
	}
	if cpu == nil {
		t.Fatalf("y is not executing")
	}

	cpu.DisableDispatch()
	err := expectHalt(t, func() { r.Obtain(y, true, 0) })
	if err.Code != FatalThreadQueueEnqueueStickyFromBadState {
		t.Fatalf("Code = %v, want %v", err.Code, FatalThreadQueueEnqueueStickyFromBadState)
	}
}
