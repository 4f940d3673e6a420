package kernel

import (
	"testing"
	"time"

	"smpcore/kernel/cpuset"
)

func newTestSystem(t *testing.T, cfg Config) *System {
	t.Helper()
	sys, err := NewSystem(cfg)
	if err != nil {
		t.Fatalf("NewSystem() error = %v", err)
	}
	return sys
}

func singleCluster(cpus int, policy Policy) Config {
	return Config{
		Processors: cpus,
		Schedulers: []SchedulerConfig{
			{Name: "A", Policy: policy, MaxPriority: 255, Processors: cpuset.All(cpus)},
		},
	}
}

// twoClusters gives scheduler A processor 0 and scheduler B processor 1.
func twoClusters() Config {
	return Config{
		Processors: 2,
		Schedulers: []SchedulerConfig{
			{Name: "A", Policy: PolicyFixedPriority, MaxPriority: 255, Processors: cpuset.Of(0)},
			{Name: "B", Policy: PolicyFixedPriority, MaxPriority: 255, Processors: cpuset.Of(1)},
		},
	}
}

func startThread(t *testing.T, sys *System, s *Scheduler, name string, p Priority) *Thread {
	t.Helper()
	th, st := sys.CreateThread(ThreadOptions{Name: name, Scheduler: s, Priority: p})
	if st != StatusSuccessful {
		t.Fatalf("CreateThread(%s) = %v, want %v", name, st, StatusSuccessful)
	}
	if st := th.Start(); st != StatusSuccessful {
		t.Fatalf("Start(%s) = %v, want %v", name, st, StatusSuccessful)
	}
	return th
}

func wantExecuting(t *testing.T, sys *System, cpu int, want *Thread) {
	t.Helper()
	if got := sys.Processor(cpu).Executing(); got != want {
		t.Fatalf("Processor(%d).Executing() = %s, want %s", cpu, threadName(got), threadName(want))
	}
}

func threadName(t *Thread) string {
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}

func wantResult(t *testing.T, w *Wait, want Status) {
	t.Helper()
	got, ok := w.Result()
	if !ok {
		t.Fatalf("Wait(%s).Result() pending, want %v", w.Thread().Name(), want)
	}
	if got != want {
		t.Fatalf("Wait(%s).Result() = %v, want %v", w.Thread().Name(), got, want)
	}
}

func wantPending(t *testing.T, w *Wait) {
	t.Helper()
	if st, ok := w.Result(); ok {
		t.Fatalf("Wait(%s).Result() = %v, want pending", w.Thread().Name(), st)
	}
}

// expectHalt runs fn and returns the fatal error it halted with.
func expectHalt(t *testing.T, fn func()) (err *FatalError) {
	t.Helper()
	defer func() {
		r := recover()
		fe, ok := r.(*FatalError)
		if !ok {
			t.Fatalf("recover() = %v, want *FatalError", r)
		}
		err = fe
	}()
	fn()
	return nil
}

// tickWithin runs n ticks on cpu and fails if they do not return in time.
func tickWithin(t *testing.T, sys *System, cpu, n int) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			sys.Tick(cpu)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Tick(%d) did not return", cpu)
	}
}
