package kernel

import (
	"sync"
	"testing"

	"smpcore/kernel/cpuset"
)

func TestJobMailboxBounded(t *testing.T) {
	var mb jobMailbox
	mb.init()
	for i := 0; i < jobSlots; i++ {
		if !mb.trySend(job{fn: func(*Processor) {}, done: make(chan struct{})}) {
			t.Fatalf("trySend() #%d = false, want true", i)
		}
	}
	if mb.trySend(job{}) {
		t.Fatalf("trySend() on full mailbox = true, want false")
	}
	if got := mb.len(); got != jobSlots {
		t.Fatalf("len() = %d, want %d", got, jobSlots)
	}
	if _, ok := mb.tryRecv(); !ok {
		t.Fatalf("tryRecv() ok = false, want true")
	}
	if !mb.trySend(job{fn: func(*Processor) {}, done: make(chan struct{})}) {
		t.Fatalf("trySend() after recv = false, want true")
	}
}

func TestRunOnWithoutLanes(t *testing.T) {
	sys := newTestSystem(t, singleCluster(2, PolicyFixedPriority))
	got := -1
	sys.RunOn(1, func(p *Processor) { got = p.Index() })
	if got != 1 {
		t.Fatalf("RunOn() ran on %d, want 1", got)
	}

	var mu sync.Mutex
	seen := map[int]bool{}
	sys.Broadcast(func(p *Processor) {
		mu.Lock()
		seen[p.Index()] = true
		mu.Unlock()
	})
	if len(seen) != 2 || !seen[0] || !seen[1] {
		t.Fatalf("Broadcast() reached %v, want processors 0 and 1", seen)
	}
}

func TestBroadcastSkipsOfflineProcessors(t *testing.T) {
	cfg := singleCluster(2, PolicyFixedPriority)
	cfg.Schedulers[0].Processors = cpuset.Of(0)
	cfg.Offline = cpuset.Of(1)
	sys := newTestSystem(t, cfg)
	count := 0
	sys.Broadcast(func(p *Processor) { count++ })
	if count != 1 {
		t.Fatalf("Broadcast() ran %d times, want 1", count)
	}
}

func TestLaneServesMailbox(t *testing.T) {
	sys := newTestSystem(t, singleCluster(1, PolicyFixedPriority))
	detach := sys.AttachLane()
	p := sys.Processor(0)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			case <-p.JobSignal():
				p.DrainJobs()
			}
		}
	}()

	ran := false
	sys.RunOn(0, func(*Processor) { ran = true })
	close(stop)
	wg.Wait()
	detach()
	detach()
	if !ran {
		t.Fatalf("RunOn() did not run with a lane attached")
	}
	if got := sys.lanes.Load(); got != 0 {
		t.Fatalf("lanes = %d after detach, want 0", got)
	}
}

func TestTickAllThroughMailboxes(t *testing.T) {
	sys := newTestSystem(t, singleCluster(2, PolicyFixedPriority))
	sys.TickAll()
	sys.TickAll()
	for cpu := 0; cpu < 2; cpu++ {
		if got := sys.Processor(cpu).Ticks(); got != 2 {
			t.Fatalf("Processor(%d).Ticks() = %d, want 2", cpu, got)
		}
	}
	if got := sys.Now(); got != 2 {
		t.Fatalf("Now() = %d, want 2", got)
	}
}

func TestContextSwitcherSeesDispatch(t *testing.T) {
	type sw struct {
		cpu      int
		from, to string
	}
	var switches []sw
	cfg := singleCluster(1, PolicyFixedPriority)
	cfg.Switcher = ContextSwitcherFunc(func(cpu int, from, to *Thread) {
		switches = append(switches, sw{cpu, threadName(from), threadName(to)})
	})
	sys := newTestSystem(t, cfg)
	a := sys.Scheduler(0)
	startThread(t, sys, a, "x", 10)
	startThread(t, sys, a, "y", 5)

	want := []sw{{0, "IDLE0", "x"}, {0, "x", "y"}}
	if len(switches) != len(want) {
		t.Fatalf("switches = %v, want %v", switches, want)
	}
	for i := range want {
		if switches[i] != want[i] {
			t.Fatalf("switches[%d] = %v, want %v", i, switches[i], want[i])
		}
	}
}

func TestDisabledDispatchDefersSwitch(t *testing.T) {
	sys := newTestSystem(t, singleCluster(1, PolicyFixedPriority))
	a := sys.Scheduler(0)
	x := startThread(t, sys, a, "x", 10)
	p := sys.Processor(0)

	p.DisableDispatch()
	y := startThread(t, sys, a, "y", 5)
	if got := p.Heir(); got != y {
		t.Fatalf("Heir() = %s, want y", threadName(got))
	}
	wantExecuting(t, sys, 0, x)
	p.EnableDispatch()
	wantExecuting(t, sys, 0, y)
}
