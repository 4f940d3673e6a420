package hal

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestHostTimeAccumulates(t *testing.T) {
	ht := newHostTime()
	start := time.Unix(100, 0)
	ht.advance(start)
	ht.advance(start.Add(500 * time.Microsecond))
	ht.advance(start.Add(2500 * time.Microsecond))

	var got []uint64
	for len(ht.ch) > 0 {
		got = append(got, <-ht.ch)
	}
	if len(got) != 3 || got[2] != 3 {
		t.Fatalf("ticks = %v, want [1 2 3]", got)
	}
	if ht.acc != 500*time.Microsecond {
		t.Fatalf("acc = %v, want 500µs", ht.acc)
	}
}

func TestHostTimeDropsBacklog(t *testing.T) {
	ht := newHostTime()
	start := time.Unix(100, 0)
	ht.advance(start)
	ht.advance(start.Add(2 * time.Second))

	if got, want := len(ht.ch), cap(ht.ch); got != want {
		t.Fatalf("len(ch) = %d, want %d", got, want)
	}
	if got, want := ht.seq, uint64(2001); got != want {
		t.Fatalf("seq = %d, want %d", got, want)
	}
	if got := <-ht.ch; got != 1 {
		t.Fatalf("first tick = %d, want 1", got)
	}
}

func TestHostLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	h := New(HostConfig{Output: &buf})
	h.Logger().WithFields(Fields{"cpu": 1}).WriteLineString("dispatch")
	out := buf.String()
	if !strings.Contains(out, "dispatch") || !strings.Contains(out, "cpu=1") {
		t.Fatalf("log output = %q, want message and cpu=1", out)
	}
}

type testLane struct {
	index  int
	signal chan struct{}
	served atomic.Int32
}

func (l *testLane) Index() int              { return l.index }
func (l *testLane) Signal() <-chan struct{} { return l.signal }
func (l *testLane) Serve() int {
	l.served.Add(1)
	return 1
}

func TestRunLanesServesUntilCancel(t *testing.T) {
	lanes := []*testLane{
		{index: 0, signal: make(chan struct{}, 1)},
		{index: 1, signal: make(chan struct{}, 1)},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunLanes(ctx, []Lane{lanes[0], lanes[1]}, LaneOptions{}) }()

	lanes[1].signal <- struct{}{}
	deadline := time.After(2 * time.Second)
	for lanes[1].served.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("lane 1 was not served")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunLanes() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RunLanes() did not return after cancel")
	}
	if lanes[0].served.Load() != 1 {
		t.Fatalf("lane 0 served %d times, want 1 final drain", lanes[0].served.Load())
	}
}
