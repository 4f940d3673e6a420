package app

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"smpcore/api"
	"smpcore/hal"
	"smpcore/kernel"
	"smpcore/kernel/cpuset"
)

func newTestApp(t *testing.T, scenario string) (*App, *bytes.Buffer, error) {
	t.Helper()
	sc, err := ParseScenario(strings.NewReader(scenario))
	if err != nil {
		t.Fatalf("ParseScenario() error = %v", err)
	}
	var buf bytes.Buffer
	a, err := New(hal.New(hal.HostConfig{Output: &buf}), Config{Scenario: sc, Events: true, Switches: true})
	return a, &buf, err
}

func TestParseScenarioTopology(t *testing.T) {
	sc, err := ParseScenario(strings.NewReader(`
# two clusters
processors 4
offline 3
timeslice 5
scheduler A fp 255 0-1
scheduler B edf 100 2 3
task t1 A 10   # trailing comment
start t1
`))
	if err != nil {
		t.Fatalf("ParseScenario() error = %v", err)
	}
	cfg := sc.Topology
	if cfg.Processors != 4 || cfg.TimeSliceTicks != 5 || cfg.Offline != cpuset.Of(3) {
		t.Fatalf("Topology = %+v, want 4 processors, timeslice 5, offline {3}", cfg)
	}
	if len(cfg.Schedulers) != 2 {
		t.Fatalf("len(Schedulers) = %d, want 2", len(cfg.Schedulers))
	}
	b := cfg.Schedulers[1]
	if b.Name != "B" || b.Policy != kernel.PolicyEDF || b.MaxPriority != 100 || b.Processors != cpuset.Of(2, 3) {
		t.Fatalf("Schedulers[1] = %+v, want B edf 100 {2,3}", b)
	}
	if len(sc.Commands) != 2 || sc.Commands[0].Line != 8 || sc.Commands[0].String() != "task t1 A 10" {
		t.Fatalf("Commands = %+v, want task on line 8 then start", sc.Commands)
	}
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"topology after directive", "task t A 1\nprocessors 2\n"},
		{"bad policy", "scheduler A rr 10 0\n"},
		{"bad range", "scheduler A fp 10 3-1\n"},
		{"unterminated quote", "task \"t A 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseScenario(strings.NewReader(tt.in)); err == nil {
				t.Fatalf("ParseScenario() error = nil, want error")
			}
		})
	}
}

func TestDefaultTopology(t *testing.T) {
	sc, err := ParseScenario(strings.NewReader("processors 2\n"))
	if err != nil {
		t.Fatalf("ParseScenario() error = %v", err)
	}
	if len(sc.Topology.Schedulers) != 1 || sc.Topology.Schedulers[0].Processors != cpuset.Of(0, 1) {
		t.Fatalf("Schedulers = %+v, want one scheduler owning {0,1}", sc.Topology.Schedulers)
	}
}

func TestScenarioInheritance(t *testing.T) {
	a, buf, err := newTestApp(t, `
processors 1
scheduler A fp 255 0
task low A 20
task high A 5
sem m 1 binary,priority,inherit
start low
obtain low m
expect 0 low
start high
expect 0 high
obtain high m
result high m pending
expect 0 low
release low m
result high m successful
expect 0 high
`)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()
	out := buf.String()
	for _, want := range []string{"op=block", "to=high", "status=successful"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output lacks %q", want)
		}
	}
	lines := ProcessorTable(a.System())
	if len(lines) != 2 || !strings.Contains(lines[1], "high") {
		t.Fatalf("ProcessorTable() = %q, want cpu0 executing high", lines)
	}
}

func TestScenarioExpectationFails(t *testing.T) {
	_, _, err := newTestApp(t, "task t A 10\nstart t\nexpect 0 idle\n")
	if !errors.Is(err, ErrExpectation) {
		t.Fatalf("New() error = %v, want ErrExpectation", err)
	}
}

func TestScenarioHaltIsReported(t *testing.T) {
	_, buf, err := newTestApp(t, `
task x A 10
task y A 11
sem m1 1 binary,priority,inherit
sem m2 1 binary,priority,inherit
start x y
obtain x m1
obtain y m2
obtain x m2
obtain y m1
`)
	var fe *kernel.FatalError
	if !errors.As(err, &fe) || fe.Code != kernel.FatalThreadQueueDeadlock {
		t.Fatalf("New() error = %v, want deadlock halt", err)
	}
	if !strings.Contains(buf.String(), "kernel halt") {
		t.Fatalf("log output lacks the halt line")
	}
}

func TestRunnerReturnsDirectiveStatus(t *testing.T) {
	a, _, err := newTestApp(t, "task t A 10\n")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	tests := []struct {
		cmd  string
		want api.Status
	}{
		{"resume t", api.IncorrectState},
		{"start t", api.Successful},
		{"start t", api.IncorrectState},
		{"priority t 300", api.InvalidPriority},
		{"job t 0", api.InvalidNumber},
		{"unpin t", api.IncorrectState},
		{"remove A 0", api.ResourceInUse},
		{"sem s 0 counting", api.Successful},
		{"obtain t s nowait", api.Unsatisfied},
		{"flush s", api.Successful},
	}
	for _, tt := range tests {
		fields := strings.Fields(tt.cmd)
		st, err := a.runner.Exec(Command{Name: fields[0], Args: fields[1:]})
		if err != nil {
			t.Fatalf("Exec(%q) error = %v", tt.cmd, err)
		}
		if st != tt.want {
			t.Fatalf("Exec(%q) = %v, want %v", tt.cmd, st, tt.want)
		}
	}
	if _, err := a.runner.Exec(Command{Name: "bogus"}); err == nil {
		t.Fatalf("Exec(bogus) error = nil, want error")
	}
}

func TestStepDeliversTicks(t *testing.T) {
	sc, _ := ParseScenario(strings.NewReader("task t A 10\nstart t\nsleep t 2\n"))
	ticks := make(chan uint64, 4)
	h := &fakeHAL{log: hal.New(hal.HostConfig{Output: &bytes.Buffer{}}).Logger(), ticks: ticks}
	a, err := New(h, Config{Scenario: sc})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ticks <- 1
	ticks <- 2
	if err := a.Step(); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if got := a.System().Now(); got != 2 {
		t.Fatalf("Now() = %d, want 2", got)
	}
	if len(h.lines) == 0 || !strings.Contains(h.lines[1], " t ") {
		t.Fatalf("display = %q, want t executing on cpu0", h.lines)
	}
}

type fakeHAL struct {
	log   hal.Logger
	ticks chan uint64
	lines []string
}

func (h *fakeHAL) Logger() hal.Logger      { return h.log }
func (h *fakeHAL) Display() hal.Display    { return h }
func (h *fakeHAL) Time() hal.Time          { return h }
func (h *fakeHAL) Ticks() <-chan uint64    { return h.ticks }
func (h *fakeHAL) SetLines(lines []string) { h.lines = lines }

func TestScenarioFiles(t *testing.T) {
	for _, name := range []string{"inherit.scn", "mrsp-help.scn", "processors.scn"} {
		t.Run(name, func(t *testing.T) {
			sc, err := LoadScenario("../scenarios/" + name)
			if err != nil {
				t.Fatalf("LoadScenario() error = %v", err)
			}
			a, err := New(hal.New(hal.HostConfig{Output: &bytes.Buffer{}}), Config{Scenario: sc})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			a.Close()
		})
	}
}
