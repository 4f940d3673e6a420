package app

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"smpcore/kernel"
	"smpcore/kernel/cpuset"
)

// Command is one scenario line after the topology.
type Command struct {
	Line int
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Scenario is a parsed scenario file: the processor topology and the
// directives to run on it.
type Scenario struct {
	Topology kernel.Config
	Commands []Command
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sc, err := ParseScenario(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario reads a scenario. Lines are split like a shell command
// line and '#' starts a comment. Topology lines (processors, offline,
// timeslice, scheduler) must precede every other command. Without a
// scheduler line the topology is one fixed-priority scheduler "A" owning
// every processor.
func ParseScenario(r io.Reader) (*Scenario, error) {
	sc := &Scenario{}
	topology := true
	s := bufio.NewScanner(r)
	line := 0
	for s.Scan() {
		line++
		fields, err := shlex.Split(s.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(fields) == 0 {
			continue
		}
		c := Command{Line: line, Name: strings.ToLower(fields[0]), Args: fields[1:]}
		if isTopology(c.Name) {
			if !topology {
				return nil, fmt.Errorf("line %d: %s after the first directive", line, c.Name)
			}
			if err := applyTopology(&sc.Topology, c); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			continue
		}
		topology = false
		sc.Commands = append(sc.Commands, c)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if sc.Topology.Processors == 0 {
		sc.Topology.Processors = 1
	}
	if len(sc.Topology.Schedulers) == 0 {
		sc.Topology.Schedulers = []kernel.SchedulerConfig{{
			Name:        "A",
			Policy:      kernel.PolicyFixedPriority,
			MaxPriority: 255,
			Processors:  cpuset.All(sc.Topology.Processors),
		}}
	}
	return sc, nil
}

func isTopology(name string) bool {
	switch name {
	case "processors", "offline", "timeslice", "scheduler":
		return true
	}
	return false
}

func applyTopology(cfg *kernel.Config, c Command) error {
	switch c.Name {
	case "processors":
		if len(c.Args) != 1 {
			return fmt.Errorf("usage: processors COUNT")
		}
		n, err := strconv.Atoi(c.Args[0])
		if err != nil {
			return fmt.Errorf("processors: %w", err)
		}
		cfg.Processors = n
	case "offline":
		set, err := parseCPUs(c.Args)
		if err != nil {
			return fmt.Errorf("offline: %w", err)
		}
		cfg.Offline = cfg.Offline.Or(set)
	case "timeslice":
		if len(c.Args) != 1 {
			return fmt.Errorf("usage: timeslice TICKS")
		}
		n, err := strconv.Atoi(c.Args[0])
		if err != nil {
			return fmt.Errorf("timeslice: %w", err)
		}
		cfg.TimeSliceTicks = n
	case "scheduler":
		if len(c.Args) < 3 {
			return fmt.Errorf("usage: scheduler NAME fp|edf MAXPRIO [CPU...]")
		}
		policy, err := parsePolicy(c.Args[1])
		if err != nil {
			return err
		}
		max, err := strconv.ParseUint(c.Args[2], 10, 32)
		if err != nil {
			return fmt.Errorf("scheduler %s: maximum priority: %w", c.Args[0], err)
		}
		set, err := parseCPUs(c.Args[3:])
		if err != nil {
			return fmt.Errorf("scheduler %s: %w", c.Args[0], err)
		}
		cfg.Schedulers = append(cfg.Schedulers, kernel.SchedulerConfig{
			Name:        c.Args[0],
			Policy:      policy,
			MaxPriority: kernel.Priority(max),
			Processors:  set,
		})
	}
	return nil
}

func parsePolicy(s string) (kernel.Policy, error) {
	switch strings.ToLower(s) {
	case "fp", "fixed", "fixed-priority":
		return kernel.PolicyFixedPriority, nil
	case "edf":
		return kernel.PolicyEDF, nil
	}
	return 0, fmt.Errorf("unknown policy %q", s)
}

// parseCPUs reads processor indices, each either a number or a range
// such as 2-3.
func parseCPUs(args []string) (cpuset.Set, error) {
	var set cpuset.Set
	for _, a := range args {
		lo, hi, isRange := strings.Cut(a, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return 0, fmt.Errorf("processor %q: %w", a, err)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(hi); err != nil {
				return 0, fmt.Errorf("processor %q: %w", a, err)
			}
		}
		if first < 0 || last >= kernel.MaxProcessors || first > last {
			return 0, fmt.Errorf("processor %q out of range", a)
		}
		for i := first; i <= last; i++ {
			set = set.Add(i)
		}
	}
	return set, nil
}
