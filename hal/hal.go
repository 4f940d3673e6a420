// Package hal is the host side of the simulator: logging, the tick stream,
// the processor lanes and the lane view.
package hal

import "errors"

// Fields annotate a log line.
type Fields map[string]any

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
	// WithFields returns a logger that adds f to every line.
	WithFields(f Fields) Logger
}

var ErrNotImplemented = errors.New("not implemented")

// Time provides a base tick stream.
//
// The tick duration is platform-defined; the kernel clock counts ticks.
type Time interface {
	Ticks() <-chan uint64
}

// Display shows a few lines of status text (if available).
type Display interface {
	SetLines(lines []string)
}

// Lane is the work loop of one simulated processor. Signal fires when work
// was posted; Serve runs the posted work and returns how many items ran.
type Lane interface {
	Index() int
	Signal() <-chan struct{}
	Serve() int
}

// App is what the host runners drive: Step runs once per frame or tick,
// and Lanes are served on their own goroutines for the app's lifetime.
type App interface {
	Step() error
	Lanes() []Lane
	Close()
}

// HAL provides the only contact point between the simulator and the host.
type HAL interface {
	Logger() Logger
	Display() Display
	Time() Time
}
