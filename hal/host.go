package hal

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// HostConfig configures the host HAL.
type HostConfig struct {
	// Output defaults to os.Stdout.
	Output io.Writer
	Level  logrus.Level
	JSON   bool
	// PinHost binds every lane goroutine to a host processor.
	PinHost bool
}

type hostHAL struct {
	cfg    HostConfig
	logger *hostLogger
	disp   *hostDisplay
	t      *hostTime
}

// New returns a host HAL implementation.
func New(cfg HostConfig) HAL {
	return newHost(cfg)
}

func newHost(cfg HostConfig) *hostHAL {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Level == 0 {
		cfg.Level = logrus.InfoLevel
	}
	l := logrus.New()
	l.SetOutput(cfg.Output)
	l.SetLevel(cfg.Level)
	if cfg.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableQuote: true})
	}
	return &hostHAL{
		cfg:    cfg,
		logger: &hostLogger{entry: logrus.NewEntry(l)},
		disp:   &hostDisplay{},
		t:      newHostTime(),
	}
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) Display() Display { return h.disp }
func (h *hostHAL) Time() Time       { return h.t }

type hostLogger struct {
	entry *logrus.Entry
}

func (l *hostLogger) WriteLineString(s string) {
	l.entry.Info(s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.entry.Info(string(b))
}

func (l *hostLogger) WithFields(f Fields) Logger {
	return &hostLogger{entry: l.entry.WithFields(logrus.Fields(f))}
}

type hostDisplay struct {
	mu    sync.Mutex
	lines []string
}

func (d *hostDisplay) SetLines(lines []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = append(d.lines[:0], lines...)
}

func (d *hostDisplay) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}
