package app

import (
	"smpcore/hal"
	"smpcore/kernel"
)

// eventLogger forwards scheduler events to the log. Record runs with
// scheduler locks held, so it only formats the event.
type eventLogger struct {
	log hal.Logger
}

func (l eventLogger) Record(ev kernel.Event) {
	l.log.WithFields(hal.Fields{
		"op":        ev.Op.String(),
		"thread":    ev.Thread,
		"scheduler": ev.Scheduler,
		"cpu":       ev.CPU,
		"priority":  uint64(ev.Priority),
	}).WriteLineString("sched")
}

type switchLogger struct {
	log hal.Logger
}

func (l switchLogger) Switch(cpu int, from, to *kernel.Thread) {
	l.log.WithFields(hal.Fields{
		"cpu":  cpu,
		"from": threadName(from),
		"to":   threadName(to),
	}).WriteLineString("switch")
}

func installFatalHandler(sys *kernel.System, log hal.Logger) {
	sys.SetFatalHandler(func(err kernel.FatalError) {
		log.WithFields(hal.Fields{
			"source": err.Source.String(),
			"code":   err.Code.String(),
			"thread": err.Thread,
		}).WriteLineString("kernel halt: " + err.Detail)
	})
}
