package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"smpcore/app"
	"smpcore/hal"
)

func main() {
	var cfg hal.HeadlessConfig
	var (
		scenario = flag.String("scenario", "", "Scenario file to run (default: one idle processor).")
		events   = flag.Bool("events", false, "Log every scheduler event.")
		switches = flag.Bool("switches", false, "Log every context switch.")
		jsonLog  = flag.Bool("json", false, "Log as JSON.")
		debug    = flag.Bool("debug", false, "Enable debug logging.")
	)
	flag.BoolVar(&cfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&cfg.Hz, "hz", 60, "Step rate in headless mode.")
	flag.Uint64Var(&cfg.Ticks, "ticks", 0, "Stop after N steps in headless mode (0 = run forever).")
	flag.BoolVar(&cfg.Host.PinHost, "pin-host", false, "Bind each processor lane to a host CPU.")
	flag.Parse()

	cfg.Host.JSON = *jsonLog
	if *debug {
		cfg.Host.Level = logrus.DebugLevel
	}

	var sc *app.Scenario
	if *scenario != "" {
		var err error
		if sc, err = app.LoadScenario(*scenario); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	newApp := func(h hal.HAL) (hal.App, error) {
		return app.New(h, app.Config{Scenario: sc, Events: *events, Switches: *switches})
	}

	if cfg.Enabled {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := hal.RunHeadless(ctx, newApp, cfg); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := hal.RunWindow(newApp, cfg.Host); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
