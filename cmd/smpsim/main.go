package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"smpcore/api"
	"smpcore/app"
	"smpcore/hal"
	"smpcore/internal/buildinfo"
	"smpcore/kernel"
)

func main() {
	var (
		quiet   = flag.Bool("q", false, "Do not log directives.")
		events  = flag.Bool("events", true, "Print the scheduler event log.")
		version = flag.Bool("version", false, "Print the version and exit.")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: smpsim [flags] scenario.scn\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *version {
		fmt.Println(buildinfo.Long())
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	sc, err := app.LoadScenario(flag.Arg(0))
	if err != nil {
		fatalf("%v", err)
	}

	log := kernel.NewEventLog(0)
	sc.Topology.Events = log
	sys, err := kernel.NewSystem(sc.Topology)
	if err != nil {
		fatalf("topology: %v", err)
	}
	var logger hal.Logger
	if !*quiet {
		logger = hal.New(hal.HostConfig{Output: os.Stderr}).Logger()
	}
	runErr := app.NewRunner(api.New(sys), logger).Run(sc.Commands)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if *events {
		fmt.Fprintln(w, "OP\tTHREAD\tSCHEDULER\tCPU\tPRIORITY")
		for _, ev := range log.Events() {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", ev.Op, ev.Thread, ev.Scheduler, ev.CPU, ev.Priority)
		}
		fmt.Fprintln(w)
	}
	for _, line := range app.ProcessorTable(sys) {
		fmt.Fprintln(w, line)
	}
	w.Flush()

	if runErr != nil {
		fatalf("%v", runErr)
	}
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
