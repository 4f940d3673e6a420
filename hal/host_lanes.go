package hal

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// LaneOptions configures RunLanes.
type LaneOptions struct {
	// PinHost binds lane i to host processor i modulo the host count.
	PinHost bool
	Logger  Logger
}

// RunLanes serves every lane on its own goroutine until ctx ends. Work
// still posted when ctx ends is served before the lane returns.
func RunLanes(ctx context.Context, lanes []Lane, opts LaneOptions) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range lanes {
		l := l
		g.Go(func() error {
			return serveLane(ctx, l, opts)
		})
	}
	return g.Wait()
}

func serveLane(ctx context.Context, l Lane, opts LaneOptions) error {
	if opts.PinHost {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		host := l.Index() % runtime.NumCPU()
		if err := pinThread(host); err != nil {
			return fmt.Errorf("lane %d: pin to host cpu %d: %w", l.Index(), host, err)
		}
		if opts.Logger != nil {
			opts.Logger.WithFields(Fields{"lane": l.Index(), "host_cpu": host}).WriteLineString("lane pinned")
		}
	}
	for {
		select {
		case <-ctx.Done():
			l.Serve()
			return nil
		case <-l.Signal():
			l.Serve()
		}
	}
}
