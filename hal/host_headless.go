package hal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	Hz      int
	Ticks   uint64
	Host    HostConfig
}

// RunHeadless runs the simulator without opening a window. It returns when
// cfg.Ticks steps ran or ctx ends.
func RunHeadless(ctx context.Context, newApp func(HAL) (App, error), cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}
	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	h := newHost(cfg.Host)
	a, err := newApp(h)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	lanes := a.Lanes()
	g.Go(func() error {
		return RunLanes(ctx, lanes, LaneOptions{PinHost: cfg.Host.PinHost, Logger: h.logger})
	})
	g.Go(func() error {
		defer cancel()
		t := time.NewTicker(d)
		defer t.Stop()
		var tick uint64
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-t.C:
				h.t.advance(now)
				if err := a.Step(); err != nil {
					return err
				}
				tick++
				if cfg.Ticks > 0 && tick >= cfg.Ticks {
					return nil
				}
			}
		}
	})
	return g.Wait()
}
