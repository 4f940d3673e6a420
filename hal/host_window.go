//go:build cgo

package hal

import (
	"context"
	"errors"
	"time"

	"smpcore/internal/buildinfo"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"golang.org/x/sync/errgroup"
)

const (
	windowWidth  = 480
	windowHeight = 320
	lineHeight   = 16
)

// RunWindow starts a desktop window that shows the processor lanes. It
// blocks until the window closes.
func RunWindow(newApp func(HAL) (App, error), host HostConfig) error {
	h := newHost(host)
	a, err := newApp(h)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return RunLanes(ctx, a.Lanes(), LaneOptions{PinHost: host.PinHost, Logger: h.logger})
	})

	game := &hostGame{h: h, app: a}
	ebiten.SetWindowTitle("smpsim (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(windowWidth*2, windowHeight*2)
	ebiten.SetTPS(60)
	runErr := ebiten.RunGame(game)
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(runErr, ebiten.Termination) {
		return nil
	}
	return runErr
}

type hostGame struct {
	h   *hostHAL
	app App
}

func (g *hostGame) Update() error {
	g.h.t.advance(time.Now())
	return g.app.Step()
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	for i, line := range g.h.disp.snapshot() {
		y := 4 + i*lineHeight
		if y+lineHeight > windowHeight {
			break
		}
		ebitenutil.DebugPrintAt(screen, line, 4, y)
	}
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return windowWidth, windowHeight
}
