package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cargowatch/telenode/cmd/telenode/subcmd"
	"github.com/cargowatch/telenode/internal/state"
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
)

const stopTimeout = 10 * time.Second

var Mod = subcmd.Mod{Name: "run", Usage: "run telemetry node", Main: Main}

func Main(ctx context.Context, config *state.Config, args []string) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)
	g.Log.Debugf("config=%+v", g.Config)

	if err := g.Run(ctx); err != nil {
		return errors.Annotate(err, "run")
	}
	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("telenode init complete, running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		g.Log.Infof("signal=%v stopping", sig)
	case <-g.Alive.StopChan():
	}
	subcmd.SdNotify(daemon.SdNotifyStopping)
	if !g.StopWait(stopTimeout) {
		return errors.Errorf("stop timeout=%v", stopTimeout)
	}
	return nil
}
