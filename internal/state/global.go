package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cargowatch/telenode/hardware/modem"
	"github.com/cargowatch/telenode/helpers"
	"github.com/cargowatch/telenode/helpers/atomic_clock"
	"github.com/cargowatch/telenode/internal/alert"
	"github.com/cargowatch/telenode/internal/delivery"
	"github.com/cargowatch/telenode/internal/metrics"
	"github.com/cargowatch/telenode/internal/mirror"
	"github.com/cargowatch/telenode/internal/persist"
	"github.com/cargowatch/telenode/internal/producer"
	"github.com/cargowatch/telenode/internal/snapshot"
	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/temoto/alive/v2"
)

// Global is explicit handle to everything the node runs,
// threaded into task entry points instead of package level state.
type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Hardware     hardware // hardware.go
	Log          *log2.Log

	Store     *snapshot.Store
	Alerts    *alert.Engine
	Modem     *modem.Modem
	Scheduler *delivery.Scheduler
	Mirror    *mirror.Mirror
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
	Producers []*producer.Task

	// set before Init to replace MQTT client
	MirrorPublisher mirror.Publisher

	seqPersist persist.Persist

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive:        alive.NewAlive(),
		BuildVersion: "unknown",
		Log:          log,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, ContextKey, g)

	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if err := cfg.Validate(); err != nil {
		return errors.Trace(err)
	}
	if cfg.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}
	g.Log.Infof("build version=%s device=%d", g.BuildVersion, cfg.Device())

	// mirror gets log clone before SetErrorFunc, same as other background workers
	mirrorLog := g.Log.Clone(log2.LInfo)
	modemLog := g.Log.Clone(log2.LInfo)
	if cfg.Modem.LogDebug {
		modemLog.SetLevel(log2.LDebug)
	}

	g.Registry = prometheus.NewRegistry()
	g.Metrics = metrics.New(g.Registry)
	g.Log.SetErrorFunc(g.Metrics.LogError)

	g.Store = snapshot.NewStore(
		helpers.IntMillisDefault(cfg.Store.LockTimeoutMs, snapshot.DefaultLockTimeout),
		atomic_clock.Monotonic)
	g.Metrics.RegisterSkips(g.Registry, g.Store.Skipped)
	g.Alerts = alert.NewEngine(&cfg.Alert)

	port, err := g.ModemPort()
	if err != nil {
		return errors.Annotate(err, "modem")
	}
	g.Modem = modem.New(port, &cfg.Modem, modemLog)

	g.Scheduler, err = delivery.New(&cfg.Delivery, delivery.Deps{
		Store:    g.Store,
		Alerts:   g.Alerts,
		Sender:   &downlinkSender{m: g.Modem, log: modemLog},
		DeviceID: cfg.Device(),
		Identity: cfg.Identity,
		Now:      atomic_clock.Monotonic,
	}, g.Log)
	if err != nil {
		return errors.Annotate(err, "delivery")
	}
	g.Scheduler.SetObserver(g.Metrics)

	if err = g.seqPersist.Init("sequence", g.Scheduler.Sequence(), cfg.Persist.Root, g.Log); err != nil {
		return errors.Annotate(err, "persist")
	}
	if g.seqPersist.Enabled() {
		if err = g.seqPersist.Load(); err != nil {
			g.Error(err)
		}
		g.Scheduler.SetSequenceStorer(&g.seqPersist)
	}

	if cfg.Mirror.Enabled {
		if cfg.Mirror.QueuePath == "" && cfg.Persist.Root != "" {
			cfg.Mirror.QueuePath = filepath.Join(cfg.Persist.Root, "mirror")
		}
		pub := g.MirrorPublisher
		if pub == nil {
			pub = mirror.NewMqtt(&cfg.Mirror, cfg.Device(), mirrorLog)
		}
		if g.Mirror, err = mirror.New(&cfg.Mirror, pub, mirrorLog); err != nil {
			return errors.Annotate(err, "mirror")
		}
		g.Mirror.OnResult = g.Metrics.Mirrored
		g.Scheduler.AddSink(g.Mirror)
	}

	g.Producers = g.producers()
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

// Run starts all tasks and returns immediately.
// Modem setup and join happen on scheduler goroutine before first cycle.
func (g *Global) Run(ctx context.Context) error {
	if err := metrics.Serve(g.Alive, g.Config.Metrics.Listen, g.Registry, g.Log); err != nil {
		return errors.Annotate(err, "metrics")
	}
	if g.Mirror != nil {
		g.Mirror.Run(g.Alive)
	}
	for _, t := range g.Producers {
		go t.Run(g.Alive)
	}
	if hb, err := g.Heartbeat(); err != nil {
		g.Error(err, "heartbeat")
	} else if hb != nil {
		go hb.Run(g.Alive)
	}
	if !g.Alive.Add(1) {
		return nil
	}
	go func() {
		defer g.Alive.Done()
		if err := g.Modem.Setup(ctx); err != nil {
			g.Error(err, "modem setup")
		}
		g.Scheduler.Run(ctx, g.Alive)
	}()
	return nil
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

// StopWait stops all tasks, waits at most timeout and releases hardware.
func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	ok := true
	select {
	case <-g.Alive.WaitChan():
	case <-time.After(timeout):
		ok = false
	}
	if g.Config != nil {
		if err := g.closeHardware(); err != nil {
			g.Log.Error(err)
		}
	}
	return ok
}

// downlinkSender reads whatever network sent back after successful uplink.
type downlinkSender struct {
	m   *modem.Modem
	log *log2.Log
}

func (self *downlinkSender) SendPacket(ctx context.Context, payload []byte) modem.Outcome {
	o := self.m.SendPacket(ctx, payload)
	if o.Status == modem.Delivered {
		if d, ok := self.m.ReadDownlink(ctx); ok {
			self.log.Debugf("downlink port=%d payload=%x", d.Port, d.Payload)
		}
	}
	return o
}
