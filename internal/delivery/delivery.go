// Package delivery runs the send cycle: consistent snapshot, alert evaluation,
// packet construction, diagnostics, synchronous transport send.
package delivery

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cargowatch/telenode/hardware/modem"
	"github.com/cargowatch/telenode/helpers"
	"github.com/cargowatch/telenode/helpers/atomic_clock"
	"github.com/cargowatch/telenode/helpers/msync"
	"github.com/cargowatch/telenode/internal/alert"
	"github.com/cargowatch/telenode/internal/packet"
	"github.com/cargowatch/telenode/internal/snapshot"
	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

const (
	DefaultInterval    = 2000 * time.Millisecond
	DefaultReadTimeout = 500 * time.Millisecond
)

type ShockPolicy string

const (
	// flag is cleared on packet construction, each shock reported once
	ShockOneShot    ShockPolicy = "oneshot"
	// flag reflects latest motion reading, producer owns it
	ShockContinuous ShockPolicy = "continuous"
)

type Config struct {
	IntervalMs    int    `hcl:"interval_ms"`
	// bounded wait for snapshot lock, cycle is skipped on timeout
	ReadTimeoutMs int    `hcl:"read_timeout_ms"`
	ShockPolicy   string `hcl:"shock_policy"`
}

func (c *Config) Policy() (ShockPolicy, error) {
	switch p := ShockPolicy(c.ShockPolicy); p {
	case "", ShockOneShot:
		return ShockOneShot, nil
	case ShockContinuous:
		return p, nil
	}
	return "", errors.NotValidf("delivery.shock_policy=%q", c.ShockPolicy)
}

// Sender is transport, modem.Modem in production.
type Sender interface {
	SendPacket(ctx context.Context, payload []byte) modem.Outcome
}

// DiagnosticSink receives every cycle diagnostic regardless of send outcome.
// Must not block for long.
type DiagnosticSink interface {
	Diagnostic(d *packet.Diagnostic)
}

// Observer gets cycle report after send, used for metrics.
type Observer interface {
	ObserveCycle(r *CycleReport)
}

// SequenceStorer saves counter after each constructed packet.
type SequenceStorer interface {
	Store() error
}

type CycleReport struct {
	Skipped    bool // snapshot lock not acquired, nothing else is filled
	Snapshot   snapshot.Snapshot
	Alert      alert.Result
	Packet     packet.TelemetryPacket
	Diagnostic packet.Diagnostic
	Outcome    modem.Outcome
	Duration   time.Duration
}

type Scheduler struct {
	Log *log2.Log

	interval    int64 // atomic time.Duration
	readTimeout time.Duration
	wake        msync.Signal
	seq      Sequence
	deviceID uint8
	identity packet.Identity
	policy   ShockPolicy
	now      atomic_clock.MillisFunc

	store    *snapshot.Store
	alerts   *alert.Engine
	sender   Sender
	sinks    []DiagnosticSink
	observer Observer
	seqStore SequenceStorer
}

type Deps struct {
	Store    *snapshot.Store
	Alerts   *alert.Engine
	Sender   Sender
	DeviceID uint8
	Identity packet.Identity
	Now      atomic_clock.MillisFunc // nil = atomic_clock.Monotonic
}

func New(c *Config, d Deps, log *log2.Log) (*Scheduler, error) {
	if c == nil {
		c = &Config{}
	}
	policy, err := c.Policy()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if d.Store == nil || d.Alerts == nil || d.Sender == nil {
		return nil, errors.NotValidf("delivery deps store=%v alerts=%v sender=%v", d.Store != nil, d.Alerts != nil, d.Sender != nil)
	}
	if d.Now == nil {
		d.Now = atomic_clock.Monotonic
	}
	self := &Scheduler{
		Log:      log,
		interval:    int64(helpers.IntMillisDefault(c.IntervalMs, DefaultInterval)),
		readTimeout: helpers.IntMillisDefault(c.ReadTimeoutMs, DefaultReadTimeout),
		wake:        msync.NewSignalBuffered(),
		deviceID:    d.DeviceID,
		identity:    d.Identity.WithDefaults(d.DeviceID),
		policy:      policy,
		now:         d.Now,
		store:       d.Store,
		alerts:      d.Alerts,
		sender:      d.Sender,
	}
	return self, nil
}

func (self *Scheduler) AddSink(s DiagnosticSink)           { self.sinks = append(self.sinks, s) }
func (self *Scheduler) SetObserver(o Observer)             { self.observer = o }
func (self *Scheduler) SetSequenceStorer(s SequenceStorer) { self.seqStore = s }

// Sequence is exposed for persistence binding and tests.
func (self *Scheduler) Sequence() *Sequence { return &self.seq }

func (self *Scheduler) Interval() time.Duration {
	return time.Duration(atomic.LoadInt64(&self.interval))
}

// SetInterval takes effect from the next sleep, current sleep is cut short.
func (self *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return errors.NotValidf("delivery interval=%v", d)
	}
	atomic.StoreInt64(&self.interval, int64(d))
	self.wake.Set()
	return nil
}

// Run loops until alive is stopped. Context is passed to transport,
// it is cancelled when alive stops so a retrying send ends early.
func (self *Scheduler) Run(ctx context.Context, a *alive.Alive) {
	if !a.Add(1) {
		return
	}
	defer a.Done()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()

	self.Log.Infof("delivery start interval=%v policy=%s seq=%d", self.Interval(), self.policy, self.seq.Peek())
	began := time.Now()
	for {
		wait := self.Interval() - time.Since(began)
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-a.StopChan():
				t.Stop()
				return
			case <-self.wake:
				t.Stop()
				continue
			case <-t.C:
			}
		}
		began = time.Now()
		self.Cycle(ctx)
	}
}

// Cycle executes exactly one delivery cycle. Never fails: transport
// outcome is logged and reported, persistence errors are logged.
// Snapshot lock contention skips the cycle, sequence is not consumed.
func (self *Scheduler) Cycle(ctx context.Context) CycleReport {
	tbegin := time.Now()
	r := CycleReport{}
	var ok bool
	if r.Snapshot, ok = self.store.TryRead(self.readTimeout, self.policy == ShockOneShot); !ok {
		r.Skipped = true
		r.Duration = time.Since(tbegin)
		self.Log.Errorf("delivery snapshot lock timeout=%v cycle skipped", self.readTimeout)
		if self.observer != nil {
			self.observer.ObserveCycle(&r)
		}
		return r
	}
	now := self.now()
	r.Alert = self.alerts.EvaluateSnapshot(now, &r.Snapshot)

	seq := self.seq.Next()
	flags := packet.MakeFlags(r.Snapshot.ShockDetected, r.Snapshot.IsMoving)
	r.Packet = packet.EncodeBinary(&r.Snapshot, flags, self.deviceID, seq)
	if self.seqStore != nil {
		if err := self.seqStore.Store(); err != nil {
			self.Log.Errorf("delivery sequence store err=%v", err)
		}
	}

	r.Diagnostic = packet.EncodeDiagnostic(self.identity, now, seq, &r.Snapshot, &r.Alert)
	self.Log.Info(r.Diagnostic.Human())
	for _, n := range r.Alert.Notifications {
		self.Log.Infof("[ALERT] %s", n.Text)
	}
	for _, s := range self.sinks {
		s.Diagnostic(&r.Diagnostic)
	}

	r.Outcome = self.sender.SendPacket(ctx, r.Packet.Bytes())
	r.Duration = time.Since(tbegin)
	switch r.Outcome.Status {
	case modem.Delivered:
		self.Log.Infof("delivery seq=%d %s", seq, r.Outcome.String())
	default:
		self.Log.Errorf("delivery seq=%d %s", seq, r.Outcome.String())
	}
	if self.observer != nil {
		self.observer.ObserveCycle(&r)
	}
	return r
}

func (r *CycleReport) String() string {
	if r.Skipped {
		return "skipped"
	}
	return fmt.Sprintf("seq=%d status=%s outcome=%s", r.Packet.SequenceID, r.Alert.Status, r.Outcome.Status)
}
