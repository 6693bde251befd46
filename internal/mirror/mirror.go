// Package mirror forwards JSON diagnostic records to MQTT broker.
//
// Contract:
// - Diagnostic() blocks at most for disk write, broker may be slow or absent
// - records survive restart in persistent queue and are delivered at least once
// - order is kept until a publish fails, failed record goes to queue tail
package mirror

import (
	"time"

	"github.com/cargowatch/telenode/helpers"
	"github.com/cargowatch/telenode/internal/packet"
	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/spq"
)

const (
	DefaultRetryDelay = 5 * time.Second
	DefaultTopic      = "telenode/%d/diag"
)

type Config struct {
	Enabled      bool   `hcl:"enable"`
	LogDebug     bool   `hcl:"log_debug"`
	Broker       string `hcl:"broker"`
	ClientID     string `hcl:"client_id"`
	Username     string `hcl:"username"`
	Password     string `hcl:"password"`
	Topic        string `hcl:"topic"`
	QueuePath    string `hcl:"queue_path"`
	KeepaliveSec int    `hcl:"keepalive_sec"`
	RetrySec     int    `hcl:"retry_sec"`
	TimeoutSec   int    `hcl:"publish_timeout_sec"`
}

// Publisher delivers one payload or returns error, record is retried later.
type Publisher interface {
	Connect() error
	Publish(payload []byte) error
	Close()
}

// Result labels passed to OnResult.
const (
	ResultSent    = "sent"
	ResultRetry   = "retry"
	ResultDropped = "dropped"
)

type Mirror struct {
	Log      *log2.Log
	OnResult func(result string)

	pub        Publisher
	q          *spq.Queue
	alive      *alive.Alive
	retryDelay time.Duration
}

func New(c *Config, pub Publisher, log *log2.Log) (*Mirror, error) {
	if c.QueuePath == "" {
		return nil, errors.NotValidf("mirror queue_path empty")
	}
	if c.LogDebug {
		log.SetLevel(log2.LDebug)
	}
	q, err := spq.Open(c.QueuePath)
	if err != nil {
		return nil, errors.Annotate(err, "mirror queue")
	}
	self := &Mirror{
		Log:        log,
		pub:        pub,
		q:          q,
		retryDelay: helpers.IntSecondDefault(c.RetrySec, DefaultRetryDelay),
	}
	return self, nil
}

// SetRetryDelay is used by tests.
func (self *Mirror) SetRetryDelay(d time.Duration) { self.retryDelay = d }

// Diagnostic implements delivery.DiagnosticSink.
func (self *Mirror) Diagnostic(d *packet.Diagnostic) {
	b, err := d.JSON()
	if err != nil {
		self.Log.Errorf("mirror encode seq=%d err=%v", d.Sequence, err)
		return
	}
	if err = self.q.Push(b); err != nil {
		self.Log.Errorf("mirror push seq=%d err=%v", d.Sequence, err)
	}
}

// Run connects publisher and starts queue worker. Returns immediately.
// Alive is held until queue is closed and publisher is disconnected.
func (self *Mirror) Run(a *alive.Alive) {
	if !a.Add(2) {
		return
	}
	self.alive = a
	if err := self.pub.Connect(); err != nil {
		// publisher keeps reconnecting in background
		self.Log.Errorf("mirror connect err=%v", err)
	}
	go func() {
		defer a.Done()
		<-a.StopChan()
		if err := self.q.Close(); err != nil {
			self.Log.Errorf("mirror queue close err=%v", err)
		}
	}()
	go self.qworker()
}

// close is for a Mirror that was never Run.
func (self *Mirror) close() {
	if err := self.q.Close(); err != nil {
		self.Log.Errorf("mirror queue close err=%v", err)
	}
	self.pub.Close()
}

func (self *Mirror) qworker() {
	defer self.alive.Done()
	// after last Publish returned
	defer self.pub.Close()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil:
			b := box.Bytes()
			if len(b) == 0 {
				self.result(ResultDropped)
				if err = self.q.Delete(box); err != nil {
					self.Log.Errorf("mirror Delete err=%v", err)
				}
				continue
			}
			if err = self.pub.Publish(b); err == nil {
				self.result(ResultSent)
				if err = self.q.Delete(box); err != nil {
					self.Log.Errorf("mirror Delete err=%v", err)
				}
				continue
			}
			self.result(ResultRetry)
			self.Log.Debugf("mirror publish err=%v", err)
			if err = self.q.DeletePush(box); err != nil {
				self.Log.Errorf("mirror DeletePush err=%v", err)
			}
			select {
			case <-time.After(self.retryDelay):
			case <-self.alive.StopChan():
				return
			}

		case spq.ErrClosed:
			if self.alive.IsRunning() {
				self.Log.Errorf("CRITICAL mirror queue closed unexpectedly")
			}
			return

		default:
			self.Log.Errorf("CRITICAL mirror queue err=%v", err)
			select {
			case <-time.After(self.retryDelay):
			case <-self.alive.StopChan():
				return
			}
		}
	}
}

func (self *Mirror) result(r string) {
	if self.OnResult != nil {
		self.OnResult(r)
	}
}
