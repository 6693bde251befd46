// Package modem drives a LoRaWAN radio module over its AT command line.
// Every exchange is: drop stale input, write command line, poll for
// acknowledgement token anywhere in accumulated response.
// The port is half-duplex and owned by a single Modem, sends never overlap.
package modem

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	modem_config "github.com/cargowatch/telenode/hardware/modem/config"
	"github.com/cargowatch/telenode/hardware/serial"
	"github.com/cargowatch/telenode/helpers"
	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
)

const (
	DefaultMaxAttempts    = 3
	DefaultAttemptTimeout = 3000 * time.Millisecond
	DefaultBackoffBase    = 1000 * time.Millisecond
	DefaultBackoffJitter  = 500 * time.Millisecond
	DefaultAckToken       = "OK"
	PollInterval          = 5 * time.Millisecond
	LineEnd               = "\r\n"

	readChunk = 256
)

type Status uint8

const (
	StatusInvalid Status = iota
	Delivered
	Failed
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "Delivered"
	case Failed:
		return "Failed"
	}
	return "Invalid"
}

// Attempt is one command/response exchange, N counts from 1 within a send.
type Attempt struct {
	Command  string
	N        int
	Elapsed  time.Duration
	Response string
}

// Outcome of SendWithRetry. Err is last attempt error, nil when Delivered.
type Outcome struct {
	Status   Status
	Attempts int
	Elapsed  time.Duration
	Response string
	Err      error
	Last     Attempt
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s attempts=%d elapsed=%s err=%v", o.Status, o.Attempts, o.Elapsed, o.Err)
	}
	return fmt.Sprintf("%s attempts=%d elapsed=%s", o.Status, o.Attempts, o.Elapsed)
}

// Clock is time source for polling and backoff, replaced in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type sysClock struct{}

func (sysClock) Now() time.Time { return time.Now() }
func (sysClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Modem struct {
	Log *log2.Log

	lk      sync.Mutex
	port    serial.Port
	clock   Clock
	backoff *helpers.Jitter
	readBuf []byte

	maxAttempts    int
	attemptTimeout time.Duration
	token          string
	confirm        int
	trials         int
	join           modem_config.Join
}

func New(port serial.Port, c *modem_config.Config, log *log2.Log) *Modem {
	if c == nil {
		c = &modem_config.Config{}
	}
	self := &Modem{
		Log:            log,
		port:           port,
		clock:          sysClock{},
		readBuf:        make([]byte, readChunk),
		maxAttempts:    helpers.IntDefault(c.MaxAttempts, DefaultMaxAttempts),
		attemptTimeout: helpers.IntMillisDefault(c.AttemptTimeoutMs, DefaultAttemptTimeout),
		token:          c.AckToken,
		confirm:        1,
		trials:         helpers.IntDefault(c.Trials, 1),
		join:           c.Join,
		backoff: &helpers.Jitter{
			Base:   helpers.IntMillisDefault(c.BackoffBaseMs, DefaultBackoffBase),
			Jitter: helpers.IntMillisDefault(c.BackoffJitterMs, DefaultBackoffJitter),
		},
	}
	if self.token == "" {
		self.token = DefaultAckToken
	}
	if c.Unconfirmed {
		self.confirm = 0
	}
	return self
}

func (self *Modem) SetClock(c Clock) { self.clock = c }

// SetRand makes backoff jitter reproducible.
func (self *Modem) SetRand(r *rand.Rand) { self.backoff.Rand = r }

func (self *Modem) MaxAttempts() int { return self.maxAttempts }

func (self *Modem) Close() error { return self.port.Close() }

// Command performs single exchange and waits for token.
// Timeout is reported as errors.Timeoutf, Attempt.Response holds
// everything received so far in both cases.
func (self *Modem) Command(ctx context.Context, cmd, token string, timeout time.Duration) (Attempt, error) {
	self.lk.Lock()
	defer self.lk.Unlock()
	return self.command(ctx, 1, cmd, []string{token}, timeout)
}

// SendWithRetry repeats command until acknowledged, up to maxAttempts.
// Between failed attempts waits backoff base plus random jitter.
// Context cancel stops retrying early with Failed.
func (self *Modem) SendWithRetry(ctx context.Context, cmd string, maxAttempts int) Outcome {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	self.lk.Lock()
	defer self.lk.Unlock()

	out := Outcome{Status: Failed}
	begin := self.clock.Now()
	for n := 1; n <= maxAttempts; n++ {
		a, err := self.command(ctx, n, cmd, []string{self.token}, self.attemptTimeout)
		out.Attempts = n
		out.Last = a
		out.Response = a.Response
		out.Err = err
		if err == nil {
			out.Status = Delivered
			break
		}
		self.Log.Debugf("modem attempt=%d/%d err=%v response=%q", a.N, maxAttempts, err, a.Response)
		if ctx.Err() != nil || n == maxAttempts {
			break
		}
		delay := self.backoff.Delay()
		if err = self.clock.Sleep(ctx, delay); err != nil {
			out.Err = errors.Annotate(err, "modem backoff")
			break
		}
	}
	out.Elapsed = self.clock.Now().Sub(begin)
	return out
}

// SendPacket frames binary payload as AT+DTRX and sends with configured retry budget.
func (self *Modem) SendPacket(ctx context.Context, payload []byte) Outcome {
	return self.SendWithRetry(ctx, FormatDTRX(self.confirm, self.trials, payload), self.maxAttempts)
}

// FormatDTRX returns uplink command line without terminator:
// AT+DTRX=<confirm>,<trials>,<len>,<HEX> where HEX is exactly 2*len upper case digits.
func FormatDTRX(confirm, trials int, payload []byte) string {
	return fmt.Sprintf("AT+DTRX=%d,%d,%d,%s", confirm, trials, len(payload), helpers.UpperHex(payload))
}

// Query is raw exchange for interactive console.
// Timeout without token is not an error here, response is returned as is.
func (self *Modem) Query(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	a, err := self.Command(ctx, cmd, self.token, timeout)
	if errors.IsTimeout(err) {
		err = nil
	}
	return a.Response, err
}

func (self *Modem) command(ctx context.Context, n int, cmd string, tokens []string, timeout time.Duration) (Attempt, error) {
	a := Attempt{Command: cmd, N: n}
	if err := self.port.Discard(); err != nil {
		self.Log.Debugf("modem discard err=%v", err)
	}
	self.Log.Debugf("modem > %s", cmd)
	begin := self.clock.Now()
	if _, err := self.port.Write([]byte(cmd + LineEnd)); err != nil {
		return a, errors.Annotatef(err, "modem write cmd=%s", cmd)
	}
	_, err := self.waitFor(ctx, &a, begin, tokens, timeout)
	return a, err
}

// waitFor polls port until any token is a substring of accumulated response.
// Not line anchored: modem interleaves status text with acknowledgements.
func (self *Modem) waitFor(ctx context.Context, a *Attempt, begin time.Time, tokens []string, timeout time.Duration) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(a.Response)
	defer func() {
		a.Response = buf.String()
		a.Elapsed = self.clock.Now().Sub(begin)
	}()
	for {
		if err := self.drain(&buf); err != nil {
			return "", errors.Trace(err)
		}
		s := buf.String()
		for _, t := range tokens {
			if strings.Contains(s, t) {
				self.Log.Debugf("modem < %q", s)
				return t, nil
			}
		}
		elapsed := self.clock.Now().Sub(begin)
		if elapsed >= timeout {
			return "", errors.Timeoutf("modem response %v after %s", tokens, elapsed)
		}
		if err := self.clock.Sleep(ctx, PollInterval); err != nil {
			return "", errors.Annotate(err, "modem wait")
		}
	}
}

func (self *Modem) drain(buf *bytes.Buffer) error {
	for {
		n, err := self.port.ReadAvailable(self.readBuf)
		if n > 0 {
			buf.Write(self.readBuf[:n])
		}
		if err != nil {
			return errors.Annotate(err, "modem read")
		}
		if n < len(self.readBuf) {
			return nil
		}
	}
}
