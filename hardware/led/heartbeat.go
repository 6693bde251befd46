// Package led blinks status line so field crew sees the node is alive.
package led

import (
	"time"

	"github.com/cargowatch/telenode/helpers"
	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	gpio "github.com/temoto/gpio-cdev-go"
)

const (
	DefaultChip     = "/dev/gpiochip0"
	DefaultLine     = 2
	DefaultInterval = time.Second
)

type Config struct {
	Enabled    bool   `hcl:"enable"`
	Chip       string `hcl:"gpio_chip"`
	Line       int    `hcl:"line"`
	IntervalMs int    `hcl:"interval_ms"`
}

type Heartbeat struct {
	Log      *log2.Log
	chip     gpio.Chiper
	lines    gpio.Lineser
	set      gpio.LineSetFunc
	interval time.Duration
	state    byte
}

func Open(c *Config, log *log2.Log) (*Heartbeat, error) {
	chipName := c.Chip
	if chipName == "" {
		chipName = DefaultChip
	}
	line := uint32(DefaultLine)
	if c.Line != 0 {
		line = uint32(c.Line)
	}
	chip, err := gpio.Open(chipName, "telenode")
	if err != nil {
		return nil, errors.Annotatef(err, "heartbeat gpio chip=%s", chipName)
	}
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, "telenode-heartbeat", line)
	if err != nil {
		chip.Close()
		return nil, errors.Annotatef(err, "heartbeat gpio line=%d", line)
	}
	self := New(lines, line, time.Duration(c.IntervalMs)*time.Millisecond, log)
	self.chip = chip
	return self, nil
}

func New(lines gpio.Lineser, line uint32, interval time.Duration, log *log2.Log) *Heartbeat {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Heartbeat{
		Log:      log,
		lines:    lines,
		set:      lines.SetFunc(line),
		interval: interval,
	}
}

func (self *Heartbeat) Toggle() error {
	self.state ^= 1
	self.set(self.state)
	return self.lines.Flush()
}

// Run toggles line every interval, leaves it low on stop.
func (self *Heartbeat) Run(a *alive.Alive) {
	if !a.Add(1) {
		return
	}
	defer a.Done()
	tmr := time.NewTicker(self.interval)
	defer tmr.Stop()
	for {
		if err := self.Toggle(); err != nil {
			self.Log.Errorf("heartbeat err=%v", err)
		}
		select {
		case <-tmr.C:
		case <-a.StopChan():
			if self.state != 0 {
				_ = self.Toggle()
			}
			return
		}
	}
}

func (self *Heartbeat) Close() error {
	errs := []error{self.lines.Close()}
	if self.chip != nil {
		errs = append(errs, self.chip.Close())
	}
	return helpers.FoldErrors(errs)
}
