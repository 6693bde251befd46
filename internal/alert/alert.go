// Package alert turns environment readings into hysteresis alert states
// and rate limited notifications, and classifies acceleration as shock.
package alert

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cargowatch/telenode/helpers"
	"github.com/cargowatch/telenode/helpers/atomic_clock"
	"github.com/cargowatch/telenode/internal/snapshot"
)

const (
	DefaultThermalRaise   = 30.0
	DefaultThermalClear   = 29.0
	DefaultHumidityRaise  = 80.0
	DefaultHumidityClear  = 75.0
	DefaultWarmupSamples  = 2
	DefaultNotifyInterval = 30 * time.Second
	DefaultShockG         = 2.5
	DefaultMovingDeltaG   = 0.15
)

type Threshold struct {
	Raise float64 `hcl:"raise"`
	Clear float64 `hcl:"clear"`
}

type Config struct {
	Thermal  Threshold `hcl:"thermal"`
	Humidity Threshold `hcl:"humidity"`
	// 0 = default, negative disables warm-up
	WarmupSamples    int     `hcl:"warmup_samples"`
	NotifyIntervalMs int     `hcl:"notify_interval_ms"`
	ShockG           float64 `hcl:"shock_g"`
	MovingDeltaG     float64 `hcl:"moving_delta_g"`
}

func (c Threshold) orDefault(raise, clear float64) Threshold {
	if c.Raise == 0 && c.Clear == 0 {
		return Threshold{Raise: raise, Clear: clear}
	}
	return c
}

func (c *Config) ThermalThreshold() Threshold {
	return c.Thermal.orDefault(DefaultThermalRaise, DefaultThermalClear)
}
func (c *Config) HumidityThreshold() Threshold {
	return c.Humidity.orDefault(DefaultHumidityRaise, DefaultHumidityClear)
}
func (c *Config) Warmup() uint32 {
	switch {
	case c.WarmupSamples < 0:
		return 0
	case c.WarmupSamples == 0:
		return DefaultWarmupSamples
	}
	return uint32(c.WarmupSamples)
}
func (c *Config) NotifyInterval() time.Duration {
	return helpers.IntMillisDefault(c.NotifyIntervalMs, DefaultNotifyInterval)
}
func (c *Config) ShockThreshold() float32 { return float32(helpers.FloatDefault(c.ShockG, DefaultShockG)) }
func (c *Config) MovingDelta() float32 {
	return float32(helpers.FloatDefault(c.MovingDeltaG, DefaultMovingDeltaG))
}

type State uint8

const (
	Normal State = iota
	Alert
)

func (s State) String() string {
	if s == Alert {
		return "Alert"
	}
	return "Normal"
}

// Transition is the whole hysteresis contract.
// Raise needs reading strictly above raise, clear needs strictly below clear.
func Transition(s State, reading, raise, clear float32) State {
	switch s {
	case Normal:
		if reading > raise {
			return Alert
		}
	case Alert:
		if reading < clear {
			return Normal
		}
	}
	return s
}

type Signal uint8

const (
	Thermal Signal = iota
	Humidity
	signalCount
)

func (s Signal) String() string {
	switch s {
	case Thermal:
		return "thermal"
	case Humidity:
		return "humidity"
	}
	return fmt.Sprintf("signal(%d)", uint8(s))
}

type Status string

const (
	StatusOK    Status = "OK"
	StatusAlert Status = "ALERT"
)

type SignalState struct {
	State          State
	LastNotifiedAt atomic_clock.Millis
}

type SignalResult struct {
	State   State
	Edge    bool // Normal->Alert in this evaluation
	Reading float32
	Fed     bool
}

type Notification struct {
	Signal  Signal
	Reading float32
	Text    string
}

type Result struct {
	Status        Status
	Warmup        bool
	Signals       [signalCount]SignalResult
	Notifications []Notification
}

func (r *Result) Thermal() SignalResult  { return r.Signals[Thermal] }
func (r *Result) Humidity() SignalResult { return r.Signals[Humidity] }

// Text joins notification texts, empty when none.
func (r *Result) Text() string {
	s := ""
	for i, n := range r.Notifications {
		if i > 0 {
			s += " "
		}
		s += n.Text
	}
	return s
}

// Reading is one evaluation input. Samples is the count of environment
// readings accepted so far, it drives warm-up.
type Reading struct {
	TemperatureC float32
	HumidityPct  float32
	Samples      uint32
}

type Engine struct {
	mu           sync.Mutex
	signals      [signalCount]SignalState
	thresholds   [signalCount]Threshold
	warmup       uint32
	interval     uint32 // ms
	lastNotified atomic_clock.Millis
}

func NewEngine(c *Config) *Engine {
	if c == nil {
		c = &Config{}
	}
	self := &Engine{
		warmup:   c.Warmup(),
		interval: uint32(c.NotifyInterval() / time.Millisecond),
	}
	self.thresholds[Thermal] = c.ThermalThreshold()
	self.thresholds[Humidity] = c.HumidityThreshold()
	return self
}

// Evaluate feeds readings into hysteresis machines and decides notifications.
// During warm-up and for NaN readings nothing is fed.
// Notification throttle is shared: a signal in Alert notifies on its edge
// or when interval has passed since last notification of any signal.
func (self *Engine) Evaluate(now atomic_clock.Millis, r Reading) Result {
	self.mu.Lock()
	defer self.mu.Unlock()

	result := Result{Status: StatusOK}
	readings := [signalCount]float32{Thermal: r.TemperatureC, Humidity: r.HumidityPct}
	result.Warmup = r.Samples <= self.warmup
	timeOk := now.Sub(self.lastNotified) >= self.interval
	notified := false
	for sig := Signal(0); sig < signalCount; sig++ {
		st := &self.signals[sig]
		sr := &result.Signals[sig]
		sr.Reading = readings[sig]
		if !result.Warmup && !isNaN(readings[sig]) {
			th := self.thresholds[sig]
			next := Transition(st.State, readings[sig], float32(th.Raise), float32(th.Clear))
			sr.Edge = st.State == Normal && next == Alert
			sr.Fed = true
			st.State = next
		}
		sr.State = st.State
		if st.State != Alert {
			continue
		}
		result.Status = StatusAlert
		if sr.Edge || timeOk {
			result.Notifications = append(result.Notifications, Notification{
				Signal:  sig,
				Reading: readings[sig],
				Text:    notificationText(sig, readings[sig]),
			})
			st.LastNotifiedAt = now
			notified = true
		}
	}
	if notified {
		self.lastNotified = now
	}
	return result
}

func (self *Engine) EvaluateSnapshot(now atomic_clock.Millis, s *snapshot.Snapshot) Result {
	return self.Evaluate(now, Reading{TemperatureC: s.TemperatureC, HumidityPct: s.HumidityPct, Samples: s.EnvironmentSamples})
}

func (self *Engine) State(sig Signal) SignalState {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.signals[sig]
}

func notificationText(sig Signal, v float32) string {
	switch sig {
	case Thermal:
		return fmt.Sprintf("Thermal risk: temp_c=%.1f exceeds safe threshold for ammunition transport.", v)
	case Humidity:
		return fmt.Sprintf("Humidity risk: hum_pct=%.1f exceeds safe threshold for ammunition storage.", v)
	}
	return fmt.Sprintf("%s risk: %.1f", sig, v)
}

func isNaN(f float32) bool { return f != f }

func Magnitude(x, y, z float32) float32 {
	return float32(math.Sqrt(float64(x)*float64(x) + float64(y)*float64(y) + float64(z)*float64(z)))
}

// ShockDetected is edge only, threshold inclusive.
func ShockDetected(magnitude, threshold float32) bool { return magnitude >= threshold }

// IsMoving compares magnitude against 1 g of gravity at rest.
func IsMoving(magnitude, delta float32) bool {
	return float32(math.Abs(float64(magnitude)-1)) >= delta
}
