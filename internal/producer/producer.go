// Package producer runs sensor polling tasks writing the shared snapshot.
// Each task owns its snapshot fields, waits for the lock at most
// store lock timeout and skips the update otherwise.
package producer

import (
	"time"

	"github.com/cargowatch/telenode/internal/alert"
	"github.com/cargowatch/telenode/internal/snapshot"
	"github.com/cargowatch/telenode/log2"
	"github.com/temoto/alive/v2"
)

const (
	DefaultLocationInterval    = time.Second
	DefaultEnvironmentInterval = 5 * time.Second
	DefaultMotionInterval      = 100 * time.Millisecond
)

type LocationSource interface {
	// ReadLocation returns false while there is no valid fix.
	ReadLocation() (snapshot.Location, bool)
}

// EnvironmentSource readings are independent, one may fail while other succeeds.
type EnvironmentSource interface {
	TemperatureC() (float32, bool)
	HumidityPct() (float32, bool)
}

type MotionSource interface {
	ReadAcceleration() (x, y, z float32, ok bool)
}

// Task is one periodic producer.
type Task struct {
	Name     string
	Interval time.Duration
	Step     func() bool
	Log      *log2.Log
}

// Run calls Step immediately and then every Interval until alive stops.
func (self *Task) Run(a *alive.Alive) {
	if !a.Add(1) {
		return
	}
	defer a.Done()
	self.Log.Debugf("producer %s start interval=%v", self.Name, self.Interval)
	tmr := time.NewTicker(self.Interval)
	defer tmr.Stop()
	for {
		if !self.Step() {
			self.Log.Debugf("producer %s skip", self.Name)
		}
		select {
		case <-tmr.C:
		case <-a.StopChan():
			self.Log.Debugf("producer %s stop", self.Name)
			return
		}
	}
}

func NewLocation(src LocationSource, store *snapshot.Store, interval time.Duration, log *log2.Log) *Task {
	return &Task{
		Name:     "location",
		Interval: orDefault(interval, DefaultLocationInterval),
		Log:      log,
		Step: func() bool {
			l, ok := src.ReadLocation()
			if !ok {
				return false
			}
			return store.UpdateLocation(l)
		},
	}
}

func NewEnvironment(src EnvironmentSource, store *snapshot.Store, interval time.Duration, log *log2.Log) *Task {
	return &Task{
		Name:     "environment",
		Interval: orDefault(interval, DefaultEnvironmentInterval),
		Log:      log,
		Step: func() bool {
			var tp, hp *float32
			if t, ok := src.TemperatureC(); ok {
				tp = &t
			}
			if h, ok := src.HumidityPct(); ok {
				hp = &h
			}
			if tp == nil && hp == nil {
				return false
			}
			return store.UpdateEnvironment(tp, hp)
		},
	}
}

// Motion derives magnitude, shock and moving flags from raw acceleration.
type Motion struct {
	ShockG      float32
	MovingDelta float32
	// Continuous makes ShockDetected follow current reading.
	// Otherwise it is armed here and cleared by delivery.
	Continuous bool
}

func NewMotion(src MotionSource, store *snapshot.Store, m Motion, interval time.Duration, log *log2.Log) *Task {
	return &Task{
		Name:     "motion",
		Interval: orDefault(interval, DefaultMotionInterval),
		Log:      log,
		Step: func() bool {
			x, y, z, ok := src.ReadAcceleration()
			if !ok {
				return false
			}
			return m.Apply(store, x, y, z)
		},
	}
}

func (self Motion) Apply(store *snapshot.Store, x, y, z float32) bool {
	g := alert.Magnitude(x, y, z)
	shock := alert.ShockDetected(g, self.ShockG)
	moving := alert.IsMoving(g, self.MovingDelta)
	if self.Continuous {
		return store.Update(func(s *snapshot.Snapshot) {
			s.AccelerationG = g
			s.IsMoving = moving
			s.ShockDetected = shock
		})
	}
	return store.UpdateMotion(g, shock, moving)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
