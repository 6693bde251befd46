package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cargowatch/telenode/hardware/accel"
	"github.com/cargowatch/telenode/hardware/env"
	"github.com/cargowatch/telenode/hardware/gps"
	"github.com/cargowatch/telenode/hardware/led"
	"github.com/cargowatch/telenode/hardware/serial"
	"github.com/cargowatch/telenode/helpers"
	"github.com/cargowatch/telenode/internal/delivery"
	"github.com/cargowatch/telenode/internal/producer"
	"github.com/juju/errors"
)

const DefaultModemDevice = "/dev/ttyS1"

// Fields set before Init are used as is, test and state-less tools path.
type hardware struct {
	Modem struct {
		once
		Port serial.Port
	}
	Location struct {
		once
		Source producer.LocationSource
		gps    *gps.Receiver
	}
	Environment struct {
		once
		Source producer.EnvironmentSource
	}
	Motion struct {
		once
		Source producer.MotionSource
		dev    *accel.Device
	}
	Heartbeat struct {
		once
		LED *led.Heartbeat
	}
}

func (g *Global) ModemPort() (serial.Port, error) {
	x := &g.Hardware.Modem // short alias
	_ = x.do(func() error {
		if x.Port != nil {
			return nil
		}
		cfg := &g.Config.Modem
		device := cfg.Device
		if device == "" {
			device = DefaultModemDevice
		}
		baud := cfg.Baud
		if baud == 0 {
			baud = 9600
		}
		x.Port, x.err = serial.Open(device, baud)
		return errors.Annotatef(x.err, "config: modem.device=%s baud=%d", device, baud)
	})
	return x.Port, x.err
}

// LocationSource returns nil, nil when sensor is disabled.
func (g *Global) LocationSource() (producer.LocationSource, error) {
	x := &g.Hardware.Location
	_ = x.do(func() error {
		if x.Source != nil || !g.Config.Sensor.GPS.Enabled {
			return nil
		}
		x.gps, x.err = gps.Open(&g.Config.Sensor.GPS, g.Log)
		if x.err == nil {
			x.Source = x.gps
		}
		return x.err
	})
	return x.Source, x.err
}

func (g *Global) EnvironmentSource() (producer.EnvironmentSource, error) {
	x := &g.Hardware.Environment
	_ = x.do(func() error {
		if x.Source == nil && g.Config.Sensor.Env.Enabled {
			x.Source = env.New(&g.Config.Sensor.Env, g.Log)
		}
		return nil
	})
	return x.Source, x.err
}

func (g *Global) MotionSource() (producer.MotionSource, error) {
	x := &g.Hardware.Motion
	_ = x.do(func() error {
		if x.Source != nil || !g.Config.Sensor.Accel.Enabled {
			return nil
		}
		x.dev, x.err = accel.Open(&g.Config.Sensor.Accel, g.Log)
		if x.err == nil {
			x.Source = x.dev
		}
		return x.err
	})
	return x.Source, x.err
}

func (g *Global) Heartbeat() (*led.Heartbeat, error) {
	x := &g.Hardware.Heartbeat
	_ = x.do(func() error {
		if x.LED != nil || !g.Config.Sensor.Heartbeat.Enabled {
			return nil
		}
		x.LED, x.err = led.Open(&g.Config.Sensor.Heartbeat, g.Log)
		return x.err
	})
	return x.LED, x.err
}

// producers builds one task per available sensor.
// Sensor open errors are reported and the sensor is left out.
func (g *Global) producers() []*producer.Task {
	tasks := make([]*producer.Task, 0, 3)
	ms := func(x int) time.Duration { return time.Duration(x) * time.Millisecond }
	sc := &g.Config.Sensor

	if src, err := g.LocationSource(); err != nil {
		g.Error(err, "sensor gps")
	} else if src != nil {
		tasks = append(tasks, producer.NewLocation(src, g.Store, ms(sc.GPS.IntervalMs), g.Log))
	}
	if src, err := g.EnvironmentSource(); err != nil {
		g.Error(err, "sensor env")
	} else if src != nil {
		tasks = append(tasks, producer.NewEnvironment(src, g.Store, ms(sc.Env.IntervalMs), g.Log))
	}
	if src, err := g.MotionSource(); err != nil {
		g.Error(err, "sensor accel")
	} else if src != nil {
		policy, _ := g.Config.Delivery.Policy()
		m := producer.Motion{
			ShockG:      g.Config.Alert.ShockThreshold(),
			MovingDelta: g.Config.Alert.MovingDelta(),
			Continuous:  policy == delivery.ShockContinuous,
		}
		tasks = append(tasks, producer.NewMotion(src, g.Store, m, ms(sc.Accel.IntervalMs), g.Log))
	}
	return tasks
}

func (g *Global) closeHardware() error {
	errs := make([]error, 0, 4)
	if x := &g.Hardware.Modem; x.Port != nil {
		errs = append(errs, x.Port.Close())
	}
	if x := &g.Hardware.Location; x.gps != nil {
		errs = append(errs, x.gps.Close())
	}
	if x := &g.Hardware.Motion; x.dev != nil {
		errs = append(errs, x.dev.Close())
	}
	if x := &g.Hardware.Heartbeat; x.LED != nil {
		errs = append(errs, x.LED.Close())
	}
	return errors.Annotate(helpers.FoldErrors(errs), "close hardware")
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
