package state

import (
	"context"
	"strings"
	"testing"

	"github.com/cargowatch/telenode/hardware/serial"
	"github.com/cargowatch/telenode/internal/delivery"
	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, *Global)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, g *Global) {
			assert.Equal(t, uint8(DefaultDeviceID), g.Config.Device())
			assert.Equal(t, delivery.DefaultInterval, g.Scheduler.Interval())
			assert.Equal(t, 3, g.Modem.MaxAttempts())
			assert.Nil(t, g.Mirror)
			assert.Len(t, g.Producers, 0)
		}, ""},

		{"modem",
			`device_id = 7 modem { device = "/dev/shmoo" max_attempts = 5 ack_token = "TX OK" }`,
			func(t testing.TB, g *Global) {
				assert.Equal(t, uint8(7), g.Config.Device())
				assert.Equal(t, "/dev/shmoo", g.Config.Modem.Device)
				assert.Equal(t, "TX OK", g.Config.Modem.AckToken)
				assert.Equal(t, 5, g.Modem.MaxAttempts())
			},
			"",
		},

		{"alert-delivery", `
alert {
	thermal { raise = 40.0 clear = 35.5 }
	warmup_samples = -1
}
delivery { interval_ms = 500 shock_policy = "continuous" }`,
			func(t testing.TB, g *Global) {
				th := g.Config.Alert.ThermalThreshold()
				assert.Equal(t, 40.0, th.Raise)
				assert.Equal(t, 35.5, th.Clear)
				assert.Equal(t, 80.0, g.Config.Alert.HumidityThreshold().Raise)
				assert.Equal(t, uint32(0), g.Config.Alert.Warmup())
				assert.Equal(t, int64(500), g.Scheduler.Interval().Milliseconds())
			},
			"",
		},

		{"identity-sensor", `
identity { vehicle_id = "TRK-9" }
sensor {
	env { enable = false iio_path = "/sys/bus/iio/devices/iio:device1" }
	heartbeat { line = 17 }
}`,
			func(t testing.TB, g *Global) {
				assert.Equal(t, "TRK-9", g.Config.Identity.VehicleID)
				assert.Equal(t, "/sys/bus/iio/devices/iio:device1", g.Config.Sensor.Env.IIOPath)
				assert.Equal(t, 17, g.Config.Sensor.Heartbeat.Line)
			},
			"",
		},

		{"include-normalize", `
device_id = 2
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "device-9" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, g *Global) {
				assert.Equal(t, uint8(9), g.Config.Device())
			}, ""},

		{"include-overwrites", `
device_id = 1
include "device-9" {}`,
			func(t testing.TB, g *Global) {
				assert.Equal(t, uint8(9), g.Config.Device())
			}, ""},

		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-hysteresis", `alert { humidity { raise = 70.0 clear = 75.0 } }`, nil, "alert.humidity raise=70 must be above clear=75"},
		{"error-policy", `delivery { shock_policy = "sometimes" }`, nil, `delivery.shock_policy="sometimes" not valid`},
		{"error-attempts", `modem { max_attempts = -1 }`, nil, "modem.max_attempts=-1"},
		{"error-device-id", `device_id = 300`, nil, "device_id=300"},
		{"error-interval", `delivery { interval_ms = -5 }`, nil, "delivery.interval_ms=-5"},
		{"error-mirror", `mirror { enable = true }`, nil, "mirror.broker empty"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			ctx, g := NewContext(log)
			g.Hardware.Modem.Port = serial.NewMockPort(nil, nil)

			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"empty":        "",
				"device-9":     "device_id = 9",
				"error-syntax": "hello",
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if err == nil {
				err = g.Init(ctx, cfg)
			}
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, GetGlobal(ctx))
				}
			} else {
				if err == nil {
					t.Fatalf("error expected='%s' actual=nil", c.expectErr)
				}
				if !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		t.Run(c.name, mkCheck(c))
	}
}

func TestValidateFolds(t *testing.T) {
	t.Parallel()

	c := &Config{DeviceID: -1}
	c.Modem.MaxAttempts = -2
	c.Alert.Thermal.Raise, c.Alert.Thermal.Clear = 10, 20
	err := c.Validate()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "device_id=-1")
		assert.Contains(t, err.Error(), "max_attempts=-2")
		assert.Contains(t, err.Error(), "alert.thermal")
	}
}

func TestGetGlobalPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { GetGlobal(context.Background()) })
}

func TestFunctionalBundled(t *testing.T) {
	// not Parallel
	t.Logf("this test needs OS open|read|stat access to file `../../telenode.hcl`")

	log := log2.NewTest(t, log2.LDebug)
	c := MustReadConfig(log, NewOsFullReader(), "../../telenode.hcl")
	assert.NoError(t, c.Validate())
	assert.Equal(t, uint8(1), c.Device())
}
