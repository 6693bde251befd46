package state

import (
	"path/filepath"
	"sync"

	"github.com/cargowatch/telenode/hardware/accel"
	"github.com/cargowatch/telenode/hardware/env"
	"github.com/cargowatch/telenode/hardware/gps"
	"github.com/cargowatch/telenode/hardware/led"
	modem_config "github.com/cargowatch/telenode/hardware/modem/config"
	"github.com/cargowatch/telenode/helpers"
	"github.com/cargowatch/telenode/internal/alert"
	"github.com/cargowatch/telenode/internal/delivery"
	"github.com/cargowatch/telenode/internal/metrics"
	"github.com/cargowatch/telenode/internal/mirror"
	"github.com/cargowatch/telenode/internal/packet"
	"github.com/cargowatch/telenode/internal/persist"
	"github.com/cargowatch/telenode/log2"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
)

const DefaultDeviceID = 1

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	DeviceID int  `hcl:"device_id"`
	LogDebug bool `hcl:"log_debug"`

	Delivery delivery.Config    `hcl:"delivery"`
	Modem    modem_config.Config `hcl:"modem"`
	Alert    alert.Config        `hcl:"alert"`
	Store    struct {
		LockTimeoutMs int `hcl:"lock_timeout_ms"`
	} `hcl:"store"`
	Sensor struct {
		GPS       gps.Config   `hcl:"gps"`
		Env       env.Config   `hcl:"env"`
		Accel     accel.Config `hcl:"accel"`
		Heartbeat led.Config   `hcl:"heartbeat"`
	} `hcl:"sensor"`
	Mirror   mirror.Config   `hcl:"mirror"`
	Persist  persist.Config  `hcl:"persist"`
	Metrics  metrics.Config  `hcl:"metrics"`
	Identity packet.Identity `hcl:"identity"`

	_copy_guard sync.Mutex //nolint:unused
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) Device() uint8 { return uint8(helpers.IntDefault(c.DeviceID, DefaultDeviceID)) }

// Validate collects all violations, folded into one error.
func (c *Config) Validate() error {
	errs := make([]error, 0, 8)
	if c.DeviceID < 0 || c.DeviceID > 255 {
		errs = append(errs, errors.NotValidf("config: device_id=%d (0-255)", c.DeviceID))
	}
	for _, x := range []struct {
		name string
		t    alert.Threshold
	}{
		{"thermal", c.Alert.ThermalThreshold()},
		{"humidity", c.Alert.HumidityThreshold()},
	} {
		if !(x.t.Raise > x.t.Clear) {
			errs = append(errs, errors.NotValidf("config: alert.%s raise=%v must be above clear=%v", x.name, x.t.Raise, x.t.Clear))
		}
	}
	if _, err := c.Delivery.Policy(); err != nil {
		errs = append(errs, err)
	}
	if c.Modem.MaxAttempts < 0 {
		errs = append(errs, errors.NotValidf("config: modem.max_attempts=%d (must be >= 1)", c.Modem.MaxAttempts))
	}
	if c.Mirror.Enabled && c.Mirror.Broker == "" {
		errs = append(errs, errors.NotValidf("config: mirror.broker empty"))
	}
	for _, x := range []struct {
		name string
		v    int
	}{
		{"delivery.interval_ms", c.Delivery.IntervalMs},
		{"delivery.read_timeout_ms", c.Delivery.ReadTimeoutMs},
		{"modem.attempt_timeout_ms", c.Modem.AttemptTimeoutMs},
		{"modem.backoff_base_ms", c.Modem.BackoffBaseMs},
		{"modem.backoff_jitter_ms", c.Modem.BackoffJitterMs},
		{"alert.notify_interval_ms", c.Alert.NotifyIntervalMs},
		{"store.lock_timeout_ms", c.Store.LockTimeoutMs},
		{"sensor.gps.interval_ms", c.Sensor.GPS.IntervalMs},
		{"sensor.env.interval_ms", c.Sensor.Env.IntervalMs},
		{"sensor.accel.interval_ms", c.Sensor.Accel.IntervalMs},
		{"sensor.heartbeat.interval_ms", c.Sensor.Heartbeat.IntervalMs},
	} {
		if x.v < 0 {
			errs = append(errs, errors.NotValidf("config: %s=%d", x.name, x.v))
		}
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
