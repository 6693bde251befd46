// Package env reads temperature and humidity exposed by Linux IIO
// drivers (dht11, hdc100x, sht3x) in milli-units.
package env

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
)

const (
	DefaultPath = "/sys/bus/iio/devices/iio:device0"

	fileTemperature = "in_temp_input"
	fileHumidity    = "in_humidityrelative_input"
)

type Config struct {
	Enabled    bool   `hcl:"enable"`
	IIOPath    string `hcl:"iio_path"`
	IntervalMs int    `hcl:"interval_ms"`
}

// Sensor is stateless, every call reads sysfs once.
// dht11 frequently fails with EIO, such reading is reported missing.
type Sensor struct {
	Log  *log2.Log
	path string
}

func New(c *Config, log *log2.Log) *Sensor {
	path := c.IIOPath
	if path == "" {
		path = DefaultPath
	}
	return &Sensor{Log: log, path: path}
}

func (self *Sensor) TemperatureC() (float32, bool) { return self.read(fileTemperature) }
func (self *Sensor) HumidityPct() (float32, bool)  { return self.read(fileHumidity) }

func (self *Sensor) read(name string) (float32, bool) {
	v, err := ReadMilli(filepath.Join(self.path, name))
	if err != nil {
		self.Log.Debugf("env %s err=%v", name, err)
		return 0, false
	}
	return v, true
}

func ReadMilli(path string) (float32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Trace(err)
	}
	s := strings.TrimSpace(string(b))
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Annotatef(err, "parse %q", s)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, errors.NotValidf("reading %q", s)
	}
	return float32(x / 1000), nil
}
