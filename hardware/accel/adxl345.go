// Package accel reads ADXL345 3-axis accelerometer over I2C.
package accel

import (
	"encoding/binary"
	"sync"

	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"
)

const (
	DefaultAddress = 0x53
	// full resolution mode scale
	GPerLSB = 0.0039

	regDataFormat = 0x31
	regPowerCtl   = 0x2d
	regIntEnable  = 0x2e
	regDataX0     = 0x32

	dataFormatFullRes16g = 0x0b
	powerCtlMeasure      = 0x08
	intEnableDataReady   = 0x80
)

type Config struct {
	Enabled    bool   `hcl:"enable"`
	Bus        string `hcl:"i2c_bus"`
	Address    int    `hcl:"address"`
	IntervalMs int    `hcl:"interval_ms"`
}

type Device struct {
	Log    *log2.Log
	lk     sync.Mutex
	dev    *i2c.Dev
	closer i2c.BusCloser
}

// Open initializes periph host drivers and opens named bus ("" for first).
func Open(c *Config, log *log2.Log) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}
	bus, err := i2creg.Open(c.Bus)
	if err != nil {
		return nil, errors.Annotatef(err, "accel i2c bus=%q", c.Bus)
	}
	addr := c.Address
	if addr == 0 {
		addr = DefaultAddress
	}
	d, err := New(bus, uint16(addr), log)
	if err != nil {
		bus.Close()
		return nil, err
	}
	d.closer = bus
	return d, nil
}

// New configures measurement mode on already opened bus.
func New(bus i2c.Bus, addr uint16, log *log2.Log) (*Device, error) {
	self := &Device{
		Log: log,
		dev: &i2c.Dev{Bus: bus, Addr: addr},
	}
	regs := [][2]byte{
		{regDataFormat, dataFormatFullRes16g},
		{regPowerCtl, powerCtlMeasure},
		{regIntEnable, intEnableDataReady},
	}
	for _, w := range regs {
		if err := self.dev.Tx(w[:], nil); err != nil {
			return nil, errors.Annotatef(err, "accel init reg=%02x", w[0])
		}
	}
	return self, nil
}

func (self *Device) Read() (x, y, z float32, err error) {
	var buf [6]byte
	self.lk.Lock()
	err = self.dev.Tx([]byte{regDataX0}, buf[:])
	self.lk.Unlock()
	if err != nil {
		return 0, 0, 0, errors.Annotate(err, "accel read")
	}
	x = float32(int16(binary.LittleEndian.Uint16(buf[0:]))) * GPerLSB
	y = float32(int16(binary.LittleEndian.Uint16(buf[2:]))) * GPerLSB
	z = float32(int16(binary.LittleEndian.Uint16(buf[4:]))) * GPerLSB
	return x, y, z, nil
}

// ReadAcceleration adapts Read for motion producer.
func (self *Device) ReadAcceleration() (x, y, z float32, ok bool) {
	x, y, z, err := self.Read()
	if err != nil {
		self.Log.Debug(err)
		return 0, 0, 0, false
	}
	return x, y, z, true
}

func (self *Device) Close() error {
	if self.closer == nil {
		return nil
	}
	return self.closer.Close()
}
