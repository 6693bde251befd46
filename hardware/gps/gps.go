// Package gps reads NMEA 0183 position from serial GPS receiver.
package gps

import (
	"bytes"
	"sync"

	"github.com/adrianmo/go-nmea"
	"github.com/cargowatch/telenode/hardware/serial"
	"github.com/cargowatch/telenode/internal/snapshot"
	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
)

const (
	DefaultDevice = "/dev/ttyS2"
	DefaultBaud   = 9600

	KnotToKmph = 1.852
	maxLine    = 128
)

type Config struct {
	Enabled    bool   `hcl:"enable"`
	Device     string `hcl:"device"`
	Baud       int    `hcl:"baud"`
	IntervalMs int    `hcl:"interval_ms"`
}

// Receiver keeps last position from RMC and satellite count from GGA.
type Receiver struct {
	Log  *log2.Log
	lk   sync.Mutex
	port serial.Port
	line []byte
	buf  [256]byte
	fix  bool
	loc  snapshot.Location
}

func Open(c *Config, log *log2.Log) (*Receiver, error) {
	device := c.Device
	if device == "" {
		device = DefaultDevice
	}
	baud := c.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(device, baud)
	if err != nil {
		return nil, errors.Annotatef(err, "gps open %s", device)
	}
	return New(port, log), nil
}

func New(port serial.Port, log *log2.Log) *Receiver {
	return &Receiver{Log: log, port: port}
}

// ReadLocation consumes all pending input and reports last valid fix.
func (self *Receiver) ReadLocation() (snapshot.Location, bool) {
	self.lk.Lock()
	defer self.lk.Unlock()
	for {
		n, err := self.port.ReadAvailable(self.buf[:])
		if err != nil {
			self.Log.Errorf("gps read err=%v", err)
			break
		}
		if n == 0 {
			break
		}
		self.consume(self.buf[:n])
	}
	return self.loc, self.fix
}

func (self *Receiver) consume(b []byte) {
	for len(b) > 0 {
		idx := bytes.IndexByte(b, '\n')
		if idx < 0 {
			self.line = append(self.line, b...)
			if len(self.line) > maxLine {
				self.line = self.line[:0]
			}
			return
		}
		self.line = append(self.line, b[:idx]...)
		b = b[idx+1:]
		line := string(bytes.TrimSpace(self.line))
		self.line = self.line[:0]
		if line == "" {
			continue
		}
		if err := self.Feed(line); err != nil {
			self.Log.Debugf("gps line=%q err=%v", line, err)
		}
	}
}

// Feed applies one NMEA sentence. Caller must hold lock or own Receiver.
func (self *Receiver) Feed(line string) error {
	s, err := nmea.Parse(line)
	if err != nil {
		return errors.Trace(err)
	}
	switch m := s.(type) {
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			self.fix = false
			return nil
		}
		self.fix = true
		self.loc.Latitude = m.Latitude
		self.loc.Longitude = m.Longitude
		self.loc.SpeedKmph = float32(m.Speed * KnotToKmph)
	case nmea.GGA:
		self.loc.SatelliteCount = uint32(m.NumSatellites)
		if m.FixQuality == nmea.Invalid {
			self.fix = false
		}
	}
	return nil
}

func (self *Receiver) Close() error { return self.port.Close() }
