package producer

import (
	"sync"

	"github.com/cargowatch/telenode/internal/snapshot"
)

// Public API to easy create sensor stubs.
type MockSource struct {
	sync.Mutex
	Location    snapshot.Location
	LocationOk  bool
	Temperature float32
	TempOk      bool
	Humidity    float32
	HumOk       bool
	Accel       [3]float32
	AccelOk     bool
	Reads       int
}

func (self *MockSource) ReadLocation() (snapshot.Location, bool) {
	self.Lock()
	defer self.Unlock()
	self.Reads++
	return self.Location, self.LocationOk
}

func (self *MockSource) TemperatureC() (float32, bool) {
	self.Lock()
	defer self.Unlock()
	self.Reads++
	return self.Temperature, self.TempOk
}

func (self *MockSource) HumidityPct() (float32, bool) {
	self.Lock()
	defer self.Unlock()
	return self.Humidity, self.HumOk
}

func (self *MockSource) ReadAcceleration() (x, y, z float32, ok bool) {
	self.Lock()
	defer self.Unlock()
	self.Reads++
	return self.Accel[0], self.Accel[1], self.Accel[2], self.AccelOk
}

func (self *MockSource) ReadCount() int {
	self.Lock()
	defer self.Unlock()
	return self.Reads
}
