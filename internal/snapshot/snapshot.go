// Package snapshot holds the latest known value of every measured field.
// Producers apply partial updates, scheduler reads whole copies,
// both under one lock so readers never see a mix of two updates.
package snapshot

import (
	"sync/atomic"
	"time"

	"github.com/cargowatch/telenode/helpers/atomic_clock"
	"github.com/cargowatch/telenode/helpers/msync"
)

const DefaultLockTimeout = 1 * time.Millisecond

type Snapshot struct {
	Latitude       float64
	Longitude      float64
	SatelliteCount uint32
	GroundSpeed    float32 // km/h
	TemperatureC   float32
	HumidityPct    float32
	AccelerationG  float32
	ShockDetected  bool
	IsMoving       bool
	CapturedAt     atomic_clock.Millis

	// count of accepted environment readings since start
	EnvironmentSamples uint32
}

type Location struct {
	Latitude       float64
	Longitude      float64
	SatelliteCount uint32
	SpeedKmph      float32
}

type Store struct {
	skipped     uint64 // atomic, first for alignment on 32-bit
	lk          msync.Lock
	lockTimeout time.Duration
	now         atomic_clock.MillisFunc
	cur         Snapshot
}

func NewStore(lockTimeout time.Duration, now atomic_clock.MillisFunc) *Store {
	if now == nil {
		now = atomic_clock.Monotonic
	}
	return &Store{
		lk:          msync.NewLock(),
		lockTimeout: lockTimeout,
		now:         now,
	}
}

// Update applies f to the record under lock and stamps CapturedAt.
// Waits at most lock timeout, on contention skips the update,
// counts it and returns false.
// f must only touch fields owned by the caller and must not block.
func (self *Store) Update(f func(*Snapshot)) bool {
	if !self.lk.TryLock(self.lockTimeout) {
		atomic.AddUint64(&self.skipped, 1)
		return false
	}
	f(&self.cur)
	self.cur.CapturedAt = self.now()
	self.lk.Unlock()
	return true
}

func (self *Store) UpdateLocation(l Location) bool {
	return self.Update(func(s *Snapshot) {
		s.Latitude = l.Latitude
		s.Longitude = l.Longitude
		s.SatelliteCount = l.SatelliteCount
		s.GroundSpeed = l.SpeedKmph
	})
}

// UpdateEnvironment takes nil for missing reading, last good value stays.
func (self *Store) UpdateEnvironment(temperatureC, humidityPct *float32) bool {
	if temperatureC == nil && humidityPct == nil {
		return true
	}
	return self.Update(func(s *Snapshot) {
		if temperatureC != nil {
			s.TemperatureC = *temperatureC
		}
		if humidityPct != nil {
			s.HumidityPct = *humidityPct
		}
		s.EnvironmentSamples++
	})
}

// UpdateMotion only arms ShockDetected, clearing is TakeShock job.
func (self *Store) UpdateMotion(accelerationG float32, shock, moving bool) bool {
	return self.Update(func(s *Snapshot) {
		s.AccelerationG = accelerationG
		s.IsMoving = moving
		if shock {
			s.ShockDetected = true
		}
	})
}

// ReadConsistent blocks until lock is available.
func (self *Store) ReadConsistent() Snapshot {
	self.lk.Lock()
	s := self.cur
	self.lk.Unlock()
	return s
}

// ReadTakeShock is ReadConsistent and TakeShock in one critical section.
// Returned copy has the flag as it was before clearing.
func (self *Store) ReadTakeShock() Snapshot {
	self.lk.Lock()
	s := self.read(true)
	self.lk.Unlock()
	return s
}

// TryRead waits at most timeout for the lock, on contention counts a skip
// and returns false. With takeShock the one-shot flag is cleared in the same
// critical section.
func (self *Store) TryRead(timeout time.Duration, takeShock bool) (Snapshot, bool) {
	if !self.lk.TryLock(timeout) {
		atomic.AddUint64(&self.skipped, 1)
		return Snapshot{}, false
	}
	s := self.read(takeShock)
	self.lk.Unlock()
	return s, true
}

func (self *Store) read(takeShock bool) Snapshot {
	s := self.cur
	if takeShock {
		self.cur.ShockDetected = false
	}
	return s
}

// TakeShock reads and clears one-shot flag in one critical section,
// so shock arriving concurrently is either taken now or kept for next time.
func (self *Store) TakeShock() bool {
	self.lk.Lock()
	shock := self.cur.ShockDetected
	self.cur.ShockDetected = false
	self.lk.Unlock()
	return shock
}

// Skipped is total count of updates and reads dropped on lock timeout.
func (self *Store) Skipped() uint64 { return atomic.LoadUint64(&self.skipped) }
