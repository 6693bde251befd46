package snapshot

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cargowatch/telenode/helpers/atomic_clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32(f float32) *float32 { return &f }

func TestPartialUpdates(t *testing.T) {
	t.Parallel()

	clock := atomic_clock.NewManual(100)
	s := NewStore(DefaultLockTimeout, clock.Now)
	assert.Equal(t, Snapshot{}, s.ReadConsistent())

	require.True(t, s.UpdateLocation(Location{Latitude: 21.028511, Longitude: 105.804817, SatelliteCount: 7, SpeedKmph: 42.5}))
	clock.Set(200)
	require.True(t, s.UpdateEnvironment(f32(31.5), nil))
	require.True(t, s.UpdateEnvironment(nil, f32(77)))
	require.True(t, s.UpdateEnvironment(nil, nil))
	require.True(t, s.UpdateMotion(1.02, false, false))

	snap := s.ReadConsistent()
	assert.Equal(t, Snapshot{
		Latitude:           21.028511,
		Longitude:          105.804817,
		SatelliteCount:     7,
		GroundSpeed:        42.5,
		TemperatureC:       31.5,
		HumidityPct:        77,
		AccelerationG:      1.02,
		CapturedAt:         200,
		EnvironmentSamples: 2,
	}, snap)
}

func TestShockOneShot(t *testing.T) {
	t.Parallel()

	s := NewStore(DefaultLockTimeout, nil)
	assert.False(t, s.TakeShock())
	s.UpdateMotion(3.1, true, true)
	// later calm reading must not clear the flag
	s.UpdateMotion(1.0, false, false)
	assert.True(t, s.ReadConsistent().ShockDetected)
	assert.True(t, s.TakeShock())
	assert.False(t, s.TakeShock())

	s.UpdateMotion(2.6, true, true)
	snap := s.ReadTakeShock()
	assert.True(t, snap.ShockDetected)
	assert.False(t, s.ReadTakeShock().ShockDetected)
}

func TestLockTimeoutSkips(t *testing.T) {
	t.Parallel()

	s := NewStore(2*time.Millisecond, nil)
	holding := make(chan struct{})
	release := make(chan struct{})
	go s.Update(func(*Snapshot) {
		close(holding)
		<-release
	})
	<-holding
	assert.False(t, s.UpdateLocation(Location{Latitude: 1}))
	assert.False(t, s.UpdateMotion(5, true, false))
	_, ok := s.TryRead(time.Millisecond, true)
	assert.False(t, ok)
	assert.Equal(t, uint64(3), s.Skipped())
	close(release)

	assert.Eventually(t, func() bool { return s.UpdateLocation(Location{Latitude: 1}) }, time.Second, time.Millisecond)
	snap, ok := s.TryRead(time.Millisecond, false)
	require.True(t, ok)
	assert.Equal(t, 1.0, snap.Latitude)
	assert.False(t, snap.ShockDetected)

	require.True(t, s.UpdateMotion(3, true, true))
	snap, ok = s.TryRead(time.Millisecond, true)
	require.True(t, ok)
	assert.True(t, snap.ShockDetected)
	assert.False(t, s.ReadConsistent().ShockDetected)
}

// Every writer stamps all fields of its group with the same counter,
// any read must see each group whole.
func TestLinearizable(t *testing.T) {
	t.Parallel()

	const n = 2000
	s := NewStore(time.Second, nil)
	var wg sync.WaitGroup
	var stop int32
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			s.UpdateLocation(Location{Latitude: float64(i), Longitude: -float64(i), SatelliteCount: uint32(i), SpeedKmph: float32(i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			v := float32(i)
			s.Update(func(snap *Snapshot) {
				snap.TemperatureC = v
				snap.HumidityPct = v
				snap.EnvironmentSamples = uint32(i)
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			s.UpdateMotion(float32(i), i%2 == 0, i%2 == 0)
		}
	}()

	readErrs := int32(0)
	rwg := sync.WaitGroup{}
	for r := 0; r < 4; r++ {
		rwg.Add(1)
		go func() {
			defer rwg.Done()
			lastSats := uint32(0)
			for atomic.LoadInt32(&stop) == 0 {
				snap := s.ReadConsistent()
				if snap.Latitude != -snap.Longitude || float64(snap.SatelliteCount) != snap.Latitude ||
					float64(snap.GroundSpeed) != snap.Latitude {
					atomic.AddInt32(&readErrs, 1)
				}
				if snap.TemperatureC != snap.HumidityPct || float32(snap.EnvironmentSamples) != snap.TemperatureC {
					atomic.AddInt32(&readErrs, 1)
				}
				if snap.IsMoving != (math.Mod(float64(snap.AccelerationG), 2) == 0 && snap.AccelerationG != 0) {
					atomic.AddInt32(&readErrs, 1)
				}
				if snap.SatelliteCount < lastSats {
					atomic.AddInt32(&readErrs, 1)
				}
				lastSats = snap.SatelliteCount
			}
		}()
	}
	wg.Wait()
	atomic.StoreInt32(&stop, 1)
	rwg.Wait()

	assert.Equal(t, int32(0), atomic.LoadInt32(&readErrs))
	assert.Equal(t, uint64(0), s.Skipped())
	final := s.ReadConsistent()
	assert.Equal(t, uint32(n), final.SatelliteCount)
	assert.Equal(t, float32(n), final.TemperatureC)
	assert.Equal(t, float32(n), final.AccelerationG)
}
