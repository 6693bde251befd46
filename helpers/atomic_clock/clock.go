// Package atomic_clock is the node wide monotonic millisecond counter.
// Values wrap at 2^32, use for time accounting only.
package atomic_clock

import (
	"sync/atomic"
	"time"
)

// Millis is milliseconds since process start modulo 2^32.
// Compare only through Sub, plain < breaks after ~49.7 days.
type Millis uint32

// Sub returns m-begin with wraparound.
func (m Millis) Sub(begin Millis) uint32 { return uint32(m - begin) }

func (m Millis) Duration() time.Duration { return time.Duration(m) * time.Millisecond }

type MillisFunc func() Millis

var start = time.Now()

// Monotonic uses Go runtime monotonic clock reading of process start.
func Monotonic() Millis {
	return Millis(uint32(time.Since(start) / time.Millisecond))
}

// Manual is settable Millis source for tests.
type Manual struct{ v uint32 }

func NewManual(v Millis) *Manual          { return &Manual{v: uint32(v)} }
func (m *Manual) Now() Millis             { return Millis(atomic.LoadUint32(&m.v)) }
func (m *Manual) Set(v Millis)            { atomic.StoreUint32(&m.v, uint32(v)) }
func (m *Manual) Advance(d time.Duration) { atomic.AddUint32(&m.v, uint32(d/time.Millisecond)) }
