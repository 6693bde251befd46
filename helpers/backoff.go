package helpers

import (
	"math/rand"
	"sync"
	"time"
)

// Jitter is a fixed base delay plus uniform random extra in [0, Jitter].
// Used between transport retry attempts, so that several nodes failing
// at once do not retry in lockstep.
// Zero value returns zero delay.
type Jitter struct {
	Base   time.Duration
	Jitter time.Duration
	Res    time.Duration // delay resolution for nice logs, default=1ms

	lk   sync.Mutex
	Rand *rand.Rand // nil = seeded from clock on first use
}

func (self *Jitter) Delay() time.Duration {
	d := self.Base
	if self.Jitter > 0 {
		self.lk.Lock()
		if self.Rand == nil {
			self.Rand = RandUnix()
		}
		d += time.Duration(self.Rand.Int63n(int64(self.Jitter) + 1))
		self.lk.Unlock()
	}
	return self.round(d)
}

func (self *Jitter) round(d time.Duration) time.Duration {
	res := self.Res
	if res == 0 {
		res = 1 * time.Millisecond
	}
	return d / res * res
}
