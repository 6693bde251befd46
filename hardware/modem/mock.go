package modem

// Public API to easy create modem stubs to test your code.
import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	modem_config "github.com/cargowatch/telenode/hardware/modem/config"
	"github.com/cargowatch/telenode/hardware/serial"
	"github.com/cargowatch/telenode/log2"
)

// FakeClock jumps forward on Sleep, so retry tests take no wall time.
type FakeClock struct {
	mu    sync.Mutex
	t     time.Time
	slept time.Duration
}

func NewFakeClock() *FakeClock { return &FakeClock{t: time.Unix(1600000000, 0)} }

func (self *FakeClock) Now() time.Time {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.t
}

func (self *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	self.mu.Lock()
	self.t = self.t.Add(d)
	self.slept += d
	self.mu.Unlock()
	return nil
}

func (self *FakeClock) Slept() time.Duration {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.slept
}

func NewTestModem(t testing.TB, r serial.Responder, c *modem_config.Config) (*Modem, *serial.MockPort, *FakeClock) {
	clock := NewFakeClock()
	port := serial.NewMockPort(r, clock.Now)
	m := New(port, c, log2.NewTest(t, log2.LDebug))
	m.SetClock(clock)
	m.SetRand(rand.New(rand.NewSource(1)))
	return m, port, clock
}
