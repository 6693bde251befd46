package helpers

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		j      *Jitter
		lo, hi time.Duration
	}{
		{"zero", &Jitter{}, 0, 0},
		{"base-only", &Jitter{Base: time.Second}, time.Second, time.Second},
		{"default", &Jitter{Base: time.Second, Jitter: 500 * time.Millisecond}, time.Second, 1500 * time.Millisecond},
		{"seeded", &Jitter{Base: 10 * time.Millisecond, Jitter: 5 * time.Millisecond, Rand: rand.New(rand.NewSource(1))}, 10 * time.Millisecond, 15 * time.Millisecond},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			for i := 0; i < 200; i++ {
				d := c.j.Delay()
				assert.GreaterOrEqual(t, d, c.lo)
				assert.LessOrEqual(t, d, c.hi)
				assert.Equal(t, time.Duration(0), d%time.Millisecond)
			}
		})
	}
}
