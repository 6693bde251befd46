package atomic_clock

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMillisWrap(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		begin    Millis
		now      Millis
		expected uint32
	}{
		{"plain", 1000, 31000, 30000},
		{"same", 5, 5, 0},
		{"wrap", math.MaxUint32 - 9, 20, 30},
		{"wrap-edge", math.MaxUint32, 0, 1},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, c.now.Sub(c.begin))
		})
	}
}

func TestManual(t *testing.T) {
	t.Parallel()

	m := NewManual(math.MaxUint32 - 1)
	begin := m.Now()
	m.Advance(3 * time.Millisecond)
	assert.Equal(t, Millis(1), m.Now())
	assert.Equal(t, uint32(3), m.Now().Sub(begin))
	assert.Equal(t, 3*time.Millisecond, Millis(3).Duration())

	a := Monotonic()
	time.Sleep(2 * time.Millisecond)
	assert.True(t, Monotonic().Sub(a) >= 1)
}
