package led

import (
	"sync"
	"testing"
	"time"

	"github.com/cargowatch/telenode/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"
	gpio "github.com/temoto/gpio-cdev-go"
	gpio_mock "github.com/temoto/gpio-cdev-go/mock"
)

type recorder struct {
	sync.Mutex
	values []byte
}

func (self *recorder) set(v byte) {
	self.Lock()
	self.values = append(self.values, v)
	self.Unlock()
}

func (self *recorder) get() []byte {
	self.Lock()
	defer self.Unlock()
	return append([]byte(nil), self.values...)
}

func newMockLines(rec *recorder) *gpio_mock.MockLines {
	lines := &gpio_mock.MockLines{}
	lines.On("SetFunc", uint32(DefaultLine)).Return(gpio.LineSetFunc(rec.set))
	lines.On("Flush").Return(nil)
	lines.On("Close").Return(nil)
	return lines
}

func TestToggle(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	lines := newMockLines(rec)
	h := New(lines, DefaultLine, 0, log2.NewTest(t, log2.LDebug))
	assert.Equal(t, DefaultInterval, h.interval)
	require.NoError(t, h.Toggle())
	require.NoError(t, h.Toggle())
	require.NoError(t, h.Toggle())
	assert.Equal(t, []byte{1, 0, 1}, rec.get())
	require.NoError(t, h.Close())
	lines.AssertNumberOfCalls(t, "Flush", 3)
	lines.AssertCalled(t, "Close")
}

func TestRunLeavesLow(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	h := New(newMockLines(rec), DefaultLine, time.Millisecond, log2.NewTest(t, log2.LDebug))
	a := alive.NewAlive()
	go h.Run(a)
	require.Eventually(t, func() bool { return len(rec.get()) >= 4 }, 5*time.Second, time.Millisecond)
	a.Stop()
	a.Wait()
	vs := rec.get()
	assert.Equal(t, byte(0), vs[len(vs)-1])
}
