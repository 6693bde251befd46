package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) Now() time.Time { return f.t }

func TestMockPort(t *testing.T) {
	t.Parallel()

	clock := &fakeNow{t: time.Unix(1000, 0)}
	p := NewMockPort(func(line string) []Reply {
		if line == "AT" {
			return []Reply{{After: 10 * time.Millisecond, Data: "O"}, {After: 20 * time.Millisecond, Data: "K\r\n"}}
		}
		return nil
	}, clock.Now)

	n, err := p.Write([]byte("A"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, _ = p.Write([]byte("T\r\nAT+X\r\n"))
	assert.Equal(t, []string{"AT", "AT+X"}, p.Lines())

	buf := make([]byte, 16)
	n, err = p.ReadAvailable(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.t = clock.t.Add(15 * time.Millisecond)
	n, _ = p.ReadAvailable(buf)
	assert.Equal(t, "O", string(buf[:n]))

	clock.t = clock.t.Add(15 * time.Millisecond)
	n, _ = p.ReadAvailable(buf)
	assert.Equal(t, "K\r\n", string(buf[:n]))
}

func TestMockPortDiscard(t *testing.T) {
	t.Parallel()

	clock := &fakeNow{t: time.Unix(1000, 0)}
	p := NewMockPort(ScriptResponder(Reply{After: time.Second, Data: "late"}), clock.Now)
	p.Push("+EVT:stale\r\n")
	_, _ = p.Write([]byte("AT\r\n"))
	require.NoError(t, p.Discard())

	buf := make([]byte, 16)
	n, _ := p.ReadAvailable(buf)
	assert.Equal(t, 0, n)
	clock.t = clock.t.Add(time.Second)
	n, _ = p.ReadAvailable(buf)
	assert.Equal(t, "late", string(buf[:n]))

	require.NoError(t, p.Close())
	_, err := p.ReadAvailable(buf)
	assert.Equal(t, ErrClosed, err)
}

func TestOpenUnsupportedBaud(t *testing.T) {
	t.Parallel()

	_, err := Open("/dev/null", 1234)
	assert.Error(t, err)
}

func TestParseReplies(t *testing.T) {
	t.Parallel()

	rs := ParseReplies(`d40ms,s+EVT:TX_DONE\r\n d3ms,b4f4b0d0a s`)
	require.Len(t, rs, 3)
	assert.Equal(t, Reply{After: 40 * time.Millisecond, Data: "+EVT:TX_DONE\r\n"}, rs[0])
	assert.Equal(t, Reply{After: 3 * time.Millisecond, Data: "OK\r\n"}, rs[1])
	assert.Equal(t, Reply{}, rs[2])
	assert.Panics(t, func() { ParseReplies("x1") })
}
