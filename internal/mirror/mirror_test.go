package mirror

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cargowatch/telenode/internal/packet"
	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"
)

func newTestMirror(t testing.TB, pub Publisher) *Mirror {
	c := &Config{QueuePath: filepath.Join(t.TempDir(), "q")}
	m, err := New(c, pub, log2.NewTest(t, log2.LDebug))
	require.NoError(t, err)
	m.SetRetryDelay(time.Millisecond)
	return m
}

func recv(t testing.TB, ch <-chan []byte) packet.Diagnostic {
	select {
	case b := <-ch:
		var d packet.Diagnostic
		require.NoError(t, json.Unmarshal(b, &d))
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting publish")
	}
	return packet.Diagnostic{}
}

func TestMirrorOrder(t *testing.T) {
	t.Parallel()

	pub := NewMockPublisher(0)
	m := newTestMirror(t, pub)
	for i := uint16(1); i <= 3; i++ {
		m.Diagnostic(&packet.Diagnostic{Type: "telemetry", Sequence: i})
	}
	a := alive.NewAlive()
	m.Run(a)
	for i := uint16(1); i <= 3; i++ {
		assert.Equal(t, i, recv(t, pub.Ch).Sequence)
	}
	a.Stop()
	a.Wait()
	pub.Lock()
	assert.True(t, pub.Connected)
	assert.True(t, pub.Closed)
	pub.Unlock()
}

// Wait returning means broker connection is already closed.
func TestMirrorStopClosesPublisher(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		pub := NewMockPublisher(0)
		m := newTestMirror(t, pub)
		a := alive.NewAlive()
		m.Run(a)
		m.Diagnostic(&packet.Diagnostic{Sequence: uint16(i)})
		assert.Equal(t, uint16(i), recv(t, pub.Ch).Sequence)
		a.Stop()
		a.Wait()
		pub.Lock()
		closed := pub.Closed
		pub.Unlock()
		require.True(t, closed, "iteration=%d", i)
	}
}

func TestMirrorRetry(t *testing.T) {
	t.Parallel()

	pub := NewMockPublisher(2)
	m := newTestMirror(t, pub)
	var lk sync.Mutex
	results := map[string]int{}
	m.OnResult = func(r string) {
		lk.Lock()
		results[r]++
		lk.Unlock()
	}
	a := alive.NewAlive()
	m.Run(a)
	m.Diagnostic(&packet.Diagnostic{Sequence: 42})
	assert.Equal(t, uint16(42), recv(t, pub.Ch).Sequence)
	a.Stop()
	a.Wait()

	pub.Lock()
	assert.Equal(t, 3, pub.Attempts)
	assert.Len(t, pub.Sent, 1)
	pub.Unlock()
	lk.Lock()
	assert.Equal(t, 2, results[ResultRetry])
	assert.Equal(t, 1, results[ResultSent])
	lk.Unlock()
}

func TestMirrorSurvivesRestart(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "q")
	log := log2.NewTest(t, log2.LDebug)
	m1, err := New(&Config{QueuePath: path}, NewMockPublisher(0), log)
	require.NoError(t, err)
	m1.Diagnostic(&packet.Diagnostic{Sequence: 9})
	m1.close()

	pub := NewMockPublisher(0)
	m2, err := New(&Config{QueuePath: path}, pub, log)
	require.NoError(t, err)
	a := alive.NewAlive()
	m2.Run(a)
	assert.Equal(t, uint16(9), recv(t, pub.Ch).Sequence)
	a.Stop()
	a.Wait()
}

func TestMirrorConfigInvalid(t *testing.T) {
	t.Parallel()

	_, err := New(&Config{}, NewMockPublisher(0), log2.NewTest(t, log2.LDebug))
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err))
}
