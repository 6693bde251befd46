package msync

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLock(t *testing.T) {
	t.Parallel()

	l := NewLock()
	assert.True(t, l.TryLock(0))
	assert.False(t, l.TryLock(0))
	begin := time.Now()
	assert.False(t, l.TryLock(10*time.Millisecond))
	assert.True(t, time.Since(begin) >= 10*time.Millisecond)
	l.Unlock()

	l.Lock()
	go func() {
		time.Sleep(5 * time.Millisecond)
		l.Unlock()
	}()
	assert.True(t, l.TryLock(time.Second))
	l.Unlock()
}

func TestLockExclusive(t *testing.T) {
	t.Parallel()

	l := NewLock()
	counter := 0
	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock()
			counter++
			l.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestSignalBuffered(t *testing.T) {
	t.Parallel()

	s := NewSignalBuffered()
	s.Set()
	s.Set()
	s.Wait()
	select {
	case <-s:
		t.Fatal("second Set must coalesce")
	default:
	}
}
