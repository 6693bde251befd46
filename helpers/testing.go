package helpers

import (
	"math/rand"
	"time"
)

func RandUnix() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// Shuffle randomizes table test order, hidden dependencies between cases show up.
func Shuffle[T any](xs []T) {
	RandUnix().Shuffle(len(xs), func(i, j int) { xs[i], xs[j] = xs[j], xs[i] })
}
