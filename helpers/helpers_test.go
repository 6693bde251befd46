package helpers

import (
	"fmt"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))
	err := FoldErrors([]error{fmt.Errorf("modem"), nil, fmt.Errorf("gps")})
	require.Error(t, err)
	assert.Equal(t, "modem\ngps", err.Error())

	single := errors.Timeoutf("modem ack")
	assert.Equal(t, single, FoldErrors([]error{nil, single}))
}

func TestShuffle(t *testing.T) {
	t.Parallel()

	xs := []int{1, 2, 3, 4, 5, 6, 7, 8}
	Shuffle(xs)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, xs)
}

func TestUpperHex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", UpperHex(nil))
	assert.Equal(t, "01ABFF", UpperHex(MustHex("01abff")))
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3*time.Second, IntMillisDefault(0, 3*time.Second))
	assert.Equal(t, 250*time.Millisecond, IntMillisDefault(250, 3*time.Second))
	assert.Equal(t, 5*time.Second, IntSecondDefault(5, time.Second))
	assert.Equal(t, 3, IntDefault(0, 3))
	assert.Equal(t, 2.5, FloatDefault(0, 2.5))
	assert.Equal(t, 1.5, FloatDefault(1.5, 2.5))
}
