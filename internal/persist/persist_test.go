package persist

import (
	"encoding/binary"
	"testing"

	"github.com/cargowatch/telenode/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct{ v uint32 }

func (c *counter) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, c.v)
	return b, nil
}

func (c *counter) UnmarshalBinary(b []byte) error {
	if len(b) != 4 {
		return errors.NotValidf("counter len=%d", len(b))
	}
	c.v = binary.BigEndian.Uint32(b)
	return nil
}

func TestPersistRoundTrip(t *testing.T) {
	t.Parallel()

	log := log2.NewTest(t, log2.LDebug)
	root := t.TempDir()

	c1 := &counter{}
	p1 := &Persist{}
	require.NoError(t, p1.Init("seq", c1, root, log))
	assert.True(t, p1.Enabled())
	require.NoError(t, p1.Load())
	assert.Equal(t, uint32(0), c1.v)
	c1.v = 4242
	require.NoError(t, p1.Store())

	c2 := &counter{}
	p2 := &Persist{}
	require.NoError(t, p2.Init("seq", c2, root, log))
	require.NoError(t, p2.Load())
	assert.Equal(t, uint32(4242), c2.v)
}

func TestPersistDisabled(t *testing.T) {
	t.Parallel()

	p := &Persist{}
	require.NoError(t, p.Init("seq", nil, "", log2.NewTest(t, log2.LDebug)))
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Load())
	assert.NoError(t, p.Store())

	var nilp *Persist
	assert.False(t, nilp.Enabled())
	assert.NoError(t, nilp.Store())
}
