package subcmd

import (
	"context"
	"testing"

	"github.com/cargowatch/telenode/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *state.Config, []string) error { return nil }
	mods := []Mod{{Name: "run", Main: noop}, {Name: "decode", Main: noop, NoConfig: true}}

	m, err := Parse("decode", mods)
	require.NoError(t, err)
	assert.Equal(t, "decode", m.Name)
	assert.True(t, m.NoConfig)

	_, err = Parse("", mods)
	assert.EqualError(t, err, "empty command")
	_, err = Parse("vend", mods)
	assert.EqualError(t, err, "unknown command='vend'")
	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{}}) })
}
