package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/LingoNews/internal/config"
)

type namedSource string

func (n namedSource) Name() string { return string(n) }

func (n namedSource) Crawl(context.Context, int, EmitFunc) (Stats, error) { return Stats{}, nil }

func testRegistry() *Registry {
	r := NewRegistry()
	r.Register(config.ModeTraditional, namedSource("BBC"))
	r.Register(config.ModeTraditional, namedSource("CNN"))
	r.Register(config.ModeFundus, namedSource("us.CNN"))
	return r
}

func names(srcs []Source) []string {
	out := make([]string, 0, len(srcs))
	for _, s := range srcs {
		out = append(out, s.Name())
	}
	return out
}

func TestRegistryResolveAll(t *testing.T) {
	r := testRegistry()

	srcs, err := r.Resolve([]string{"all"}, config.ModeTraditional)
	require.NoError(t, err)
	assert.Equal(t, []string{"BBC", "CNN"}, names(srcs))

	srcs, err = r.Resolve([]string{"all"}, config.ModeFundus)
	require.NoError(t, err)
	assert.Equal(t, []string{"us.CNN"}, names(srcs))

	srcs, err = r.Resolve([]string{"all"}, config.ModeBoth)
	require.NoError(t, err)
	assert.Equal(t, []string{"BBC", "CNN", "us.CNN"}, names(srcs))
}

func TestRegistryResolveListKeepsOrderAndDedups(t *testing.T) {
	srcs, err := testRegistry().Resolve([]string{"cnn,BBC", "CNN"}, config.ModeTraditional)
	require.NoError(t, err)
	assert.Equal(t, []string{"CNN", "BBC"}, names(srcs))
}

func TestRegistryResolveErrors(t *testing.T) {
	r := testRegistry()
	cases := []struct {
		ids  []string
		mode config.Mode
	}{
		{[]string{"Nope"}, config.ModeTraditional},
		{[]string{"us.CNN"}, config.ModeTraditional},
		{[]string{"BBC"}, config.ModeFundus},
		{nil, config.ModeTraditional},
		{[]string{" , "}, config.ModeBoth},
	}
	for _, c := range cases {
		_, err := r.Resolve(c.ids, c.mode)
		var ce *config.ConfigError
		assert.True(t, errors.As(err, &ce), "ids %v mode %s: got %v", c.ids, c.mode, err)
	}
}

func TestRegistryAllWithEmptyMode(t *testing.T) {
	r := NewRegistry()
	r.Register(config.ModeFundus, namedSource("uk.BBC"))
	_, err := r.Resolve([]string{"all"}, config.ModeTraditional)
	var ce *config.ConfigError
	assert.True(t, errors.As(err, &ce))
}
