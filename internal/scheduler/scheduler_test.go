package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerTriggerSkipsWhileRunning(t *testing.T) {
	block := make(chan struct{})
	f := newFixture(t, Options{}, &fakeSource{name: "BBC", items: 2, block: block})

	s, err := New("@every 1h", f.coord, request(5, "BBC"), zerolog.Nop())
	require.NoError(t, err)
	s.StartupDelay = 0
	s.Start()
	defer s.Stop()

	assert.True(t, s.Trigger(s.Request()))
	assert.True(t, s.Running())
	assert.False(t, s.Trigger(s.Request()), "second trigger while running is refused")

	close(block)
	require.Eventually(t, func() bool { return !s.Running() }, 5*time.Second, 10*time.Millisecond)

	last := s.LastRun()
	require.NotNil(t, last)
	assert.Equal(t, 2, last.Totals.Saved)
}

func TestSchedulerStopCancelsRun(t *testing.T) {
	f := newFixture(t, Options{}, &fakeSource{name: "BBC", items: 2, block: make(chan struct{})})

	s, err := New("@every 1h", f.coord, request(5, "BBC"), zerolog.Nop())
	require.NoError(t, err)
	s.StartupDelay = 0
	s.Start()

	require.True(t, s.Trigger(s.Request()))
	s.Stop()

	assert.False(t, s.Running())
	require.NotNil(t, s.LastRun())
	assert.True(t, s.LastRun().Cancelled)
}

func TestSchedulerInvalidSpec(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := New("not a cron spec", f.coord, request(5, "all"), zerolog.Nop())
	assert.Error(t, err)
}
