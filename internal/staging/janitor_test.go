package staging

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep(ctx context.Context) int {
	s.calls.Add(1)
	return 1
}

func TestJanitorSweepsPeriodically(t *testing.T) {
	sweeper := &countingSweeper{}
	j := NewJanitor(sweeper, 5*time.Millisecond, zerolog.Nop())

	j.Start(context.Background())
	j.Start(context.Background())

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	j.Stop()

	after := sweeper.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, sweeper.calls.Load())
}

func TestJanitorStopWithoutStart(t *testing.T) {
	j := NewJanitor(&countingSweeper{}, time.Second, zerolog.Nop())
	assert.NotPanics(t, j.Stop)
}

func TestJanitorEvictsExpiredMemoryEntries(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestMemoryCache(t, defaultLimits)
	require.NoError(t, c.Add(ctx, "k", []byte("x"), "text/plain"))
	clock.Advance(time.Hour)

	j := NewJanitor(c, 5*time.Millisecond, zerolog.Nop())
	j.Start(ctx)
	defer j.Stop()

	require.Eventually(t, func() bool { return c.Stats().Entries == 0 }, time.Second, 5*time.Millisecond)
}
