package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/infogrid/netmesh/log/logtest"
)

func newTestScheduler(tb testing.TB, opts ...Opt) (*Scheduler, clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	s := New(append([]Opt{WithLogger(logtest.New(tb)), WithClock(clock)}, opts...)...)
	tb.Cleanup(s.Close)
	return s, clock
}

func receive(tb testing.TB, ch <-chan struct{}) {
	tb.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		require.FailNow(tb, "timed out")
	}
}

func TestGo(t *testing.T) {
	s, _ := newTestScheduler(t, WithWorkers(2))
	ran := make(chan struct{}, 10)
	for range 10 {
		require.NoError(t, s.Go(func(context.Context) { ran <- struct{}{} }))
	}
	for range 10 {
		receive(t, ran)
	}
}

func TestWorkersLimit(t *testing.T) {
	s, _ := newTestScheduler(t, WithWorkers(2))
	var running, peak atomic.Int32
	release := make(chan struct{})
	done := make(chan struct{}, 5)
	for range 5 {
		require.NoError(t, s.Go(func(context.Context) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			done <- struct{}{}
		}))
	}
	close(release)
	for range 5 {
		receive(t, done)
	}
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestAfterFunc(t *testing.T) {
	s, clock := newTestScheduler(t)
	ran := make(chan struct{}, 1)
	_, err := s.AfterFunc(time.Second, func(context.Context) { ran <- struct{}{} })
	require.NoError(t, err)

	clock.BlockUntil(1)
	clock.Advance(time.Second - time.Millisecond)
	require.Empty(t, ran)
	clock.Advance(time.Millisecond)
	receive(t, ran)
}

func TestAfterFuncCancel(t *testing.T) {
	s, clock := newTestScheduler(t)
	var ran atomic.Bool
	task, err := s.AfterFunc(time.Second, func(context.Context) { ran.Store(true) })
	require.NoError(t, err)
	task.Cancel()
	task.Cancel()
	clock.Advance(time.Hour)
	s.Close()
	require.False(t, ran.Load())
}

func TestEvery(t *testing.T) {
	s, clock := newTestScheduler(t)
	ran := make(chan struct{})
	task, err := s.Every(time.Minute, func(context.Context) { ran <- struct{}{} })
	require.NoError(t, err)
	for range 3 {
		clock.BlockUntil(1)
		clock.Advance(time.Minute)
		receive(t, ran)
	}
	task.Cancel()
}

func TestClose(t *testing.T) {
	s, _ := newTestScheduler(t)
	started := make(chan struct{})
	canceled := make(chan struct{})
	require.NoError(t, s.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(canceled)
	}))
	receive(t, started)
	s.Close()
	receive(t, canceled)

	require.ErrorIs(t, s.Go(func(context.Context) {}), ErrClosed)
	_, err := s.AfterFunc(time.Second, func(context.Context) {})
	require.ErrorIs(t, err, ErrClosed)
	_, err = s.Every(time.Second, func(context.Context) {})
	require.ErrorIs(t, err, ErrClosed)
}
