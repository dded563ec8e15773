package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunNow(t *testing.T) {
	var runs int32
	s := NewScheduler(
		Job{Name: "daily", Schedule: "@hourly", Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		}},
		Job{Name: "broken", Schedule: "@hourly", Run: func(ctx context.Context) error {
			return errors.New("boom")
		}},
	)

	require.NoError(t, s.RunNow(context.Background(), "daily"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	assert.Error(t, s.RunNow(context.Background(), "broken"))
	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestScheduler_RunNowSkipsAfterCancel(t *testing.T) {
	var runs int32
	s := NewScheduler(Job{Name: "daily", Schedule: "@hourly", Run: func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, s.RunNow(ctx, "daily"))
	assert.Zero(t, atomic.LoadInt32(&runs))
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(Job{Name: "daily", Schedule: "not a cron line", Run: func(ctx context.Context) error { return nil }})
	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	var runs int32
	s := NewScheduler(Job{Name: "tick", Schedule: "@every 1s", Run: func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_RunNowSkipsWhileRunning(t *testing.T) {
	var runs int32
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewScheduler(Job{Name: "daily", Schedule: "@hourly", Run: func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		close(started)
		<-release
		return nil
	}})

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "daily") }()
	<-started

	require.NoError(t, s.RunNow(context.Background(), "daily"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs), "an overlapping run is skipped")

	close(release)
	require.NoError(t, <-done)
}
