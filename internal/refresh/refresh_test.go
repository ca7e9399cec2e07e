package refresh

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddValidation(t *testing.T) {
	s := NewScheduler()
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name string
		task Task
	}{
		{"missing name", Task{Interval: time.Second, Run: noop}},
		{"zero interval", Task{Name: "t", Run: noop}},
		{"negative interval", Task{Name: "t", Interval: -time.Second, Run: noop}},
		{"sub-second interval", Task{Name: "t", Interval: 500 * time.Millisecond, Run: noop}},
		{"missing run function", Task{Name: "t", Interval: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.Add(tt.task))
		})
	}
}

func TestSchedulerRunsTasks(t *testing.T) {
	s := NewScheduler()
	var runs atomic.Int64

	require.NoError(t, s.Add(Task{
		Name:     "devices",
		Interval: time.Second,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 2 },
		5*time.Second, 10*time.Millisecond)
}

func TestSchedulerSkipsOverlappingTicks(t *testing.T) {
	s := NewScheduler()
	release := make(chan struct{})
	var started atomic.Int64

	require.NoError(t, s.Add(Task{
		Name:     "slow",
		Interval: time.Second,
		Run: func(ctx context.Context) error {
			started.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	}))

	s.Start()

	require.Eventually(t, func() bool { return started.Load() == 1 },
		5*time.Second, 10*time.Millisecond)

	// Two more intervals pass while the first run is still in flight;
	// neither tick may start a second run.
	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, int64(1), started.Load())

	close(release)
	s.Stop()
}

func TestAddReplacesTaskWithSameName(t *testing.T) {
	s := NewScheduler()
	var first, second atomic.Int64

	require.NoError(t, s.Add(Task{
		Name:     "alerts",
		Interval: time.Second,
		Run: func(context.Context) error {
			first.Add(1)
			return nil
		},
	}))
	require.NoError(t, s.Add(Task{
		Name:     "alerts",
		Interval: time.Second,
		Run: func(context.Context) error {
			second.Add(1)
			return nil
		},
	}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return second.Load() >= 2 },
		5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), first.Load(),
		"the replaced schedule must not keep running")
}

func TestTaskErrorsDoNotStopSchedule(t *testing.T) {
	s := NewScheduler()
	var runs atomic.Int64

	require.NoError(t, s.Add(Task{
		Name:     "flaky",
		Interval: time.Second,
		Run: func(context.Context) error {
			runs.Add(1)
			return fmt.Errorf("backend unavailable")
		},
	}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 2 },
		5*time.Second, 10*time.Millisecond)
}
