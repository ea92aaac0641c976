package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// mockTask counts runs and optionally blocks for a fixed duration or until cancelled
type mockTask struct {
	name     string
	interval time.Duration
	block    time.Duration
	runs     atomic.Int32
	aborted  atomic.Int32
	err      error
}

func (m *mockTask) Run(ctx context.Context) error {
	m.runs.Add(1)
	if m.block > 0 {
		select {
		case <-time.After(m.block):
		case <-ctx.Done():
			m.aborted.Add(1)
			return ctx.Err()
		}
	}
	return m.err
}

func (m *mockTask) Interval() time.Duration { return m.interval }
func (m *mockTask) Name() string            { return m.name }

func TestScheduler_RunsImmediatelyAndOnInterval(t *testing.T) {
	task := &mockTask{name: "east", interval: 20 * time.Millisecond}
	s := New(context.Background())
	s.AddTask(task)
	s.Start()

	assert.Eventually(t, func() bool { return task.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, s.Stop(time.Second))

	runs := task.runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, runs, task.runs.Load(), "no runs after stop")
}

func TestScheduler_LoopsAreIndependent(t *testing.T) {
	slow := &mockTask{name: "slow", interval: 10 * time.Millisecond, block: time.Hour}
	fast := &mockTask{name: "fast", interval: 10 * time.Millisecond, err: assert.AnError}

	s := New(context.Background())
	s.AddTask(slow)
	s.AddTask(fast)
	s.Start()

	assert.Eventually(t, func() bool { return fast.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), slow.runs.Load())

	s.Stop(10 * time.Millisecond)
}

func TestScheduler_StopWaitsForGrace(t *testing.T) {
	task := &mockTask{name: "east", interval: time.Hour, block: 50 * time.Millisecond}
	s := New(context.Background())
	s.AddTask(task)
	s.Start()

	assert.Eventually(t, func() bool { return task.runs.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.Stop(time.Second))
	assert.Equal(t, int32(0), task.aborted.Load())
}

func TestScheduler_StopCancelsAfterGrace(t *testing.T) {
	task := &mockTask{name: "east", interval: time.Hour, block: time.Hour}
	s := New(context.Background())
	s.AddTask(task)
	s.Start()

	assert.Eventually(t, func() bool { return task.runs.Load() == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	assert.False(t, s.Stop(20*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), task.aborted.Load())
}
