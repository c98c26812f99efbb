package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosteleset/falprs-go/internal/logging"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestStartWorkflowTransitionsToRunning(t *testing.T) {
	var calls int32
	run := func(ctx context.Context, key string) (bool, time.Duration) {
		atomic.AddInt32(&calls, 1)
		return true, time.Hour // long delay: keeps the loop parked after the first iteration
	}
	s := New(run, logging.NewDefault())
	s.StartWorkflow(context.Background(), "cam1", 0)

	waitUntil(t, time.Second, func() bool { return atomic.LoadInt32(&calls) >= 1 })
	state, ok := s.State("cam1")
	assert.True(t, ok)
	assert.Equal(t, StateRunning, state)

	s.StopWorkflow("cam1", true)
}

func TestStartWorkflowIgnoresDuplicateStart(t *testing.T) {
	var calls int32
	run := func(ctx context.Context, key string) (bool, time.Duration) {
		atomic.AddInt32(&calls, 1)
		return true, time.Hour
	}
	s := New(run, logging.NewDefault())
	s.StartWorkflow(context.Background(), "cam1", 0)
	waitUntil(t, time.Second, func() bool { return atomic.LoadInt32(&calls) >= 1 })

	// A second start while already running must not spawn a second loop.
	s.StartWorkflow(context.Background(), "cam1", 0)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	s.StopWorkflow("cam1", true)
}

func TestExternalStopEndsWorkflowAfterInFlightIteration(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	run := func(ctx context.Context, key string) (bool, time.Duration) {
		close(started)
		<-release
		return true, 0
	}
	s := New(run, logging.NewDefault())
	s.StartWorkflow(context.Background(), "cam1", 0)

	<-started
	s.StopWorkflow("cam1", true)
	state, ok := s.State("cam1")
	require.True(t, ok)
	assert.Equal(t, StateWindingDown, state)

	close(release)
	waitUntil(t, time.Second, func() bool {
		_, stillTracked := s.State("cam1")
		return !stillTracked
	})
}

func TestFailedIterationStopsWorkflow(t *testing.T) {
	run := func(ctx context.Context, key string) (bool, time.Duration) {
		return false, 0
	}
	s := New(run, logging.NewDefault())
	s.StartWorkflow(context.Background(), "cam1", 0)

	waitUntil(t, time.Second, func() bool {
		_, ok := s.State("cam1")
		return !ok
	})
}

func TestTimeoutStopsWorkflow(t *testing.T) {
	run := func(ctx context.Context, key string) (bool, time.Duration) {
		return true, time.Millisecond
	}
	s := New(run, logging.NewDefault())
	s.StartWorkflow(context.Background(), "cam1", 10*time.Millisecond)

	waitUntil(t, time.Second, func() bool {
		_, ok := s.State("cam1")
		return !ok
	})
}

func TestActiveKeysListsTrackedWorkflows(t *testing.T) {
	run := func(ctx context.Context, key string) (bool, time.Duration) { return true, time.Hour }
	s := New(run, logging.NewDefault())
	s.StartWorkflow(context.Background(), "cam1", 0)
	s.StartWorkflow(context.Background(), "cam2", 0)

	waitUntil(t, time.Second, func() bool { return len(s.ActiveKeys()) == 2 })
	assert.ElementsMatch(t, []string{"cam1", "cam2"}, s.ActiveKeys())

	s.StopWorkflow("cam1", true)
	s.StopWorkflow("cam2", true)
}
