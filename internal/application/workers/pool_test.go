package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/podgen/internal/application/scriptgen"
	"github.com/aescanero/podgen/internal/engine"
)

type poolMetrics struct {
	mu                  sync.Mutex
	idle, busy, stopped int
	calls               int
}

func (m *poolMetrics) RecordRunSubmitted(string)                        {}
func (m *poolMetrics) RecordRunCompleted(string, time.Duration)         {}
func (m *poolMetrics) RecordStepExecuted(string, string, time.Duration) {}
func (m *poolMetrics) RecordLLMCall(string, string, time.Duration)      {}
func (m *poolMetrics) RecordLLMTokens(string, int64, int64)             {}
func (m *poolMetrics) SetActiveRuns(int)                                {}

func (m *poolMetrics) RecordWorkerPoolStatus(idle, busy, stopped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idle, m.busy, m.stopped = idle, busy, stopped
	m.calls++
}

func startPool(t *testing.T, size int, metrics *poolMetrics) *Pool {
	t.Helper()
	p := NewPool(size, metrics, zaptest.NewLogger(t), 10*time.Millisecond)
	require.NoError(t, p.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestPool_BoundsConcurrency(t *testing.T) {
	const size, jobs = 2, 6
	p := startPool(t, size, &poolMetrics{})

	var running, peak, finished atomic.Int32
	release := make(chan struct{})

	// The dispatch loop blocks once both workers are busy
	go func() {
		for i := 0; i < jobs; i++ {
			err := p.Dispatch(context.Background(), func() {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				<-release
				running.Add(-1)
				finished.Add(1)
			})
			assert.NoError(t, err)
		}
	}()

	assert.Eventually(t, func() bool { return running.Load() == size }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return running.Load() > size }, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	assert.Eventually(t, func() bool { return finished.Load() == jobs }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(size), peak.Load())
}

func TestPool_DispatchHonoursContext(t *testing.T) {
	p := startPool(t, 1, &poolMetrics{})

	block := make(chan struct{})
	defer close(block)
	require.NoError(t, p.Dispatch(context.Background(), func() { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Dispatch(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_DispatchAfterShutdown(t *testing.T) {
	p := NewPool(1, nil, zaptest.NewLogger(t), time.Second)
	assert.ErrorIs(t, p.Dispatch(context.Background(), func() {}), ErrPoolStopped)

	require.NoError(t, p.Start())
	require.NoError(t, p.Shutdown(context.Background()))

	assert.ErrorIs(t, p.Dispatch(context.Background(), func() {}), ErrPoolStopped)
	assert.False(t, p.Health().IsHealthy())
	assert.Error(t, p.Start())
}

func TestPool_SurvivesPanickingJob(t *testing.T) {
	p := startPool(t, 1, &poolMetrics{})

	require.NoError(t, p.Dispatch(context.Background(), func() { panic("boom") }))

	ran := make(chan struct{})
	require.NoError(t, p.Dispatch(context.Background(), func() { close(ran) }))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker did not recover from panic")
	}
}

func TestHealthMonitor_RecordsStatus(t *testing.T) {
	metrics := &poolMetrics{}
	p := startPool(t, 3, metrics)

	assert.Eventually(t, func() bool {
		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		return metrics.calls > 0 && metrics.idle == 3
	}, time.Second, 10*time.Millisecond)

	status := p.Health().GetStatus()
	assert.Equal(t, 3, status.TotalWorkers)
	assert.True(t, status.Healthy)
}

func TestPool_RunsExecutorSteps(t *testing.T) {
	p := startPool(t, 2, &poolMetrics{})

	g := engine.NewGraph()
	var ids []engine.StepID
	for i := 0; i < 5; i++ {
		id := engine.StepID(string(rune('a' + i)))
		ids = append(ids, id)
		require.NoError(t, g.Add(&engine.Step{ID: id, Run: func(ctx context.Context, deps engine.Dependencies) (any, error) {
			return 1, nil
		}}))
	}
	require.NoError(t, g.Add(&engine.Step{ID: "sum", DependsOn: ids, Run: func(ctx context.Context, deps engine.Dependencies) (any, error) {
		return len(deps.Declared()), nil
	}}))
	require.NoError(t, g.SetSink("sum"))

	out, err := engine.NewExecutor(zaptest.NewLogger(t), engine.WithDispatcher(p)).Run(context.Background(), "run-1", g)
	require.NoError(t, err)
	assert.Equal(t, 5, out)
}

// summarizeGraph builds bodies[i] as summarize_i feeding a synthesize sink
func summarizeGraph(t *testing.T, bodies []engine.StepFunc) *engine.Graph {
	t.Helper()

	g := engine.NewGraph()
	for i, body := range bodies {
		require.NoError(t, g.Add(&engine.Step{ID: scriptgen.SummarizeStepID(i), Run: body}))
	}
	require.NoError(t, g.Add(&engine.Step{
		ID:        scriptgen.SynthesizeStepID,
		DependsOn: scriptgen.SummarizeStepIDs(len(bodies)),
		Run: func(ctx context.Context, deps engine.Dependencies) (any, error) {
			return len(deps.Declared()), nil
		},
	}))
	require.NoError(t, g.SetSink(scriptgen.SynthesizeStepID))
	return g
}

func TestPool_FailureAbortsQueuedSteps(t *testing.T) {
	p := startPool(t, 2, &poolMetrics{})

	boom := errors.New("rate limited")
	var started, succeeded atomic.Int32

	bodies := make([]engine.StepFunc, 8)
	bodies[0] = func(ctx context.Context, deps engine.Dependencies) (any, error) {
		started.Add(1)
		return nil, boom
	}
	for i := 1; i < len(bodies); i++ {
		bodies[i] = func(ctx context.Context, deps engine.Dependencies) (any, error) {
			started.Add(1)
			time.Sleep(200 * time.Millisecond)
			succeeded.Add(1)
			return "summary", nil
		}
	}

	start := time.Now()
	_, err := engine.NewExecutor(zaptest.NewLogger(t), engine.WithDispatcher(p)).
		Run(context.Background(), "run-1", summarizeGraph(t, bodies))
	elapsed := time.Since(start)

	var runErr *engine.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, scriptgen.SummarizeStepID(0), runErr.StepID)
	assert.ErrorIs(t, err, boom)
	assert.Less(t, elapsed, 150*time.Millisecond)

	// Only the sibling that already held a worker runs to completion
	assert.Never(t, func() bool { return started.Load() > 2 }, 400*time.Millisecond, 10*time.Millisecond)
	assert.LessOrEqual(t, succeeded.Load(), int32(1))
}

func TestPool_RunTimeoutWhileQueued(t *testing.T) {
	p := startPool(t, 1, &poolMetrics{})

	slow := func(ctx context.Context, deps engine.Dependencies) (any, error) {
		time.Sleep(300 * time.Millisecond)
		return "summary", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := engine.NewExecutor(zaptest.NewLogger(t), engine.WithDispatcher(p)).
		Run(ctx, "run-1", summarizeGraph(t, []engine.StepFunc{slow, slow, slow}))

	var runErr *engine.RunError
	require.ErrorAs(t, err, &runErr)
	assert.Empty(t, runErr.StepID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	var phaseErr *scriptgen.PhaseError
	require.ErrorAs(t, scriptgen.NewPhaseError(err), &phaseErr)
	assert.Equal(t, scriptgen.PhaseRun, phaseErr.Phase)
	assert.Empty(t, phaseErr.StepID)
}
