package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Observer is notified of step transitions. Calls are made from the
// executor's scheduling goroutine, one at a time per run. StepStarted fires
// when a step body actually begins, not when it is queued.
type Observer interface {
	StepStarted(runID string, step *Step)
	StepFinished(runID string, step *Step, result Result, duration time.Duration)
}

// Dispatcher runs step jobs. Dispatch may block until the job is accepted
// but must return early with an error once ctx is done.
type Dispatcher interface {
	Dispatch(ctx context.Context, job func()) error
}

type goroutineDispatcher struct{}

func (goroutineDispatcher) Dispatch(ctx context.Context, job func()) error {
	go job()
	return nil
}

type nopObserver struct{}

func (nopObserver) StepStarted(string, *Step)                         {}
func (nopObserver) StepFinished(string, *Step, Result, time.Duration) {}

// Option configures an Executor
type Option func(*Executor)

// WithObserver sets the step transition observer
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithDispatcher sets where step bodies run. Defaults to one goroutine per step.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Executor) {
		if d != nil {
			e.dispatcher = d
		}
	}
}

// WithStepTimeout bounds every step body. Zero means no bound.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.stepTimeout = d
	}
}

// Executor schedules the steps of a graph
type Executor struct {
	logger      *zap.Logger
	observer    Observer
	dispatcher  Dispatcher
	stepTimeout time.Duration
}

// NewExecutor creates a new executor
func NewExecutor(logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Executor{
		logger:     logger,
		observer:   nopObserver{},
		dispatcher: goroutineDispatcher{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// jobEvent is what a step job reports back to the scheduling loop. A job
// sends at most one started event followed by exactly one finished event.
type jobEvent struct {
	step     *Step
	started  bool
	output   any
	err      error
	duration time.Duration
}

// Run executes g and returns the output of its sink.
//
// Steps whose predecessors all succeeded are handed to the dispatcher
// together. Dispatching happens off the scheduling loop, so a saturated
// dispatcher never delays failure handling. The first failing step cancels
// the context handed to every other step, queued steps never start, and
// Run returns immediately with a *RunError naming it. Results that arrive
// later are dropped.
func (e *Executor) Run(ctx context.Context, runID string, g *Graph) (any, error) {
	if g == nil {
		return nil, fmt.Errorf("invalid graph: %w", ErrMissingSink)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := e.logger.With(zap.String("run_id", runID))
	store := NewResultStore()

	status := make(map[StepID]Status, g.Len())
	for _, s := range g.Steps() {
		status[s.ID] = StatusPending
	}

	// Two events per step at most, so the buffer never blocks a late sender
	events := make(chan jobEvent, 2*g.Len())
	inFlight := 0

	// The first failure wins; later errors are casualties of its cancel
	var firstFailure atomic.Pointer[jobEvent]
	abort := func(ev jobEvent) {
		if firstFailure.CompareAndSwap(nil, &ev) {
			cancel()
		}
	}

	fail := func(ev *jobEvent) error {
		status[ev.step.ID] = StatusFailed
		result := Failure(ev.err)
		if putErr := store.Put(ev.step.ID, result); putErr != nil {
			logger.Error("failed to record step failure",
				zap.String("step_id", string(ev.step.ID)),
				zap.Error(putErr))
		}
		e.observer.StepFinished(runID, ev.step, result, ev.duration)
		cancel()

		logger.Warn("step failed, aborting run",
			zap.String("step_id", string(ev.step.ID)),
			zap.Int("in_flight", inFlight),
			zap.Error(ev.err))

		return &RunError{RunID: runID, StepID: ev.step.ID, Err: ev.err}
	}

	launch := func(candidates []*Step) {
		var batch []*Step
		for _, s := range candidates {
			if status[s.ID] != StatusPending || !store.AllSucceeded(s.DependsOn) {
				continue
			}
			status[s.ID] = StatusRunning
			batch = append(batch, s)
		}
		if len(batch) == 0 {
			return
		}
		inFlight += len(batch)

		jobs := make([]func(), len(batch))
		for i, s := range batch {
			jobs[i] = e.job(runCtx, s, store.View(s.DependsOn), events, abort)
		}

		go func() {
			for i, s := range batch {
				if err := e.dispatcher.Dispatch(runCtx, jobs[i]); err != nil {
					ev := jobEvent{step: s, err: fmt.Errorf("failed to dispatch step: %w", err)}
					if runCtx.Err() == nil {
						abort(ev)
					}
					events <- ev
				}
			}
		}()
	}

	launch(g.Sources())

	for {
		if inFlight == 0 {
			return nil, &RunError{RunID: runID, Err: ErrRunStalled}
		}

		select {
		case <-ctx.Done():
			logger.Warn("run aborted", zap.Int("in_flight", inFlight), zap.Error(ctx.Err()))
			return nil, &RunError{RunID: runID, Err: ctx.Err()}

		case ev := <-events:
			if ev.started {
				e.observer.StepStarted(runID, ev.step)
				logger.Debug("step started",
					zap.String("step_id", string(ev.step.ID)),
					zap.Int("dependencies", len(ev.step.DependsOn)))
				continue
			}
			inFlight--

			if ev.err != nil {
				if ctx.Err() != nil {
					logger.Warn("run aborted", zap.Int("in_flight", inFlight), zap.Error(ctx.Err()))
					return nil, &RunError{RunID: runID, Err: ctx.Err()}
				}
				if first := firstFailure.Load(); first != nil {
					return nil, fail(first)
				}
				return nil, fail(&ev)
			}

			result := Success(ev.output)
			if err := store.Put(ev.step.ID, result); err != nil {
				ev.err = err
				return nil, fail(&ev)
			}
			status[ev.step.ID] = StatusSuccess
			e.observer.StepFinished(runID, ev.step, result, ev.duration)

			logger.Debug("step completed",
				zap.String("step_id", string(ev.step.ID)),
				zap.Duration("duration", ev.duration))

			if ev.step.ID == g.Sink() {
				return ev.output, nil
			}

			successors := g.Dependents(ev.step.ID)
			candidates := make([]*Step, 0, len(successors))
			for _, id := range successors {
				if s, ok := g.Step(id); ok {
					candidates = append(candidates, s)
				}
			}
			launch(candidates)
		}
	}
}

// job wraps one step body for the dispatcher. A step whose run was already
// cancelled while it sat in the queue reports the cancellation without
// starting.
func (e *Executor) job(ctx context.Context, step *Step, deps Dependencies, events chan<- jobEvent, abort func(jobEvent)) func() {
	return func() {
		if err := ctx.Err(); err != nil {
			events <- jobEvent{step: step, err: err}
			return
		}
		events <- jobEvent{step: step, started: true}

		start := time.Now()
		output, err := e.execute(ctx, step, deps)
		ev := jobEvent{
			step:     step,
			output:   output,
			err:      err,
			duration: time.Since(start),
		}
		if err != nil {
			abort(ev)
		}
		events <- ev
	}
}

// execute runs a step body, converting panics into errors
func (e *Executor) execute(ctx context.Context, step *Step, deps Dependencies) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStepPanic, r)
		}
	}()

	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return step.Run(ctx, deps)
}
