package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/podgen/internal/application/scriptgen"
	"github.com/aescanero/podgen/internal/engine"
	"github.com/aescanero/podgen/pkg/domain"
	"github.com/aescanero/podgen/pkg/ports"
)

var (
	// ErrRunTerminal is returned when cancelling a run that already ended
	ErrRunTerminal = errors.New("run already in terminal state")

	// ErrShuttingDown is returned for new runs after Shutdown
	ErrShuttingDown = errors.New("orchestrator is shutting down")

	// ErrRunTimeout is the cause recorded for runs that hit the run timeout
	ErrRunTimeout = errors.New("run execution timeout")
)

// GraphBuilder builds the graph of one run
type GraphBuilder interface {
	Build(payload *domain.TriggerPayload) (*engine.Graph, error)
}

// Manager coordinates script generation runs
type Manager struct {
	builder   GraphBuilder
	executor  *engine.Executor
	eventBus  ports.EventBus
	archive   ports.RunArchive
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger

	// Track active executions
	executions sync.Map // map[string]*execution
	active     sync.WaitGroup

	mu       sync.RWMutex
	stopping bool

	runTimeout time.Duration
}

// execution holds state for a single run
type execution struct {
	runID     string
	record    *domain.RunRecord
	stepIndex map[string]int
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
	mu        sync.RWMutex
}

// NewManager creates a new orchestrator manager. Step bodies are handed to
// dispatcher; a nil dispatcher runs each step on its own goroutine.
func NewManager(
	builder GraphBuilder,
	dispatcher engine.Dispatcher,
	eventBus ports.EventBus,
	archive ports.RunArchive,
	metrics ports.MetricsCollector,
	validator *Validator,
	logger *zap.Logger,
	runTimeout, stepTimeout time.Duration,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = NewValidator()
	}

	m := &Manager{
		builder:    builder,
		eventBus:   eventBus,
		archive:    archive,
		metrics:    metrics,
		validator:  validator,
		logger:     logger,
		runTimeout: runTimeout,
	}

	opts := []engine.Option{
		engine.WithObserver(m),
		engine.WithStepTimeout(stepTimeout),
	}
	if dispatcher != nil {
		opts = append(opts, engine.WithDispatcher(dispatcher))
	}
	m.executor = engine.NewExecutor(logger, opts...)

	return m
}

// Generate validates the payload and runs it to completion on the caller's
// goroutine. On failure the returned record is still filled in and the error
// is a *scriptgen.PhaseError.
func (m *Manager) Generate(ctx context.Context, payload *domain.TriggerPayload) (*domain.RunRecord, error) {
	exec, runCtx, err := m.admit(ctx, payload)
	if err != nil {
		return nil, err
	}

	runErr := m.execute(runCtx, exec, payload)
	return m.snapshot(exec), runErr
}

// Submit validates the payload and starts the run in the background
func (m *Manager) Submit(ctx context.Context, payload *domain.TriggerPayload) (string, error) {
	exec, runCtx, err := m.admit(context.WithoutCancel(ctx), payload)
	if err != nil {
		return "", err
	}

	go func() {
		_ = m.execute(runCtx, exec, payload)
	}()

	return exec.runID, nil
}

// admit validates a payload, registers the run and stores its first record
func (m *Manager) admit(ctx context.Context, payload *domain.TriggerPayload) (*execution, context.Context, error) {
	if err := m.validator.Validate(payload); err != nil {
		m.logger.Warn("payload validation failed", zap.Error(err))
		return nil, nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopping {
		return nil, nil, ErrShuttingDown
	}

	runID := uuid.New().String()
	record := newRunRecord(runID, payload)

	if err := m.archive.SaveRun(ctx, record); err != nil {
		m.logger.Error("failed to save initial run record",
			zap.String("run_id", runID),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to save run: %w", err)
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if m.runTimeout > 0 {
		runCtx, cancel = context.WithTimeoutCause(ctx, m.runTimeout, ErrRunTimeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	exec := &execution{
		runID:     runID,
		record:    record,
		stepIndex: make(map[string]int, len(record.Steps)),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for i, s := range record.Steps {
		exec.stepIndex[s.StepID] = i
	}

	m.executions.Store(runID, exec)
	m.active.Add(1)

	m.metrics.RecordRunSubmitted(string(payload.Mode()))
	m.publish(ctx, ports.TopicRunEvents, runID, "", domain.EventTypeRunSubmitted, map[string]interface{}{
		"program_name": payload.ProgramName,
		"item_count":   len(payload.Items),
		"speaker_mode": string(payload.Mode()),
	})

	m.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.Int("items", len(payload.Items)),
		zap.String("speaker_mode", string(payload.Mode())))

	return exec, runCtx, nil
}

// execute builds and runs the graph, then records the outcome
func (m *Manager) execute(ctx context.Context, exec *execution, payload *domain.TriggerPayload) error {
	defer m.active.Done()
	defer close(exec.done)
	defer exec.cancel()
	defer m.executions.Delete(exec.runID)

	m.setActiveRuns()

	g, err := m.builder.Build(payload)
	if err != nil {
		err = fmt.Errorf("failed to build graph: %w", err)
		m.finish(exec, nil, err)
		return err
	}

	now := time.Now()
	exec.mu.Lock()
	exec.record.Status = domain.ExecutionStatusRunning
	exec.record.StartedAt = &now
	exec.mu.Unlock()
	m.save(exec)
	m.publish(ctx, ports.TopicRunEvents, exec.runID, "", domain.EventTypeRunStarted, nil)

	out, err := m.executor.Run(ctx, exec.runID, g)
	if err != nil {
		if context.Cause(ctx) == ErrRunTimeout {
			err = fmt.Errorf("%w: %w", ErrRunTimeout, err)
		}
		err = scriptgen.NewPhaseError(err)
		m.finish(exec, nil, err)
		return err
	}

	script, ok := out.(*domain.Script)
	if !ok {
		err = scriptgen.NewPhaseError(fmt.Errorf("unexpected run output %T", out))
		m.finish(exec, nil, err)
		return err
	}

	m.finish(exec, script, nil)
	return nil
}

// finish moves the record to its terminal status, archives it and publishes
// the terminal event.
func (m *Manager) finish(exec *execution, script *domain.Script, runErr error) {
	now := time.Now()
	eventType := domain.EventTypeRunCompleted
	data := map[string]interface{}{}

	exec.mu.Lock()
	rec := exec.record
	rec.CompletedAt = &now

	switch {
	case runErr == nil:
		rec.Status = domain.ExecutionStatusSuccess
		rec.Script = script
	case exec.cancelled:
		rec.Status = domain.ExecutionStatusCancelled
		rec.Error = "run cancelled"
		eventType = domain.EventTypeRunCancelled
	default:
		rec.Status = domain.ExecutionStatusFailed
		rec.Error = runErr.Error()
		eventType = domain.EventTypeRunFailed

		var phaseErr *scriptgen.PhaseError
		if errors.As(runErr, &phaseErr) {
			rec.Phase = string(phaseErr.Phase)
			rec.FailedStep = string(phaseErr.StepID)
			if phaseErr.Phase == scriptgen.PhaseSummarize {
				idx := phaseErr.ItemIndex
				rec.ItemIndex = &idx
				data["item_index"] = idx
			}
			data["phase"] = rec.Phase
			data["step_id"] = rec.FailedStep
		}
		data["error"] = rec.Error
	}

	// Steps still running were abandoned when the run ended
	for i := range rec.Steps {
		if rec.Steps[i].Status == domain.ExecutionStatusRunning {
			rec.Steps[i].Status = domain.ExecutionStatusCancelled
			rec.Steps[i].CompletedAt = &now
		}
	}

	status := rec.Status
	var duration time.Duration
	if rec.StartedAt != nil {
		duration = now.Sub(*rec.StartedAt)
	}
	exec.mu.Unlock()

	data["status"] = string(status)
	m.save(exec)
	m.publish(context.Background(), ports.TopicRunEvents, exec.runID, "", eventType, data)
	m.metrics.RecordRunCompleted(string(status), duration)

	fields := []zap.Field{
		zap.String("run_id", exec.runID),
		zap.String("status", string(status)),
		zap.Duration("duration", duration),
	}
	if runErr != nil && status == domain.ExecutionStatusFailed {
		m.logger.Error("run failed", append(fields, zap.Error(runErr))...)
	} else {
		m.logger.Info("run finished", fields...)
	}

	m.executions.Delete(exec.runID)
	m.setActiveRuns()
}

// StepStarted implements engine.Observer
func (m *Manager) StepStarted(runID string, step *engine.Step) {
	exec, ok := m.lookup(runID)
	if !ok {
		return
	}

	now := time.Now()
	exec.mu.Lock()
	if i, ok := exec.stepIndex[string(step.ID)]; ok {
		exec.record.Steps[i].Status = domain.ExecutionStatusRunning
		exec.record.Steps[i].StartedAt = &now
	}
	exec.mu.Unlock()

	m.logger.Debug("step started",
		zap.String("run_id", runID),
		zap.String("step_id", string(step.ID)))

	m.publish(context.Background(), ports.TopicStepEvents, runID, string(step.ID), domain.EventTypeStepStarted, stepData(step.ID))
}

// StepFinished implements engine.Observer
func (m *Manager) StepFinished(runID string, step *engine.Step, result engine.Result, duration time.Duration) {
	phase, _, _ := scriptgen.PhaseOf(step.ID)
	m.metrics.RecordStepExecuted(string(phase), string(result.Status), duration)

	exec, ok := m.lookup(runID)
	if !ok {
		return
	}

	now := time.Now()
	status := domain.ExecutionStatusSuccess
	eventType := domain.EventTypeStepCompleted
	data := stepData(step.ID)
	data["duration_ms"] = duration.Milliseconds()
	if result.Status == engine.StatusFailed {
		status = domain.ExecutionStatusFailed
		eventType = domain.EventTypeStepFailed
		if result.Err != nil {
			data["error"] = result.Err.Error()
		}
	}

	exec.mu.Lock()
	if i, ok := exec.stepIndex[string(step.ID)]; ok {
		exec.record.Steps[i].Status = status
		exec.record.Steps[i].CompletedAt = &now
		if result.Err != nil {
			exec.record.Steps[i].Error = result.Err.Error()
		}
	}
	exec.mu.Unlock()

	m.logger.Debug("step finished",
		zap.String("run_id", runID),
		zap.String("step_id", string(step.ID)),
		zap.String("status", string(result.Status)),
		zap.Duration("duration", duration))

	m.publish(context.Background(), ports.TopicStepEvents, runID, string(step.ID), eventType, data)
}

// GetRun returns the live record of an active run or the archived record
func (m *Manager) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	if exec, ok := m.lookup(runID); ok {
		return m.snapshot(exec), nil
	}
	return m.archive.GetRun(ctx, runID)
}

// ListRuns returns recent runs, newest first, with live state for active runs
func (m *Manager) ListRuns(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	records, err := m.archive.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	for i, rec := range records {
		if exec, ok := m.lookup(rec.RunID); ok {
			records[i] = m.snapshot(exec)
		}
	}
	return records, nil
}

// CancelRun cancels an active run. In-flight steps observe the cancellation
// through their context.
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	exec, ok := m.lookup(runID)
	if !ok {
		if _, err := m.archive.GetRun(ctx, runID); err != nil {
			return err
		}
		return ErrRunTerminal
	}

	exec.mu.Lock()
	if exec.record.Status.IsTerminal() {
		exec.mu.Unlock()
		return ErrRunTerminal
	}
	exec.cancelled = true
	exec.mu.Unlock()

	exec.cancel()

	m.logger.Info("run cancellation requested", zap.String("run_id", runID))
	return nil
}

// Wait blocks until an active run ends or ctx is done. It returns
// immediately for runs that are not active.
func (m *Manager) Wait(ctx context.Context, runID string) error {
	exec, ok := m.lookup(runID)
	if !ok {
		return nil
	}
	select {
	case <-exec.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops admitting runs, cancels active runs and waits for them to
// record their outcome.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down orchestrator manager")

	m.mu.Lock()
	m.stopping = true
	m.mu.Unlock()

	m.executions.Range(func(key, value interface{}) bool {
		exec := value.(*execution)
		exec.mu.Lock()
		exec.cancelled = true
		exec.mu.Unlock()
		exec.cancel()
		return true
	})

	done := make(chan struct{})
	go func() {
		m.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("orchestrator manager shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

// ShuttingDown reports whether Shutdown was called
func (m *Manager) ShuttingDown() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopping
}

func (m *Manager) lookup(runID string) (*execution, bool) {
	val, ok := m.executions.Load(runID)
	if !ok {
		return nil, false
	}
	return val.(*execution), true
}

func (m *Manager) snapshot(exec *execution) *domain.RunRecord {
	exec.mu.RLock()
	defer exec.mu.RUnlock()
	return exec.record.Clone()
}

func (m *Manager) save(exec *execution) {
	rec := m.snapshot(exec)
	if err := m.archive.SaveRun(context.Background(), rec); err != nil {
		m.logger.Error("failed to save run record",
			zap.String("run_id", exec.runID),
			zap.Error(err))
	}
}

func (m *Manager) setActiveRuns() {
	count := 0
	m.executions.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	m.metrics.SetActiveRuns(count)
}

// publish sends an event; a failing bus never fails the run
func (m *Manager) publish(ctx context.Context, topic, runID, stepID string, eventType domain.EventType, data map[string]interface{}) {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		StepID:    stepID,
		Timestamp: time.Now(),
		Data:      data,
	}

	if err := m.eventBus.Publish(ctx, topic, event); err != nil {
		m.logger.Error("failed to publish event",
			zap.String("run_id", runID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func newRunRecord(runID string, payload *domain.TriggerPayload) *domain.RunRecord {
	n := len(payload.Items)
	steps := make([]domain.StepState, 0, n+1)
	for _, id := range scriptgen.SummarizeStepIDs(n) {
		steps = append(steps, domain.StepState{StepID: string(id), Status: domain.ExecutionStatusPending})
	}
	steps = append(steps, domain.StepState{StepID: string(scriptgen.SynthesizeStepID), Status: domain.ExecutionStatusPending})

	return &domain.RunRecord{
		RunID:       runID,
		Status:      domain.ExecutionStatusPending,
		ProgramName: payload.ProgramName,
		ProgramDate: payload.ProgramDate,
		SpeakerMode: payload.Mode(),
		ItemCount:   n,
		Steps:       steps,
		SubmittedAt: time.Now(),
	}
}

func stepData(id engine.StepID) map[string]interface{} {
	data := map[string]interface{}{}
	phase, index, ok := scriptgen.PhaseOf(id)
	if !ok {
		return data
	}
	data["phase"] = string(phase)
	if phase == scriptgen.PhaseSummarize {
		data["item_index"] = index
	}
	return data
}
