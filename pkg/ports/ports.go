package ports

import (
	"context"
	"errors"
	"time"

	"github.com/aescanero/podgen/pkg/domain"
)

// ErrRunNotFound is returned by a RunArchive for unknown run IDs
var ErrRunNotFound = errors.New("run not found")

// LLMClient is the text-generation provider behind the Generation Port
type LLMClient interface {
	GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error)
}

// EventHandler handles one event delivered by an EventBus
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes run and step events
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}

// RunArchive keeps run records for status queries after a run ends
type RunArchive interface {
	SaveRun(ctx context.Context, record *domain.RunRecord) error
	GetRun(ctx context.Context, runID string) (*domain.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*domain.RunRecord, error)
	DeleteRun(ctx context.Context, runID string) error
}

// MetricsCollector records engine and service metrics
type MetricsCollector interface {
	RecordRunSubmitted(mode string)
	RecordRunCompleted(status string, duration time.Duration)
	RecordStepExecuted(kind, status string, duration time.Duration)
	RecordLLMCall(model, status string, duration time.Duration)
	RecordLLMTokens(model string, input, output int64)
	SetActiveRuns(count int)
	RecordWorkerPoolStatus(idle, busy, stopped int)
}

// Event bus topics
const (
	TopicRunEvents  = "run.events"
	TopicStepEvents = "step.events"
)
