package scriptgen

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/aescanero/podgen/internal/engine"
	"github.com/aescanero/podgen/internal/generation"
	"github.com/aescanero/podgen/pkg/domain"
)

// Step contract names
const (
	ContractContentItem    = "content_item"
	ContractSummarizedItem = "summarized_item"
	ContractSummaries      = "summarized_items"
	ContractScript         = "script"
)

// Builder turns trigger payloads into workflow graphs
type Builder struct {
	generator *generation.Generator
	prompts   *prompts
	defaults  domain.LengthBounds
	logger    *zap.Logger

	summaryContract generation.Contract[domain.ItemSummary]
	scriptContract  generation.Contract[domain.Script]
}

// NewBuilder creates a builder. defaults fill in zero length bounds.
func NewBuilder(generator *generation.Generator, defaults domain.LengthBounds, logger *zap.Logger) (*Builder, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p, err := loadPrompts()
	if err != nil {
		return nil, err
	}

	return &Builder{
		generator:       generator,
		prompts:         p,
		defaults:        defaults,
		logger:          logger,
		summaryContract: generation.NewContract[domain.ItemSummary](ContractSummarizedItem),
		scriptContract:  generation.NewContract[domain.Script](ContractScript),
	}, nil
}

// Build constructs one summarize step per item and the synthesize sink that
// depends on all of them. It does not run anything.
func (b *Builder) Build(payload *domain.TriggerPayload) (*engine.Graph, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is required")
	}

	g := engine.NewGraph()
	n := len(payload.Items)

	for i, item := range payload.Items {
		step := &engine.Step{
			ID: SummarizeStepID(i),
			Contract: engine.Contract{
				Input:  ContractContentItem,
				Output: ContractSummarizedItem,
			},
			Input: item,
			Run:   b.summarize(payload.ProgramName, i, item),
		}
		if err := g.Add(step); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", step.ID, err)
		}
	}

	sink := &engine.Step{
		ID:        SynthesizeStepID,
		DependsOn: SummarizeStepIDs(n),
		Contract: engine.Contract{
			Input:  ContractSummaries,
			Output: ContractScript,
		},
		Input: payload,
		Run:   b.synthesize(payload, b.lengthFor(payload)),
	}
	if err := g.Add(sink); err != nil {
		return nil, fmt.Errorf("failed to add %s: %w", sink.ID, err)
	}
	if err := g.SetSink(SynthesizeStepID); err != nil {
		return nil, err
	}

	b.logger.Debug("Graph built",
		zap.Int("items", n),
		zap.String("speaker_mode", string(payload.Mode())))

	return g, nil
}

func (b *Builder) lengthFor(payload *domain.TriggerPayload) domain.LengthBounds {
	bounds := payload.Length
	if bounds.MinChars == 0 {
		bounds.MinChars = b.defaults.MinChars
	}
	if bounds.MaxChars == 0 {
		bounds.MaxChars = b.defaults.MaxChars
	}
	if bounds.MaxChars > 0 && bounds.MinChars > bounds.MaxChars {
		bounds.MinChars = bounds.MaxChars
	}
	return bounds
}
