package scriptgen

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aescanero/podgen/internal/engine"
	"github.com/aescanero/podgen/internal/generation"
	"github.com/aescanero/podgen/pkg/domain"
)

func (b *Builder) summarize(programName string, index int, item domain.ContentItem) engine.StepFunc {
	return func(ctx context.Context, _ engine.Dependencies) (any, error) {
		prompt, err := b.prompts.summarize(summarizeData{ProgramName: programName, Item: item})
		if err != nil {
			return nil, err
		}

		summary, err := generation.Generate(ctx, b.generator, prompt, b.summaryContract)
		if err != nil {
			return nil, fmt.Errorf("failed to summarize item %s: %w", item.ID, err)
		}

		b.logger.Debug("Item summarized",
			zap.Int("item_index", index),
			zap.String("item_id", item.ID))

		return domain.NewSummarizedItem(item, summary), nil
	}
}

func (b *Builder) synthesize(payload *domain.TriggerPayload, length domain.LengthBounds) engine.StepFunc {
	n := len(payload.Items)
	mode := payload.Mode()

	return func(ctx context.Context, deps engine.Dependencies) (any, error) {
		if n == 0 {
			return nil, ErrNoContent
		}

		items, err := Aggregate(deps, n)
		if err != nil {
			return nil, err
		}

		prompt, err := b.prompts.synthesize(mode, synthesizeData{
			ProgramName:   payload.ProgramName,
			ProgramDate:   payload.ProgramDate,
			Items:         items,
			ListenerNotes: payload.ListenerNotes,
			Length:        length,
		})
		if err != nil {
			return nil, err
		}

		script, err := generation.Generate(ctx, b.generator, prompt, b.scriptContract)
		if err != nil {
			return nil, fmt.Errorf("failed to synthesize script: %w", err)
		}

		if err := CheckCoverage(&script, payload.Items); err != nil {
			return nil, err
		}

		// Length is a target for the model, not a contract
		chars := script.Length()
		fields := []zap.Field{
			zap.Int("length", chars),
			zap.Int("min_chars", length.MinChars),
			zap.Int("max_chars", length.MaxChars),
		}
		if !length.Contains(chars) {
			b.logger.Warn("Script length outside requested bounds", fields...)
		} else {
			b.logger.Debug("Script synthesized", fields...)
		}
		return &script, nil
	}
}

// Aggregate reads the n summaries in item order. It fails with an
// *AggregationError unless every one of them is present and successful.
func Aggregate(deps engine.Dependencies, n int) ([]domain.SummarizedItem, error) {
	ids := SummarizeStepIDs(n)
	items := make([]domain.SummarizedItem, 0, n)
	var missing []engine.StepID

	for _, id := range ids {
		item, err := engine.OutputAs[domain.SummarizedItem](deps, id)
		if err != nil {
			if errors.Is(err, engine.ErrOutputType) {
				return nil, err
			}
			missing = append(missing, id)
			continue
		}
		items = append(items, item)
	}

	if len(items) != n {
		return nil, &AggregationError{Expected: n, Present: len(items), Missing: missing}
	}
	return items, nil
}

// CheckCoverage verifies the script has exactly one section per item, in
// item order, and no section for an unknown item.
func CheckCoverage(script *domain.Script, items []domain.ContentItem) error {
	if len(script.Sections) != len(items) {
		return fmt.Errorf("%w: %d sections for %d items", ErrCoverage, len(script.Sections), len(items))
	}
	for i, sec := range script.Sections {
		if sec.ItemID != items[i].ID {
			return fmt.Errorf("%w: section %d is about %q, expected %q", ErrCoverage, i, sec.ItemID, items[i].ID)
		}
	}
	return nil
}
