package scriptgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aescanero/podgen/internal/engine"
	"github.com/aescanero/podgen/internal/generation"
	"github.com/aescanero/podgen/pkg/domain"
)

// scriptedClient answers summarize prompts with a summary of the item and
// synthesize prompts with a script covering the given item IDs.
type scriptedClient struct {
	itemIDs []string

	// beforeSummary runs before a summary is returned, keyed by item title
	beforeSummary func(ctx context.Context, title string) error
	// scriptReply overrides the synthesize reply
	scriptReply string

	mu              sync.Mutex
	synthesizeCalls int
	synthesizeReq   *domain.LLMRequest
}

func (c *scriptedClient) GenerateCompletion(ctx context.Context, req *domain.LLMRequest) (*domain.LLMResponse, error) {
	user := req.Messages[0].Content

	if strings.Contains(req.System, "news editor") {
		title := between(user, "Title: ", "\n")
		if c.beforeSummary != nil {
			if err := c.beforeSummary(ctx, title); err != nil {
				return nil, err
			}
		}
		return reply(fmt.Sprintf(`{"summary": "Summary of %s", "key_points": ["point about %s"]}`, title, title)), nil
	}

	c.mu.Lock()
	c.synthesizeCalls++
	c.synthesizeReq = req
	c.mu.Unlock()

	if c.scriptReply != "" {
		return reply(c.scriptReply), nil
	}
	script := domain.Script{Title: "Morning News", Opening: "Good morning.", Closing: "See you tomorrow."}
	for _, id := range c.itemIDs {
		script.Sections = append(script.Sections, domain.ScriptSection{ItemID: id, Heading: "About " + id, Body: "Today " + id + "."})
	}
	raw, _ := json.Marshal(script)
	return reply(string(raw)), nil
}

func (c *scriptedClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synthesizeCalls
}

func reply(content string) *domain.LLMResponse {
	return &domain.LLMResponse{Content: content, Model: "test-model"}
}

func between(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	s = s[i+len(start):]
	if j := strings.Index(s, end); j >= 0 {
		return s[:j]
	}
	return s
}

func testPayload(ids ...string) *domain.TriggerPayload {
	p := &domain.TriggerPayload{
		ProgramName: "Morning Brief",
		ProgramDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		ListenerNotes: []domain.ListenerNote{
			{ID: "n1", Name: "Maria", Text: "Love the show!"},
		},
	}
	for _, id := range ids {
		p.Items = append(p.Items, domain.ContentItem{
			ID:     id,
			Title:  strings.ToUpper(id) + " title",
			Author: "author-" + id,
			Tags:   []string{"tag-" + id},
			Text:   "Body of article " + id,
		})
	}
	return p
}

func newTestBuilder(t *testing.T, client *scriptedClient) *Builder {
	t.Helper()
	gen := generation.NewGenerator(client, generation.Settings{Model: "test-model", MaxTokens: 1024}, zaptest.NewLogger(t))
	b, err := NewBuilder(gen, domain.LengthBounds{MinChars: 1000, MaxChars: 3000}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return b
}

func run(t *testing.T, b *Builder, payload *domain.TriggerPayload) (any, error) {
	t.Helper()
	g, err := b.Build(payload)
	require.NoError(t, err)
	return engine.NewExecutor(zaptest.NewLogger(t)).Run(context.Background(), "run-1", g)
}

func TestBuild_OneSummarizeStepPerItem(t *testing.T) {
	for _, n := range []int{0, 1, 3, 10} {
		t.Run(fmt.Sprintf("%d items", n), func(t *testing.T) {
			ids := make([]string, n)
			for i := range ids {
				ids[i] = fmt.Sprintf("item-%d", i)
			}

			g, err := newTestBuilder(t, &scriptedClient{}).Build(testPayload(ids...))
			require.NoError(t, err)
			require.NoError(t, g.Validate())

			assert.Equal(t, n+1, g.Len())
			assert.Equal(t, SynthesizeStepID, g.Sink())

			sink, ok := g.Step(SynthesizeStepID)
			require.True(t, ok)
			assert.Len(t, sink.DependsOn, n)
			assert.Equal(t, SummarizeStepIDs(n), sink.DependsOn)

			for i := 0; i < n; i++ {
				step, ok := g.Step(SummarizeStepID(i))
				require.True(t, ok)
				assert.Empty(t, step.DependsOn)
				assert.Equal(t, ids[i], step.Input.(domain.ContentItem).ID)
				assert.Equal(t, ContractSummarizedItem, step.Contract.Output)
			}
		})
	}
}

func TestRun_ProducesScript(t *testing.T) {
	client := &scriptedClient{itemIDs: []string{"a", "b", "c"}}

	out, err := run(t, newTestBuilder(t, client), testPayload("a", "b", "c"))
	require.NoError(t, err)

	script, ok := out.(*domain.Script)
	require.True(t, ok)
	require.Len(t, script.Sections, 3)
	assert.Equal(t, "a", script.Sections[0].ItemID)
	assert.Equal(t, 1, client.calls())

	// The synthesize instruction carries item metadata and the global parameters
	user := client.synthesizeReq.Messages[0].Content
	for _, want := range []string{"Morning Brief", "Monday, March 2, 2026", "author-b", "tag-c", "Summary of A title", "Maria: Love the show!", "at least 1000", "at most 3000"} {
		assert.Contains(t, user, want)
	}
	assert.Contains(t, client.synthesizeReq.System, "single host")
}

func TestRun_DialogueMode(t *testing.T) {
	client := &scriptedClient{itemIDs: []string{"a"}}
	payload := testPayload("a")
	payload.SpeakerMode = domain.SpeakerModeDialogue

	_, err := run(t, newTestBuilder(t, client), payload)
	require.NoError(t, err)

	assert.Contains(t, client.synthesizeReq.System, "HOST A")
}

func TestRun_PreservesItemOrder(t *testing.T) {
	aDone := make(chan struct{})
	cDone := make(chan struct{})

	var mu sync.Mutex
	var completed []string

	client := &scriptedClient{
		itemIDs: []string{"a", "b", "c"},
		// Completion order is c, a, b
		beforeSummary: func(ctx context.Context, title string) error {
			var wait, done chan struct{}
			switch title {
			case "A title":
				wait, done = cDone, aDone
			case "B title":
				wait = aDone
			case "C title":
				done = cDone
			}
			if wait != nil {
				select {
				case <-wait:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			mu.Lock()
			completed = append(completed, title)
			mu.Unlock()
			if done != nil {
				close(done)
			}
			return nil
		},
	}

	_, err := run(t, newTestBuilder(t, client), testPayload("a", "b", "c"))
	require.NoError(t, err)

	assert.Equal(t, []string{"C title", "A title", "B title"}, completed)

	user := client.synthesizeReq.Messages[0].Content
	ia := strings.Index(user, "id: a")
	ib := strings.Index(user, "id: b")
	ic := strings.Index(user, "id: c")
	require.True(t, ia >= 0 && ib >= 0 && ic >= 0)
	assert.Less(t, ia, ib)
	assert.Less(t, ib, ic)
}

func TestRun_EmptyInputFailsWithoutGeneration(t *testing.T) {
	client := &scriptedClient{}

	_, err := run(t, newTestBuilder(t, client), testPayload())

	assert.ErrorIs(t, err, ErrNoContent)
	assert.Equal(t, 0, client.calls())

	var phaseErr *PhaseError
	require.ErrorAs(t, NewPhaseError(err), &phaseErr)
	assert.Equal(t, PhaseSynthesize, phaseErr.Phase)
}

func TestRun_ItemFailureReportsIndex(t *testing.T) {
	boom := errors.New("provider unavailable")
	var cancelled atomic.Int32

	client := &scriptedClient{
		itemIDs: []string{"a", "b", "c", "d", "e"},
		beforeSummary: func(ctx context.Context, title string) error {
			if title == "C title" {
				return boom
			}
			select {
			case <-time.After(time.Minute):
				return nil
			case <-ctx.Done():
				cancelled.Add(1)
				return ctx.Err()
			}
		},
	}

	_, err := run(t, newTestBuilder(t, client), testPayload("a", "b", "c", "d", "e"))
	require.Error(t, err)

	perr := NewPhaseError(err)
	var phaseErr *PhaseError
	require.ErrorAs(t, perr, &phaseErr)
	assert.Equal(t, PhaseSummarize, phaseErr.Phase)
	assert.Equal(t, 2, phaseErr.ItemIndex)
	assert.Equal(t, SummarizeStepID(2), phaseErr.StepID)
	assert.ErrorIs(t, perr, ErrGenerationFailed)
	assert.ErrorIs(t, perr, engine.ErrRunFailed)
	assert.ErrorIs(t, perr, generation.ErrProvider)
	assert.ErrorIs(t, perr, boom)

	assert.Eventually(t, func() bool { return cancelled.Load() == 4 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, client.calls())
}

func TestRun_ScriptMustCoverItems(t *testing.T) {
	client := &scriptedClient{
		itemIDs:     []string{"a", "b"},
		scriptReply: `{"title":"T","opening":"O","closing":"C","sections":[{"item_id":"b","heading":"H","body":"B"},{"item_id":"a","heading":"H","body":"B"}]}`,
	}

	_, err := run(t, newTestBuilder(t, client), testPayload("a", "b"))

	assert.ErrorIs(t, err, ErrCoverage)
	var phaseErr *PhaseError
	require.ErrorAs(t, NewPhaseError(err), &phaseErr)
	assert.Equal(t, PhaseSynthesize, phaseErr.Phase)
}

func TestRun_InvalidScriptIsSchemaViolation(t *testing.T) {
	client := &scriptedClient{
		itemIDs:     []string{"a"},
		scriptReply: `{"title":"T","opening":"O","sections":[{"item_id":"a","heading":"H","body":"B"}]}`,
	}

	_, err := run(t, newTestBuilder(t, client), testPayload("a"))

	assert.ErrorIs(t, err, generation.ErrSchemaViolation)
}

// partialDeps serves every summary except the ones listed in missing
type partialDeps struct {
	n       int
	missing map[engine.StepID]bool
}

func (d partialDeps) Output(id engine.StepID) (any, error) {
	if d.missing[id] {
		return nil, engine.ErrResultMissing
	}
	return domain.SummarizedItem{ID: string(id), Summary: "s"}, nil
}

func (d partialDeps) Declared() []engine.StepID {
	return SummarizeStepIDs(d.n)
}

func TestSynthesize_MissingSummaryFailsFast(t *testing.T) {
	client := &scriptedClient{itemIDs: []string{"a", "b", "c"}}
	b := newTestBuilder(t, client)
	payload := testPayload("a", "b", "c")

	g, err := b.Build(payload)
	require.NoError(t, err)
	sink, _ := g.Step(SynthesizeStepID)

	deps := partialDeps{n: 3, missing: map[engine.StepID]bool{SummarizeStepID(1): true}}
	_, err = sink.Run(context.Background(), deps)

	var aggErr *AggregationError
	require.ErrorAs(t, err, &aggErr)
	assert.Equal(t, 3, aggErr.Expected)
	assert.Equal(t, 2, aggErr.Present)
	assert.Equal(t, []engine.StepID{SummarizeStepID(1)}, aggErr.Missing)
	assert.ErrorIs(t, err, ErrAggregation)
	assert.Equal(t, 0, client.calls())
}

func TestAggregate_ReadsInItemOrder(t *testing.T) {
	items, err := Aggregate(partialDeps{n: 3}, 3)
	require.NoError(t, err)

	got := make([]string, len(items))
	for i, it := range items {
		got[i] = it.ID
	}
	assert.Equal(t, []string{"summarize_0", "summarize_1", "summarize_2"}, got)
}

func TestPhaseOf(t *testing.T) {
	tests := []struct {
		id    engine.StepID
		phase Phase
		index int
		ok    bool
	}{
		{SummarizeStepID(0), PhaseSummarize, 0, true},
		{SummarizeStepID(12), PhaseSummarize, 12, true},
		{SynthesizeStepID, PhaseSynthesize, -1, true},
		{"summarize_x", "", -1, false},
		{"other", "", -1, false},
	}
	for _, tt := range tests {
		phase, index, ok := PhaseOf(tt.id)
		assert.Equal(t, tt.phase, phase, tt.id)
		assert.Equal(t, tt.index, index, tt.id)
		assert.Equal(t, tt.ok, ok, tt.id)
	}
}

func TestNewPhaseError_ContextAbort(t *testing.T) {
	err := NewPhaseError(&engine.RunError{RunID: "r", Err: context.DeadlineExceeded})

	var phaseErr *PhaseError
	require.ErrorAs(t, err, &phaseErr)
	assert.Equal(t, PhaseRun, phaseErr.Phase)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	plain := errors.New("not a run error")
	assert.Equal(t, plain, NewPhaseError(plain))
}

func TestRun_ScriptLengthOutsideBoundsIsLogged(t *testing.T) {
	client := &scriptedClient{itemIDs: []string{"a", "b"}}
	core, logs := observer.New(zap.WarnLevel)

	gen := generation.NewGenerator(client, generation.Settings{Model: "test-model", MaxTokens: 1024}, zaptest.NewLogger(t))
	b, err := NewBuilder(gen, domain.LengthBounds{MinChars: 1000, MaxChars: 3000}, zap.New(core))
	require.NoError(t, err)

	out, err := run(t, b, testPayload("a", "b"))
	require.NoError(t, err, "length is advisory")
	script := out.(*domain.Script)

	entries := logs.FilterMessage("Script length outside requested bounds").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, script.Length(), fields["length"])
	assert.EqualValues(t, 1000, fields["min_chars"])
	assert.EqualValues(t, 3000, fields["max_chars"])
}
