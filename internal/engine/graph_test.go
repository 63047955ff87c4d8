package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, deps Dependencies) (any, error) {
	return nil, nil
}

func TestGraphAdd_RejectsForwardReference(t *testing.T) {
	g := NewGraph()

	err := g.Add(&Step{ID: "join", DependsOn: []StepID{"a"}, Run: noop})
	assert.ErrorIs(t, err, ErrUnknownDependency)
	assert.Equal(t, 0, g.Len())
}

func TestGraphAdd_RejectsDuplicateID(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(&Step{ID: "a", Run: noop}))

	err := g.Add(&Step{ID: "a", Run: noop})
	assert.ErrorIs(t, err, ErrDuplicateStep)
}

func TestGraphAdd_RejectsInvalidSteps(t *testing.T) {
	tests := []struct {
		name string
		step *Step
	}{
		{name: "nil", step: nil},
		{name: "empty id", step: &Step{Run: noop}},
		{name: "no body", step: &Step{ID: "a"}},
		{name: "self dependency", step: &Step{ID: "a", DependsOn: []StepID{"a"}, Run: noop}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGraph().Add(tt.step)
			assert.ErrorIs(t, err, ErrInvalidStep)
		})
	}
}

func TestGraphAdd_CopiesDependencies(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add(&Step{ID: "a", Run: noop}))
	require.NoError(t, g.Add(&Step{ID: "b", Run: noop}))

	deps := []StepID{"a"}
	require.NoError(t, g.Add(&Step{ID: "c", DependsOn: deps, Run: noop}))
	deps[0] = "b"

	c, ok := g.Step("c")
	require.True(t, ok)
	assert.Equal(t, []StepID{"a"}, c.DependsOn)
	assert.Equal(t, []StepID{"c"}, g.Dependents("a"))
	assert.Empty(t, g.Dependents("b"))
}

func TestGraph_FanOutFanIn(t *testing.T) {
	g := NewGraph()
	ids := []StepID{"a", "b", "c"}
	for _, id := range ids {
		require.NoError(t, g.Add(&Step{ID: id, Run: noop}))
	}
	require.NoError(t, g.Add(&Step{ID: "join", DependsOn: ids, Run: noop}))
	require.NoError(t, g.SetSink("join"))

	require.NoError(t, g.Validate())
	assert.Equal(t, 4, g.Len())
	assert.Len(t, g.Sources(), 3)
	assert.Equal(t, StepID("join"), g.Sink())

	order := make([]StepID, 0, g.Len())
	for _, s := range g.Steps() {
		order = append(order, s.ID)
	}
	assert.Equal(t, []StepID{"a", "b", "c", "join"}, order)
}

func TestGraphValidate(t *testing.T) {
	t.Run("missing sink", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.Add(&Step{ID: "a", Run: noop}))
		assert.ErrorIs(t, g.Validate(), ErrMissingSink)
	})

	t.Run("unknown sink", func(t *testing.T) {
		g := NewGraph()
		assert.ErrorIs(t, g.SetSink("nope"), ErrUnknownDependency)
	})

	t.Run("step not feeding the sink", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.Add(&Step{ID: "a", Run: noop}))
		require.NoError(t, g.Add(&Step{ID: "b", Run: noop}))
		require.NoError(t, g.Add(&Step{ID: "join", DependsOn: []StepID{"a"}, Run: noop}))
		require.NoError(t, g.SetSink("join"))

		assert.ErrorIs(t, g.Validate(), ErrUnreachableSink)
	})

	t.Run("lone sink", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.Add(&Step{ID: "join", Run: noop}))
		require.NoError(t, g.SetSink("join"))
		assert.NoError(t, g.Validate())
	})
}
