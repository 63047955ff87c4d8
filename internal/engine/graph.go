package engine

import "fmt"

// Graph is a directed acyclic graph of steps with a single sink.
//
// Steps can only depend on steps added before them, so a Graph is acyclic by
// construction and Steps() is already in topological order.
type Graph struct {
	steps      []*Step
	index      map[StepID]int
	dependents map[StepID][]StepID
	sink       StepID
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{
		index:      make(map[StepID]int),
		dependents: make(map[StepID][]StepID),
	}
}

// Add appends a step. Every predecessor must already be in the graph.
func (g *Graph) Add(step *Step) error {
	if err := step.validate(); err != nil {
		return err
	}

	if _, exists := g.index[step.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStep, step.ID)
	}

	for _, dep := range step.DependsOn {
		if _, exists := g.index[dep]; !exists {
			return fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, step.ID, dep)
		}
	}

	// Copy so later mutation of the caller's slice cannot change the graph
	deps := make([]StepID, len(step.DependsOn))
	copy(deps, step.DependsOn)
	stored := *step
	stored.DependsOn = deps

	g.index[step.ID] = len(g.steps)
	g.steps = append(g.steps, &stored)

	for _, dep := range deps {
		g.dependents[dep] = append(g.dependents[dep], step.ID)
	}

	return nil
}

// SetSink marks the step whose output resolves the run
func (g *Graph) SetSink(id StepID) error {
	if _, exists := g.index[id]; !exists {
		return fmt.Errorf("%w: sink %s", ErrUnknownDependency, id)
	}
	g.sink = id
	return nil
}

// Sink returns the sink step ID
func (g *Graph) Sink() StepID {
	return g.sink
}

// Step returns a step by ID
func (g *Graph) Step(id StepID) (*Step, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.steps[i], true
}

// Steps returns all steps in insertion order
func (g *Graph) Steps() []*Step {
	steps := make([]*Step, len(g.steps))
	copy(steps, g.steps)
	return steps
}

// Sources returns the steps with no predecessors
func (g *Graph) Sources() []*Step {
	sources := make([]*Step, 0)
	for _, s := range g.steps {
		if len(s.DependsOn) == 0 {
			sources = append(sources, s)
		}
	}
	return sources
}

// Dependents returns the IDs of steps that declare id as a predecessor
func (g *Graph) Dependents(id StepID) []StepID {
	deps := g.dependents[id]
	out := make([]StepID, len(deps))
	copy(out, deps)
	return out
}

// Len returns the number of steps
func (g *Graph) Len() int {
	return len(g.steps)
}

// Validate checks that the graph can be executed: a sink is set and every
// other step feeds into it.
func (g *Graph) Validate() error {
	if g.sink == "" {
		return ErrMissingSink
	}
	if _, exists := g.index[g.sink]; !exists {
		return fmt.Errorf("%w: sink %s", ErrMissingSink, g.sink)
	}

	// Walk predecessors back from the sink
	reached := make(map[StepID]bool, len(g.steps))
	queue := []StepID{g.sink}
	reached[g.sink] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		step, _ := g.Step(id)
		for _, dep := range step.DependsOn {
			if !reached[dep] {
				reached[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	for _, s := range g.steps {
		if !reached[s.ID] {
			return fmt.Errorf("%w: %s", ErrUnreachableSink, s.ID)
		}
	}

	return nil
}
