package generation

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Contract names the shape a generation must produce. The JSON schema is
// reflected from T once, when the contract is created.
type Contract[T any] struct {
	name   string
	schema string
}

// NewContract reflects the JSON schema of T
func NewContract[T any](name string) Contract[T] {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero T
	s := r.Reflect(&zero)
	s.Version = ""

	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		// Reflected schemas are plain maps and slices; this only fires on programmer error
		panic(fmt.Sprintf("failed to marshal schema for %s: %v", name, err))
	}
	return Contract[T]{name: name, schema: string(raw)}
}

// Name returns the contract name
func (c Contract[T]) Name() string {
	return c.name
}

// Schema returns the reflected JSON schema
func (c Contract[T]) Schema() string {
	return c.schema
}

// instruction is appended to the user prompt so the reply follows the schema
func (c Contract[T]) instruction() string {
	return "\n\nRespond ONLY with a JSON object matching this JSON schema. " +
		"No explanations, no markdown.\n\n" + c.schema
}
