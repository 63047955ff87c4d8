package orchestrator

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aescanero/podgen/pkg/domain"
)

var (
	// ErrInvalidPayload matches every ValidationError
	ErrInvalidPayload = errors.New("invalid trigger payload")

	// ErrNoItems is returned for payloads without content items
	ErrNoItems = errors.New("at least one content item is required")
)

// ValidationError describes why a payload was rejected. Fields maps a field
// path to the rule it broke.
type ValidationError struct {
	Fields map[string]string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil && len(e.Fields) == 0 {
		return fmt.Sprintf("invalid trigger payload: %v", e.Err)
	}

	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, field+": "+rule)
	}
	sort.Strings(parts)
	return "invalid trigger payload: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidPayload
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPayload
}

// Validator validates trigger payloads
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new payload validator. Field errors are reported
// with their JSON names.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate checks struct rules, a non-empty item list, unique item IDs and
// the order of the length bounds.
func (v *Validator) Validate(p *domain.TriggerPayload) error {
	if p == nil {
		return &ValidationError{Err: fmt.Errorf("payload is nil")}
	}

	fields := make(map[string]string)

	if err := v.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ValidationError{Err: err}
		}
		for _, fe := range verrs {
			fields[fieldPath(fe)] = fe.Tag()
		}
	}

	if p.ProgramDate.IsZero() {
		fields["program_date"] = "required"
	}

	seen := make(map[string]int, len(p.Items))
	for i, item := range p.Items {
		if item.ID == "" {
			continue
		}
		if first, dup := seen[item.ID]; dup {
			fields[fmt.Sprintf("items[%d].id", i)] = fmt.Sprintf("duplicate of items[%d]", first)
			continue
		}
		seen[item.ID] = i
	}

	if p.Length.MinChars > 0 && p.Length.MaxChars > 0 && p.Length.MinChars > p.Length.MaxChars {
		fields["length.min_chars"] = "gtfield=max_chars"
	}

	if len(p.Items) == 0 {
		if len(fields) == 0 {
			return &ValidationError{Err: ErrNoItems}
		}
		fields["items"] = "required"
		return &ValidationError{Fields: fields, Err: ErrNoItems}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// fieldPath turns "TriggerPayload.items[0].text" into "items[0].text"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
