package assemble

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/model/field"
	"github.com/apiforge/forge/synth"
)

// validateInput checks a caller payload against an input type descriptor.
// All violations are collected so the envelope can report every problem at
// once rather than the first.
func validateInput(td *synth.TypeDescriptor, input forge.Record) []error {
	var errs []error
	for name := range input {
		if _, ok := td.Field(name); !ok {
			errs = append(errs, forge.NewValidationError(name, fmt.Errorf("unknown field")))
		}
	}
	for _, f := range td.Fields {
		value, present := input[f.Name]
		if !present {
			if f.Required {
				errs = append(errs, forge.NewValidationError(f.Name, fmt.Errorf("required field is missing")))
			}
			continue
		}
		if err := validateValue(f, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// validateValue checks one provided field value against its declaration.
func validateValue(f synth.TypeField, value any) error {
	if value == nil {
		if f.Required {
			return forge.NewValidationError(f.Name, fmt.Errorf("cannot be null"))
		}
		return nil
	}
	switch f.Kind {
	case field.KindText:
		s, ok := value.(string)
		if !ok {
			return forge.NewValidationError(f.Name, fmt.Errorf("expects a string, got %T", value))
		}
		if s == "" && !f.Blank {
			return forge.NewValidationError(f.Name, fmt.Errorf("cannot be blank"))
		}
		if f.MaxLength > 0 && len(s) > f.MaxLength {
			return forge.NewValidationError(f.Name, fmt.Errorf("exceeds maximum length %d", f.MaxLength))
		}
	case field.KindEnum:
		s, ok := value.(string)
		if !ok {
			return forge.NewValidationError(f.Name, fmt.Errorf("expects a string, got %T", value))
		}
		if !lo.Contains(f.Choices, s) {
			return forge.NewValidationError(f.Name, fmt.Errorf("%q is not a valid choice", s))
		}
	case field.KindBoolean:
		if _, ok := value.(bool); !ok {
			return forge.NewValidationError(f.Name, fmt.Errorf("expects a boolean, got %T", value))
		}
	}
	return nil
}

// validationEntries maps collected validation errors into envelope entries.
func validationEntries(errs []error) []forge.ResultError {
	out := make([]forge.ResultError, 0, len(errs))
	for _, err := range errs {
		out = append(out, forge.ErrorEntry(err))
	}
	return out
}
