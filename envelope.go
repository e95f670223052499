package forge

import "fmt"

// ResultError is one entry in an envelope's error list. Field is nil when
// the error cannot be attributed to a single field.
type ResultError struct {
	Field   *string `json:"field"`
	Message string  `json:"message"`
}

// FieldError returns a ResultError attributed to the given field.
func FieldError(field, message string) ResultError {
	return ResultError{Field: &field, Message: message}
}

// GlobalError returns a non-attributable ResultError.
func GlobalError(message string) ResultError {
	return ResultError{Message: message}
}

// IndexedError returns a non-attributable ResultError addressing the object
// at zero-based position i of a bulk input. Messages number objects from 1.
func IndexedError(i int, message string) ResultError {
	return GlobalError(fmt.Sprintf("Object %d: %s", i+1, message))
}

// Envelope is the standardized result shape returned by every mutation and
// bulk mutation: OK is true iff the error list is empty.
type Envelope struct {
	OK     bool          `json:"ok"`
	Data   any           `json:"data"`
	Errors []ResultError `json:"errors,omitempty"`

	// Objects lists the processed or deleted identifiers for bulk variants,
	// in input order. Nil for non-bulk operations.
	Objects []any `json:"objects,omitempty"`
}

// OkEnvelope returns a successful envelope wrapping data.
func OkEnvelope(data any) Envelope {
	return Envelope{OK: true, Data: data}
}

// FailEnvelope returns a failed envelope with the given errors. At least
// one error entry is required for OK to be false; callers violating that
// get a generic entry so the partial-success invariant holds.
func FailEnvelope(data any, errs ...ResultError) Envelope {
	if len(errs) == 0 {
		errs = []ResultError{GlobalError("unknown error")}
	}
	return Envelope{OK: false, Data: data, Errors: errs}
}

// EnvelopeFor builds an envelope from collected errors, deriving OK from
// the error list being empty.
func EnvelopeFor(data any, errs []ResultError) Envelope {
	return Envelope{OK: len(errs) == 0, Data: data, Errors: errs}
}

// ErrorEntry converts an error from the taxonomy into a ResultError,
// attributing a field where the error carries one. Permission errors always
// map to the generic "not permitted" message.
func ErrorEntry(err error) ResultError {
	switch {
	case err == nil:
		return GlobalError("unknown error")
	case IsPermissionError(err):
		return GlobalError("not permitted")
	}
	var ve *ValidationError
	if asErr(err, &ve) && ve.Field != "" {
		return FieldError(ve.Field, ve.Err.Error())
	}
	var ce *ConstraintError
	if asErr(err, &ce) && ce.Field != "" {
		return FieldError(ce.Field, ce.Message())
	}
	if asErr(err, &ce) {
		return GlobalError(ce.Message())
	}
	return GlobalError(err.Error())
}
