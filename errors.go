package forge

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested object does not exist.
	ErrNotFound = errors.New("forge: object not found")

	// ErrNotPermitted is returned when the authorization collaborator denies
	// an operation. The message is intentionally generic.
	ErrNotPermitted = errors.New("forge: not permitted")

	// ErrTooManyObjects is returned when a bulk request exceeds the
	// configured object ceiling. No storage work happens in that case.
	ErrTooManyObjects = errors.New("forge: bulk request exceeds object limit")

	// ErrUnknownModel is returned when an operation references a model that
	// is not part of the schema unit.
	ErrUnknownModel = errors.New("forge: unknown model")
)

// IntrospectionError reports unresolvable model or relationship metadata.
// It is fatal for the offending model's descriptor build only; sibling
// models continue to process.
type IntrospectionError struct {
	Model string // model being extracted
	Ref   string // offending field, relationship or method name
	Err   error  // underlying cause
}

// Error returns the error string.
func (e *IntrospectionError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("forge: introspecting %s.%s: %v", e.Model, e.Ref, e.Err)
	}
	return fmt.Sprintf("forge: introspecting %s: %v", e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *IntrospectionError) Unwrap() error {
	return e.Err
}

// NewIntrospectionError returns a new IntrospectionError.
func NewIntrospectionError(model, ref string, err error) *IntrospectionError {
	return &IntrospectionError{Model: model, Ref: ref, Err: err}
}

// IsIntrospectionError returns true if the error is an IntrospectionError.
func IsIntrospectionError(err error) bool {
	if err == nil {
		return false
	}
	var e *IntrospectionError
	return errors.As(err, &e)
}

// FilterConfigurationError reports a build-time misconfiguration of a
// model's filter tree, such as a custom filter hook colliding with a
// generated operator name. Fatal for that model's filter tree only.
type FilterConfigurationError struct {
	Model string
	Name  string // colliding or misconfigured entry
	Err   error
}

// Error returns the error string.
func (e *FilterConfigurationError) Error() string {
	return fmt.Sprintf("forge: filter configuration for %s (%s): %v", e.Model, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *FilterConfigurationError) Unwrap() error {
	return e.Err
}

// NewFilterConfigurationError returns a new FilterConfigurationError.
func NewFilterConfigurationError(model, name string, err error) *FilterConfigurationError {
	return &FilterConfigurationError{Model: model, Name: name, Err: err}
}

// IsFilterConfigurationError returns true if the error is a
// FilterConfigurationError.
func IsFilterConfigurationError(err error) bool {
	if err == nil {
		return false
	}
	var e *FilterConfigurationError
	return errors.As(err, &e)
}

// ValidationError reports a field-level validation failure on a single
// object. It is recovered locally and surfaced as an envelope error entry;
// it never aborts sibling objects in a different batch.
type ValidationError struct {
	Field string // offending field, empty when not attributable
	Err   error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("forge: validation failed for field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("forge: validation failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// ConstraintKind classifies a storage constraint violation.
type ConstraintKind string

// Constraint kinds recognized by the attribution logic.
const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintNotNull    ConstraintKind = "not_null"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintUnknown    ConstraintKind = "unknown"
)

// ConstraintError represents a storage-detected constraint violation.
// Field carries the offending column when it can be derived from the
// backend's error shape, and is empty for non-attributable violations.
type ConstraintError struct {
	Kind  ConstraintKind
	Field string
	msg   string
	wrap  error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("forge: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e *ConstraintError) Unwrap() error {
	return e.wrap
}

// Message returns the backend message without the package prefix.
func (e *ConstraintError) Message() string {
	return e.msg
}

// NewConstraintError returns a new ConstraintError.
func NewConstraintError(kind ConstraintKind, field, msg string, wrap error) *ConstraintError {
	return &ConstraintError{Kind: kind, Field: field, msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConstraintError
	return errors.As(err, &e)
}

// NotFoundError reports that a single object lookup matched nothing.
type NotFoundError struct {
	Model string
	ID    any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("forge: %s not found (id=%v)", e.Model, e.ID)
	}
	return fmt.Sprintf("forge: %s not found", e.Model)
}

// Is reports whether the target error matches NotFoundError. This allows
// errors.Is(err, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// NewNotFoundError returns a new NotFoundError.
func NewNotFoundError(model string, id any) *NotFoundError {
	return &NotFoundError{Model: model, ID: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// PermissionError reports an authorization denial. It carries no reason;
// callers receive the same generic message regardless of cause.
type PermissionError struct {
	Op    OpKind
	Model string
}

// Error returns the error string.
func (e *PermissionError) Error() string {
	return "forge: not permitted"
}

// Is reports whether the target error matches PermissionError.
func (e *PermissionError) Is(err error) bool {
	return err == ErrNotPermitted
}

// NewPermissionError returns a new PermissionError.
func NewPermissionError(op OpKind, model string) *PermissionError {
	return &PermissionError{Op: op, Model: model}
}

// IsPermissionError returns true if the error is a PermissionError.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	var e *PermissionError
	return errors.As(err, &e) || errors.Is(err, ErrNotPermitted)
}

// BuildError aggregates the per-model failures collected during a schema
// build. Offending models are excluded from the schema rather than failing
// the whole build.
type BuildError struct {
	Schema string
	Models map[string]error
}

// Error returns the error string.
func (e *BuildError) Error() string {
	if len(e.Models) == 0 {
		return fmt.Sprintf("forge: building schema %q: no errors", e.Schema)
	}
	names := make([]string, 0, len(e.Models))
	for name := range e.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	fmt.Fprintf(&sb, "forge: building schema %q: %d model(s) excluded:", e.Schema, len(e.Models))
	for _, name := range names {
		fmt.Fprintf(&sb, "\n  %s: %v", name, e.Models[name])
	}
	return sb.String()
}

// asErr is a small generic alias for errors.As used by the envelope helpers.
func asErr[T error](err error, target *T) bool {
	return errors.As(err, target)
}

// IsBuildError returns true if the error is a BuildError.
func IsBuildError(err error) bool {
	if err == nil {
		return false
	}
	var e *BuildError
	return errors.As(err, &e)
}
