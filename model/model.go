// Package model defines the interface a data model implements to enter the
// synthesis pipeline, together with the optional capability interfaces for
// quick search and custom filter hooks.
package model

import (
	"github.com/apiforge/forge"
	"github.com/apiforge/forge/model/field"
	"github.com/apiforge/forge/model/method"
	"github.com/apiforge/forge/model/rel"
)

// Field is a declared field of a model.
type Field interface {
	Descriptor() *field.Descriptor
}

// Relationship is a declared relationship of a model.
type Relationship interface {
	Descriptor() *rel.Descriptor
}

// Method is a declared method of a model.
type Method interface {
	Descriptor() *method.Descriptor
}

// Model is the declaration interface. Implementations are plain value types
// describing one data model; they hold no runtime state.
type Model interface {
	Name() string
	Fields() []Field
	Relationships() []Relationship
	Methods() []Method
}

// QuickSearcher is implemented by models that opt into free-text quick
// search. The returned paths form an explicit allow-list of leaf fields;
// quick search is never auto-derived from all text fields.
type QuickSearcher interface {
	QuickSearch() []string
}

// FilterHook is a named, model-owner-authored filter extension merged
// verbatim into the synthesized filter tree. Hooks are trusted extensions,
// not untrusted input; the synthesizer only checks the name for collisions
// with generated field-operator names.
type FilterHook struct {
	Name string
	// Apply converts the caller-supplied value into a runtime predicate.
	Apply func(value any) *forge.Predicate
}

// FilterHooker is implemented by models that supply custom filter hooks.
type FilterHooker interface {
	FilterHooks() []FilterHook
}

// Base is a convenience embedding that provides empty declarations for the
// optional parts of a model.
type Base struct{}

// Relationships returns no relationships.
func (Base) Relationships() []Relationship { return nil }

// Methods returns no methods.
func (Base) Methods() []Method { return nil }
