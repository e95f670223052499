package introspect

import (
	"github.com/apiforge/forge/model"
	"github.com/apiforge/forge/model/field"
	"github.com/apiforge/forge/model/method"
	"github.com/apiforge/forge/model/rel"
)

// ModelDescriptor is the immutable, derived summary of one data model. It
// is the single source of truth for downstream synthesis and is rebuilt
// only on explicit schema refresh.
type ModelDescriptor struct {
	// Name holds the model name.
	Name string
	// Fields holds the scalar fields in declaration order.
	Fields []*FieldDescriptor
	// Relationships holds the relationships in declaration order.
	Relationships []*RelationshipDescriptor
	// Methods holds all declared methods, eligible or not.
	Methods []*MethodDescriptor
	// QuickSearch is the owner-supplied allow-list of quick-search paths.
	QuickSearch []string
	// FilterHooks are the owner-supplied custom filter extensions.
	FilterHooks []model.FilterHook

	pk     *FieldDescriptor
	fields map[string]*FieldDescriptor
	rels   map[string]*RelationshipDescriptor
}

// PrimaryKey returns the model's primary-key field.
func (d *ModelDescriptor) PrimaryKey() *FieldDescriptor {
	return d.pk
}

// Field returns the field descriptor with the given name.
func (d *ModelDescriptor) Field(name string) (*FieldDescriptor, bool) {
	f, ok := d.fields[name]
	return f, ok
}

// Relationship returns the relationship descriptor with the given name.
func (d *ModelDescriptor) Relationship(name string) (*RelationshipDescriptor, bool) {
	r, ok := d.rels[name]
	return r, ok
}

// EligibleMethods returns the methods that qualify for mutation exposure.
func (d *ModelDescriptor) EligibleMethods() []*MethodDescriptor {
	var out []*MethodDescriptor
	for _, m := range d.Methods {
		if m.Eligible {
			out = append(out, m)
		}
	}
	return out
}

// FieldDescriptor is the extracted metadata of one scalar field.
type FieldDescriptor struct {
	Name         string
	Kind         field.Kind
	PrimaryKey   bool
	Nullable     bool
	Blank        bool
	HasDefault   bool
	DefaultValue any
	AutoCreate   bool
	AutoUpdate   bool
	MaxLength    int
	Choices      []string
	Label        string
}

// AutoGenerated reports whether the field value is storage-generated on
// create or update.
func (f *FieldDescriptor) AutoGenerated() bool {
	return f.AutoCreate || f.AutoUpdate
}

// RelationshipDescriptor is the extracted metadata of one relationship.
type RelationshipDescriptor struct {
	Name     string
	Target   string
	Rel      rel.Rel
	Reverse  bool
	Through  string
	OnDelete rel.OnDelete
}

// MethodDescriptor is the extracted metadata of one declared method.
type MethodDescriptor struct {
	Name       string
	Params     []method.Param
	Returns    method.Return
	ScalarKind field.Kind
	Doc        string
	Public     bool
	// Eligible reports mutation-exposure eligibility per the discovery rule.
	// Ineligible methods remain visible as informational metadata.
	Eligible bool

	fn method.Func
}

// Func returns the instance-bound callable, or nil for unbound methods.
func (m *MethodDescriptor) Func() method.Func {
	return m.fn
}
