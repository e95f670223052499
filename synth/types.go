// Package synth converts extracted model descriptors into the type and
// filter descriptors the operation assembler consumes. Descriptors are pure
// data: materializing them into concrete API-framework constructs is the
// materialize packages' job.
package synth

import (
	"fmt"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/introspect"
	"github.com/apiforge/forge/model/field"
)

// Mode selects which face of a model a type descriptor represents.
type Mode string

// Synthesis modes.
const (
	ModeOutput Mode = "output"
	ModeCreate Mode = "create-input"
	ModeUpdate Mode = "update-input"
)

// TypeDescriptor is the synthesized shape of a model in one mode.
type TypeDescriptor struct {
	// Model holds the source model name.
	Model string
	// Name holds the synthesized type name.
	Name string
	// Mode is the synthesis mode this descriptor was built for.
	Mode Mode
	// Fields holds the type fields in declaration order: scalars first,
	// then relationship projections.
	Fields []TypeField
}

// Field returns the type field with the given name.
func (t *TypeDescriptor) Field(name string) (TypeField, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return TypeField{}, false
}

// RequiredFields returns the names of the required fields in order.
func (t *TypeDescriptor) RequiredFields() []string {
	var out []string
	for _, f := range t.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// TypeField is one field of a synthesized type.
type TypeField struct {
	// Name holds the field name. Relationship projections on inputs use the
	// <rel>_id and <rel>_ids forms.
	Name string
	// Kind holds the scalar kind. Empty for nested object projections.
	Kind field.Kind
	// Required reports the mode-specific requiredness.
	Required bool
	// List marks to-many projections.
	List bool
	// Ref names the target model for relationship projections.
	Ref string
	// MaxLength and Choices carry validation metadata for input modes.
	MaxLength int
	Choices   []string
	// Blank reports whether the empty string is a legal value.
	Blank bool
	// PrimaryKey marks the model's primary-key field.
	PrimaryKey bool
}

// Synthesizer builds type and filter descriptors over a set of extracted
// models. The descriptor map is shared, read-only input.
type Synthesizer struct {
	descs map[string]*introspect.ModelDescriptor
}

// NewSynthesizer returns a Synthesizer over the given descriptors.
func NewSynthesizer(descs map[string]*introspect.ModelDescriptor) *Synthesizer {
	return &Synthesizer{descs: descs}
}

// Descriptor returns the model descriptor with the given name.
func (s *Synthesizer) Descriptor(model string) (*introspect.ModelDescriptor, bool) {
	d, ok := s.descs[model]
	return d, ok
}

// Type synthesizes the type descriptor of a model in the given mode.
func (s *Synthesizer) Type(model string, mode Mode) (*TypeDescriptor, error) {
	d, ok := s.descs[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", forge.ErrUnknownModel, model)
	}
	t := &TypeDescriptor{Model: model, Mode: mode}
	switch mode {
	case ModeOutput:
		t.Name = TypeName(model)
	case ModeCreate:
		t.Name = CreateInputName(model)
	case ModeUpdate:
		t.Name = UpdateInputName(model)
	default:
		return nil, fmt.Errorf("unknown synthesis mode %q", mode)
	}
	for _, f := range d.Fields {
		tf, include := synthesizeField(f, mode)
		if include {
			t.Fields = append(t.Fields, tf)
		}
	}
	for _, r := range d.Relationships {
		tf, include, err := s.synthesizeRelationship(r, mode)
		if err != nil {
			return nil, err
		}
		if include {
			t.Fields = append(t.Fields, tf)
		}
	}
	return t, nil
}

// synthesizeField applies the requiredness inference rules for one scalar
// field. The second return value is false when the field is excluded from
// the mode entirely.
func synthesizeField(f *introspect.FieldDescriptor, mode Mode) (TypeField, bool) {
	tf := TypeField{
		Name:       f.Name,
		Kind:       f.Kind,
		MaxLength:  f.MaxLength,
		Choices:    f.Choices,
		Blank:      f.Blank,
		PrimaryKey: f.PrimaryKey,
	}
	switch mode {
	case ModeOutput:
		// Output nullability follows storage nullability alone.
		tf.Required = !f.Nullable
		return tf, true
	case ModeCreate:
		// Auto-generated fields are excluded from inputs, not optional.
		if f.AutoGenerated() {
			return TypeField{}, false
		}
		tf.Required = !f.PrimaryKey &&
			!f.HasDefault &&
			!f.Blank &&
			!f.Nullable
		return tf, true
	case ModeUpdate:
		if f.AutoGenerated() {
			return TypeField{}, false
		}
		tf.Required = f.PrimaryKey
		return tf, true
	}
	return TypeField{}, false
}

// synthesizeRelationship projects a relationship into the mode: a nested
// object on outputs, a reference-by-identifier scalar (or identifier list)
// on inputs. Reverse sides are output-only.
func (s *Synthesizer) synthesizeRelationship(r *introspect.RelationshipDescriptor, mode Mode) (TypeField, bool, error) {
	target, ok := s.descs[r.Target]
	if !ok {
		return TypeField{}, false, fmt.Errorf("%w: relationship %s targets %s", forge.ErrUnknownModel, r.Name, r.Target)
	}
	if mode == ModeOutput {
		return TypeField{
			Name: r.Name,
			List: r.Rel.ToMany(),
			Ref:  r.Target,
		}, true, nil
	}
	// Inputs reference by identifier; lookup-only sides carry no input.
	if r.Reverse {
		return TypeField{}, false, nil
	}
	pk := target.PrimaryKey()
	if r.Rel.ToMany() {
		return TypeField{
			Name: RefListField(r.Name),
			Kind: pk.Kind,
			List: true,
			Ref:  r.Target,
		}, true, nil
	}
	return TypeField{
		Name: RefField(r.Name),
		Kind: pk.Kind,
		Ref:  r.Target,
	}, true, nil
}
