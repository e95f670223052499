// Package field provides the builders for declaring model fields. Builders
// collect their configuration into a Descriptor; invalid combinations are
// deferred onto Descriptor.Err and reported at extraction time.
package field

import (
	"errors"
	"fmt"
)

// Kind is the underlying storage kind of a field.
type Kind string

// Storage kinds.
const (
	KindText     Kind = "text"
	KindInteger  Kind = "integer"
	KindFloat    Kind = "float"
	KindBoolean  Kind = "boolean"
	KindDateTime Kind = "datetime"
	KindDate     Kind = "date"
	KindDecimal  Kind = "decimal"
	KindBinary   Kind = "binary"
	KindEnum     Kind = "enum"
)

// Numeric reports whether the kind supports ordering comparisons.
func (k Kind) Numeric() bool {
	return k == KindInteger || k == KindFloat || k == KindDecimal
}

// Temporal reports whether the kind carries a date component.
func (k Kind) Temporal() bool {
	return k == KindDateTime || k == KindDate
}

// Valid reports whether the kind is one of the declared storage kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindInteger, KindFloat, KindBoolean, KindDateTime,
		KindDate, KindDecimal, KindBinary, KindEnum:
		return true
	}
	return false
}

// Descriptor holds the accumulated configuration of a field builder.
type Descriptor struct {
	Name         string
	Kind         Kind
	PrimaryKey   bool
	Nullable     bool
	Blank        bool // blank ("") accepted on text kinds
	HasDefault   bool
	DefaultValue any
	AutoCreate   bool // value generated by storage on create
	AutoUpdate   bool // value regenerated by storage on update
	MaxLength    int  // 0 means unbounded
	Choices      []string
	Label        string
	Err          error
}

func (d *Descriptor) setErr(err error) {
	if d.Err == nil {
		d.Err = err
	}
}

func newDescriptor(name string, kind Kind) *Descriptor {
	d := &Descriptor{Name: name, Kind: kind}
	if name == "" {
		d.setErr(errors.New("field name cannot be empty"))
	}
	return d
}

// Text returns a new text field builder.
func Text(name string) *TextBuilder {
	return &TextBuilder{desc: newDescriptor(name, KindText)}
}

// Integer returns a new integer field builder.
func Integer(name string) *NumericBuilder {
	return &NumericBuilder{desc: newDescriptor(name, KindInteger)}
}

// Float returns a new float field builder.
func Float(name string) *NumericBuilder {
	return &NumericBuilder{desc: newDescriptor(name, KindFloat)}
}

// Decimal returns a new fixed-precision decimal field builder.
func Decimal(name string) *NumericBuilder {
	return &NumericBuilder{desc: newDescriptor(name, KindDecimal)}
}

// Boolean returns a new boolean field builder.
func Boolean(name string) *BoolBuilder {
	return &BoolBuilder{desc: newDescriptor(name, KindBoolean)}
}

// DateTime returns a new datetime field builder.
func DateTime(name string) *TimeBuilder {
	return &TimeBuilder{desc: newDescriptor(name, KindDateTime)}
}

// Date returns a new date field builder.
func Date(name string) *TimeBuilder {
	return &TimeBuilder{desc: newDescriptor(name, KindDate)}
}

// Binary returns a new binary field builder.
func Binary(name string) *BinaryBuilder {
	return &BinaryBuilder{desc: newDescriptor(name, KindBinary)}
}

// Enum returns a new enum field builder. At least one choice is required.
func Enum(name string, choices ...string) *EnumBuilder {
	d := newDescriptor(name, KindEnum)
	if len(choices) == 0 {
		d.setErr(errors.New("enum field requires at least one choice"))
	}
	seen := make(map[string]bool, len(choices))
	for _, c := range choices {
		if seen[c] {
			d.setErr(fmt.Errorf("duplicate enum choice %q", c))
			break
		}
		seen[c] = true
	}
	d.Choices = choices
	return &EnumBuilder{desc: d}
}

// TextBuilder builds a text field.
type TextBuilder struct {
	desc *Descriptor
}

// PrimaryKey marks the field as the model's primary key.
func (b *TextBuilder) PrimaryKey() *TextBuilder {
	b.desc.PrimaryKey = true
	return b
}

// Nullable allows NULL in storage.
func (b *TextBuilder) Nullable() *TextBuilder {
	b.desc.Nullable = true
	return b
}

// Blank allows the empty string as a value.
func (b *TextBuilder) Blank() *TextBuilder {
	b.desc.Blank = true
	return b
}

// Default sets the default value used on create.
func (b *TextBuilder) Default(v string) *TextBuilder {
	b.desc.HasDefault = true
	b.desc.DefaultValue = v
	return b
}

// MaxLength bounds the stored length.
func (b *TextBuilder) MaxLength(n int) *TextBuilder {
	if n <= 0 {
		b.desc.setErr(fmt.Errorf("max length must be positive, got %d", n))
		return b
	}
	b.desc.MaxLength = n
	return b
}

// Label sets the display label.
func (b *TextBuilder) Label(s string) *TextBuilder {
	b.desc.Label = s
	return b
}

// Descriptor returns the accumulated descriptor.
func (b *TextBuilder) Descriptor() *Descriptor {
	return b.desc
}

// NumericBuilder builds integer, float and decimal fields.
type NumericBuilder struct {
	desc *Descriptor
}

// PrimaryKey marks the field as the model's primary key.
func (b *NumericBuilder) PrimaryKey() *NumericBuilder {
	b.desc.PrimaryKey = true
	return b
}

// AutoCreate marks the value as storage-generated on create, e.g. an
// auto-incrementing key. Auto-generated fields never appear in inputs.
func (b *NumericBuilder) AutoCreate() *NumericBuilder {
	b.desc.AutoCreate = true
	return b
}

// Nullable allows NULL in storage.
func (b *NumericBuilder) Nullable() *NumericBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the default value used on create.
func (b *NumericBuilder) Default(v any) *NumericBuilder {
	b.desc.HasDefault = true
	b.desc.DefaultValue = v
	return b
}

// Label sets the display label.
func (b *NumericBuilder) Label(s string) *NumericBuilder {
	b.desc.Label = s
	return b
}

// Descriptor returns the accumulated descriptor.
func (b *NumericBuilder) Descriptor() *Descriptor {
	return b.desc
}

// BoolBuilder builds a boolean field.
type BoolBuilder struct {
	desc *Descriptor
}

// Nullable allows NULL in storage.
func (b *BoolBuilder) Nullable() *BoolBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the default value used on create.
func (b *BoolBuilder) Default(v bool) *BoolBuilder {
	b.desc.HasDefault = true
	b.desc.DefaultValue = v
	return b
}

// Label sets the display label.
func (b *BoolBuilder) Label(s string) *BoolBuilder {
	b.desc.Label = s
	return b
}

// Descriptor returns the accumulated descriptor.
func (b *BoolBuilder) Descriptor() *Descriptor {
	return b.desc
}

// TimeBuilder builds datetime and date fields.
type TimeBuilder struct {
	desc *Descriptor
}

// Nullable allows NULL in storage.
func (b *TimeBuilder) Nullable() *TimeBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the default value used on create.
func (b *TimeBuilder) Default(v any) *TimeBuilder {
	b.desc.HasDefault = true
	b.desc.DefaultValue = v
	return b
}

// AutoCreate stamps the field with the wall clock on create. Auto-generated
// fields never appear in inputs.
func (b *TimeBuilder) AutoCreate() *TimeBuilder {
	b.desc.AutoCreate = true
	return b
}

// AutoUpdate re-stamps the field with the wall clock on every update.
func (b *TimeBuilder) AutoUpdate() *TimeBuilder {
	b.desc.AutoUpdate = true
	return b
}

// Label sets the display label.
func (b *TimeBuilder) Label(s string) *TimeBuilder {
	b.desc.Label = s
	return b
}

// Descriptor returns the accumulated descriptor.
func (b *TimeBuilder) Descriptor() *Descriptor {
	return b.desc
}

// BinaryBuilder builds a binary field.
type BinaryBuilder struct {
	desc *Descriptor
}

// Nullable allows NULL in storage.
func (b *BinaryBuilder) Nullable() *BinaryBuilder {
	b.desc.Nullable = true
	return b
}

// MaxLength bounds the stored length.
func (b *BinaryBuilder) MaxLength(n int) *BinaryBuilder {
	if n <= 0 {
		b.desc.setErr(fmt.Errorf("max length must be positive, got %d", n))
		return b
	}
	b.desc.MaxLength = n
	return b
}

// Label sets the display label.
func (b *BinaryBuilder) Label(s string) *BinaryBuilder {
	b.desc.Label = s
	return b
}

// Descriptor returns the accumulated descriptor.
func (b *BinaryBuilder) Descriptor() *Descriptor {
	return b.desc
}

// EnumBuilder builds an enum field.
type EnumBuilder struct {
	desc *Descriptor
}

// Nullable allows NULL in storage.
func (b *EnumBuilder) Nullable() *EnumBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the default choice used on create. The value must be one of
// the declared choices.
func (b *EnumBuilder) Default(v string) *EnumBuilder {
	found := false
	for _, c := range b.desc.Choices {
		if c == v {
			found = true
			break
		}
	}
	if !found {
		b.desc.setErr(fmt.Errorf("default %q is not a declared choice", v))
		return b
	}
	b.desc.HasDefault = true
	b.desc.DefaultValue = v
	return b
}

// Label sets the display label.
func (b *EnumBuilder) Label(s string) *EnumBuilder {
	b.desc.Label = s
	return b
}

// Descriptor returns the accumulated descriptor.
func (b *EnumBuilder) Descriptor() *Descriptor {
	return b.desc
}
