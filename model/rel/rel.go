// Package rel provides the builders for declaring model relationships.
package rel

import "errors"

// Rel is the cardinality of a relationship.
type Rel int

// Relationship cardinalities.
const (
	Unk Rel = iota
	O2O     // one-to-one
	M2O     // many-to-one: this side owns the foreign reference
	O2M     // one-to-many
	M2M     // many-to-many
)

// String returns the cardinality name.
func (r Rel) String() string {
	switch r {
	case O2O:
		return "O2O"
	case M2O:
		return "M2O"
	case O2M:
		return "O2M"
	case M2M:
		return "M2M"
	default:
		return "Unknown"
	}
}

// ToMany reports whether the relationship targets a collection.
func (r Rel) ToMany() bool {
	return r == O2M || r == M2M
}

// OnDelete is the cascade policy applied when the target is deleted.
type OnDelete string

// Cascade policies.
const (
	Cascade  OnDelete = "cascade"
	SetNull  OnDelete = "set_null"
	Restrict OnDelete = "restrict"
	NoAction OnDelete = "no_action"
)

// Descriptor holds the accumulated configuration of a relationship builder.
type Descriptor struct {
	Name     string
	Target   string // target model name
	Rel      Rel
	Reverse  bool   // lookup-only side, does not own the foreign reference
	Through  string // intermediate model for M2M with attributes
	OnDelete OnDelete
	Err      error
}

func (d *Descriptor) setErr(err error) {
	if d.Err == nil {
		d.Err = err
	}
}

func newDescriptor(name, target string, r Rel) *Descriptor {
	d := &Descriptor{Name: name, Target: target, Rel: r, OnDelete: Restrict}
	if name == "" {
		d.setErr(errors.New("relationship name cannot be empty"))
	}
	if target == "" {
		d.setErr(errors.New("relationship target cannot be empty"))
	}
	return d
}

// Builder builds a relationship descriptor.
type Builder struct {
	desc *Descriptor
}

// OneToOne declares a one-to-one relationship to target.
func OneToOne(name, target string) *Builder {
	return &Builder{desc: newDescriptor(name, target, O2O)}
}

// ManyToOne declares a many-to-one relationship to target. This side owns
// the foreign reference.
func ManyToOne(name, target string) *Builder {
	return &Builder{desc: newDescriptor(name, target, M2O)}
}

// OneToMany declares a one-to-many relationship to target. One-to-many
// sides are reverse by construction: the foreign reference lives on the
// target.
func OneToMany(name, target string) *Builder {
	b := &Builder{desc: newDescriptor(name, target, O2M)}
	b.desc.Reverse = true
	return b
}

// ManyToMany declares a many-to-many relationship to target.
func ManyToMany(name, target string) *Builder {
	return &Builder{desc: newDescriptor(name, target, M2M)}
}

// Reverse marks this side as the lookup-only side of the relationship.
// Reverse relationships never own the foreign reference and are never
// treated as cascading-delete owners.
func (b *Builder) Reverse() *Builder {
	b.desc.Reverse = true
	return b
}

// Through names the intermediate model of a many-to-many relationship with
// attributes. Setting it on any other cardinality is a declaration error.
func (b *Builder) Through(model string) *Builder {
	if b.desc.Rel != M2M {
		b.desc.setErr(errors.New("through model is only valid on many-to-many relationships"))
		return b
	}
	b.desc.Through = model
	return b
}

// OnDelete sets the cascade policy. Reverse sides reject ownership-implying
// policies at extraction time.
func (b *Builder) OnDelete(p OnDelete) *Builder {
	b.desc.OnDelete = p
	return b
}

// Descriptor returns the accumulated descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
