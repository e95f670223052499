// Package method provides the builders for declaring model methods.
// Mutation exposure is an explicit capability tag set with Expose; the
// extractor never scans callables by reflection.
package method

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/model/field"
)

// Return classifies what an exposed method yields.
type Return string

// Return classes. Self and the scalar kinds are mutation-eligible; Other is
// informational metadata only.
const (
	ReturnSelf   Return = "self"
	ReturnBool   Return = "boolean"
	ReturnScalar Return = "scalar"
	ReturnOther  Return = "other"
)

// Func is an instance-bound callable. It receives the owning instance as a
// record and the declared arguments by name.
type Func func(ctx context.Context, instance forge.Record, args map[string]any) (any, error)

// Param is one declared method parameter.
type Param struct {
	Name       string
	Kind       field.Kind
	HasDefault bool
	Default    any
}

// Descriptor holds the accumulated configuration of a method builder.
type Descriptor struct {
	Name       string
	Params     []Param
	Returns    Return
	ScalarKind field.Kind // set when Returns == ReturnScalar
	Doc        string
	Exposed    bool
	Fn         Func
	Err        error
}

// Public reports whether the method name follows the public naming
// convention (no leading underscore).
func (d *Descriptor) Public() bool {
	return !strings.HasPrefix(d.Name, "_")
}

// Eligible reports whether the method qualifies for mutation exposure:
// public, explicitly tagged, instance-bound, and returning the owning
// instance, a boolean, or a scalar.
func (d *Descriptor) Eligible() bool {
	if !d.Exposed || !d.Public() || d.Fn == nil {
		return false
	}
	switch d.Returns {
	case ReturnSelf, ReturnBool, ReturnScalar:
		return true
	default:
		return false
	}
}

func (d *Descriptor) setErr(err error) {
	if d.Err == nil {
		d.Err = err
	}
}

// Builder builds a method descriptor.
type Builder struct {
	desc *Descriptor
}

// New declares a method with the given name. The return class defaults to
// Other until declared.
func New(name string) *Builder {
	d := &Descriptor{Name: name, Returns: ReturnOther}
	if name == "" {
		d.setErr(errors.New("method name cannot be empty"))
	}
	return &Builder{desc: d}
}

// Param declares a parameter with an inferred scalar kind.
func (b *Builder) Param(name string, kind field.Kind) *Builder {
	return b.param(name, kind, false, nil)
}

// DefaultParam declares a parameter with a default value.
func (b *Builder) DefaultParam(name string, kind field.Kind, def any) *Builder {
	return b.param(name, kind, true, def)
}

func (b *Builder) param(name string, kind field.Kind, hasDefault bool, def any) *Builder {
	if name == "" {
		b.desc.setErr(errors.New("parameter name cannot be empty"))
		return b
	}
	if !kind.Valid() {
		b.desc.setErr(fmt.Errorf("parameter %q has invalid kind %q", name, kind))
		return b
	}
	for _, p := range b.desc.Params {
		if p.Name == name {
			b.desc.setErr(fmt.Errorf("duplicate parameter %q", name))
			return b
		}
	}
	b.desc.Params = append(b.desc.Params, Param{Name: name, Kind: kind, HasDefault: hasDefault, Default: def})
	return b
}

// ReturnsSelf declares that the method returns the owning instance.
func (b *Builder) ReturnsSelf() *Builder {
	b.desc.Returns = ReturnSelf
	return b
}

// ReturnsBool declares a boolean return.
func (b *Builder) ReturnsBool() *Builder {
	b.desc.Returns = ReturnBool
	return b
}

// ReturnsScalar declares a scalar return of the given kind.
func (b *Builder) ReturnsScalar(kind field.Kind) *Builder {
	if !kind.Valid() {
		b.desc.setErr(fmt.Errorf("invalid scalar return kind %q", kind))
		return b
	}
	b.desc.Returns = ReturnScalar
	b.desc.ScalarKind = kind
	return b
}

// Doc sets the docstring.
func (b *Builder) Doc(s string) *Builder {
	b.desc.Doc = s
	return b
}

// Expose tags the method as a mutation candidate.
func (b *Builder) Expose() *Builder {
	b.desc.Exposed = true
	return b
}

// Bind attaches the instance-bound callable.
func (b *Builder) Bind(fn Func) *Builder {
	b.desc.Fn = fn
	return b
}

// Descriptor returns the accumulated descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
