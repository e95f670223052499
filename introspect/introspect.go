// Package introspect extracts immutable descriptors from declared models.
// Extraction is read-only: it never mutates the model and never touches the
// persistence backend.
package introspect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/model"
	"github.com/apiforge/forge/model/method"
	"github.com/apiforge/forge/model/rel"
)

var labelCaser = cases.Title(language.English)

// Extractor resolves models against a registered model set and produces
// descriptors. All models a schema references, including relationship
// targets and through models, must be registered up front.
type Extractor struct {
	models map[string]model.Model
	order  []string
	log    zerolog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the diagnostics logger.
func WithLogger(l zerolog.Logger) Option {
	return func(x *Extractor) {
		x.log = l
	}
}

// New returns an Extractor over the given models. Duplicate model names keep
// the last registration.
func New(models []model.Model, opts ...Option) *Extractor {
	x := &Extractor{
		models: make(map[string]model.Model, len(models)),
		log:    zerolog.Nop(),
	}
	for _, m := range models {
		if _, dup := x.models[m.Name()]; !dup {
			x.order = append(x.order, m.Name())
		}
		x.models[m.Name()] = m
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Models returns the registered model names in registration order.
func (x *Extractor) Models() []string {
	out := make([]string, len(x.order))
	copy(out, x.order)
	return out
}

// Extract builds the descriptor for one model. A declared relationship whose
// target (or through model) is not registered is an IntrospectionError,
// fatal for this model only.
func (x *Extractor) Extract(m model.Model) (*ModelDescriptor, error) {
	name := m.Name()
	if name == "" {
		return nil, forge.NewIntrospectionError("?", "", errors.New("model name cannot be empty"))
	}
	d := &ModelDescriptor{
		Name:   name,
		fields: make(map[string]*FieldDescriptor),
		rels:   make(map[string]*RelationshipDescriptor),
	}
	if err := x.extractFields(m, d); err != nil {
		return nil, err
	}
	if err := x.extractRelationships(m, d); err != nil {
		return nil, err
	}
	if err := x.extractMethods(m, d); err != nil {
		return nil, err
	}
	if qs, ok := m.(model.QuickSearcher); ok {
		paths := qs.QuickSearch()
		d.QuickSearch = make([]string, len(paths))
		copy(d.QuickSearch, paths)
	}
	if fh, ok := m.(model.FilterHooker); ok {
		d.FilterHooks = append(d.FilterHooks, fh.FilterHooks()...)
	}
	return d, nil
}

// ExtractByName builds the descriptor for the registered model with the
// given name.
func (x *Extractor) ExtractByName(name string) (*ModelDescriptor, error) {
	m, ok := x.models[name]
	if !ok {
		return nil, forge.NewIntrospectionError(name, "", forge.ErrUnknownModel)
	}
	return x.Extract(m)
}

// ExtractAll builds descriptors for every registered model. Failures are
// collected per model; sibling models continue to process.
func (x *Extractor) ExtractAll() (map[string]*ModelDescriptor, map[string]error) {
	descs := make(map[string]*ModelDescriptor, len(x.order))
	failed := make(map[string]error)
	for _, name := range x.order {
		d, err := x.Extract(x.models[name])
		if err != nil {
			x.log.Warn().Err(err).Str("model", name).Msg("model excluded from extraction")
			failed[name] = err
			continue
		}
		descs[name] = d
	}
	return descs, failed
}

func (x *Extractor) extractFields(m model.Model, d *ModelDescriptor) error {
	for _, f := range m.Fields() {
		fd := f.Descriptor()
		if fd.Err != nil {
			return forge.NewIntrospectionError(d.Name, fd.Name, fd.Err)
		}
		if _, dup := d.fields[fd.Name]; dup {
			return forge.NewIntrospectionError(d.Name, fd.Name, errors.New("duplicate field name"))
		}
		out := &FieldDescriptor{
			Name:         fd.Name,
			Kind:         fd.Kind,
			PrimaryKey:   fd.PrimaryKey,
			Nullable:     fd.Nullable,
			Blank:        fd.Blank,
			HasDefault:   fd.HasDefault,
			DefaultValue: fd.DefaultValue,
			AutoCreate:   fd.AutoCreate,
			AutoUpdate:   fd.AutoUpdate,
			MaxLength:    fd.MaxLength,
			Label:        fd.Label,
		}
		if len(fd.Choices) > 0 {
			out.Choices = make([]string, len(fd.Choices))
			copy(out.Choices, fd.Choices)
		}
		if out.Label == "" {
			out.Label = displayLabel(out.Name)
		}
		if out.PrimaryKey {
			if d.pk != nil {
				return forge.NewIntrospectionError(d.Name, fd.Name,
					fmt.Errorf("primary key already declared on %q", d.pk.Name))
			}
			d.pk = out
		}
		d.Fields = append(d.Fields, out)
		d.fields[out.Name] = out
	}
	if d.pk == nil {
		return forge.NewIntrospectionError(d.Name, "", errors.New("model declares no primary key"))
	}
	return nil
}

func (x *Extractor) extractRelationships(m model.Model, d *ModelDescriptor) error {
	for _, r := range m.Relationships() {
		rd := r.Descriptor()
		if rd.Err != nil {
			return forge.NewIntrospectionError(d.Name, rd.Name, rd.Err)
		}
		if _, dup := d.rels[rd.Name]; dup {
			return forge.NewIntrospectionError(d.Name, rd.Name, errors.New("duplicate relationship name"))
		}
		if _, clash := d.fields[rd.Name]; clash {
			return forge.NewIntrospectionError(d.Name, rd.Name, errors.New("relationship name collides with a field"))
		}
		if _, ok := x.models[rd.Target]; !ok {
			return forge.NewIntrospectionError(d.Name, rd.Name,
				fmt.Errorf("target model %q is not registered", rd.Target))
		}
		if rd.Through != "" {
			if _, ok := x.models[rd.Through]; !ok {
				return forge.NewIntrospectionError(d.Name, rd.Name,
					fmt.Errorf("through model %q is not registered", rd.Through))
			}
		}
		// Reverse sides are lookup-only; they must never own a cascade.
		if rd.Reverse && rd.OnDelete == rel.Cascade {
			return forge.NewIntrospectionError(d.Name, rd.Name,
				errors.New("reverse relationship cannot own a cascade-delete policy"))
		}
		out := &RelationshipDescriptor{
			Name:     rd.Name,
			Target:   rd.Target,
			Rel:      rd.Rel,
			Reverse:  rd.Reverse,
			Through:  rd.Through,
			OnDelete: rd.OnDelete,
		}
		d.Relationships = append(d.Relationships, out)
		d.rels[out.Name] = out
	}
	return nil
}

func (x *Extractor) extractMethods(m model.Model, d *ModelDescriptor) error {
	seen := make(map[string]bool)
	for _, mm := range m.Methods() {
		md := mm.Descriptor()
		if md.Err != nil {
			return forge.NewIntrospectionError(d.Name, md.Name, md.Err)
		}
		if seen[md.Name] {
			return forge.NewIntrospectionError(d.Name, md.Name, errors.New("duplicate method name"))
		}
		seen[md.Name] = true
		out := &MethodDescriptor{
			Name:       md.Name,
			Params:     append([]method.Param(nil), md.Params...),
			Returns:    md.Returns,
			ScalarKind: md.ScalarKind,
			Doc:        md.Doc,
			Public:     md.Public(),
			Eligible:   md.Eligible(),
			fn:         md.Fn,
		}
		d.Methods = append(d.Methods, out)
	}
	return nil
}

// displayLabel derives a human-readable label from a field name.
func displayLabel(name string) string {
	return labelCaser.String(strings.ReplaceAll(name, "_", " "))
}
