// Package gencode materializes synthesized type descriptors into Go source:
// one file per model carrying the output struct, the create and update
// input structs, and typed constants for enum fields. Files are emitted in
// parallel and formatted with goimports.
package gencode

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/iancoleman/strcase"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/imports"

	"github.com/apiforge/forge/model/field"
	"github.com/apiforge/forge/synth"
)

const header = "Code generated by forge. DO NOT EDIT."

// Generator emits Go value types for a set of models.
type Generator struct {
	syn     *synth.Synthesizer
	outDir  string
	pkg     string
	workers int
	log     zerolog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithPackage sets the package name of the emitted files. Defaults to the
// output directory's base name.
func WithPackage(name string) Option {
	return func(g *Generator) {
		g.pkg = name
	}
}

// WithWorkers bounds the emission parallelism.
func WithWorkers(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Generator) {
		g.log = l
	}
}

// New returns a Generator writing into outDir.
func New(syn *synth.Synthesizer, outDir string, opts ...Option) *Generator {
	g := &Generator{
		syn:     syn,
		outDir:  outDir,
		pkg:     filepath.Base(outDir),
		workers: runtime.GOMAXPROCS(0),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate emits one source file per model, in parallel.
func (g *Generator) Generate(ctx context.Context, models []string) error {
	if err := os.MkdirAll(g.outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for _, m := range models {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return g.generateModel(m)
			}
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	g.log.Info().Int("models", len(models)).Str("dir", g.outDir).Msg("code generated")
	return nil
}

// Source renders the formatted source of one model file.
func (g *Generator) Source(model string) ([]byte, error) {
	f, err := g.File(model)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", model, err)
	}
	formatted, err := imports.Process(g.fileName(model), buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", model, err)
	}
	return formatted, nil
}

func (g *Generator) generateModel(model string) error {
	src, err := g.Source(model)
	if err != nil {
		return err
	}
	path := filepath.Join(g.outDir, g.fileName(model))
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (g *Generator) fileName(model string) string {
	return strcase.ToSnake(model) + ".go"
}

// File builds the jennifer file for one model: enums, then the output
// struct, then the two input structs.
func (g *Generator) File(model string) (*jen.File, error) {
	output, err := g.syn.Type(model, synth.ModeOutput)
	if err != nil {
		return nil, err
	}
	create, err := g.syn.Type(model, synth.ModeCreate)
	if err != nil {
		return nil, err
	}
	update, err := g.syn.Type(model, synth.ModeUpdate)
	if err != nil {
		return nil, err
	}

	f := jen.NewFile(g.pkg)
	f.HeaderComment(header)

	for _, tf := range output.Fields {
		if tf.Kind == field.KindEnum && len(tf.Choices) > 0 {
			g.enumType(f, model, tf)
		}
	}

	g.structType(f, model, output,
		fmt.Sprintf("%s is the output shape of the %s model.", output.Name, model))
	g.structType(f, model, create,
		fmt.Sprintf("%s carries the writable fields for creating a %s.", create.Name, model))
	g.structType(f, model, update,
		fmt.Sprintf("%s identifies a %s by primary key and carries the fields to change.", update.Name, model))
	return f, nil
}

// enumType emits a string type plus one constant per choice.
func (g *Generator) enumType(f *jen.File, model string, tf synth.TypeField) {
	name := enumName(model, tf.Name)
	f.Commentf("%s enumerates the %s values of %s.", name, tf.Name, model)
	f.Type().Id(name).String()
	f.Const().DefsFunc(func(defs *jen.Group) {
		for _, c := range tf.Choices {
			defs.Id(name + strcase.ToCamel(c)).Id(name).Op("=").Lit(c)
		}
	})
}

func (g *Generator) structType(f *jen.File, model string, t *synth.TypeDescriptor, doc string) {
	f.Comment(doc)
	f.Type().Id(t.Name).StructFunc(func(st *jen.Group) {
		for _, tf := range t.Fields {
			st.Id(goName(tf.Name)).Add(g.goType(model, t.Mode, tf)).Tag(jsonTag(tf))
		}
	})
}

// goType maps a synthesized field to its Go representation. Optional
// scalars are pointers; lists and byte slices are nil-able as they are.
func (g *Generator) goType(model string, mode synth.Mode, tf synth.TypeField) *jen.Statement {
	var base *jen.Statement
	switch {
	case tf.Ref != "" && tf.Kind == "":
		// Nested output projection.
		base = jen.Op("*").Id(synth.TypeName(tf.Ref))
		if tf.List {
			return jen.Index().Op("*").Id(synth.TypeName(tf.Ref))
		}
		return base
	case tf.Kind == field.KindEnum && len(tf.Choices) > 0:
		base = jen.Id(enumName(model, tf.Name))
	default:
		base = scalarStatement(tf.Kind)
	}
	if tf.List {
		return jen.Index().Add(base)
	}
	if tf.Kind == field.KindBinary {
		return base
	}
	if !tf.Required {
		return jen.Op("*").Add(base)
	}
	return base
}

func scalarStatement(k field.Kind) *jen.Statement {
	switch k {
	case field.KindInteger:
		return jen.Int64()
	case field.KindFloat, field.KindDecimal:
		return jen.Float64()
	case field.KindBoolean:
		return jen.Bool()
	case field.KindDate, field.KindDateTime:
		return jen.Qual("time", "Time")
	case field.KindBinary:
		return jen.Index().Byte()
	default:
		return jen.String()
	}
}

func jsonTag(tf synth.TypeField) map[string]string {
	tag := tf.Name
	if !tf.Required {
		tag += ",omitempty"
	}
	return map[string]string{"json": tag}
}

func enumName(model, fieldName string) string {
	return synth.TypeName(model) + strcase.ToCamel(fieldName)
}

// goName converts a snake_case field name to an exported Go identifier,
// keeping the conventional initialisms upper-cased.
func goName(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		switch p {
		case "id":
			parts[i] = "ID"
		case "ids":
			parts[i] = "IDs"
		case "url":
			parts[i] = "URL"
		case "uuid":
			parts[i] = "UUID"
		default:
			parts[i] = strcase.ToCamel(p)
		}
	}
	return strings.Join(parts, "")
}
