// Package sdl materializes assembled operation descriptors into a GraphQL
// schema document. The renderer builds a gqlparser AST and formats it, so
// the output is structurally valid by construction; Schema additionally
// round-trips the document through gqlparser's schema loader.
package sdl

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/assemble"
	"github.com/apiforge/forge/model/field"
	"github.com/apiforge/forge/synth"
)

// Type names shared across models.
const (
	errorTypeName    = "MutationError"
	queryTypeName    = "Query"
	mutationTypeName = "Mutation"
)

// Renderer turns operation descriptors into SDL text.
type Renderer struct {
	log zerolog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the diagnostics logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Renderer) {
		r.log = l
	}
}

// New returns a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render produces the SDL document covering the given operations.
func (r *Renderer) Render(ops []*assemble.OperationDescriptor) (string, error) {
	if len(ops) == 0 {
		return "", fmt.Errorf("forge: no operations to render")
	}
	b := newBuilder()
	for _, op := range ops {
		if err := b.operation(op); err != nil {
			return "", err
		}
	}
	doc := b.document()
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	r.log.Debug().Int("operations", len(ops)).Int("definitions", len(doc.Definitions)).
		Msg("schema document rendered")
	return buf.String(), nil
}

// Schema renders the operations and loads the result back through the
// schema parser, returning the validated schema.
func (r *Renderer) Schema(ops []*assemble.OperationDescriptor) (*ast.Schema, error) {
	src, err := r.Render(ops)
	if err != nil {
		return nil, err
	}
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "forge.graphql", Input: src})
	if err != nil {
		return nil, fmt.Errorf("forge: rendered schema does not load: %w", err)
	}
	return schema, nil
}

// builder accumulates definitions for one document.
type builder struct {
	defs     ast.DefinitionList
	seen     map[string]bool
	scalars  map[string]bool
	query    ast.FieldList
	mutation ast.FieldList
}

func newBuilder() *builder {
	return &builder{
		seen:    make(map[string]bool),
		scalars: make(map[string]bool),
	}
}

func (b *builder) add(def *ast.Definition) {
	b.seen[def.Name] = true
	b.defs = append(b.defs, def)
}

func (b *builder) scalar(name string) string {
	b.scalars[name] = true
	return name
}

// document assembles the final definition list: scalars first, then the
// shared and per-model types in creation order, then the roots.
func (b *builder) document() *ast.SchemaDocument {
	names := make([]string, 0, len(b.scalars))
	for name := range b.scalars {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make(ast.DefinitionList, 0, len(names)+len(b.defs)+2)
	for _, name := range names {
		defs = append(defs, &ast.Definition{Kind: ast.Scalar, Name: name})
	}
	defs = append(defs, b.defs...)
	defs = append(defs, &ast.Definition{Kind: ast.Object, Name: queryTypeName, Fields: b.query})
	if len(b.mutation) > 0 {
		defs = append(defs, &ast.Definition{Kind: ast.Object, Name: mutationTypeName, Fields: b.mutation})
	}
	return &ast.SchemaDocument{Definitions: defs}
}

// operation adds one root field plus the type definitions it references.
func (b *builder) operation(op *assemble.OperationDescriptor) error {
	output := synth.TypeName(op.Model)
	b.outputDef(op.Output)

	switch op.Kind {
	case forge.OpGet:
		b.query = append(b.query, &ast.FieldDefinition{
			Name:      op.Name,
			Arguments: ast.ArgumentDefinitionList{idArgument("id")},
			Type:      ast.NamedType(output, nil),
		})
	case forge.OpList:
		b.query = append(b.query, &ast.FieldDefinition{
			Name:      op.Name,
			Arguments: b.listArguments(op),
			Type:      nonNull(listOf(output)),
		})
	case forge.OpPaginatedList:
		args := b.listArguments(op)
		args = append(args,
			&ast.ArgumentDefinition{Name: "first", Type: ast.NamedType("Int", nil)},
			&ast.ArgumentDefinition{Name: "after", Type: ast.NamedType(b.scalar("Cursor"), nil)},
			&ast.ArgumentDefinition{Name: "last", Type: ast.NamedType("Int", nil)},
			&ast.ArgumentDefinition{Name: "before", Type: ast.NamedType(b.scalar("Cursor"), nil)},
		)
		b.query = append(b.query, &ast.FieldDefinition{
			Name:      op.Name,
			Arguments: args,
			Type:      nonNull(ast.NamedType(b.pageDef(op.Model), nil)),
		})
	case forge.OpCreate, forge.OpUpdate:
		b.inputDef(op.Input)
		b.mutation = append(b.mutation, &ast.FieldDefinition{
			Name: op.Name,
			Arguments: ast.ArgumentDefinitionList{{
				Name: "input",
				Type: nonNull(ast.NamedType(op.Input.Name, nil)),
			}},
			Type: nonNull(ast.NamedType(b.payloadDef(op.Model), nil)),
		})
	case forge.OpDelete:
		b.mutation = append(b.mutation, &ast.FieldDefinition{
			Name:      op.Name,
			Arguments: ast.ArgumentDefinitionList{idArgument("id")},
			Type:      nonNull(ast.NamedType(b.payloadDef(op.Model), nil)),
		})
	case forge.OpBulkCreate, forge.OpBulkUpdate:
		b.inputDef(op.Input)
		b.mutation = append(b.mutation, &ast.FieldDefinition{
			Name: op.Name,
			Arguments: ast.ArgumentDefinitionList{{
				Name: "input",
				Type: nonNull(listOf(op.Input.Name)),
			}},
			Type: nonNull(ast.NamedType(b.payloadDef(op.Model), nil)),
		})
	case forge.OpBulkDelete:
		b.mutation = append(b.mutation, &ast.FieldDefinition{
			Name: op.Name,
			Arguments: ast.ArgumentDefinitionList{{
				Name: "ids",
				Type: nonNull(listOf("ID")),
			}},
			Type: nonNull(ast.NamedType(b.payloadDef(op.Model), nil)),
		})
	case forge.OpMethodMutation:
		args := ast.ArgumentDefinitionList{idArgument("id")}
		for _, p := range op.Params {
			args = append(args, b.paramArgument(p.Name, p.Kind, p.HasDefault, p.Default))
		}
		b.mutation = append(b.mutation, &ast.FieldDefinition{
			Name:      op.Name,
			Arguments: args,
			Type:      nonNull(ast.NamedType(b.methodPayloadDef(op.Model), nil)),
		})
	default:
		return fmt.Errorf("forge: unknown operation kind %q", op.Kind)
	}
	return nil
}

// listArguments builds the filter/order/window argument list shared by the
// list shapes, registering the filter input types on first use.
func (b *builder) listArguments(op *assemble.OperationDescriptor) ast.ArgumentDefinitionList {
	args := ast.ArgumentDefinitionList{}
	if op.Filter != nil {
		name := synth.FilterName(op.Model)
		b.filterDef(name, op.Filter)
		args = append(args, &ast.ArgumentDefinition{Name: "filter", Type: ast.NamedType(name, nil)})
	}
	args = append(args,
		&ast.ArgumentDefinition{Name: "order", Type: listOf("String")},
	)
	if op.Kind == forge.OpList {
		args = append(args,
			&ast.ArgumentDefinition{Name: "offset", Type: ast.NamedType("Int", nil)},
			&ast.ArgumentDefinition{Name: "limit", Type: ast.NamedType("Int", nil)},
		)
	}
	return args
}

// outputDef adds the object type for a model's output descriptor.
func (b *builder) outputDef(t *synth.TypeDescriptor) {
	if t == nil || b.seen[t.Name] {
		return
	}
	def := &ast.Definition{Kind: ast.Object, Name: t.Name}
	b.add(def)
	for _, f := range t.Fields {
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name: f.Name,
			Type: b.fieldType(t.Model, f),
		})
	}
}

// inputDef adds the input object for a create or update descriptor.
func (b *builder) inputDef(t *synth.TypeDescriptor) {
	if t == nil || b.seen[t.Name] {
		return
	}
	def := &ast.Definition{Kind: ast.InputObject, Name: t.Name}
	b.add(def)
	for _, f := range t.Fields {
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name: f.Name,
			Type: b.fieldType(t.Model, f),
		})
	}
}

// fieldType maps one synthesized field to its SDL type. Primary keys and
// relationship references render as ID; nested projections reference the
// target's output type.
func (b *builder) fieldType(model string, f synth.TypeField) *ast.Type {
	var name string
	switch {
	case f.Ref != "" && f.Kind == "":
		name = synth.TypeName(f.Ref)
	case f.Ref != "" || f.PrimaryKey:
		name = "ID"
	case f.Kind == field.KindEnum:
		name = b.enumDef(model, f)
	default:
		name = b.scalarFor(f.Kind)
	}
	t := ast.NamedType(name, nil)
	if f.List {
		t = listOf(name)
	}
	if f.Required {
		t.NonNull = true
	}
	return t
}

// scalarFor maps a storage kind to a scalar name, registering custom
// scalars on first use. Enum kinds map to String here; typed enums are
// only generated where the choice list is available.
func (b *builder) scalarFor(k field.Kind) string {
	switch k {
	case field.KindInteger:
		return "Int"
	case field.KindFloat:
		return "Float"
	case field.KindBoolean:
		return "Boolean"
	case field.KindDecimal:
		return b.scalar("Decimal")
	case field.KindDate:
		return b.scalar("Date")
	case field.KindDateTime:
		return b.scalar("DateTime")
	case field.KindBinary:
		return b.scalar("Binary")
	default:
		return "String"
	}
}

// enumDef adds an enum type for a choice field. Choice values that are not
// legal enum value names fall the field back to String.
func (b *builder) enumDef(model string, f synth.TypeField) string {
	for _, c := range f.Choices {
		if !validEnumValue(c) {
			return "String"
		}
	}
	if len(f.Choices) == 0 {
		return "String"
	}
	name := synth.TypeName(model) + strcase.ToCamel(f.Name)
	if b.seen[name] {
		return name
	}
	def := &ast.Definition{Kind: ast.Enum, Name: name}
	for _, c := range f.Choices {
		def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{Name: c})
	}
	b.add(def)
	return name
}

// filterDef adds the input object for one filter-tree node and recurses
// into its children. Child inputs are named by the relationship path, so
// the same model reached through different branches gets the shape its
// branch actually carries.
func (b *builder) filterDef(name string, node *synth.FilterDescriptor) {
	if b.seen[name] {
		return
	}
	def := &ast.Definition{Kind: ast.InputObject, Name: name}
	b.add(def)
	for _, leaf := range node.Fields {
		local := localPath(node, leaf.Path)
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name: local,
			Type: ast.NamedType(b.scalarFor(leaf.Kind), nil),
		})
		for _, op := range leaf.Operators {
			def.Fields = append(def.Fields, &ast.FieldDefinition{
				Name: local + "__" + string(op),
				Type: b.operatorType(leaf.Kind, op),
			})
		}
	}
	for _, child := range node.Children {
		childName := strings.TrimSuffix(name, "Filter") + strcase.ToCamel(child.Relationship) + "Filter"
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name: child.Relationship,
			Type: ast.NamedType(childName, nil),
		})
		b.filterDef(childName, child)
	}
	for _, comb := range node.Combinators {
		t := listOf(name)
		if comb == synth.CombinatorNot {
			t = ast.NamedType(name, nil)
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{Name: comb, Type: t})
	}
	if len(node.QuickSearch) > 0 {
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name: assemble.QuickSearchKey,
			Type: ast.NamedType("String", nil),
		})
	}
	for _, hook := range node.Hooks {
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name: hook,
			Type: ast.NamedType(b.scalar("JSON"), nil),
		})
	}
}

// operatorType maps a path__operator key to its value type.
func (b *builder) operatorType(k field.Kind, op synth.Operator) *ast.Type {
	switch {
	case op == synth.OpIsNull || synth.RelativeOperator(op):
		return ast.NamedType("Boolean", nil)
	case op == synth.OpIn || op == synth.OpRange:
		return listOf(b.scalarFor(k))
	case op == synth.OpYear || op == synth.OpMonth || op == synth.OpDay:
		return ast.NamedType("Int", nil)
	case op == synth.OpDate:
		return ast.NamedType(b.scalar("Date"), nil)
	case op == synth.OpTime:
		return ast.NamedType("String", nil)
	default:
		return ast.NamedType(b.scalarFor(k), nil)
	}
}

// payloadDef adds the per-model mutation payload type.
func (b *builder) payloadDef(model string) string {
	name := synth.TypeName(model) + "Payload"
	if b.seen[name] {
		return name
	}
	b.add(&ast.Definition{Kind: ast.Object, Name: name, Fields: ast.FieldList{
		{Name: "ok", Type: nonNull(ast.NamedType("Boolean", nil))},
		{Name: "object", Type: ast.NamedType(synth.TypeName(model), nil)},
		{Name: "objects", Type: listOf("ID")},
		{Name: "errors", Type: nonNull(listOf(b.errorDef()))},
	}})
	return name
}

// methodPayloadDef adds the payload type for method-derived mutations: an
// arbitrary scalar result plus the refreshed instance.
func (b *builder) methodPayloadDef(model string) string {
	name := synth.TypeName(model) + "MethodPayload"
	if b.seen[name] {
		return name
	}
	b.add(&ast.Definition{Kind: ast.Object, Name: name, Fields: ast.FieldList{
		{Name: "ok", Type: nonNull(ast.NamedType("Boolean", nil))},
		{Name: "result", Type: ast.NamedType(b.scalar("JSON"), nil)},
		{Name: "instance", Type: ast.NamedType(synth.TypeName(model), nil)},
		{Name: "errors", Type: nonNull(listOf(b.errorDef()))},
	}})
	return name
}

// pageDef adds the per-model page type for cursor pagination.
func (b *builder) pageDef(model string) string {
	name := synth.TypeName(model) + "Page"
	if b.seen[name] {
		return name
	}
	b.add(&ast.Definition{Kind: ast.Object, Name: name, Fields: ast.FieldList{
		{Name: "records", Type: nonNull(listOf(synth.TypeName(model)))},
		{Name: "totalCount", Type: nonNull(ast.NamedType("Int", nil))},
		{Name: "hasNext", Type: nonNull(ast.NamedType("Boolean", nil))},
		{Name: "hasPrevious", Type: nonNull(ast.NamedType("Boolean", nil))},
		{Name: "startCursor", Type: ast.NamedType(b.scalar("Cursor"), nil)},
		{Name: "endCursor", Type: ast.NamedType(b.scalar("Cursor"), nil)},
	}})
	return name
}

// errorDef adds the shared mutation-error type.
func (b *builder) errorDef() string {
	if b.seen[errorTypeName] {
		return errorTypeName
	}
	b.add(&ast.Definition{Kind: ast.Object, Name: errorTypeName, Fields: ast.FieldList{
		{Name: "field", Type: ast.NamedType("String", nil)},
		{Name: "message", Type: nonNull(ast.NamedType("String", nil))},
	}})
	return errorTypeName
}

// paramArgument maps a method parameter to an argument definition.
func (b *builder) paramArgument(name string, k field.Kind, hasDefault bool, def any) *ast.ArgumentDefinition {
	arg := &ast.ArgumentDefinition{Name: name, Type: ast.NamedType(b.scalarFor(k), nil)}
	if hasDefault {
		arg.DefaultValue = defaultValue(def)
	} else {
		arg.Type.NonNull = true
	}
	return arg
}

// defaultValue renders a Go default into an AST literal.
func defaultValue(v any) *ast.Value {
	switch x := v.(type) {
	case nil:
		return &ast.Value{Raw: "null", Kind: ast.NullValue}
	case bool:
		return &ast.Value{Raw: fmt.Sprintf("%t", x), Kind: ast.BooleanValue}
	case int, int32, int64:
		return &ast.Value{Raw: fmt.Sprintf("%d", x), Kind: ast.IntValue}
	case float32, float64:
		return &ast.Value{Raw: fmt.Sprintf("%v", x), Kind: ast.FloatValue}
	default:
		return &ast.Value{Raw: fmt.Sprintf("%v", x), Kind: ast.StringValue}
	}
}

func idArgument(name string) *ast.ArgumentDefinition {
	return &ast.ArgumentDefinition{Name: name, Type: nonNull(ast.NamedType("ID", nil))}
}

func listOf(name string) *ast.Type {
	return ast.ListType(ast.NonNullNamedType(name, nil), nil)
}

func nonNull(t *ast.Type) *ast.Type {
	t.NonNull = true
	return t
}

// localPath strips the node's path prefix off a leaf path, yielding the
// field name valid inside the node's own input type.
func localPath(node *synth.FilterDescriptor, path string) string {
	if node.Path == "" {
		return path
	}
	return strings.TrimPrefix(path, node.Path+".")
}

// validEnumValue reports whether a choice string is a legal GraphQL enum
// value name.
func validEnumValue(s string) bool {
	if s == "" || s == "true" || s == "false" || s == "null" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
