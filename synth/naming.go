package synth

import (
	"github.com/go-openapi/inflect"
	"github.com/iancoleman/strcase"
)

// Naming helpers shared by the synthesizers and the operation assembler.
// Models are declared in PascalCase; operation names are lowerCamel and
// list names are pluralized.

// Singular returns the lowerCamel singular name of a model.
func Singular(model string) string {
	return strcase.ToLowerCamel(model)
}

// Plural returns the lowerCamel plural name of a model.
func Plural(model string) string {
	return strcase.ToLowerCamel(inflect.Pluralize(model))
}

// PluralPascal returns the PascalCase plural name of a model.
func PluralPascal(model string) string {
	return strcase.ToCamel(inflect.Pluralize(model))
}

// TypeName returns the output type name of a model.
func TypeName(model string) string {
	return strcase.ToCamel(model)
}

// CreateInputName returns the create-input type name of a model.
func CreateInputName(model string) string {
	return TypeName(model) + "CreateInput"
}

// UpdateInputName returns the update-input type name of a model.
func UpdateInputName(model string) string {
	return TypeName(model) + "UpdateInput"
}

// FilterName returns the filter type name of a model.
func FilterName(model string) string {
	return TypeName(model) + "Filter"
}

// MethodMutationName composes the mutation name for a model method, e.g.
// model Post, method publish -> postPublish.
func MethodMutationName(model, methodName string) string {
	return Singular(model) + strcase.ToCamel(methodName)
}

// RefField returns the reference-by-identifier input field for a to-one
// relationship.
func RefField(relName string) string {
	return relName + "_id"
}

// RefListField returns the identifier-list input field for a to-many
// relationship.
func RefListField(relName string) string {
	return relName + "_ids"
}
