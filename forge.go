// Package forge synthesizes a query/mutation API surface from declared data
// models. Models are described once with the builder DSL in model/, extracted
// into immutable descriptors by introspect/, expanded into type and filter
// descriptors by synth/, and assembled into executable operations by
// assemble/. The registry/ package combines per-model operations into named
// schema units, and materialize/ turns descriptors into GraphQL SDL or Go
// code.
//
// The persistence layer, authorization, and transport are external
// collaborators consumed through the narrow contracts defined in this
// package.
package forge

// OpKind enumerates the operation kinds the assembler produces.
type OpKind string

// Operation kinds.
const (
	OpGet            OpKind = "get"
	OpList           OpKind = "list"
	OpPaginatedList  OpKind = "paginated_list"
	OpCreate         OpKind = "create"
	OpUpdate         OpKind = "update"
	OpDelete         OpKind = "delete"
	OpBulkCreate     OpKind = "bulk_create"
	OpBulkUpdate     OpKind = "bulk_update"
	OpBulkDelete     OpKind = "bulk_delete"
	OpMethodMutation OpKind = "method_mutation"
)

// Mutates reports whether the operation kind writes to storage.
func (k OpKind) Mutates() bool {
	switch k {
	case OpGet, OpList, OpPaginatedList:
		return false
	default:
		return true
	}
}

// Record is the wire-level representation of a stored object, keyed by field
// name. Records returned by a Storage are treated as read-only.
type Record map[string]any
