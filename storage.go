package forge

import "context"

// Predicate is the runtime filter input evaluated by a Storage. It mirrors
// the shape of the synthesized filter tree: either a leaf (Path, Op, Value)
// or a logical combination of child predicates. Exactly one of the leaf
// triple or the combinator lists is populated.
type Predicate struct {
	// Leaf predicate.
	Path  string // dotted field path from the root model
	Op    string // operator name, one of the synthesized operator set
	Value any

	// Logical combinators over child predicates.
	And []*Predicate
	Or  []*Predicate
	Not *Predicate
}

// Leaf reports whether the predicate is a leaf comparison.
func (p *Predicate) Leaf() bool {
	return p != nil && len(p.And) == 0 && len(p.Or) == 0 && p.Not == nil
}

// OrderTerm is one element of an ordering clause.
type OrderTerm struct {
	Path string // dotted field path
	Desc bool
}

// PageSpec selects a window of a list result. The assembler resolves opaque
// cursors to offsets before building a spec, so storages only ever see
// offset/limit windows. Limit 0 means unbounded.
type PageSpec struct {
	Offset int
	Limit  int
}

// FetchSpec is the full query shape handed to a Storage.
type FetchSpec struct {
	Where *Predicate
	Order []OrderTerm
	Page  PageSpec
}

// Storage is the persistence collaborator. Implementations execute queries
// and hand out transactional units; they report constraint violations as
// *ConstraintError and missing objects as *NotFoundError so the assembler
// can attribute fields and build envelopes.
type Storage interface {
	// Fetch returns the records of model matching spec, in spec order.
	Fetch(ctx context.Context, model string, spec FetchSpec) ([]Record, error)

	// Count returns the number of records matching where.
	Count(ctx context.Context, model string, where *Predicate) (int, error)

	// Begin opens a new transactional unit. The core never nests units.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a single transactional unit of work. Create/Update/Delete failures
// leave the unit usable for subsequent calls (implementations isolate each
// call, e.g. with savepoints); Flush and Commit failures poison the unit
// and the caller must roll back.
type Tx interface {
	Create(ctx context.Context, model string, payload Record) (Record, error)
	Update(ctx context.Context, model string, id any, payload Record) (Record, error)
	Delete(ctx context.Context, model string, id any) error

	// Flush surfaces constraint checks the backend defers until write-out,
	// without ending the unit.
	Flush(ctx context.Context) error

	Commit() error
	Rollback() error
}

// Authorizer is the authorization collaborator, consulted immediately
// before each create/update/delete and before every bulk item. A false
// result is surfaced as a non-attributable "not permitted" error.
type Authorizer interface {
	MayPerform(ctx context.Context, actor any, op OpKind, model string, ref any) bool
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, actor any, op OpKind, model string, ref any) bool

// MayPerform calls f.
func (f AuthorizerFunc) MayPerform(ctx context.Context, actor any, op OpKind, model string, ref any) bool {
	return f(ctx, actor, op, model, ref)
}

// AllowAll is an Authorizer that permits every operation.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context, any, OpKind, string, any) bool {
	return true
})
