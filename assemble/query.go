package assemble

import (
	"context"
	"fmt"
	"strings"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/synth"
)

// Query is the argument set of a list operation.
type Query struct {
	// Filter holds the caller's filter arguments, keyed per the synthesized
	// filter tree (field keys, combinators, quick_search, hook names).
	Filter map[string]any
	// Order lists field paths, each optionally prefixed with "-" for
	// descending.
	Order []string
	// Offset and Limit window the result. Limit 0 means unbounded.
	Offset int
	Limit  int
}

// PageQuery is the argument set of a paginated list operation. First/After
// page forward, Last/Before page backward; the two directions are mutually
// exclusive.
type PageQuery struct {
	Filter map[string]any
	Order  []string

	First  int
	After  string
	Last   int
	Before string
}

// Page is the result of a paginated list operation.
type Page struct {
	Records     []forge.Record
	TotalCount  int
	HasNext     bool
	HasPrevious bool
	StartCursor string
	EndCursor   string
}

// Get fetches a single record by primary key.
func (as *Assembler) Get(ctx context.Context, model string, id any) (forge.Record, error) {
	d, ok := as.synth.Descriptor(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", forge.ErrUnknownModel, model)
	}
	spec := forge.FetchSpec{
		Where: &forge.Predicate{Path: d.PrimaryKey().Name, Op: string(synth.OpExact), Value: id},
		Page:  forge.PageSpec{Limit: 1},
	}
	records, err := as.storage.Fetch(ctx, model, spec)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, forge.NewNotFoundError(model, id)
	}
	return records[0], nil
}

// List fetches the records matching q.
func (as *Assembler) List(ctx context.Context, model string, q Query) ([]forge.Record, error) {
	spec, err := as.fetchSpec(model, q.Filter, q.Order)
	if err != nil {
		return nil, err
	}
	spec.Page = forge.PageSpec{Offset: q.Offset, Limit: q.Limit}
	return as.storage.Fetch(ctx, model, spec)
}

// Paginated fetches one window of the records matching q, with opaque
// cursors and a total count.
func (as *Assembler) Paginated(ctx context.Context, model string, q PageQuery) (*Page, error) {
	if (q.First > 0 || q.After != "") && (q.Last > 0 || q.Before != "") {
		return nil, forge.NewValidationError("", fmt.Errorf("forward and backward pagination cannot be combined"))
	}
	spec, err := as.fetchSpec(model, q.Filter, q.Order)
	if err != nil {
		return nil, err
	}
	total, err := as.storage.Count(ctx, model, spec.Where)
	if err != nil {
		return nil, err
	}

	offset, limit, err := pageWindow(model, q, total)
	if err != nil {
		return nil, err
	}
	spec.Page = forge.PageSpec{Offset: offset, Limit: limit}
	records, err := as.storage.Fetch(ctx, model, spec)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Records:     records,
		TotalCount:  total,
		HasPrevious: offset > 0,
		HasNext:     offset+len(records) < total,
	}
	if len(records) > 0 {
		page.StartCursor = encodeCursor(cursor{Model: model, Offset: offset})
		page.EndCursor = encodeCursor(cursor{Model: model, Offset: offset + len(records) - 1})
	}
	return page, nil
}

// pageWindow resolves the cursor arguments into an absolute offset/limit
// window over a result set of the given total size.
func pageWindow(model string, q PageQuery, total int) (offset, limit int, err error) {
	if q.Last > 0 || q.Before != "" {
		end := total
		if q.Before != "" {
			c, err := decodeCursor(model, q.Before)
			if err != nil {
				return 0, 0, err
			}
			end = c.Offset
		}
		start := 0
		if q.Last > 0 && end-q.Last > 0 {
			start = end - q.Last
		}
		return start, end - start, nil
	}
	if q.After != "" {
		c, err := decodeCursor(model, q.After)
		if err != nil {
			return 0, 0, err
		}
		offset = c.Offset + 1
	}
	return offset, q.First, nil
}

// fetchSpec builds the where/order part of a storage query from caller
// arguments, validated against the model's synthesized descriptors.
func (as *Assembler) fetchSpec(model string, filter map[string]any, order []string) (forge.FetchSpec, error) {
	d, ok := as.synth.Descriptor(model)
	if !ok {
		return forge.FetchSpec{}, fmt.Errorf("%w: %s", forge.ErrUnknownModel, model)
	}
	tree, err := as.filterTree(model)
	if err != nil {
		return forge.FetchSpec{}, err
	}
	where, err := as.compilePredicate(tree, d.FilterHooks, filter)
	if err != nil {
		return forge.FetchSpec{}, err
	}
	terms, err := orderTerms(tree, order)
	if err != nil {
		return forge.FetchSpec{}, err
	}
	return forge.FetchSpec{Where: where, Order: terms}, nil
}

// orderTerms parses "-"-prefixed path strings into order terms, accepting
// only paths present in the filter tree.
func orderTerms(tree *synth.FilterDescriptor, order []string) ([]forge.OrderTerm, error) {
	var out []forge.OrderTerm
	for _, raw := range order {
		path, desc := strings.TrimPrefix(raw, "-"), strings.HasPrefix(raw, "-")
		if _, ok := findTreeLeaf(tree, path); !ok {
			return nil, forge.NewValidationError("order", fmt.Errorf("unknown field path %q", path))
		}
		out = append(out, forge.OrderTerm{Path: path, Desc: desc})
	}
	return out, nil
}
