package sqlstore

import (
	"fmt"
	"strings"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/model/field"
	"github.com/apiforge/forge/synth"
)

// builder compiles predicates and order terms for one root table,
// collecting placeholder arguments and the to-one joins the paths touch.
type builder struct {
	store *Store
	t     *table
	args  []any
	joins []string
	seen  map[string]bool
}

func (s *Store) newBuilder(t *table) *builder {
	return &builder{store: s, t: t, seen: make(map[string]bool)}
}

func (b *builder) placeholder(v any) string {
	b.args = append(b.args, v)
	if b.store.dialect == Postgres {
		return fmt.Sprintf("$%d", len(b.args))
	}
	return "?"
}

func (b *builder) writeJoins(q *strings.Builder) {
	for _, j := range b.joins {
		q.WriteString(j)
	}
}

// where compiles a predicate tree into a SQL condition.
func (b *builder) where(p *forge.Predicate) (string, error) {
	if p == nil {
		return "", nil
	}
	switch {
	case len(p.And) > 0:
		return b.combine(p.And, " AND ")
	case len(p.Or) > 0:
		return b.combine(p.Or, " OR ")
	case p.Not != nil:
		inner, err := b.where(p.Not)
		if err != nil {
			return "", err
		}
		if inner == "" {
			return "", nil
		}
		return "NOT (" + inner + ")", nil
	default:
		return b.leaf(p)
	}
}

func (b *builder) combine(ps []*forge.Predicate, sep string) (string, error) {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		s, err := b.where(p)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// column resolves a dotted path to a qualified column, registering the
// join for a one-hop to-one traversal. Deeper traversals and to-many hops
// are not expressible as a single join here.
func (b *builder) column(path string) (string, field.Kind, error) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		k, ok := b.t.kinds[path]
		if !ok {
			return "", "", fmt.Errorf("unknown column %s.%s", b.t.model, path)
		}
		return b.t.name + "." + path, k, nil
	}
	r, ok := b.t.toOne[head]
	if !ok {
		return "", "", fmt.Errorf("%s cannot traverse %s as a join", b.t.model, path)
	}
	target, err := b.store.table(r.target)
	if err != nil {
		return "", "", err
	}
	if strings.Contains(rest, ".") {
		return "", "", fmt.Errorf("path %s exceeds one join", path)
	}
	k, ok := target.kinds[rest]
	if !ok {
		return "", "", fmt.Errorf("unknown column %s.%s", r.target, rest)
	}
	if !b.seen[head] {
		b.seen[head] = true
		b.joins = append(b.joins, fmt.Sprintf(" JOIN %s AS %s ON %s.%s = %s.%s",
			target.name, head, b.t.name, r.column, head, target.pk))
	}
	return head + "." + rest, k, nil
}

func (b *builder) leaf(p *forge.Predicate) (string, error) {
	col, _, err := b.column(p.Path)
	if err != nil {
		return "", err
	}
	op := synth.Operator(p.Op)
	switch op {
	case synth.OpExact, "":
		if p.Value == nil {
			return col + " IS NULL", nil
		}
		return fmt.Sprintf("%s = %s", col, b.placeholder(p.Value)), nil
	case synth.OpIExact:
		return fmt.Sprintf("LOWER(%s) = LOWER(%s)", col, b.placeholder(p.Value)), nil
	case synth.OpContains:
		return b.like(col, "%%%v%%", p.Value, false)
	case synth.OpIContains:
		return b.like(col, "%%%v%%", p.Value, true)
	case synth.OpStartsWith:
		return b.like(col, "%v%%", p.Value, false)
	case synth.OpIStartsWith:
		return b.like(col, "%v%%", p.Value, true)
	case synth.OpEndsWith:
		return b.like(col, "%%%v", p.Value, false)
	case synth.OpIEndsWith:
		return b.like(col, "%%%v", p.Value, true)
	case synth.OpGT:
		return fmt.Sprintf("%s > %s", col, b.placeholder(p.Value)), nil
	case synth.OpGTE:
		return fmt.Sprintf("%s >= %s", col, b.placeholder(p.Value)), nil
	case synth.OpLT:
		return fmt.Sprintf("%s < %s", col, b.placeholder(p.Value)), nil
	case synth.OpLTE:
		return fmt.Sprintf("%s <= %s", col, b.placeholder(p.Value)), nil
	case synth.OpRange:
		bounds, ok := p.Value.([]any)
		if !ok || len(bounds) != 2 {
			return "", forge.NewValidationError(p.Path, fmt.Errorf("range wants [low, high]"))
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s",
			col, b.placeholder(bounds[0]), b.placeholder(bounds[1])), nil
	case synth.OpIn:
		values, ok := p.Value.([]any)
		if !ok {
			return "", forge.NewValidationError(p.Path, fmt.Errorf("in wants a list"))
		}
		if len(values) == 0 {
			return "1 = 0", nil
		}
		phs := make([]string, len(values))
		for i, v := range values {
			phs[i] = b.placeholder(v)
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(phs, ", ")), nil
	case synth.OpIsNull:
		if want, _ := p.Value.(bool); want {
			return col + " IS NULL", nil
		}
		return col + " IS NOT NULL", nil
	case synth.OpYear:
		return fmt.Sprintf("%s = %s", b.extract("YEAR", "%Y", col), b.placeholder(p.Value)), nil
	case synth.OpMonth:
		return fmt.Sprintf("%s = %s", b.extract("MONTH", "%m", col), b.placeholder(p.Value)), nil
	case synth.OpDay:
		return fmt.Sprintf("%s = %s", b.extract("DAY", "%d", col), b.placeholder(p.Value)), nil
	case synth.OpDate:
		return fmt.Sprintf("DATE(%s) = %s", col, b.placeholder(p.Value)), nil
	case synth.OpTime:
		return fmt.Sprintf("%s = %s", b.timeOf(col), b.placeholder(p.Value)), nil
	default:
		return "", forge.NewValidationError(p.Path, fmt.Errorf("operator %q is not supported by this storage", p.Op))
	}
}

func (b *builder) like(col, pattern string, v any, fold bool) (string, error) {
	ph := b.placeholder(fmt.Sprintf(pattern, v))
	if fold {
		return fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", col, ph), nil
	}
	return fmt.Sprintf("%s LIKE %s", col, ph), nil
}

// extract renders the date-part extraction for the dialect.
func (b *builder) extract(part, strftime, col string) string {
	switch b.store.dialect {
	case SQLite:
		return fmt.Sprintf("CAST(STRFTIME('%s', %s) AS INTEGER)", strftime, col)
	case MySQL:
		return fmt.Sprintf("%s(%s)", part, col)
	default:
		return fmt.Sprintf("EXTRACT(%s FROM %s)", part, col)
	}
}

func (b *builder) timeOf(col string) string {
	switch b.store.dialect {
	case SQLite:
		return fmt.Sprintf("STRFTIME('%%H:%%M:%%S', %s)", col)
	case MySQL:
		return fmt.Sprintf("TIME(%s)", col)
	default:
		return col + "::time"
	}
}

// order compiles order terms. Only root columns are orderable.
func (b *builder) order(terms []forge.OrderTerm) (string, error) {
	if len(terms) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		if strings.Contains(term.Path, ".") {
			return "", fmt.Errorf("cannot order by joined path %s", term.Path)
		}
		if _, ok := b.t.kinds[term.Path]; !ok {
			return "", fmt.Errorf("unknown column %s.%s", b.t.model, term.Path)
		}
		dir := " ASC"
		if term.Desc {
			dir = " DESC"
		}
		parts = append(parts, b.t.name+"."+term.Path+dir)
	}
	return strings.Join(parts, ", "), nil
}
