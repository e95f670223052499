// Package sqlstore implements the persistence contract over database/sql.
// One table per model, named after the plural snake_case model name;
// forward to-one relationships are foreign-key columns in the <rel>_id
// form. Each mutation inside a unit runs under its own savepoint, so a
// failed call leaves the unit usable; backend constraint violations are
// attributed to kinds and fields per driver.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-openapi/inflect"
	"github.com/iancoleman/strcase"
	"github.com/rs/zerolog"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/introspect"
	"github.com/apiforge/forge/model/field"
)

// Dialect selects placeholder style and the dialect-specific SQL forms.
type Dialect string

// Supported dialects.
const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// Store is a database/sql-backed forge.Storage.
type Store struct {
	db      *sql.DB
	dialect Dialect
	tables  map[string]*table
	log     zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the diagnostics logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// New returns a Store over db for the given model descriptors.
func New(db *sql.DB, descs map[string]*introspect.ModelDescriptor, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		tables:  make(map[string]*table, len(descs)),
		log:     zerolog.Nop(),
	}
	for name, d := range descs {
		s.tables[name] = tableFor(d, descs)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// table is the relational mapping of one model.
type table struct {
	model string
	name  string
	pk    string
	// cols lists the selectable columns in declaration order: scalar
	// fields first, then forward to-one reference columns.
	cols  []string
	kinds map[string]field.Kind
	toOne map[string]*ref
}

// ref is a forward to-one relationship column.
type ref struct {
	column string
	target string
}

// TableName returns the table a model maps to.
func TableName(model string) string {
	return strcase.ToSnake(inflect.Pluralize(model))
}

func tableFor(d *introspect.ModelDescriptor, descs map[string]*introspect.ModelDescriptor) *table {
	t := &table{
		model: d.Name,
		name:  TableName(d.Name),
		kinds: make(map[string]field.Kind),
		toOne: make(map[string]*ref),
	}
	for _, f := range d.Fields {
		t.cols = append(t.cols, f.Name)
		t.kinds[f.Name] = f.Kind
		if f.PrimaryKey {
			t.pk = f.Name
		}
	}
	for _, r := range d.Relationships {
		// Reverse sides and to-many relationships carry no column here;
		// to-many references live in the target or in a join table.
		if r.Reverse || r.Rel.ToMany() {
			continue
		}
		col := r.Name + "_id"
		kind := field.KindInteger
		if target, ok := descs[r.Target]; ok {
			if pk := target.PrimaryKey(); pk != nil {
				kind = pk.Kind
			}
		}
		t.cols = append(t.cols, col)
		t.kinds[col] = kind
		t.toOne[r.Name] = &ref{column: col, target: r.Target}
	}
	return t
}

func (s *Store) table(model string) (*table, error) {
	t, ok := s.tables[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", forge.ErrUnknownModel, model)
	}
	return t, nil
}

// Fetch returns the records of model matching spec, in spec order.
func (s *Store) Fetch(ctx context.Context, model string, spec forge.FetchSpec) ([]forge.Record, error) {
	t, err := s.table(model)
	if err != nil {
		return nil, err
	}
	b := s.newBuilder(t)
	where, err := b.where(spec.Where)
	if err != nil {
		return nil, err
	}
	order, err := b.order(spec.Order)
	if err != nil {
		return nil, err
	}

	var q strings.Builder
	q.WriteString("SELECT ")
	q.WriteString(t.selectList())
	q.WriteString(" FROM ")
	q.WriteString(t.name)
	b.writeJoins(&q)
	if where != "" {
		q.WriteString(" WHERE ")
		q.WriteString(where)
	}
	if order != "" {
		q.WriteString(" ORDER BY ")
		q.WriteString(order)
	}
	if spec.Page.Limit > 0 {
		fmt.Fprintf(&q, " LIMIT %d", spec.Page.Limit)
	}
	if spec.Page.Offset > 0 {
		fmt.Fprintf(&q, " OFFSET %d", spec.Page.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", model, err)
	}
	defer rows.Close()

	var out []forge.Record
	for rows.Next() {
		rec, err := t.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of records matching where.
func (s *Store) Count(ctx context.Context, model string, where *forge.Predicate) (int, error) {
	t, err := s.table(model)
	if err != nil {
		return 0, err
	}
	b := s.newBuilder(t)
	cond, err := b.where(where)
	if err != nil {
		return 0, err
	}
	var q strings.Builder
	q.WriteString("SELECT COUNT(*) FROM ")
	q.WriteString(t.name)
	b.writeJoins(&q)
	if cond != "" {
		q.WriteString(" WHERE ")
		q.WriteString(cond)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q.String(), b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", model, err)
	}
	return n, nil
}

// Begin opens a transactional unit.
func (s *Store) Begin(ctx context.Context) (forge.Tx, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &unit{store: s, tx: dbtx}, nil
}

// selectList qualifies all columns with the table name so joined queries
// stay unambiguous.
func (t *table) selectList() string {
	parts := make([]string, len(t.cols))
	for i, c := range t.cols {
		parts[i] = t.name + "." + c
	}
	return strings.Join(parts, ", ")
}

// scanRow reads one row into a record, normalizing driver byte slices on
// textual columns.
func (t *table) scanRow(rows *sql.Rows) (forge.Record, error) {
	dest := make([]any, len(t.cols))
	for i := range dest {
		dest[i] = new(any)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan %s: %w", t.model, err)
	}
	rec := make(forge.Record, len(t.cols))
	for i, c := range t.cols {
		rec[c] = normalize(t.kinds[c], *dest[i].(*any))
	}
	return rec, nil
}

func normalize(k field.Kind, v any) any {
	if b, ok := v.([]byte); ok {
		switch k {
		case field.KindBinary:
			return b
		default:
			return string(b)
		}
	}
	return v
}
