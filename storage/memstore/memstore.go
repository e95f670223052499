// Package memstore provides an in-memory Storage implementation. It backs
// the test suites and small embedded deployments: records live in plain
// maps, transactional units stage their writes and merge on commit, and
// the constraint checks mirror what a relational backend would report so
// error attribution behaves identically.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/introspect"
	"github.com/apiforge/forge/model/field"
	"github.com/apiforge/forge/synth"
)

// Store is an in-memory Storage. Safe for concurrent use; every
// transactional unit works on staged copies under the store lock.
type Store struct {
	mu     sync.RWMutex
	descs  map[string]*introspect.ModelDescriptor
	tables map[string]*table

	unique   map[string]map[string]bool // model -> unique field set
	deferred bool
	clock    func() time.Time
}

type table struct {
	records map[string]forge.Record // keyed by canonical id
	order   []string                // insertion order
	serial  int64
}

// Option configures a Store.
type Option func(*Store)

// WithUnique declares a uniqueness constraint on a field, enforced the way
// a relational unique index would be.
func WithUnique(model, fieldName string) Option {
	return func(s *Store) {
		if s.unique[model] == nil {
			s.unique[model] = make(map[string]bool)
		}
		s.unique[model][fieldName] = true
	}
}

// WithDeferredUnique postpones uniqueness checks until Flush, modelling
// backends with deferred constraint evaluation.
func WithDeferredUnique() Option {
	return func(s *Store) {
		s.deferred = true
	}
}

// WithClock overrides the wall clock used for auto-generated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.clock = now
	}
}

// New returns an empty Store over the given model descriptors.
func New(descs map[string]*introspect.ModelDescriptor, opts ...Option) *Store {
	s := &Store{
		descs:  descs,
		tables: make(map[string]*table, len(descs)),
		unique: make(map[string]map[string]bool),
		clock:  time.Now,
	}
	for name := range descs {
		s.tables[name] = &table{records: make(map[string]forge.Record)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed inserts a record directly, bypassing constraint checks. Test setup
// helper.
func (s *Store) Seed(model string, record forge.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.descs[model]
	key := canonical(record[d.PrimaryKey().Name])
	t := s.tables[model]
	if _, exists := t.records[key]; !exists {
		t.order = append(t.order, key)
	}
	t.records[key] = clone(record)
}

// Fetch implements forge.Storage.
func (s *Store) Fetch(ctx context.Context, model string, spec forge.FetchSpec) ([]forge.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", forge.ErrUnknownModel, model)
	}
	var out []forge.Record
	for _, key := range t.order {
		record := t.records[key]
		match, err := s.eval(model, record, spec.Where)
		if err != nil {
			return nil, err
		}
		if match {
			out = append(out, clone(record))
		}
	}
	if len(spec.Order) > 0 {
		sortRecords(out, spec.Order)
	}
	return window(out, spec.Page), nil
}

// Count implements forge.Storage.
func (s *Store) Count(ctx context.Context, model string, where *forge.Predicate) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[model]
	if !ok {
		return 0, fmt.Errorf("%w: %s", forge.ErrUnknownModel, model)
	}
	n := 0
	for _, key := range t.order {
		match, err := s.eval(model, t.records[key], where)
		if err != nil {
			return 0, err
		}
		if match {
			n++
		}
	}
	return n, nil
}

// Begin implements forge.Storage.
func (s *Store) Begin(ctx context.Context) (forge.Tx, error) {
	return &tx{store: s, staged: make(map[string]*table)}, nil
}

// tx stages writes against a copy-on-write view of the store. Each call
// validates against the merged view, so a failed call leaves the unit
// untouched and usable.
type tx struct {
	store *Store
	// staged holds per-model tables carrying the unit's pending writes.
	// Deleted records are staged as nil.
	staged map[string]*table
	// pendingUnique collects deferred uniqueness checks for Flush.
	pendingUnique []uniqueCheck
	done          bool
}

type uniqueCheck struct {
	model, field string
	value        any
	selfKey      string
}

func (x *tx) table(model string) *table {
	t, ok := x.staged[model]
	if !ok {
		t = &table{records: make(map[string]forge.Record)}
		x.staged[model] = t
	}
	return t
}

// view returns the record as seen by the unit: staged writes shadow the
// committed state.
func (x *tx) view(model, key string) (forge.Record, bool) {
	if t, ok := x.staged[model]; ok {
		if record, staged := t.records[key]; staged {
			return record, record != nil
		}
	}
	record, ok := x.store.tables[model].records[key]
	return record, ok
}

// Create implements forge.Tx.
func (x *tx) Create(ctx context.Context, model string, payload forge.Record) (forge.Record, error) {
	x.store.mu.Lock()
	defer x.store.mu.Unlock()
	d, ok := x.store.descs[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", forge.ErrUnknownModel, model)
	}
	record := clone(payload)
	if err := x.applyGenerated(d, model, record); err != nil {
		return nil, err
	}
	if err := x.checkNotNull(d, record); err != nil {
		return nil, err
	}
	if err := x.checkReferences(d, record); err != nil {
		return nil, err
	}
	key := canonical(record[d.PrimaryKey().Name])
	if _, exists := x.view(model, key); exists {
		return nil, forge.NewConstraintError(forge.ConstraintUnique, d.PrimaryKey().Name,
			fmt.Sprintf("duplicate key value violates unique constraint on %s", d.PrimaryKey().Name), nil)
	}
	if err := x.checkUnique(model, d, record, key); err != nil {
		return nil, err
	}
	t := x.table(model)
	if _, staged := t.records[key]; !staged {
		t.order = append(t.order, key)
	}
	t.records[key] = record
	return clone(record), nil
}

// Update implements forge.Tx.
func (x *tx) Update(ctx context.Context, model string, id any, payload forge.Record) (forge.Record, error) {
	x.store.mu.Lock()
	defer x.store.mu.Unlock()
	d, ok := x.store.descs[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", forge.ErrUnknownModel, model)
	}
	key := canonical(id)
	current, exists := x.view(model, key)
	if !exists {
		return nil, forge.NewNotFoundError(model, id)
	}
	record := clone(current)
	for k, v := range payload {
		record[k] = v
	}
	for _, f := range d.Fields {
		if f.AutoUpdate {
			record[f.Name] = x.store.clock()
		}
	}
	if err := x.checkNotNull(d, record); err != nil {
		return nil, err
	}
	if err := x.checkReferences(d, record); err != nil {
		return nil, err
	}
	if err := x.checkUnique(model, d, record, key); err != nil {
		return nil, err
	}
	t := x.table(model)
	if _, staged := t.records[key]; !staged {
		t.order = append(t.order, key)
	}
	t.records[key] = record
	return clone(record), nil
}

// Delete implements forge.Tx.
func (x *tx) Delete(ctx context.Context, model string, id any) error {
	x.store.mu.Lock()
	defer x.store.mu.Unlock()
	if _, ok := x.store.descs[model]; !ok {
		return fmt.Errorf("%w: %s", forge.ErrUnknownModel, model)
	}
	key := canonical(id)
	if _, exists := x.view(model, key); !exists {
		return forge.NewNotFoundError(model, id)
	}
	t := x.table(model)
	if _, staged := t.records[key]; !staged {
		t.order = append(t.order, key)
	}
	t.records[key] = nil
	return nil
}

// Flush implements forge.Tx: deferred uniqueness checks run here.
func (x *tx) Flush(ctx context.Context) error {
	x.store.mu.Lock()
	defer x.store.mu.Unlock()
	for _, check := range x.pendingUnique {
		if x.uniqueViolated(check) {
			return forge.NewConstraintError(forge.ConstraintUnique, check.field,
				fmt.Sprintf("duplicate key value violates unique constraint on %s", check.field), nil)
		}
	}
	x.pendingUnique = nil
	return nil
}

// Commit implements forge.Tx.
func (x *tx) Commit() error {
	x.store.mu.Lock()
	defer x.store.mu.Unlock()
	if x.done {
		return fmt.Errorf("transaction already closed")
	}
	x.done = true
	for model, staged := range x.staged {
		t := x.store.tables[model]
		t.serial += staged.serial
		for _, key := range staged.order {
			record := staged.records[key]
			_, existed := t.records[key]
			if record == nil {
				if existed {
					delete(t.records, key)
					t.order = remove(t.order, key)
				}
				continue
			}
			if !existed {
				t.order = append(t.order, key)
			}
			t.records[key] = record
		}
	}
	return nil
}

// Rollback implements forge.Tx.
func (x *tx) Rollback() error {
	x.store.mu.Lock()
	defer x.store.mu.Unlock()
	x.done = true
	x.staged = make(map[string]*table)
	x.pendingUnique = nil
	return nil
}

// applyGenerated fills primary keys, defaults and auto timestamps on
// create.
func (x *tx) applyGenerated(d *introspect.ModelDescriptor, model string, record forge.Record) error {
	for _, f := range d.Fields {
		_, present := record[f.Name]
		switch {
		case (f.AutoCreate || f.AutoUpdate) && f.Kind.Temporal():
			record[f.Name] = x.store.clock()
		case f.AutoCreate && f.PrimaryKey && !present:
			switch f.Kind {
			case field.KindInteger:
				record[f.Name] = x.nextSerial(model)
			case field.KindText:
				record[f.Name] = uuid.NewString()
			default:
				return fmt.Errorf("cannot generate %s primary key", f.Kind)
			}
		case f.HasDefault && !present:
			record[f.Name] = f.DefaultValue
		case !present && f.Nullable:
			record[f.Name] = nil
		case !present && f.Blank && f.Kind == field.KindText:
			record[f.Name] = ""
		}
	}
	return nil
}

// nextSerial hands out the next auto-increment value. Staged growth lives
// on the unit's table so a rollback discards it.
func (x *tx) nextSerial(model string) int64 {
	t := x.table(model)
	t.serial++
	return x.store.tables[model].serial + t.serial
}

// checkNotNull reports a not-null constraint for nil values on
// non-nullable fields.
func (x *tx) checkNotNull(d *introspect.ModelDescriptor, record forge.Record) error {
	for _, f := range d.Fields {
		value, present := record[f.Name]
		if !present || f.Nullable {
			continue
		}
		if value == nil {
			return forge.NewConstraintError(forge.ConstraintNotNull, f.Name,
				fmt.Sprintf("null value in column %s violates not-null constraint", f.Name), nil)
		}
	}
	return nil
}

// checkReferences verifies that <rel>_id / <rel>_ids values point at
// existing records, reporting foreign-key constraints otherwise.
func (x *tx) checkReferences(d *introspect.ModelDescriptor, record forge.Record) error {
	for _, r := range d.Relationships {
		if r.Reverse {
			continue
		}
		if r.Rel.ToMany() {
			raw, present := record[synth.RefListField(r.Name)]
			if !present || raw == nil {
				continue
			}
			ids, ok := raw.([]any)
			if !ok {
				return forge.NewValidationError(synth.RefListField(r.Name), fmt.Errorf("expects a list of identifiers"))
			}
			for _, id := range ids {
				if _, exists := x.view(r.Target, canonical(id)); !exists {
					return forge.NewConstraintError(forge.ConstraintForeignKey, "",
						fmt.Sprintf("referenced %s %v does not exist", r.Target, id), nil)
				}
			}
			continue
		}
		id, present := record[synth.RefField(r.Name)]
		if !present || id == nil {
			continue
		}
		if _, exists := x.view(r.Target, canonical(id)); !exists {
			return forge.NewConstraintError(forge.ConstraintForeignKey, "",
				fmt.Sprintf("referenced %s %v does not exist", r.Target, id), nil)
		}
	}
	return nil
}

// checkUnique enforces declared unique fields, either immediately or at
// Flush when the store defers constraint evaluation.
func (x *tx) checkUnique(model string, d *introspect.ModelDescriptor, record forge.Record, selfKey string) error {
	for fieldName := range x.store.unique[model] {
		value, present := record[fieldName]
		if !present || value == nil {
			continue
		}
		check := uniqueCheck{model: model, field: fieldName, value: value, selfKey: selfKey}
		if x.store.deferred {
			x.pendingUnique = append(x.pendingUnique, check)
			continue
		}
		if x.uniqueViolated(check) {
			return forge.NewConstraintError(forge.ConstraintUnique, fieldName,
				fmt.Sprintf("duplicate key value violates unique constraint on %s", fieldName), nil)
		}
	}
	return nil
}

func (x *tx) uniqueViolated(check uniqueCheck) bool {
	seen := 0
	scan := func(key string, record forge.Record) {
		if record == nil || key == check.selfKey {
			return
		}
		if equalValues(record[check.field], check.value) {
			seen++
		}
	}
	for key, record := range x.store.tables[check.model].records {
		if staged, ok := x.staged[check.model]; ok {
			if _, shadowed := staged.records[key]; shadowed {
				continue
			}
		}
		scan(key, record)
	}
	if staged, ok := x.staged[check.model]; ok {
		for key, record := range staged.records {
			scan(key, record)
		}
	}
	return seen > 0
}

func canonical(id any) string {
	return fmt.Sprintf("%v", id)
}

func clone(record forge.Record) forge.Record {
	if record == nil {
		return nil
	}
	out := make(forge.Record, len(record))
	for k, v := range record {
		out[k] = v
	}
	return out
}

func remove(keys []string, key string) []string {
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

func window(records []forge.Record, page forge.PageSpec) []forge.Record {
	if page.Offset > 0 {
		if page.Offset >= len(records) {
			return nil
		}
		records = records[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(records) {
		records = records[:page.Limit]
	}
	return records
}
