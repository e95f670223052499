package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/apiforge/forge"
	"github.com/apiforge/forge/model/field"
)

// unit is one transactional unit of work. Every mutation runs under its
// own savepoint: a failed call rolls back to its savepoint and the unit
// stays usable for the next one.
type unit struct {
	store *Store
	tx    *sql.Tx
	sp    int
}

// guarded runs fn inside a fresh savepoint, rolling back to it on error.
func (u *unit) guarded(ctx context.Context, fn func() error) error {
	u.sp++
	name := fmt.Sprintf("forge_sp_%d", u.sp)
	if _, err := u.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := u.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			u.store.log.Error().Err(rbErr).Str("savepoint", name).Msg("savepoint rollback failed")
		}
		return err
	}
	if _, err := u.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// Create inserts a record and returns the stored row.
func (u *unit) Create(ctx context.Context, model string, payload forge.Record) (forge.Record, error) {
	t, err := u.store.table(model)
	if err != nil {
		return nil, err
	}
	cols, args, err := t.writeColumns(payload)
	if err != nil {
		return nil, err
	}

	var rec forge.Record
	err = u.guarded(ctx, func() error {
		phs := make([]string, len(cols))
		for i := range cols {
			phs[i] = u.placeholder(i + 1)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			t.name, strings.Join(cols, ", "), strings.Join(phs, ", "))

		if u.store.dialect == MySQL {
			res, err := u.tx.ExecContext(ctx, q, args...)
			if err != nil {
				return attributeConstraint(err)
			}
			id, ok := payload[t.pk]
			if !ok {
				last, err := res.LastInsertId()
				if err != nil {
					return fmt.Errorf("create %s: %w", model, err)
				}
				id = last
			}
			stored, err := u.fetchOne(ctx, t, id)
			if err != nil {
				return err
			}
			rec = stored
			return nil
		}

		q += " RETURNING " + t.selectList()
		stored, err := u.queryOne(ctx, t, q, args...)
		if err != nil {
			return attributeConstraint(err)
		}
		rec = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update changes the given columns of one row and returns the stored row.
func (u *unit) Update(ctx context.Context, model string, id any, payload forge.Record) (forge.Record, error) {
	t, err := u.store.table(model)
	if err != nil {
		return nil, err
	}
	cols, args, err := t.writeColumns(payload)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return u.fetchOneGuarded(ctx, t, id)
	}

	var rec forge.Record
	err = u.guarded(ctx, func() error {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = c + " = " + u.placeholder(i+1)
		}
		args := append(append([]any(nil), args...), id)
		q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			t.name, strings.Join(sets, ", "), t.pk, u.placeholder(len(args)))

		res, err := u.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return attributeConstraint(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update %s: %w", model, err)
		}
		if n == 0 {
			return forge.NewNotFoundError(model, id)
		}
		stored, err := u.fetchOne(ctx, t, id)
		if err != nil {
			return err
		}
		rec = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes one row by primary key.
func (u *unit) Delete(ctx context.Context, model string, id any) error {
	t, err := u.store.table(model)
	if err != nil {
		return err
	}
	return u.guarded(ctx, func() error {
		q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", t.name, t.pk, u.placeholder(1))
		res, err := u.tx.ExecContext(ctx, q, id)
		if err != nil {
			return attributeConstraint(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete %s: %w", model, err)
		}
		if n == 0 {
			return forge.NewNotFoundError(model, id)
		}
		return nil
	})
}

// Flush forces deferred constraint checks to run without ending the unit.
// Only Postgres defers checks; the other backends check per statement.
func (u *unit) Flush(ctx context.Context) error {
	if u.store.dialect != Postgres {
		return nil
	}
	if _, err := u.tx.ExecContext(ctx, "SET CONSTRAINTS ALL IMMEDIATE"); err != nil {
		return attributeConstraint(err)
	}
	return nil
}

// Commit commits the unit.
func (u *unit) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return attributeConstraint(err)
	}
	return nil
}

// Rollback discards the unit.
func (u *unit) Rollback() error {
	return u.tx.Rollback()
}

func (u *unit) placeholder(n int) string {
	if u.store.dialect == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (u *unit) fetchOneGuarded(ctx context.Context, t *table, id any) (forge.Record, error) {
	var rec forge.Record
	err := u.guarded(ctx, func() error {
		stored, err := u.fetchOne(ctx, t, id)
		if err != nil {
			return err
		}
		rec = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (u *unit) fetchOne(ctx context.Context, t *table, id any) (forge.Record, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		t.selectList(), t.name, t.pk, u.placeholder(1))
	return u.queryOne(ctx, t, q, id)
}

func (u *unit) queryOne(ctx context.Context, t *table, q string, args ...any) (forge.Record, error) {
	rows, err := u.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, forge.NewNotFoundError(t.model, nil)
	}
	rec, err := t.scanRow(rows)
	if err != nil {
		return nil, err
	}
	return rec, rows.Err()
}

// writeColumns splits a payload into column and argument lists, in stable
// column order. Unknown keys are rejected; values of binary kind pass as
// byte slices.
func (t *table) writeColumns(payload forge.Record) ([]string, []any, error) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if _, ok := t.kinds[k]; !ok {
			return nil, nil, forge.NewValidationError(k, fmt.Errorf("unknown column on %s", t.model))
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, len(keys))
	for i, k := range keys {
		v := payload[k]
		if t.kinds[k] == field.KindBinary {
			if s, ok := v.(string); ok {
				v = []byte(s)
			}
		}
		args[i] = v
	}
	return keys, args, nil
}
