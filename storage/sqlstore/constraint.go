package sqlstore

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/apiforge/forge"
)

// Postgres SQLSTATE codes for class-23 violations.
const (
	pgUniqueViolation     = "23505"
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
)

// MySQL error numbers for the same violations.
const (
	mysqlDuplicateEntry   = 1062
	mysqlColumnNull       = 1048
	mysqlForeignKeyChild  = 1452
	mysqlForeignKeyParent = 1451
)

var (
	// Key (email)=(x@y) already exists.
	pgDetailKey = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// Duplicate entry 'x@y' for key 'authors.email' (or 'email').
	mysqlDuplicateKey = regexp.MustCompile(`for key '(?:[^'.]+\.)?([^'.]+)'`)
	// Column 'email' cannot be null.
	mysqlNullColumn = regexp.MustCompile(`Column '([^']+)'`)
	// FOREIGN KEY (`author_id`) REFERENCES ...
	mysqlFKColumn = regexp.MustCompile("FOREIGN KEY \\(`([^`]+)`\\)")
	// UNIQUE constraint failed: authors.email (SQLite message form, also
	// used for NOT NULL).
	sqliteColumn = regexp.MustCompile(`constraint failed: [^.]+\.([a-zA-Z0-9_]+)`)
)

// attributeConstraint classifies a driver error into a ConstraintError
// with kind and, where the backend message carries one, the offending
// field. Errors that are not constraint violations pass through.
func attributeConstraint(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return attributePostgres(pqErr, err)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return attributeMySQL(myErr, err)
	}
	if ce := attributeSQLite(err); ce != nil {
		return ce
	}
	return err
}

func attributePostgres(e *pq.Error, wrap error) error {
	field := e.Column
	if field == "" {
		if m := pgDetailKey.FindStringSubmatch(e.Detail); m != nil {
			// Composite keys attribute to the first column.
			field, _, _ = strings.Cut(m[1], ",")
			field = strings.TrimSpace(field)
		}
	}
	switch string(e.Code) {
	case pgUniqueViolation:
		return forge.NewConstraintError(forge.ConstraintUnique, field, e.Message, wrap)
	case pgNotNullViolation:
		return forge.NewConstraintError(forge.ConstraintNotNull, field, e.Message, wrap)
	case pgForeignKeyViolation:
		return forge.NewConstraintError(forge.ConstraintForeignKey, field, e.Message, wrap)
	}
	return wrap
}

func attributeMySQL(e *mysql.MySQLError, wrap error) error {
	switch e.Number {
	case mysqlDuplicateEntry:
		var field string
		if m := mysqlDuplicateKey.FindStringSubmatch(e.Message); m != nil {
			field = m[1]
		}
		return forge.NewConstraintError(forge.ConstraintUnique, field, e.Message, wrap)
	case mysqlColumnNull:
		var field string
		if m := mysqlNullColumn.FindStringSubmatch(e.Message); m != nil {
			field = m[1]
		}
		return forge.NewConstraintError(forge.ConstraintNotNull, field, e.Message, wrap)
	case mysqlForeignKeyChild, mysqlForeignKeyParent:
		var field string
		if m := mysqlFKColumn.FindStringSubmatch(e.Message); m != nil {
			field = m[1]
		}
		return forge.NewConstraintError(forge.ConstraintForeignKey, field, e.Message, wrap)
	}
	return wrap
}

// attributeSQLite matches the message shapes modernc.org/sqlite surfaces.
// The driver wraps sqlite result codes in plain errors, so string matching
// is the only handle.
func attributeSQLite(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return forge.NewConstraintError(forge.ConstraintUnique, sqliteField(msg), msg, err)
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return forge.NewConstraintError(forge.ConstraintNotNull, sqliteField(msg), msg, err)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		// SQLite does not name the violated key.
		return forge.NewConstraintError(forge.ConstraintForeignKey, "", msg, err)
	}
	return nil
}

func sqliteField(msg string) string {
	if m := sqliteColumn.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}
