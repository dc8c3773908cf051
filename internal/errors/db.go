package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Patterns for pulling structure out of PgError.Detail text.
var (
	// "Key (field)=(value) already exists."
	reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// "... is still referenced from table X" means a parent row is being
	// deleted out from under children.
	reReferencedFrom = regexp.MustCompile(`is still referenced from table "?([^"]+)"?`)
	// "... is not present in table X" means a child points at a parent that
	// does not exist.
	reNotPresent = regexp.MustCompile(`is not present in table "?([^"]+)"?`)
)

// tableDomainNames translates schema table names into the nouns shown to
// users. Tables not listed fall back to a title-cased rendering.
var tableDomainNames = map[string]string{
	"jobs":                  "Job",
	"stores":                "Store",
	"store_preferences":     "Store Preference",
	"local_discovery_state": "Local Discovery State",
}

// expressionFuncs are SQL functions that show up as the middle segment of
// expression-index constraint names. Seeing one means the segment is not a
// column.
var expressionFuncs = map[string]bool{
	"lower": true, "upper": true, "trim": true, "ltrim": true, "rtrim": true,
	"md5": true, "sha1": true, "sha256": true, "encode": true, "decode": true,
}

// MapDBError translates driver and Postgres errors into AppError values the
// HTTP layer can render: pgx.ErrNoRows becomes not_found, unique violations
// become conflict, foreign key violations become foreign_key, check and
// not-null violations become validation, and context errors become
// timeout or canceled. Anything unrecognized passes through unchanged.
func MapDBError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: "Request timed out. Please try again.", Cause: err}
	case errors.Is(err, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "Request was canceled.", Cause: err}
	case errors.Is(err, pgx.ErrNoRows):
		return &AppError{Code: ErrCodeNotFound, Message: "Resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "This value already exists. Please choose a different one.",
			Field:   uniqueViolationField(pgErr),
			Cause:   pgErr,
		}
	case pgerrcode.ForeignKeyViolation:
		return &AppError{
			Code:    ErrCodeForeignKey,
			Message: foreignKeyMessage(pgErr),
			Cause:   pgErr,
		}
	case pgerrcode.NotNullViolation:
		return validationError(pgErr, "This field is required.", "Required field is missing. Please check your input.")
	case pgerrcode.CheckViolation:
		return validationError(pgErr, "This field has an invalid value.", "Invalid data. Please check your input.")
	default:
		return &AppError{
			Code:    ErrCodeInternal,
			Message: "A database error occurred. Please try again.",
			Cause:   pgErr,
		}
	}
}

func validationError(pgErr *pgconn.PgError, withField, withoutField string) error {
	msg := withoutField
	if pgErr.ColumnName != "" {
		msg = withField
	}
	return &AppError{
		Code:    ErrCodeValidation,
		Message: msg,
		Field:   pgErr.ColumnName,
		Cause:   pgErr,
	}
}

// uniqueViolationField names the offending column. ColumnName metadata is
// authoritative when the server provides it; the Detail text handles
// multi-column constraints; the constraint name is a last resort that gives
// up rather than guess wrong.
func uniqueViolationField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if pgErr.Detail != "" {
		if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			return m[1]
		}
	}
	return inferFieldFromConstraint(pgErr.ConstraintName)
}

// foreignKeyMessage picks wording by violation direction. Deleting a parent
// that is still referenced reads differently from inserting a child whose
// parent is missing.
func foreignKeyMessage(pgErr *pgconn.PgError) string {
	if pgErr.Detail != "" {
		if m := reReferencedFrom.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			return "Cannot delete because this item is in use by " + domainNameFor(m[1]) + "."
		}
		if m := reNotPresent.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			return "Cannot complete operation because the referenced " + domainNameFor(m[1]) + " does not exist."
		}
	}
	if pgErr.TableName != "" {
		return "Cannot complete operation because this item is in use by " + domainNameFor(pgErr.TableName) + "."
	}
	return inferForeignKeyMessage(pgErr.ConstraintName)
}

// inferFieldFromConstraint reads a column out of names shaped like
// "stores_domain_key" or "stores_name_unique". Anything with more segments
// is a multi-column or expression constraint, where guessing a field would
// mislead, so those return empty.
func inferFieldFromConstraint(constraintName string) string {
	parts := strings.Split(constraintName, "_")
	if constraintName == "" || len(parts) != 3 {
		return ""
	}
	if expressionFuncs[strings.ToLower(parts[1])] {
		return ""
	}
	return parts[1]
}

func domainNameFor(tableName string) string {
	tableName = strings.ToLower(strings.TrimSpace(tableName))
	if name, ok := tableDomainNames[tableName]; ok {
		return name
	}
	return titleWords(strings.ReplaceAll(tableName, "_", " "))
}

// titleWords uppercases the first letter of each ASCII word.
func titleWords(s string) string {
	words := strings.Split(s, " ")
	for i, word := range words {
		if len(word) > 0 && word[0] >= 'a' && word[0] <= 'z' {
			words[i] = string(word[0]-'a'+'A') + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// inferForeignKeyMessage is the fallback when the server gave neither
// detail text nor a table name. Preference is matched before store because
// "store_preferences_store_id_fkey" contains both.
func inferForeignKeyMessage(constraintName string) string {
	constraintName = strings.ToLower(constraintName)
	switch {
	case strings.Contains(constraintName, "preference"):
		return "Cannot delete because it is in use by a Store Preference."
	case strings.Contains(constraintName, "store"):
		return "Cannot delete because it is in use by a Store."
	case strings.Contains(constraintName, "job"):
		return "Cannot delete because it is in use by a Job."
	}
	return "Cannot complete operation because this item is in use."
}
