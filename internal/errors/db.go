package errors

import (
	"context"
	"errors"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type constraintInfo struct {
	field string
	msg   string
}

// Named constraints on the users table and what they mean to an API client.
var knownConstraints = map[string]constraintInfo{
	"users_email_key":             {"email", "a user with this email already exists"},
	"users_google_id_key":         {"google_id", "this Google account is already linked to another user"},
	"users_email_lowercase":       {"email", "email must be lowercase"},
	"users_roles_nonempty":        {"roles", "at least one role is required"},
	"users_roles_known":           {"roles", "unknown role"},
	"users_roles_admin_exclusive": {"roles", "the admin role cannot be combined with other roles"},
}

// Postgres puts the offending column in Detail for unique violations:
// "Key (email)=(a@example.com) already exists."
var reKeyColumn = regexp.MustCompile(`^Key \(([a-z_]+)\)=`)

// MapDBError translates driver errors into AppErrors. Context errors become
// Timeout or Canceled, pgx.ErrNoRows becomes NotFound, and constraint
// violations become Conflict or Validation. Anything else is returned as-is.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "database request timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "database request canceled")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "not found")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	var code ErrorCode
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		code = ErrCodeConflict
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
		code = ErrCodeValidation
	default:
		return Wrap(pgErr, ErrCodeInternal, "database error")
	}

	out := Wrap(pgErr, code, defaultConstraintMessage(code))
	if info, ok := knownConstraints[pgErr.ConstraintName]; ok {
		out.Field, out.Message = info.field, info.msg
		return out
	}
	out.Field = pgErr.ColumnName
	if out.Field == "" {
		if m := reKeyColumn.FindStringSubmatch(pgErr.Detail); m != nil {
			out.Field = m[1]
		}
	}
	return out
}

func defaultConstraintMessage(code ErrorCode) string {
	if code == ErrCodeConflict {
		return "value already exists"
	}
	return "invalid value"
}
