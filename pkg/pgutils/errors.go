package pgutils

import "strings"

// SQLSTATE codes the repositories discriminate on.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	CodeUniqueViolation = "23505"
	CodeCheckViolation  = "23514"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return hasSQLState(err, CodeUniqueViolation)
}

// IsCheckViolation reports whether err is a check constraint violation.
func IsCheckViolation(err error) bool {
	return hasSQLState(err, CodeCheckViolation)
}

// hasSQLState matches the code textually so it works for both pgx errors
// and driver errors that only carry the rendered message.
func hasSQLState(err error, code string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), code)
}
