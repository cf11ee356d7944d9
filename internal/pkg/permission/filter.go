package permission

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"ses-portal/internal/pkg/session"
)

const (
	matchAll  = "1=1"
	matchNone = "1=0"
)

// identifiers like "municipality_code" or "e.municipality_code"
var columnPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Filter is a WHERE-clause fragment plus the values bound to its
// placeholders. Codes are never interpolated into Clause.
type Filter struct {
	Clause string
	Args   []interface{}
}

// MatchesNothing reports whether the filter denies every row.
func (f Filter) MatchesNothing() bool {
	return f.Clause == matchNone
}

// SQLFilter scopes a query on column to the session's jurisdiction.
// Placeholders are numbered from firstArg so the fragment can be appended to
// a query that already binds other values.
func (r *Resolver) SQLFilter(ctx context.Context, sess *session.SessionData, column string, firstArg int) Filter {
	role, ok := sess.RoleID()
	if !ok || !columnPattern.MatchString(column) {
		return Filter{Clause: matchNone}
	}
	if role.IsSuperRole() {
		return Filter{Clause: matchAll}
	}

	codes := r.AccessibleMunicipalities(ctx, sess)
	if len(codes) == 0 {
		return Filter{Clause: matchNone}
	}
	if firstArg < 1 {
		firstArg = 1
	}

	placeholders := make([]string, len(codes))
	args := make([]interface{}, len(codes))
	for i, code := range codes {
		placeholders[i] = "$" + strconv.Itoa(firstArg+i)
		args[i] = code
	}
	return Filter{
		Clause: column + " IN (" + strings.Join(placeholders, ", ") + ")",
		Args:   args,
	}
}
