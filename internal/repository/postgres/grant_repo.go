// internal/repository/postgres/grant_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ses-portal/internal/domain/auth"
	xerrors "ses-portal/internal/pkg/errors"

	"github.com/lib/pq"
)

// GrantRepository reads role grants and role→functionality permission grants.
type GrantRepository struct {
	db *sql.DB
}

func NewGrantRepository(db *sql.DB) *GrantRepository {
	return &GrantRepository{db: db}
}

// IsEnabled reports whether an explicit enabled row exists for (role, functionality).
// A missing row is a definite "no", not an error.
func (r *GrantRepository) IsEnabled(ctx context.Context, roleID auth.RoleID, fn auth.FunctionalityID) (bool, error) {
	query := `
		SELECT enabled
		FROM role_functionalities
		WHERE role_id = $1 AND functionality_id = $2
	`
	var enabled bool
	err := r.db.QueryRowContext(ctx, query, int64(roleID), int64(fn)).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read permission grant: %w", err)
	}
	return enabled, nil
}

// EnabledFunctionalities lists the functionalities a role has enabled, ordered by id.
// Ids outside the known enumeration are dropped.
func (r *GrantRepository) EnabledFunctionalities(ctx context.Context, roleID auth.RoleID) ([]auth.FunctionalityID, error) {
	query := `
		SELECT COALESCE(array_agg(functionality_id ORDER BY functionality_id), '{}')
		FROM role_functionalities
		WHERE role_id = $1 AND enabled
	`
	var ids []int64
	if err := r.db.QueryRowContext(ctx, query, int64(roleID)).Scan(pq.Array(&ids)); err != nil {
		return nil, fmt.Errorf("failed to list enabled functionalities: %w", err)
	}

	out := make([]auth.FunctionalityID, 0, len(ids))
	for _, id := range ids {
		if f := auth.FunctionalityID(id); f.Valid() {
			out = append(out, f)
		}
	}
	return out, nil
}

const roleGrantSelect = `
	SELECT ur.user_id, ur.role_id, r.name, ur.region_id,
	       COALESCE(ur.municipality_code, f.municipality_code, ''),
	       COALESCE(ur.facility_code, ''),
	       ur.active
	FROM user_roles ur
	JOIN roles r ON r.id = ur.role_id
	LEFT JOIN facilities f ON f.code = ur.facility_code
`

// RoleGrants lists the active profiles a user may adopt
func (r *GrantRepository) RoleGrants(ctx context.Context, userID int64) ([]auth.RoleGrant, error) {
	query := roleGrantSelect + ` WHERE ur.user_id = $1 AND ur.active ORDER BY ur.role_id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role grants: %w", err)
	}
	defer rows.Close()

	var grants []auth.RoleGrant
	for rows.Next() {
		g, err := scanRoleGrant(rows)
		if err != nil {
			return nil, err
		}
		if g.RoleID.Valid() {
			grants = append(grants, *g)
		}
	}
	return grants, rows.Err()
}

// RoleGrant retrieves one grant of a user for a given role
func (r *GrantRepository) RoleGrant(ctx context.Context, userID int64, roleID auth.RoleID) (*auth.RoleGrant, error) {
	query := roleGrantSelect + ` WHERE ur.user_id = $1 AND ur.role_id = $2 LIMIT 1`

	g, err := scanRoleGrant(r.db.QueryRowContext(ctx, query, userID, int64(roleID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	return g, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoleGrant(row rowScanner) (*auth.RoleGrant, error) {
	var (
		g        auth.RoleGrant
		roleID   int64
		regionID sql.NullInt64
	)
	err := row.Scan(&g.UserID, &roleID, &g.RoleName, &regionID,
		&g.Jurisdiction.MunicipalityCode, &g.Jurisdiction.FacilityCode, &g.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan role grant: %w", err)
	}
	g.RoleID = auth.RoleID(roleID)
	if regionID.Valid {
		id := regionID.Int64
		g.Jurisdiction.RegionID = &id
	}
	return &g, nil
}
