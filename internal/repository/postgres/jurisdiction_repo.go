// internal/repository/postgres/jurisdiction_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	xerrors "ses-portal/internal/pkg/errors"
)

// JurisdictionRepository answers read-only geography lookups.
type JurisdictionRepository struct {
	db *sql.DB
}

func NewJurisdictionRepository(db *sql.DB) *JurisdictionRepository {
	return &JurisdictionRepository{db: db}
}

// ActiveMunicipalities lists every active municipality code
func (r *JurisdictionRepository) ActiveMunicipalities(ctx context.Context) ([]string, error) {
	return r.codes(ctx, `SELECT code FROM municipalities WHERE active ORDER BY code`)
}

// MunicipalitiesInRegion lists the active municipalities of one region
func (r *JurisdictionRepository) MunicipalitiesInRegion(ctx context.Context, regionID int64) ([]string, error) {
	return r.codes(ctx, `SELECT code FROM municipalities WHERE region_id = $1 AND active ORDER BY code`, regionID)
}

// FacilityMunicipality returns the municipality owning an active facility
func (r *JurisdictionRepository) FacilityMunicipality(ctx context.Context, facilityCode string) (string, error) {
	query := `SELECT municipality_code FROM facilities WHERE code = $1 AND active`

	var code string
	err := r.db.QueryRowContext(ctx, query, facilityCode).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", xerrors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve facility municipality: %w", err)
	}
	return code, nil
}

func (r *JurisdictionRepository) codes(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list municipalities: %w", err)
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}
