// Package permission answers authorization and jurisdiction questions for a
// session with an active profile. Every answer is a definite allow or deny.
package permission

import (
	"context"

	"ses-portal/internal/domain/auth"
	"ses-portal/internal/pkg/session"

	"go.uber.org/zap"
)

type GrantReader interface {
	IsEnabled(ctx context.Context, roleID auth.RoleID, fn auth.FunctionalityID) (bool, error)
	EnabledFunctionalities(ctx context.Context, roleID auth.RoleID) ([]auth.FunctionalityID, error)
}

type JurisdictionReader interface {
	ActiveMunicipalities(ctx context.Context) ([]string, error)
	MunicipalitiesInRegion(ctx context.Context, regionID int64) ([]string, error)
	FacilityMunicipality(ctx context.Context, facilityCode string) (string, error)
}

type Resolver struct {
	grants GrantReader
	places JurisdictionReader
	logger *zap.Logger
}

func NewResolver(grants GrantReader, places JurisdictionReader, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{grants: grants, places: places, logger: logger}
}

// Check reports whether the active role may use fn. Role 1 always may;
// other roles need an explicit enabled grant.
func (r *Resolver) Check(ctx context.Context, sess *session.SessionData, fn auth.FunctionalityID) bool {
	role, ok := sess.RoleID()
	if !ok || !fn.Valid() {
		return false
	}
	if role.IsSuperRole() {
		return true
	}

	enabled, err := r.grants.IsEnabled(ctx, role, fn)
	if err != nil {
		r.logger.Warn("permission lookup failed",
			zap.Int("role_id", int(role)),
			zap.Stringer("functionality", fn),
			zap.Error(err),
		)
		return false
	}
	return enabled
}

// CheckAny is true when at least one of fns is granted.
func (r *Resolver) CheckAny(ctx context.Context, sess *session.SessionData, fns ...auth.FunctionalityID) bool {
	for _, fn := range fns {
		if r.Check(ctx, sess, fn) {
			return true
		}
	}
	return false
}

// CheckAll is true when every one of fns is granted. An empty list denies.
func (r *Resolver) CheckAll(ctx context.Context, sess *session.SessionData, fns ...auth.FunctionalityID) bool {
	if len(fns) == 0 {
		return false
	}
	for _, fn := range fns {
		if !r.Check(ctx, sess, fn) {
			return false
		}
	}
	return true
}

// CanAccessMunicipality: roles 1 and 2 see every municipality, the others
// only the one cached on the session.
func (r *Resolver) CanAccessMunicipality(_ context.Context, sess *session.SessionData, code string) bool {
	role, ok := sess.RoleID()
	if !ok || !auth.ValidMunicipalityCode(code) {
		return false
	}
	switch role {
	case auth.RoleSESAdmin, auth.RoleRegionalManager:
		return true
	default:
		return code == sess.ActiveRole.Jurisdiction.MunicipalityCode
	}
}

// CanAccessFacility: a technician sees only the cached facility; other roles
// see a facility when they can access its owning municipality. A Municipal
// Manager therefore sees all facilities of the manager's own municipality.
func (r *Resolver) CanAccessFacility(ctx context.Context, sess *session.SessionData, code string) bool {
	role, ok := sess.RoleID()
	if !ok || !auth.ValidFacilityCode(code) {
		return false
	}
	switch role {
	case auth.RoleSESAdmin:
		return true
	case auth.RoleMunicipalTechnician:
		return code == sess.ActiveRole.Jurisdiction.FacilityCode
	}

	municipality, err := r.places.FacilityMunicipality(ctx, code)
	if err != nil {
		r.logger.Debug("facility lookup denied", zap.String("facility_code", code), zap.Error(err))
		return false
	}
	return r.CanAccessMunicipality(ctx, sess, municipality)
}

// AccessibleMunicipalities lists the municipality codes the active role may see.
func (r *Resolver) AccessibleMunicipalities(ctx context.Context, sess *session.SessionData) []string {
	role, ok := sess.RoleID()
	if !ok {
		return []string{}
	}

	var (
		codes []string
		err   error
	)
	switch role {
	case auth.RoleSESAdmin:
		codes, err = r.places.ActiveMunicipalities(ctx)
	case auth.RoleRegionalManager:
		region := sess.ActiveRole.Jurisdiction.RegionID
		if region == nil {
			return []string{}
		}
		codes, err = r.places.MunicipalitiesInRegion(ctx, *region)
	default:
		if code := sess.ActiveRole.Jurisdiction.MunicipalityCode; auth.ValidMunicipalityCode(code) {
			return []string{code}
		}
		return []string{}
	}

	if err != nil {
		r.logger.Warn("jurisdiction lookup failed", zap.Int("role_id", int(role)), zap.Error(err))
		return []string{}
	}
	if codes == nil {
		codes = []string{}
	}
	return codes
}

// CanModify is false only for the read-only Auditor profile.
func (r *Resolver) CanModify(sess *session.SessionData) bool {
	role, ok := sess.RoleID()
	return ok && role != auth.RoleAuditor
}

// Capabilities lists the functionalities enabled for the active role.
func (r *Resolver) Capabilities(ctx context.Context, sess *session.SessionData) []auth.FunctionalityID {
	role, ok := sess.RoleID()
	if !ok {
		return []auth.FunctionalityID{}
	}
	if role.IsSuperRole() {
		return auth.AllFunctionalities()
	}

	fns, err := r.grants.EnabledFunctionalities(ctx, role)
	if err != nil {
		r.logger.Warn("capability lookup failed", zap.Int("role_id", int(role)), zap.Error(err))
		return []auth.FunctionalityID{}
	}
	return fns
}
