package auth

import (
	"fmt"
	"strconv"
	"strings"
)

// RoleID identifies one of the fixed portal profiles.
type RoleID int

const (
	RoleSESAdmin            RoleID = 1
	RoleRegionalManager     RoleID = 2
	RoleMunicipalManager    RoleID = 3
	RoleMunicipalTechnician RoleID = 4
	RoleAuditor             RoleID = 5
)

var roleNames = map[RoleID]string{
	RoleSESAdmin:            "SES-Admin",
	RoleRegionalManager:     "Regional Manager",
	RoleMunicipalManager:    "Municipal Manager",
	RoleMunicipalTechnician: "Municipal Technician",
	RoleAuditor:             "Auditor",
}

// Valid reports whether r is one of the known roles.
func (r RoleID) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r RoleID) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("RoleID(%d)", int(r))
}

// IsSuperRole reports whether r bypasses functionality and jurisdiction checks.
func (r RoleID) IsSuperRole() bool {
	return r == RoleSESAdmin
}

// ParseRoleID converts boundary input into a RoleID.
func ParseRoleID(raw string) (RoleID, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: role id %q is not numeric", ErrInvalidInput, raw)
	}
	r := RoleID(n)
	if !r.Valid() {
		return 0, fmt.Errorf("%w: unknown role id %d", ErrInvalidInput, n)
	}
	return r, nil
}
