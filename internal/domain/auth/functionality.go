package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidInput marks malformed boundary values (role ids, functionality ids, codes).
var ErrInvalidInput = errors.New("invalid input")

// FunctionalityID identifies one of the named capabilities gating portal actions.
type FunctionalityID int

const (
	FuncUserManagement FunctionalityID = iota + 1
	FuncUserAuthorization
	FuncEquipmentManagement
	FuncEquipmentAuthorization
	FuncHealthReports
	FuncEAgentReports
	FuncHealthForm
	FuncMunicipalityRegistration
	FuncSystemAudit
	FuncGlobalSettings
)

var functionalityNames = [...]string{
	FuncUserManagement:           "user_management",
	FuncUserAuthorization:        "user_authorization",
	FuncEquipmentManagement:      "equipment_management",
	FuncEquipmentAuthorization:   "equipment_authorization",
	FuncHealthReports:            "health_reports",
	FuncEAgentReports:            "eagent_reports",
	FuncHealthForm:               "health_form",
	FuncMunicipalityRegistration: "municipality_registration",
	FuncSystemAudit:              "system_audit",
	FuncGlobalSettings:           "global_settings",
}

// Valid reports whether f is in the closed functionality set.
func (f FunctionalityID) Valid() bool {
	return f >= FuncUserManagement && f <= FuncGlobalSettings
}

func (f FunctionalityID) String() string {
	if f.Valid() {
		return functionalityNames[f]
	}
	return fmt.Sprintf("FunctionalityID(%d)", int(f))
}

// AllFunctionalities lists every functionality in id order.
func AllFunctionalities() []FunctionalityID {
	out := make([]FunctionalityID, 0, int(FuncGlobalSettings))
	for f := FuncUserManagement; f <= FuncGlobalSettings; f++ {
		out = append(out, f)
	}
	return out
}

// ParseFunctionalityID accepts either the numeric id or the snake_case name.
func ParseFunctionalityID(raw string) (FunctionalityID, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		f := FunctionalityID(n)
		if !f.Valid() {
			return 0, fmt.Errorf("%w: unknown functionality id %d", ErrInvalidInput, n)
		}
		return f, nil
	}
	for _, f := range AllFunctionalities() {
		if functionalityNames[f] == strings.ToLower(raw) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown functionality %q", ErrInvalidInput, raw)
}
