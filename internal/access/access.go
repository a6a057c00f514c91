// Package access decides whether a caller may query a patient's records.
package access

import (
	"strings"

	"clinquery/internal/models"
)

// CanAccess is a pure function of the caller's role, grant, and the target
// patient. It must run before any embedding or store call so a denied caller
// cannot infer record existence even from timing.
func CanAccess(role string, grant models.AccessGrant, patientID string) bool {
	if strings.TrimSpace(role) == "" || strings.TrimSpace(patientID) == "" {
		return false
	}
	if grant.Scope == models.ScopeAll {
		return true
	}
	for _, p := range grant.Patients {
		if p == patientID {
			return true
		}
	}
	return false
}
