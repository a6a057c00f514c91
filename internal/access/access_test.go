package access

import (
	"testing"

	"clinquery/internal/models"
)

func TestCanAccess(t *testing.T) {
	cases := []struct {
		name      string
		role      string
		grant     models.AccessGrant
		patientID string
		want      bool
	}{
		{"resident outside scope", "resident", models.AccessGrant{Scope: models.ScopePatients, Patients: []string{"P1"}}, "P2", false},
		{"resident inside scope", "resident", models.AccessGrant{Scope: models.ScopePatients, Patients: []string{"P1"}}, "P1", true},
		{"attending all scope", "attending", models.AccessGrant{Scope: models.ScopeAll}, "P2", true},
		{"empty patient id", "attending", models.AccessGrant{Scope: models.ScopeAll}, "", false},
		{"empty role", "", models.AccessGrant{Scope: models.ScopeAll}, "P1", false},
		{"empty grant", "nurse", models.AccessGrant{}, "P1", false},
	}
	for _, tc := range cases {
		if got := CanAccess(tc.role, tc.grant, tc.patientID); got != tc.want {
			t.Fatalf("%s: CanAccess=%v want %v", tc.name, got, tc.want)
		}
	}
}
