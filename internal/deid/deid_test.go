package deid

import (
	"errors"
	"strings"
	"testing"

	"clinquery/internal/util"
)

func TestDeidentifyMasksKnownPatterns(t *testing.T) {
	cases := map[string]struct {
		in     string
		absent string
		kind   Detection
	}{
		"email": {"contact jane.doe@example.org for results", "jane.doe@example.org", DetectionEmail},
		"ssn":   {"SSN 123-45-6789 on file", "123-45-6789", DetectionSSN},
		"date":  {"admitted 2022-06-02 overnight", "2022-06-02", DetectionDate},
		"phone": {"callback (555) 867-5309 after discharge", "867-5309", DetectionPhone},
		"mrn":   {"MRN 90210456 cross-referenced", "90210456", DetectionID},
	}
	for name, tc := range cases {
		clean, kinds, err := Deidentify(tc.in)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if strings.Contains(clean, tc.absent) {
			t.Fatalf("%s: identifier survived de-identification: %q", name, clean)
		}
		foundKind := false
		for _, k := range kinds {
			if k == tc.kind {
				foundKind = true
			}
		}
		if !foundKind {
			t.Fatalf("%s: expected detection %s, got %v", name, tc.kind, kinds)
		}
	}
}

func TestDeidentifyIdempotent(t *testing.T) {
	in := "Pt 555-12-3456 seen 2021-03-04, email a@b.io, call 555-123-4567."
	once, _, err := Deidentify(in)
	if err != nil {
		t.Fatal(err)
	}
	twice, kinds, err := Deidentify(once)
	if err != nil {
		t.Fatal(err)
	}
	if once != twice {
		t.Fatalf("not idempotent:\nonce:  %q\ntwice: %q", once, twice)
	}
	if len(kinds) != 0 {
		t.Fatalf("second pass detected identifiers: %v", kinds)
	}
}

func TestDeidentifyKeepsClinicalValues(t *testing.T) {
	in := "Glucose 84.8 mg/dL, BP 120/80, HR 72"
	clean, _, err := Deidentify(in)
	if err != nil {
		t.Fatal(err)
	}
	if clean != in {
		t.Fatalf("clinical measurements were masked: %q", clean)
	}
}

func TestDeidentifyRejectsNonUTF8(t *testing.T) {
	_, _, err := Deidentify("bad \xff byte")
	if !errors.Is(err, util.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
