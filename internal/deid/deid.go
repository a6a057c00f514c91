// Package deid masks personal identifier patterns in clinical text before it
// reaches the embedding or storage layers.
package deid

import (
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"

	"clinquery/internal/util"
)

type Detection string

const (
	DetectionEmail Detection = "email"
	DetectionSSN   Detection = "ssn"
	DetectionDate  Detection = "date"
	DetectionPhone Detection = "phone"
	DetectionID    Detection = "id"
)

// Redacted replaces a whole field when per-record detection fails during
// batch ingestion, so one bad record never aborts the batch.
const Redacted = "[REDACTED]"

type rule struct {
	kind        Detection
	placeholder string
	re          *regexp.Regexp
}

// Rule order matters: specific identifier shapes run before the generic digit
// run so an SSN becomes [SSN], not [ID].
var rules = []rule{
	{DetectionEmail, "[EMAIL]", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{DetectionSSN, "[SSN]", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{DetectionDate, "[DATE]", regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b\d{1,2}/\d{1,2}/\d{2,4}\b|\b(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.? \d{1,2},? \d{4}\b`)},
	{DetectionPhone, "[PHONE]", regexp.MustCompile(`(\+\d{1,2}[\s-]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]?\d{4}\b`)},
	{DetectionID, "[ID]", regexp.MustCompile(`\b\d{6,}\b`)},
}

// Deidentify masks every detected identifier pattern with a typed placeholder
// and reports which pattern classes were found. Placeholders contain no digits
// or address characters, so the function is idempotent.
func Deidentify(text string) (string, []Detection, error) {
	if !utf8.ValidString(text) {
		return "", nil, fmt.Errorf("%w: text is not valid UTF-8", util.ErrMalformed)
	}
	clean := text
	found := map[Detection]struct{}{}
	for _, r := range rules {
		if !r.re.MatchString(clean) {
			continue
		}
		found[r.kind] = struct{}{}
		clean = r.re.ReplaceAllString(clean, r.placeholder)
	}
	kinds := make([]Detection, 0, len(found))
	for k := range found {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return clean, kinds, nil
}
