// Package guardrails implements the checks that must pass before any
// outbound side effect is authorized: PHI pattern detection, consent gating,
// and the per-customer message cap. These run independently of the
// permission manifest, which governs command authorization rather than
// content safety.
package guardrails

import (
	"regexp"

	"github.com/arocore/core/common/redact"
)

// phiPatterns matches clinical identifiers and terms that must never appear
// in a generated outbound message. Each pattern targets a specific format
// (SSN, MRN) or a narrow clinical vocabulary rather than a broad dictionary,
// to keep the false-positive rate manageable for legitimate scheduling copy.
var phiPatterns = []*regexp.Regexp{
	// US Social Security Number, with or without dashes.
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b\d{9}\b`),
	// Medical record number, explicitly labelled.
	regexp.MustCompile(`(?i)\bMRN[:\s#]*\d{5,}\b`),
	// Diagnosis/clinical-term leakage into scheduling copy.
	regexp.MustCompile(`(?i)\b(diagnosis|biopsy|HIV|oncology|chemotherapy|psychiatric)\b`),
}

// ErrPHIDetected is returned when generated text fails the PHI pattern
// check. It carries the offending text only in redacted form (Redacted):
// callers must log that field, never the original text, in any audit
// record.
type ErrPHIDetected struct {
	MatchedPattern string
	Redacted       string
}

func (e *ErrPHIDetected) Error() string {
	return "generated text matched a PHI pattern and was blocked"
}

// CheckPHI scans text for PHI-shaped content. A match raises a terminal
// error carrying a redacted copy of text (the matched spans replaced with
// [REDACTED]) so the caller has something safe to log.
func CheckPHI(text string) error {
	for _, re := range phiPatterns {
		if matches := re.FindAllString(text, -1); matches != nil {
			return &ErrPHIDetected{MatchedPattern: re.String(), Redacted: redact.String(text, matches...)}
		}
	}
	return nil
}
