// Package verification tracks which required documents of a report are
// present.
package verification

import (
	"sort"

	"suratline/internal/domain"
)

// Initialize returns existing unchanged when verification has already
// started. Otherwise every required document starts absent. No required
// documents yields an empty map.
func Initialize(required []string, existing domain.Verification) domain.Verification {
	if existing != nil {
		return existing
	}
	m := make(domain.Verification, len(required))
	for _, doc := range required {
		m[doc] = domain.DocumentAbsent
	}
	return m
}

// SetStatus returns a copy of m with doc set to status. Labels outside the
// catalog are accepted.
func SetStatus(m domain.Verification, doc string, status domain.DocumentStatus) domain.Verification {
	out := make(domain.Verification, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[doc] = status
	return out
}

// AllPresent is true iff every document is present. An empty map counts as
// complete so services with no required documents go straight to assignment.
func AllPresent(m domain.Verification) bool {
	for _, v := range m {
		if v != domain.DocumentPresent {
			return false
		}
	}
	return true
}

// Missing lists the documents not marked present, sorted.
func Missing(m domain.Verification) []string {
	var out []string
	for k, v := range m {
		if v != domain.DocumentPresent {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
