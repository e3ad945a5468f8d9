// Package visibility decides which reports an actor may see and resolves the
// public letter-number lookup.
package visibility

import (
	"strings"

	"suratline/internal/domain"
)

// Filter returns the reports visible to role/identity, keeping the input
// order. clericalUnit is the shared identity every TU actor creates reports
// under. Admin and unrecognised roles see everything.
func Filter(reports []domain.Report, role domain.Role, identity, clericalUnit string) []domain.Report {
	var keep func(domain.Report) bool
	switch role {
	case domain.RoleTU:
		keep = func(r domain.Report) bool {
			return r.CreatedBy == identity || r.CreatedBy == clericalUnit
		}
	case domain.RoleCoordinator:
		keep = func(r domain.Report) bool { return contains(r.AssignedCoordinators, identity) }
	case domain.RoleStaff:
		keep = func(r domain.Report) bool { return contains(r.AssignedStaff, identity) }
	default:
		return append([]domain.Report{}, reports...)
	}
	out := []domain.Report{}
	for _, r := range reports {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// CanSee reports whether a single report passes Filter.
func CanSee(r domain.Report, role domain.Role, identity, clericalUnit string) bool {
	return len(Filter([]domain.Report{r}, role, identity, clericalUnit)) == 1
}

// Track returns the first report whose letter number contains query,
// case-insensitively. A blank query matches nothing.
func Track(reports []domain.Report, query string) (domain.Report, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return domain.Report{}, false
	}
	for _, r := range reports {
		if strings.Contains(strings.ToLower(r.LetterNumber), q) {
			return r, true
		}
	}
	return domain.Report{}, false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
