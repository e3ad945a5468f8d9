package visibility

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suratline/internal/domain"
)

const clerical = "Bagian TU"

func sample() []domain.Report {
	return []domain.Report{
		{ID: "RPT001", LetterNumber: "001/SDM/2025", CreatedBy: clerical, AssignedCoordinators: []string{"Suwarti, S.H"}},
		{ID: "RPT002", LetterNumber: "002/SDM/2025", CreatedBy: clerical, AssignedCoordinators: []string{"Achamd Evianto"}, AssignedStaff: []string{"Budi Santoso", "Sari Wijaya"}},
		{ID: "RPT003", LetterNumber: "003/KEU/2025", CreatedBy: "tu2", AssignedCoordinators: []string{"Suwarti, S.H", "Achamd Evianto"}, AssignedStaff: []string{"Sari Wijaya"}},
	}
}

func ids(rs []domain.Report) []string {
	out := []string{}
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestFilterByRole(t *testing.T) {
	rs := sample()
	assert.Equal(t, []string{"RPT001", "RPT002"}, ids(Filter(rs, domain.RoleTU, clerical, clerical)))
	assert.Equal(t, []string{"RPT001", "RPT002", "RPT003"}, ids(Filter(rs, domain.RoleTU, "tu2", clerical)))
	assert.Equal(t, []string{"RPT001", "RPT003"}, ids(Filter(rs, domain.RoleCoordinator, "Suwarti, S.H", clerical)))
	assert.Equal(t, []string{"RPT002", "RPT003"}, ids(Filter(rs, domain.RoleStaff, "Sari Wijaya", clerical)))
	assert.Empty(t, Filter(rs, domain.RoleStaff, "Nobody", clerical))
	assert.Len(t, Filter(rs, domain.RoleAdmin, "admin", clerical), 3)
	assert.Len(t, Filter(rs, domain.Role("Auditor"), "x", clerical), 3)
	assert.True(t, CanSee(rs[1], domain.RoleStaff, "Budi Santoso", clerical))
	assert.False(t, CanSee(rs[0], domain.RoleStaff, "Budi Santoso", clerical))
}

func TestStaffFilterIsExact(t *testing.T) {
	staff := []string{"A", "B", "C", "D"}
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := rng.Intn(30)
		rs := make([]domain.Report, n)
		for i := range rs {
			rs[i].ID = fmt.Sprintf("R%d", i)
			for _, s := range staff {
				if rng.Intn(2) == 0 {
					rs[i].AssignedStaff = append(rs[i].AssignedStaff, s)
				}
			}
		}
		rng.Shuffle(len(rs), func(i, j int) { rs[i], rs[j] = rs[j], rs[i] })
		for _, s := range staff {
			var want []string
			for _, r := range rs {
				for _, a := range r.AssignedStaff {
					if a == s {
						want = append(want, r.ID)
					}
				}
			}
			got := ids(Filter(rs, domain.RoleStaff, s, clerical))
			if want == nil {
				want = []string{}
			}
			assert.Equal(t, want, got)
		}
	}
}

func TestTrack(t *testing.T) {
	rs := sample()
	r, ok := Track(rs, "sdm")
	require.True(t, ok)
	assert.Equal(t, "RPT001", r.ID)

	r, ok = Track(rs, "003/keu")
	require.True(t, ok)
	assert.Equal(t, "RPT003", r.ID)

	_, ok = Track(rs, "999/XYZ")
	assert.False(t, ok)
	_, ok = Track(rs, "   ")
	assert.False(t, ok)
}
