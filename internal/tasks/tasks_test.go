package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

func TestAssignOnePerStaff(t *testing.T) {
	ts := Assign("RPT001", []string{"Budi Santoso", "Sari Wijaya", "Budi Santoso"}, []string{"Jadwalkan/Agendakan"}, now)
	require.Len(t, ts, 2)
	assert.Equal(t, "Budi Santoso", ts[0].StaffID)
	assert.Equal(t, "Sari Wijaya", ts[1].StaffID)
	assert.Contains(t, ts[0].ID, "RPT001_Budi Santoso_")
	assert.False(t, ts[0].Completed)
	assert.Nil(t, ts[0].CompletedAt)
	assert.Equal(t, []string{"Jadwalkan/Agendakan"}, ts[1].Items)
}

func TestCompleteIsMonotonic(t *testing.T) {
	ts := Assign("RPT001", []string{"A", "B"}, []string{"x"}, now)
	next, done, err := Complete(ts, "A", now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "2025-01-15T09:00:00Z", *done.CompletedAt)
	assert.False(t, ts[0].Completed, "input must not change")

	_, _, err = Complete(next, "A", now)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	_, _, err = Complete(next, "C", now)
	assert.ErrorIs(t, err, ErrNoTask)
}

func TestProgressRounding(t *testing.T) {
	assert.Equal(t, 0, Progress(nil))
	ts := Assign("RPT001", []string{"A", "B", "C"}, []string{"x"}, now)
	assert.Equal(t, 0, Progress(ts))
	ts, _, _ = Complete(ts, "A", now)
	assert.Equal(t, 33, Progress(ts))
	ts, _, _ = Complete(ts, "B", now)
	assert.Equal(t, 67, Progress(ts))
	ts, _, _ = Complete(ts, "C", now)
	assert.Equal(t, 100, Progress(ts))

	done, total := Counts(ts)
	assert.Equal(t, 3, done)
	assert.Equal(t, 3, total)
}

func TestProgressForAnyTaskCount(t *testing.T) {
	for n := 1; n <= 12; n++ {
		staff := make([]string, n)
		for i := range staff {
			staff[i] = string(rune('A' + i))
		}
		ts := Assign("R", staff, []string{"x"}, now)
		for k := 1; k <= n; k++ {
			var err error
			ts, _, err = Complete(ts, staff[k-1], now)
			require.NoError(t, err)
			want := int(float64(100*k)/float64(n) + 0.5)
			assert.Equal(t, want, Progress(ts), "k=%d n=%d", k, n)
		}
		assert.Equal(t, 100, Progress(ts))
	}
}
