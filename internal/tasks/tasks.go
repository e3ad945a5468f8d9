// Package tasks holds the per-staff checklists of a report and derives the
// report's progress from them.
package tasks

import (
	"errors"
	"fmt"
	"math"
	"time"

	"suratline/internal/domain"
)

var (
	ErrNoTask           = errors.New("no task for staff on this report")
	ErrAlreadyCompleted = errors.New("task already completed")
)

// Assign builds one task per distinct staff member, all carrying the same
// checklist items, in the order given.
func Assign(reportID string, staff, items []string, now time.Time) []domain.Task {
	created := now.UTC().Format(time.RFC3339)
	seen := make(map[string]bool, len(staff))
	out := make([]domain.Task, 0, len(staff))
	for _, s := range staff {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, domain.Task{
			ID:        fmt.Sprintf("%s_%s_%d", reportID, s, now.UnixNano()),
			ReportID:  reportID,
			StaffID:   s,
			Items:     append([]string(nil), items...),
			CreatedAt: created,
		})
	}
	return out
}

// Complete marks the task held by staff as completed. Completion is one-way,
// so completing twice is an error. The input slice is not modified.
func Complete(ts []domain.Task, staff string, at time.Time) ([]domain.Task, domain.Task, error) {
	idx := -1
	for i, t := range ts {
		if t.StaffID == staff {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ts, domain.Task{}, ErrNoTask
	}
	if ts[idx].Completed {
		return ts, ts[idx], ErrAlreadyCompleted
	}
	out := append([]domain.Task(nil), ts...)
	stamp := at.UTC().Format(time.RFC3339)
	out[idx].Completed = true
	out[idx].CompletedAt = &stamp
	return out, out[idx], nil
}

// Counts returns completed and total tasks.
func Counts(ts []domain.Task) (done, total int) {
	for _, t := range ts {
		if t.Completed {
			done++
		}
	}
	return done, len(ts)
}

// Progress is round(100 * completed / total), 0 without tasks.
func Progress(ts []domain.Task) int {
	done, total := Counts(ts)
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}
