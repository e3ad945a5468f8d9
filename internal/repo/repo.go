package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"suratline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const reportColumns = `id,letter_number,subject,service_type,status,progress,created_by,assigned_coordinators_json,assigned_staff_json,disposition_json,verification_json,COALESCE(notes,''),COALESCE(revision_notes,''),created_at,updated_at`

func scanReport(s scanner) (domain.Report, error) {
	var r domain.Report
	var coords, staff, disp string
	var verif sql.NullString
	err := s.Scan(&r.ID, &r.LetterNumber, &r.Subject, &r.ServiceType, &r.Status, &r.Progress, &r.CreatedBy,
		&coords, &staff, &disp, &verif, &r.Notes, &r.RevisionNotes, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(coords), &r.AssignedCoordinators); err != nil {
		return r, fmt.Errorf("report %s coordinators: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(staff), &r.AssignedStaff); err != nil {
		return r, fmt.Errorf("report %s staff: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(disp), &r.Disposition); err != nil {
		return r, fmt.Errorf("report %s disposition: %w", r.ID, err)
	}
	if verif.Valid {
		if err := json.Unmarshal([]byte(verif.String), &r.Verification); err != nil {
			return r, fmt.Errorf("report %s verification: %w", r.ID, err)
		}
	}
	if r.AssignedCoordinators == nil {
		r.AssignedCoordinators = []string{}
	}
	if r.AssignedStaff == nil {
		r.AssignedStaff = []string{}
	}
	return r, nil
}

func reportArgs(r domain.Report) ([]any, error) {
	coords, err := json.Marshal(nonNil(r.AssignedCoordinators))
	if err != nil {
		return nil, err
	}
	staff, err := json.Marshal(nonNil(r.AssignedStaff))
	if err != nil {
		return nil, err
	}
	disp, err := json.Marshal(r.Disposition)
	if err != nil {
		return nil, err
	}
	var verif any
	if r.Verification != nil {
		raw, err := json.Marshal(r.Verification)
		if err != nil {
			return nil, err
		}
		verif = string(raw)
	}
	return []any{r.LetterNumber, r.Subject, r.ServiceType, r.Status, r.Progress, r.CreatedBy,
		string(coords), string(staff), string(disp), verif, nullable(r.Notes), nullable(r.RevisionNotes), r.UpdatedAt}, nil
}

// InsertReport stores a new report row. Tasks and history are written
// separately.
func (r Repo) InsertReport(ctx context.Context, tx *sql.Tx, rep domain.Report) error {
	args, err := reportArgs(rep)
	if err != nil {
		return err
	}
	args = append([]any{rep.ID}, args...)
	args = append(args, rep.CreatedAt)
	_, err = tx.ExecContext(ctx, `INSERT INTO reports(id,letter_number,subject,service_type,status,progress,created_by,assigned_coordinators_json,assigned_staff_json,disposition_json,verification_json,notes,revision_notes,updated_at,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	return err
}

// UpdateReport rewrites every mutable column of a report.
func (r Repo) UpdateReport(ctx context.Context, tx *sql.Tx, rep domain.Report) error {
	args, err := reportArgs(rep)
	if err != nil {
		return err
	}
	args = append(args, rep.ID)
	res, err := tx.ExecContext(ctx, `UPDATE reports SET letter_number=?,subject=?,service_type=?,status=?,progress=?,created_by=?,assigned_coordinators_json=?,assigned_staff_json=?,disposition_json=?,verification_json=?,notes=?,revision_notes=?,updated_at=? WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountReports(ctx context.Context, tx *sql.Tx) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n)
	return n, err
}

func (r Repo) GetReport(ctx context.Context, id string) (domain.Report, error) {
	return getReport(ctx, r.DB, id)
}

func (r Repo) GetReportTx(ctx context.Context, tx *sql.Tx, id string) (domain.Report, error) {
	return getReport(ctx, tx, id)
}

func getReport(ctx context.Context, q queryer, id string) (domain.Report, error) {
	rep, err := scanReport(q.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=?`, id))
	if err != nil {
		return rep, err
	}
	if rep.Tasks, err = listTasks(ctx, q, id); err != nil {
		return rep, err
	}
	if rep.History, err = listHistory(ctx, q, id); err != nil {
		return rep, err
	}
	return rep, nil
}

// ListReports returns every report in creation order with tasks and history
// attached.
func (r Repo) ListReports(ctx context.Context) ([]domain.Report, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Report{}
	index := map[string]int{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		rep.Tasks = []domain.Task{}
		rep.History = []domain.HistoryEntry{}
		index[rep.ID] = len(res)
		res = append(res, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return res, nil
	}

	taskRows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM report_tasks ORDER BY report_id, position ASC`)
	if err != nil {
		return nil, err
	}
	defer taskRows.Close()
	for taskRows.Next() {
		t, err := scanTask(taskRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[t.ReportID]; ok {
			res[i].Tasks = append(res[i].Tasks, t)
		}
	}
	if err := taskRows.Err(); err != nil {
		return nil, err
	}

	histRows, err := r.DB.QueryContext(ctx, `SELECT `+historyColumns+` FROM report_history ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer histRows.Close()
	for histRows.Next() {
		h, err := scanHistory(histRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[h.ReportID]; ok {
			res[i].History = append(res[i].History, h)
		}
	}
	return res, histRows.Err()
}

const taskColumns = `id,report_id,staff_id,items_json,completed,completed_at,created_at`

func scanTask(s scanner) (domain.Task, error) {
	var t domain.Task
	var items string
	var completed int
	var completedAt sql.NullString
	if err := s.Scan(&t.ID, &t.ReportID, &t.StaffID, &items, &completed, &completedAt, &t.CreatedAt); err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(items), &t.Items); err != nil {
		return t, fmt.Errorf("task %s items: %w", t.ID, err)
	}
	t.Completed = completed == 1
	if completedAt.Valid {
		v := completedAt.String
		t.CompletedAt = &v
	}
	return t, nil
}

func listTasks(ctx context.Context, q queryer, reportID string) ([]domain.Task, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+taskColumns+` FROM report_tasks WHERE report_id=? ORDER BY position ASC`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ReplaceTasks drops a report's tasks and stores ts in order.
func (r Repo) ReplaceTasks(ctx context.Context, tx *sql.Tx, reportID string, ts []domain.Task) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM report_tasks WHERE report_id=?`, reportID); err != nil {
		return err
	}
	for i, t := range ts {
		items, err := json.Marshal(nonNil(t.Items))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO report_tasks(id,report_id,staff_id,position,items_json,completed,completed_at,created_at) VALUES (?,?,?,?,?,?,?,?)`,
			t.ID, reportID, t.StaffID, i, string(items), boolInt(t.Completed), nullableStringPtr(t.CompletedAt), t.CreatedAt); err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}
	return nil
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE report_tasks SET completed=?, completed_at=? WHERE id=?`,
		boolInt(t.Completed), nullableStringPtr(t.CompletedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
