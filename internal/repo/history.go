package repo

import (
	"context"
	"fmt"
	"strings"

	"suratline/internal/domain"
)

const historyColumns = `seq,id,report_id,type,action,actor,COALESCE(notes,''),ts`

func scanHistory(s scanner) (domain.HistoryEntry, error) {
	var h domain.HistoryEntry
	err := s.Scan(&h.Seq, &h.ID, &h.ReportID, &h.Type, &h.Action, &h.Actor, &h.Notes, &h.Timestamp)
	return h, err
}

func listHistory(ctx context.Context, q queryer, reportID string) ([]domain.HistoryEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+historyColumns+` FROM report_history WHERE report_id=? ORDER BY seq ASC`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.HistoryEntry{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// ListHistory returns a report's ledger oldest first.
func (r Repo) ListHistory(ctx context.Context, reportID string) ([]domain.HistoryEntry, error) {
	return listHistory(ctx, r.DB, reportID)
}

type HistoryFilters struct {
	ReportID string
	Types    []string
}

// HistoryAfter returns up to limit ledger entries with seq greater than
// cursor, across all reports, oldest first.
func (r Repo) HistoryAfter(ctx context.Context, limit int, cursor int64, f HistoryFilters) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"seq>?"}
	args := []any{cursor}
	if f.ReportID != "" {
		clauses = append(clauses, "report_id=?")
		args = append(args, f.ReportID)
	}
	if len(f.Types) > 0 {
		clauses = append(clauses, "type IN ("+strings.TrimSuffix(strings.Repeat("?,", len(f.Types)), ",")+")")
		for _, t := range f.Types {
			args = append(args, t)
		}
	}
	query := fmt.Sprintf(`SELECT %s FROM report_history WHERE %s ORDER BY seq ASC LIMIT ?`, historyColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.HistoryEntry{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// LatestHistorySeq returns the newest ledger position, 0 when empty.
func (r Repo) LatestHistorySeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0) FROM report_history`).Scan(&seq)
	return seq, err
}
