package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry types recorded by the workflow.
const (
	TypeCreated           = "report.created"
	TypeForwarded         = "report.forwarded"
	TypeAssigned          = "report.assigned"
	TypeTaskCompleted     = "task.completed"
	TypeApproved          = "report.approved"
	TypeRevisionRequested = "report.revision_requested"
	TypeReturned          = "report.returned"
	TypeEdited            = "report.edited"
	TypeHandedBack        = "task.handed_back"
	TypeNote              = "note.added"
)

// Entry is what a caller supplies; id and timestamp are assigned on append.
type Entry struct {
	ReportID string
	Type     string
	Action   string
	Actor    string
	Notes    string
}

// Ledger appends workflow history. There is no update or delete path.
type Ledger struct {
	Now func() time.Time
}

// Append pushes an entry to the end of a report's history inside tx. A
// missing report is a no-op. It returns the id of the new entry, or "" when
// nothing was written.
func (l Ledger) Append(ctx context.Context, tx *sql.Tx, e Entry) (string, error) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	if e.Type == "" {
		e.Type = TypeNote
	}
	id := uuid.New().String()
	ts := now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `INSERT INTO report_history(id,report_id,type,action,actor,notes,ts)
SELECT ?,?,?,?,?,?,? WHERE EXISTS (SELECT 1 FROM reports WHERE id=?)`,
		id, e.ReportID, e.Type, e.Action, e.Actor, nullable(e.Notes), ts, e.ReportID)
	if err != nil {
		return "", fmt.Errorf("append history: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", nil
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
