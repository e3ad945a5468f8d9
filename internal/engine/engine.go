package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"suratline/internal/config"
	"suratline/internal/domain"
	"suratline/internal/engine/auth"
	"suratline/internal/history"
	"suratline/internal/repo"
	"suratline/internal/verification"
	"suratline/internal/visibility"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
	Log    *zap.Logger
	Now    func() time.Time

	locks *lockTable
}

func New(db *sql.DB, cfg *config.Config, log *zap.Logger) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
		locks:  &lockTable{m: map[string]*reportLock{}},
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) ledger() history.Ledger {
	return history.Ledger{Now: e.now}
}

func (e Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

// lockTable serializes writers of the same report within one process.
// Entries live only while someone holds or waits for them.
type lockTable struct {
	mu sync.Mutex
	m  map[string]*reportLock
}

type reportLock struct {
	sync.Mutex
	refs int
}

// createLock serializes report creation; ids are derived from a count.
const createLock = "\x00create"

var fallbackLocks = &lockTable{m: map[string]*reportLock{}}

func (e Engine) lock(reportID string) func() {
	t := e.locks
	if t == nil {
		t = fallbackLocks
	}
	t.mu.Lock()
	l, ok := t.m[reportID]
	if !ok {
		l = &reportLock{}
		t.m[reportID] = l
	}
	l.refs++
	t.mu.Unlock()
	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.m, reportID)
		}
		t.mu.Unlock()
	}
}

// NewReport is the intake form filled in by TU.
type NewReport struct {
	LetterNumber string
	Subject      string
	ServiceType  string
	Disposition  domain.Disposition
	Notes        string
}

// CreateReport registers incoming correspondence in In Progress with an
// origination entry in its history.
func (e Engine) CreateReport(ctx context.Context, actor domain.Actor, in NewReport) (domain.Report, error) {
	const op = "create report"
	if e.Config == nil {
		return domain.Report{}, errors.New("config not loaded")
	}
	if err := auth.Require(actor, op, domain.RoleTU); err != nil {
		return domain.Report{}, err
	}
	in.LetterNumber = strings.TrimSpace(in.LetterNumber)
	in.Subject = strings.TrimSpace(in.Subject)
	if in.LetterNumber == "" {
		return domain.Report{}, reject(op, "letter number is required")
	}
	if in.Subject == "" {
		return domain.Report{}, reject(op, "subject is required")
	}
	if _, ok := e.Config.Service(in.ServiceType); !ok {
		return domain.Report{}, reject(op, "unknown service type %q", in.ServiceType)
	}
	if err := e.checkDisposition(in.Disposition); err != nil {
		return domain.Report{}, reject(op, "%v", err)
	}

	unlock := e.lock(createLock)
	defer unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Report{}, err
	}
	defer tx.Rollback()

	n, err := e.Repo.CountReports(ctx, tx)
	if err != nil {
		return domain.Report{}, err
	}
	id := ""
	for {
		n++
		id = fmt.Sprintf("RPT%03d", n)
		if _, err := e.Repo.GetReportTx(ctx, tx, id); errors.Is(err, repo.ErrNotFound) {
			break
		} else if err != nil {
			return domain.Report{}, err
		}
	}
	now := e.now().UTC().Format(time.RFC3339)
	rep := domain.Report{
		ID:                   id,
		LetterNumber:         in.LetterNumber,
		Subject:              in.Subject,
		ServiceType:          in.ServiceType,
		Status:               domain.StatusInProgress,
		CreatedBy:            e.Config.Office.ClericalUnit,
		AssignedCoordinators: []string{},
		AssignedStaff:        []string{},
		Disposition:          in.Disposition,
		Notes:                in.Notes,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := e.Repo.InsertReport(ctx, tx, rep); err != nil {
		return domain.Report{}, fmt.Errorf("insert report: %w", err)
	}
	if _, err := e.ledger().Append(ctx, tx, history.Entry{
		ReportID: id,
		Type:     history.TypeCreated,
		Action:   "Report created by TU",
		Actor:    rep.CreatedBy,
	}); err != nil {
		return domain.Report{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Report{}, err
	}
	e.logger().Debug("report created", zap.String("report_id", id), zap.String("letter_number", rep.LetterNumber))
	return e.Repo.GetReport(ctx, id)
}

func (e Engine) checkDisposition(d domain.Disposition) error {
	for _, f := range d.Nature {
		if len(e.Config.Disposition.Nature) > 0 && !contains(e.Config.Disposition.Nature, f) {
			return fmt.Errorf("unknown nature flag %q", f)
		}
	}
	for _, f := range d.Urgency {
		if len(e.Config.Disposition.Urgency) > 0 && !contains(e.Config.Disposition.Urgency, f) {
			return fmt.Errorf("unknown urgency flag %q", f)
		}
	}
	return nil
}

// AddHistoryEntry appends a free-form note to a report's history. A missing
// report is not an error; the returned id is empty then.
func (e Engine) AddHistoryEntry(ctx context.Context, reportID, action, actor, notes string) (string, error) {
	unlock := e.lock(reportID)
	defer unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	id, err := e.ledger().Append(ctx, tx, history.Entry{
		ReportID: reportID,
		Type:     history.TypeNote,
		Action:   action,
		Actor:    actor,
		Notes:    notes,
	})
	if err != nil {
		return "", err
	}
	return id, tx.Commit()
}

// OpenVerification starts the document check of a report from the service
// catalog the first time a coordinator looks at it. It is not a status
// transition and writes no history.
func (e Engine) OpenVerification(ctx context.Context, actor domain.Actor, reportID string) (domain.Report, error) {
	if e.Config == nil {
		return domain.Report{}, errors.New("config not loaded")
	}
	return e.mutateVerification(ctx, actor, reportID, "open verification", func(rep *domain.Report) (bool, error) {
		if rep.Verification != nil {
			return false, nil
		}
		rep.Verification = verification.Initialize(e.Config.RequiredDocuments(rep.ServiceType), nil)
		return true, nil
	})
}

// RecordDocument saves the presence flag of one document ahead of
// assignment.
func (e Engine) RecordDocument(ctx context.Context, actor domain.Actor, reportID, doc string, status domain.DocumentStatus) (domain.Report, error) {
	const op = "record document"
	if e.Config == nil {
		return domain.Report{}, errors.New("config not loaded")
	}
	return e.mutateVerification(ctx, actor, reportID, op, func(rep *domain.Report) (bool, error) {
		if err := ensureTransition(recordDocument{}, rep.Status); err != nil {
			return false, err
		}
		if strings.TrimSpace(doc) == "" {
			return false, reject(op, "document label is required")
		}
		if !status.Valid() {
			return false, reject(op, "invalid document status %q", status)
		}
		v := verification.Initialize(e.Config.RequiredDocuments(rep.ServiceType), rep.Verification)
		rep.Verification = verification.SetStatus(v, doc, status)
		return true, nil
	})
}

func (e Engine) mutateVerification(ctx context.Context, actor domain.Actor, reportID, op string, fn func(*domain.Report) (bool, error)) (domain.Report, error) {
	unlock := e.lock(reportID)
	defer unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Report{}, err
	}
	defer tx.Rollback()
	rep, err := e.Repo.GetReportTx(ctx, tx, reportID)
	if err != nil {
		return domain.Report{}, err
	}
	if err := requireCoordinatorOf(actor, rep, op); err != nil {
		return domain.Report{}, err
	}
	changed, err := fn(&rep)
	if err != nil {
		return domain.Report{}, err
	}
	if !changed {
		return rep, nil
	}
	rep.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateReport(ctx, tx, rep); err != nil {
		return domain.Report{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Report{}, err
	}
	return rep, nil
}

// ListForRole returns the reports role/identity may see, oldest first.
func (e Engine) ListForRole(ctx context.Context, role domain.Role, identity string) ([]domain.Report, error) {
	all, err := e.Repo.ListReports(ctx)
	if err != nil {
		return nil, err
	}
	return visibility.Filter(all, role, identity, e.clericalUnit()), nil
}

// GetReport returns one report if actor may see it.
func (e Engine) GetReport(ctx context.Context, actor domain.Actor, id string) (domain.Report, error) {
	rep, err := e.Repo.GetReport(ctx, id)
	if err != nil {
		return domain.Report{}, err
	}
	if !visibility.CanSee(rep, actor.Role, actor.Name, e.clericalUnit()) {
		return domain.Report{}, auth.ForbiddenError{Role: actor.Role, Action: "view report " + id}
	}
	return rep, nil
}

// Track is the public lookup by letter number fragment.
func (e Engine) Track(ctx context.Context, query string) (domain.Report, error) {
	all, err := e.Repo.ListReports(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	rep, ok := visibility.Track(all, query)
	if !ok {
		return domain.Report{}, repo.ErrNotFound
	}
	return rep, nil
}

func (e Engine) clericalUnit() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Office.ClericalUnit
}
