package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"suratline/internal/domain"
	"suratline/internal/engine/auth"
	"suratline/internal/history"
	"suratline/internal/tasks"
	"suratline/internal/verification"
)

// Command is one workflow action on an existing report.
type Command interface {
	Name() string
}

// ForwardCommand hands a report from TU to coordinators.
type ForwardCommand struct {
	Coordinators []string
}

// VerifyAssignCommand records the document check and splits the work
// among staff. Verification entries are merged over what was already
// recorded.
type VerifyAssignCommand struct {
	Verification domain.Verification
	Staff        []string
	Items        []string
	Notes        string
}

type CompleteTaskCommand struct{}

type ApproveCommand struct{}

type ReviseCommand struct {
	Note string
}

type ReturnToTUCommand struct {
	Note string
}

// EditFieldsCommand changes descriptive fields. Nil fields are left alone.
type EditFieldsCommand struct {
	LetterNumber *string
	Subject      *string
	ServiceType  *string
	Disposition  *domain.Disposition
	Notes        *string
}

// HandBackCommand tells the coordinators a finished task is ready.
type HandBackCommand struct{}

func (ForwardCommand) Name() string      { return "forward" }
func (VerifyAssignCommand) Name() string { return "verify and assign" }
func (CompleteTaskCommand) Name() string { return "complete task" }
func (ApproveCommand) Name() string      { return "approve" }
func (ReviseCommand) Name() string       { return "request revision" }
func (ReturnToTUCommand) Name() string   { return "return to TU" }
func (EditFieldsCommand) Name() string   { return "edit" }
func (HandBackCommand) Name() string     { return "hand back" }

// change is what a command handler wants written.
type change struct {
	entry        history.Entry
	saveReport   bool
	replaceTasks bool
	updatedTask  *domain.Task
}

// Apply runs cmd against a report. Rejected commands leave no trace: no state
// change and no history entry.
func (e Engine) Apply(ctx context.Context, actor domain.Actor, reportID string, cmd Command) (domain.Report, error) {
	if e.Config == nil {
		return domain.Report{}, errors.New("config not loaded")
	}
	if cmd == nil {
		return domain.Report{}, errors.New("command is required")
	}
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
	now := e.now()
	var ch change
	switch c := cmd.(type) {
	case ForwardCommand:
		ch, err = e.forward(actor, &rep, c)
	case VerifyAssignCommand:
		ch, err = e.verifyAssign(actor, &rep, c, now)
	case CompleteTaskCommand:
		ch, err = e.completeTask(actor, &rep, now)
	case ApproveCommand:
		ch, err = e.approve(actor, &rep)
	case ReviseCommand:
		ch, err = e.revise(actor, &rep, c)
	case ReturnToTUCommand:
		ch, err = e.returnToTU(actor, &rep, c)
	case EditFieldsCommand:
		ch, err = e.editFields(actor, &rep, c)
	case HandBackCommand:
		ch, err = e.handBack(actor, &rep)
	default:
		err = fmt.Errorf("unknown command %T", cmd)
	}
	if err != nil {
		e.logger().Info("command rejected",
			zap.String("command", cmd.Name()),
			zap.String("report_id", reportID),
			zap.String("actor", actor.Name),
			zap.Error(err))
		return domain.Report{}, err
	}

	if ch.saveReport {
		rep.UpdatedAt = now.UTC().Format(time.RFC3339)
		if err := e.Repo.UpdateReport(ctx, tx, rep); err != nil {
			return domain.Report{}, fmt.Errorf("update report: %w", err)
		}
	}
	if ch.replaceTasks {
		if err := e.Repo.ReplaceTasks(ctx, tx, rep.ID, rep.Tasks); err != nil {
			return domain.Report{}, fmt.Errorf("replace tasks: %w", err)
		}
	}
	if ch.updatedTask != nil {
		if err := e.Repo.UpdateTask(ctx, tx, *ch.updatedTask); err != nil {
			return domain.Report{}, fmt.Errorf("update task: %w", err)
		}
	}
	ch.entry.ReportID = rep.ID
	if ch.entry.Actor == "" {
		ch.entry.Actor = actor.Name
	}
	if _, err := e.ledger().Append(ctx, tx, ch.entry); err != nil {
		return domain.Report{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Report{}, err
	}
	e.logger().Debug("command applied",
		zap.String("command", cmd.Name()),
		zap.String("report_id", rep.ID),
		zap.String("actor", actor.Name),
		zap.String("status", string(rep.Status)),
		zap.Int("progress", rep.Progress))
	return e.Repo.GetReport(ctx, rep.ID)
}

// ensureTransition checks the report's status against the states a command
// may be issued from. An empty table means any status.
func ensureTransition(cmd Command, from domain.Status) error {
	var allowed []domain.Status
	switch cmd.(type) {
	case ForwardCommand, EditFieldsCommand:
		allowed = []domain.Status{domain.StatusInProgress, domain.StatusRevision}
	case VerifyAssignCommand, recordDocument:
		allowed = []domain.Status{domain.StatusDocumentVerification, domain.StatusRevision}
	case CompleteTaskCommand, ReviseCommand:
		allowed = []domain.Status{domain.StatusAssignedToStaff}
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, s := range allowed {
		if s == from {
			return nil
		}
	}
	return &TransitionError{Command: cmd.Name(), From: from, Allowed: allowed}
}

// recordDocument is the transition key for partial verification updates.
type recordDocument struct{}

func (recordDocument) Name() string { return "record document" }

// requireCoordinatorOf passes for Admin and for coordinators assigned to rep.
func requireCoordinatorOf(actor domain.Actor, rep domain.Report, action string) error {
	if err := auth.Require(actor, action, domain.RoleCoordinator); err != nil {
		return err
	}
	if actor.Role == domain.RoleAdmin || contains(rep.AssignedCoordinators, actor.Name) {
		return nil
	}
	return auth.ForbiddenError{Role: actor.Role, Action: fmt.Sprintf("%s report %s: not an assigned coordinator", action, rep.ID)}
}

func (e Engine) forward(actor domain.Actor, rep *domain.Report, c ForwardCommand) (change, error) {
	if err := auth.Require(actor, c.Name(), domain.RoleTU); err != nil {
		return change{}, err
	}
	if err := ensureTransition(c, rep.Status); err != nil {
		return change{}, err
	}
	coords := cleanList(c.Coordinators)
	if len(coords) == 0 {
		return change{}, reject(c.Name(), "at least one coordinator is required")
	}
	rep.AssignedCoordinators = coords
	rep.Status = domain.StatusDocumentVerification
	// a resend starts a fresh assignment round
	stale := len(rep.AssignedStaff) > 0 || len(rep.Tasks) > 0
	if stale {
		rep.AssignedStaff = []string{}
		rep.Tasks = nil
		rep.Progress = 0
	}
	return change{
		saveReport:   true,
		replaceTasks: stale,
		entry: history.Entry{
			Type:   history.TypeForwarded,
			Action: fmt.Sprintf("Forwarded to %d coordinator(s)", len(coords)),
		},
	}, nil
}

func (e Engine) verifyAssign(actor domain.Actor, rep *domain.Report, c VerifyAssignCommand, now time.Time) (change, error) {
	if err := requireCoordinatorOf(actor, *rep, c.Name()); err != nil {
		return change{}, err
	}
	if err := ensureTransition(c, rep.Status); err != nil {
		return change{}, err
	}
	v := verification.Initialize(e.Config.RequiredDocuments(rep.ServiceType), rep.Verification)
	for doc, st := range c.Verification {
		if !st.Valid() {
			return change{}, reject(c.Name(), "document %q has invalid status %q", doc, st)
		}
		v = verification.SetStatus(v, doc, st)
	}
	if !verification.AllPresent(v) {
		return change{}, reject(c.Name(), "documents not present: %s", strings.Join(verification.Missing(v), ", "))
	}
	staff := cleanList(c.Staff)
	if len(staff) == 0 {
		return change{}, reject(c.Name(), "at least one staff member is required")
	}
	items := cleanList(c.Items)
	if len(items) == 0 {
		return change{}, reject(c.Name(), "at least one checklist item is required")
	}
	for _, it := range items {
		if !e.Config.IsChecklistItem(it) {
			return change{}, reject(c.Name(), "unknown checklist item %q", it)
		}
	}
	rep.Verification = v
	rep.Tasks = tasks.Assign(rep.ID, staff, items, now)
	rep.AssignedStaff = staff
	rep.Status = domain.StatusAssignedToStaff
	rep.Progress = 0
	if c.Notes != "" {
		rep.Notes = c.Notes
	}
	return change{
		saveReport:   true,
		replaceTasks: true,
		entry: history.Entry{
			Type:   history.TypeAssigned,
			Action: fmt.Sprintf("Documents verified and assigned to %d staff member(s)", len(staff)),
			Notes:  c.Notes,
		},
	}, nil
}

func (e Engine) completeTask(actor domain.Actor, rep *domain.Report, now time.Time) (change, error) {
	c := CompleteTaskCommand{}
	if err := auth.Require(actor, c.Name(), domain.RoleStaff); err != nil {
		return change{}, err
	}
	if err := ensureTransition(c, rep.Status); err != nil {
		return change{}, err
	}
	ts, done, err := tasks.Complete(rep.Tasks, actor.Name, now)
	if err != nil {
		return change{}, reject(c.Name(), "%s: %v", actor.Name, err)
	}
	rep.Tasks = ts
	rep.Progress = tasks.Progress(ts)
	if rep.Progress == 100 {
		rep.Status = domain.StatusCompleted
	}
	return change{
		saveReport:  true,
		updatedTask: &done,
		entry: history.Entry{
			Type:   history.TypeTaskCompleted,
			Action: fmt.Sprintf("Task completed by %s", actor.Name),
		},
	}, nil
}

func (e Engine) approve(actor domain.Actor, rep *domain.Report) (change, error) {
	c := ApproveCommand{}
	if err := requireCoordinatorOf(actor, *rep, c.Name()); err != nil {
		return change{}, err
	}
	if !rep.CanApprove() {
		return change{}, reject(c.Name(), "progress is %d%%; approval needs 100%%", rep.Progress)
	}
	rep.Status = domain.StatusCompleted
	rep.Progress = 100
	return change{
		saveReport: true,
		entry:      history.Entry{Type: history.TypeApproved, Action: "Approved and completed"},
	}, nil
}

func (e Engine) revise(actor domain.Actor, rep *domain.Report, c ReviseCommand) (change, error) {
	if err := requireCoordinatorOf(actor, *rep, c.Name()); err != nil {
		return change{}, err
	}
	if err := ensureTransition(c, rep.Status); err != nil {
		return change{}, err
	}
	note := strings.TrimSpace(c.Note)
	if note == "" {
		return change{}, reject(c.Name(), "a revision note is required")
	}
	rep.Status = domain.StatusRevision
	rep.Progress = 0
	rep.RevisionNotes = note
	return change{
		saveReport: true,
		entry:      history.Entry{Type: history.TypeRevisionRequested, Action: "Sent for revision", Notes: note},
	}, nil
}

func (e Engine) returnToTU(actor domain.Actor, rep *domain.Report, c ReturnToTUCommand) (change, error) {
	if err := requireCoordinatorOf(actor, *rep, c.Name()); err != nil {
		return change{}, err
	}
	rep.Status = domain.StatusRevision
	rep.Progress = 0
	return change{
		saveReport: true,
		entry: history.Entry{
			Type:   history.TypeReturned,
			Action: "Returned to TU - incomplete documents",
			Notes:  strings.TrimSpace(c.Note),
		},
	}, nil
}

func (e Engine) editFields(actor domain.Actor, rep *domain.Report, c EditFieldsCommand) (change, error) {
	if err := auth.Require(actor, c.Name(), domain.RoleTU); err != nil {
		return change{}, err
	}
	if err := ensureTransition(c, rep.Status); err != nil {
		return change{}, err
	}
	if c.LetterNumber != nil {
		v := strings.TrimSpace(*c.LetterNumber)
		if v == "" {
			return change{}, reject(c.Name(), "letter number cannot be empty")
		}
		rep.LetterNumber = v
	}
	if c.Subject != nil {
		v := strings.TrimSpace(*c.Subject)
		if v == "" {
			return change{}, reject(c.Name(), "subject cannot be empty")
		}
		rep.Subject = v
	}
	if c.ServiceType != nil && *c.ServiceType != rep.ServiceType {
		if _, ok := e.Config.Service(*c.ServiceType); !ok {
			return change{}, reject(c.Name(), "unknown service type %q", *c.ServiceType)
		}
		rep.ServiceType = *c.ServiceType
		// required documents differ per service
		rep.Verification = nil
	}
	if c.Disposition != nil {
		if err := e.checkDisposition(*c.Disposition); err != nil {
			return change{}, reject(c.Name(), "%v", err)
		}
		rep.Disposition = *c.Disposition
	}
	if c.Notes != nil {
		rep.Notes = *c.Notes
	}
	return change{
		saveReport: true,
		entry:      history.Entry{Type: history.TypeEdited, Action: "Report details updated"},
	}, nil
}

func (e Engine) handBack(actor domain.Actor, rep *domain.Report) (change, error) {
	c := HandBackCommand{}
	if err := auth.Require(actor, c.Name(), domain.RoleStaff); err != nil {
		return change{}, err
	}
	t, ok := rep.TaskFor(actor.Name)
	if !ok {
		return change{}, reject(c.Name(), "%s: %v", actor.Name, tasks.ErrNoTask)
	}
	if !t.Completed {
		return change{}, reject(c.Name(), "task of %s is not completed", actor.Name)
	}
	return change{
		entry: history.Entry{
			Type:   history.TypeHandedBack,
			Action: fmt.Sprintf("Work sent back to coordinator by %s", actor.Name),
		},
	}, nil
}

// cleanList trims entries and drops blanks and duplicates, keeping order.
func cleanList(in []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
