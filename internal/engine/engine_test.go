package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"suratline/internal/config"
	"suratline/internal/db"
	"suratline/internal/domain"
	"suratline/internal/engine"
	"suratline/internal/engine/auth"
	"suratline/internal/migrate"
	"suratline/internal/repo"
)

const testCatalog = `office:
  clerical_unit: Bagian TU
services:
  - name: Layanan Uji
    documents: [SK CPNS, SK PNS]
  - name: Layanan Tanpa Dokumen
checklist:
  items: [Jadwalkan/Agendakan, Untuk diketahui]
disposition:
  nature: [Biasa, Penting]
  urgency: [Biasa, Segera]
`

var (
	tu     = domain.Actor{ID: "tu1", Name: "Bagian TU", Role: domain.RoleTU}
	coordC = domain.Actor{ID: "coord1", Name: "Suwarti, S.H", Role: domain.RoleCoordinator}
	coordX = domain.Actor{ID: "coord2", Name: "Achamd Evianto", Role: domain.RoleCoordinator}
	staffA = domain.Actor{ID: "staff1", Name: "Budi Santoso", Role: domain.RoleStaff}
	staffB = domain.Actor{ID: "staff2", Name: "Sari Wijaya", Role: domain.RoleStaff}
	admin  = domain.Actor{ID: "admin1", Name: "Administrator", Role: domain.RoleAdmin}
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg, err := config.FromYAML([]byte(testCatalog))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	eng := engine.New(conn, cfg, nil)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	eng.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) create(t *testing.T, letter string) domain.Report {
	t.Helper()
	rep, err := env.Engine.CreateReport(env.Ctx, tu, engine.NewReport{
		LetterNumber: letter,
		Subject:      "Usulan",
		ServiceType:  "Layanan Uji",
		Disposition:  domain.Disposition{Nature: []string{"Penting"}, Urgency: []string{"Segera"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return rep
}

func (env testEnv) apply(t *testing.T, actor domain.Actor, id string, cmd engine.Command) domain.Report {
	t.Helper()
	rep, err := env.Engine.Apply(env.Ctx, actor, id, cmd)
	if err != nil {
		t.Fatalf("%s: %v", cmd.Name(), err)
	}
	return rep
}

func allPresent() domain.Verification {
	return domain.Verification{"SK CPNS": domain.DocumentPresent, "SK PNS": domain.DocumentPresent}
}

func assertState(t *testing.T, rep domain.Report, status domain.Status, progress, history int) {
	t.Helper()
	if rep.Status != status {
		t.Fatalf("status = %q, want %q", rep.Status, status)
	}
	if rep.Progress != progress {
		t.Fatalf("progress = %d, want %d", rep.Progress, progress)
	}
	if len(rep.History) != history {
		t.Fatalf("history length = %d, want %d", len(rep.History), history)
	}
}

func TestCreateToCompletion(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "001/SDM/2025")
	if rep.ID != "RPT001" || rep.CreatedBy != "Bagian TU" {
		t.Fatalf("unexpected report %s by %s", rep.ID, rep.CreatedBy)
	}
	assertState(t, rep, domain.StatusInProgress, 0, 1)
	if rep.History[0].Action != "Report created by TU" {
		t.Fatalf("origin entry = %q", rep.History[0].Action)
	}

	rep = env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	assertState(t, rep, domain.StatusDocumentVerification, 0, 2)

	rep = env.apply(t, coordC, rep.ID, engine.VerifyAssignCommand{
		Verification: allPresent(),
		Staff:        []string{staffA.Name, staffB.Name},
		Items:        []string{"Jadwalkan/Agendakan"},
	})
	assertState(t, rep, domain.StatusAssignedToStaff, 0, 3)
	if len(rep.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(rep.Tasks))
	}

	rep = env.apply(t, staffA, rep.ID, engine.CompleteTaskCommand{})
	assertState(t, rep, domain.StatusAssignedToStaff, 50, 4)
	if rep.History[3].Action != "Task completed by Budi Santoso" {
		t.Fatalf("entry = %q", rep.History[3].Action)
	}

	rep = env.apply(t, staffB, rep.ID, engine.CompleteTaskCommand{})
	assertState(t, rep, domain.StatusCompleted, 100, 5)
	for _, task := range rep.Tasks {
		if !task.Completed || task.CompletedAt == nil {
			t.Fatalf("task %s not completed", task.ID)
		}
	}
}

func TestReturnToTUBeforeAssignment(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "002/SDM/2025")
	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	rep = env.apply(t, coordC, rep.ID, engine.ReturnToTUCommand{})
	assertState(t, rep, domain.StatusRevision, 0, 3)
	if len(rep.Tasks) != 0 {
		t.Fatalf("tasks = %d, want none", len(rep.Tasks))
	}
	if rep.History[2].Action != "Returned to TU - incomplete documents" {
		t.Fatalf("entry = %q", rep.History[2].Action)
	}
	// TU can fix and resend from Revision
	rep = env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	assertState(t, rep, domain.StatusDocumentVerification, 0, 4)
}

func TestReturnToTUAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "014/SDM/2025")
	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	env.apply(t, coordC, rep.ID, engine.VerifyAssignCommand{
		Verification: allPresent(), Staff: []string{staffA.Name}, Items: []string{"Untuk diketahui"},
	})
	rep = env.apply(t, staffA, rep.ID, engine.CompleteTaskCommand{})
	assertState(t, rep, domain.StatusCompleted, 100, 4)
	if !rep.CanApprove() {
		t.Fatalf("expected approvable at 100%%")
	}

	rep = env.apply(t, coordC, rep.ID, engine.ReturnToTUCommand{Note: "SK PNS palsu"})
	assertState(t, rep, domain.StatusRevision, 0, 5)
	if rep.CanApprove() {
		t.Fatalf("approval still offered after return")
	}
	var rejected *engine.RejectedError
	if _, err := env.Engine.Apply(env.Ctx, coordC, rep.ID, engine.ApproveCommand{}); !errors.As(err, &rejected) {
		t.Fatalf("approve after return: %v", err)
	}
	got, err := env.Engine.Repo.GetReport(env.Ctx, rep.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertState(t, got, domain.StatusRevision, 0, 5)

	// resending clears the previous assignment round
	rep = env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	assertState(t, rep, domain.StatusDocumentVerification, 0, 6)
	if len(rep.AssignedStaff) != 0 || len(rep.Tasks) != 0 {
		t.Fatalf("stale assignment after resend: staff=%v tasks=%d", rep.AssignedStaff, len(rep.Tasks))
	}
	list, err := env.Engine.ListForRole(env.Ctx, staffA.Role, staffA.Name)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("staff still sees %d report(s) during verification", len(list))
	}

	env.apply(t, coordC, rep.ID, engine.VerifyAssignCommand{
		Staff: []string{staffA.Name, staffB.Name}, Items: []string{"Untuk diketahui"},
	})
	rep = env.apply(t, staffA, rep.ID, engine.CompleteTaskCommand{})
	assertState(t, rep, domain.StatusAssignedToStaff, 50, 8)
	if len(rep.Tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(rep.Tasks))
	}
}

func TestReturnToTUWhileAssigned(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "015/SDM/2025")
	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	env.apply(t, coordC, rep.ID, engine.VerifyAssignCommand{
		Verification: allPresent(), Staff: []string{staffA.Name, staffB.Name}, Items: []string{"Untuk diketahui"},
	})
	rep = env.apply(t, staffA, rep.ID, engine.CompleteTaskCommand{})
	assertState(t, rep, domain.StatusAssignedToStaff, 50, 4)

	rep = env.apply(t, coordC, rep.ID, engine.ReturnToTUCommand{})
	assertState(t, rep, domain.StatusRevision, 0, 5)
	if rep.CanApprove() {
		t.Fatalf("approval offered at progress 0")
	}
	var transition *engine.TransitionError
	if _, err := env.Engine.Apply(env.Ctx, staffB, rep.ID, engine.CompleteTaskCommand{}); !errors.As(err, &transition) {
		t.Fatalf("complete after return: %v", err)
	}
}

func TestTracking(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "001/SDM/2025")
	second := env.create(t, "045/KEU/2025")

	rep, err := env.Engine.Track(env.Ctx, "45/keu")
	if err != nil || rep.ID != second.ID {
		t.Fatalf("track: %v %s", err, rep.ID)
	}
	if _, err := env.Engine.Track(env.Ctx, "999/XYZ"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.Track(env.Ctx, ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("blank query should not match, got %v", err)
	}
}

func TestRejectedCommandsLeaveNoTrace(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "003/SDM/2025")

	var rejected *engine.RejectedError
	var transition *engine.TransitionError
	var forbidden auth.ForbiddenError

	_, err := env.Engine.Apply(env.Ctx, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{" "}})
	if !errors.As(err, &rejected) {
		t.Fatalf("empty coordinators: %v", err)
	}
	_, err = env.Engine.Apply(env.Ctx, coordC, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	if !errors.As(err, &forbidden) {
		t.Fatalf("coordinator forward: %v", err)
	}
	_, err = env.Engine.Apply(env.Ctx, staffA, rep.ID, engine.CompleteTaskCommand{})
	if !errors.As(err, &transition) {
		t.Fatalf("complete before assignment: %v", err)
	}

	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	_, err = env.Engine.Apply(env.Ctx, coordX, rep.ID, engine.ReturnToTUCommand{})
	if !errors.As(err, &forbidden) {
		t.Fatalf("unassigned coordinator: %v", err)
	}
	_, err = env.Engine.Apply(env.Ctx, coordC, rep.ID, engine.VerifyAssignCommand{
		Verification: domain.Verification{"SK CPNS": domain.DocumentPresent},
		Staff:        []string{staffA.Name},
		Items:        []string{"Jadwalkan/Agendakan"},
	})
	if !errors.As(err, &rejected) {
		t.Fatalf("missing document: %v", err)
	}
	_, err = env.Engine.Apply(env.Ctx, coordC, rep.ID, engine.VerifyAssignCommand{
		Verification: allPresent(),
		Items:        []string{"Jadwalkan/Agendakan"},
	})
	if !errors.As(err, &rejected) {
		t.Fatalf("no staff: %v", err)
	}
	_, err = env.Engine.Apply(env.Ctx, coordC, rep.ID, engine.VerifyAssignCommand{
		Verification: allPresent(),
		Staff:        []string{staffA.Name},
		Items:        []string{"Bakar arsip"},
	})
	if !errors.As(err, &rejected) {
		t.Fatalf("unknown item: %v", err)
	}
	_, err = env.Engine.Apply(env.Ctx, coordC, rep.ID, engine.ReviseCommand{Note: "x"})
	if !errors.As(err, &transition) {
		t.Fatalf("revise before assignment: %v", err)
	}

	got, err := env.Engine.Repo.GetReport(env.Ctx, rep.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertState(t, got, domain.StatusDocumentVerification, 0, 2)
	if got.Verification != nil {
		t.Fatalf("rejected assignment persisted verification: %v", got.Verification)
	}

	if _, err := env.Engine.Apply(env.Ctx, tu, "RPT999", engine.ForwardCommand{Coordinators: []string{"x"}}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing report: %v", err)
	}
}

func TestTaskCompletionRules(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "004/SDM/2025")
	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	env.apply(t, coordC, rep.ID, engine.VerifyAssignCommand{
		Verification: allPresent(),
		Staff:        []string{staffA.Name, staffB.Name, "Ahmad Fauzi"},
		Items:        []string{"Untuk diketahui"},
	})

	var rejected *engine.RejectedError
	outsider := domain.Actor{ID: "s9", Name: "Dewi Kartika", Role: domain.RoleStaff}
	if _, err := env.Engine.Apply(env.Ctx, outsider, rep.ID, engine.CompleteTaskCommand{}); !errors.As(err, &rejected) {
		t.Fatalf("staff without task: %v", err)
	}
	if _, err := env.Engine.Apply(env.Ctx, staffA, rep.ID, engine.HandBackCommand{}); !errors.As(err, &rejected) {
		t.Fatalf("hand back before completion: %v", err)
	}
	got := env.apply(t, staffA, rep.ID, engine.CompleteTaskCommand{})
	if got.Progress != 33 {
		t.Fatalf("progress = %d, want 33", got.Progress)
	}
	if _, err := env.Engine.Apply(env.Ctx, staffA, rep.ID, engine.CompleteTaskCommand{}); !errors.As(err, &rejected) {
		t.Fatalf("double completion: %v", err)
	}
	got = env.apply(t, staffA, rep.ID, engine.HandBackCommand{})
	if got.Status != domain.StatusAssignedToStaff || got.History[len(got.History)-1].Action != "Work sent back to coordinator by Budi Santoso" {
		t.Fatalf("hand back changed state or missing entry: %s", got.Status)
	}
	got = env.apply(t, staffB, rep.ID, engine.CompleteTaskCommand{})
	if got.Progress != 67 {
		t.Fatalf("progress = %d, want 67", got.Progress)
	}
}

func TestApprovalGatedOnProgress(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "005/SDM/2025")
	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	env.apply(t, coordC, rep.ID, engine.VerifyAssignCommand{
		Verification: allPresent(),
		Staff:        []string{staffA.Name, staffB.Name},
		Items:        []string{"Untuk diketahui"},
	})
	env.apply(t, staffA, rep.ID, engine.CompleteTaskCommand{})

	var rejected *engine.RejectedError
	if _, err := env.Engine.Apply(env.Ctx, coordC, rep.ID, engine.ApproveCommand{}); !errors.As(err, &rejected) {
		t.Fatalf("approve at 50%%: %v", err)
	}
	got := env.apply(t, staffB, rep.ID, engine.CompleteTaskCommand{})
	if !got.CanApprove() {
		t.Fatalf("expected approvable at 100%%")
	}
	got = env.apply(t, coordC, rep.ID, engine.ApproveCommand{})
	assertState(t, got, domain.StatusCompleted, 100, 6)
	if got.History[5].Action != "Approved and completed" {
		t.Fatalf("entry = %q", got.History[5].Action)
	}
}

func TestRevisionCycle(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "006/SDM/2025")
	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	env.apply(t, coordC, rep.ID, engine.VerifyAssignCommand{
		Verification: allPresent(), Staff: []string{staffA.Name}, Items: []string{"Untuk diketahui"}, Notes: "segera",
	})

	var rejected *engine.RejectedError
	if _, err := env.Engine.Apply(env.Ctx, coordC, rep.ID, engine.ReviseCommand{Note: "  "}); !errors.As(err, &rejected) {
		t.Fatalf("revise without note: %v", err)
	}
	got := env.apply(t, coordC, rep.ID, engine.ReviseCommand{Note: "lengkapi SKP"})
	if got.Status != domain.StatusRevision || got.RevisionNotes != "lengkapi SKP" || got.Progress != 0 {
		t.Fatalf("unexpected revision state: %+v", got)
	}
	if got.History[len(got.History)-1].Notes != "lengkapi SKP" {
		t.Fatalf("revision note missing from history")
	}

	// reassign from Revision replaces the tasks
	got = env.apply(t, coordC, rep.ID, engine.VerifyAssignCommand{
		Staff: []string{staffB.Name}, Items: []string{"Jadwalkan/Agendakan"},
	})
	if len(got.Tasks) != 1 || got.Tasks[0].StaffID != staffB.Name || got.Status != domain.StatusAssignedToStaff {
		t.Fatalf("unexpected reassignment: %+v", got.Tasks)
	}
}

func TestEditFields(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "007/SDM/2025")
	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	if _, err := env.Engine.OpenVerification(env.Ctx, coordC, rep.ID); err != nil {
		t.Fatal(err)
	}
	env.apply(t, coordC, rep.ID, engine.ReturnToTUCommand{Note: "SK PNS belum ada"})

	subject := "Usulan perbaikan"
	service := "Layanan Tanpa Dokumen"
	got := env.apply(t, tu, rep.ID, engine.EditFieldsCommand{Subject: &subject, ServiceType: &service})
	if got.Subject != subject || got.ServiceType != service || got.Verification != nil {
		t.Fatalf("unexpected edit result: %+v", got)
	}
	if got.Status != domain.StatusRevision {
		t.Fatalf("edit changed status to %s", got.Status)
	}

	bad := "Layanan Fiktif"
	var rejected *engine.RejectedError
	if _, err := env.Engine.Apply(env.Ctx, tu, rep.ID, engine.EditFieldsCommand{ServiceType: &bad}); !errors.As(err, &rejected) {
		t.Fatalf("unknown service: %v", err)
	}

	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	var transition *engine.TransitionError
	if _, err := env.Engine.Apply(env.Ctx, tu, rep.ID, engine.EditFieldsCommand{Subject: &subject}); !errors.As(err, &transition) {
		t.Fatalf("edit during verification: %v", err)
	}
}

func TestVerificationIsLazyAndSilent(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "008/SDM/2025")
	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})

	got, err := env.Engine.OpenVerification(env.Ctx, coordC, rep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Verification) != 2 || got.Verification["SK CPNS"] != domain.DocumentAbsent {
		t.Fatalf("unexpected verification: %v", got.Verification)
	}
	got, err = env.Engine.RecordDocument(env.Ctx, coordC, rep.ID, "SK CPNS", domain.DocumentPresent)
	if err != nil {
		t.Fatal(err)
	}
	got, err = env.Engine.OpenVerification(env.Ctx, coordC, rep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Verification["SK CPNS"] != domain.DocumentPresent {
		t.Fatalf("re-opening reset verification: %v", got.Verification)
	}
	if len(got.History) != 2 {
		t.Fatalf("verification wrote history: %d entries", len(got.History))
	}
	if _, err := env.Engine.RecordDocument(env.Ctx, coordC, rep.ID, "SK PNS", "Mungkin"); err == nil {
		t.Fatalf("expected invalid status rejection")
	}

	// recorded flags carry into assignment
	got = env.apply(t, coordC, rep.ID, engine.VerifyAssignCommand{
		Verification: domain.Verification{"SK PNS": domain.DocumentPresent},
		Staff:        []string{staffA.Name},
		Items:        []string{"Untuk diketahui"},
	})
	if got.Status != domain.StatusAssignedToStaff {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestHistoryIsOrdered(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "009/SDM/2025")
	if _, err := env.Engine.AddHistoryEntry(env.Ctx, rep.ID, "Telepon pengirim", tu.Name, "tidak diangkat"); err != nil {
		t.Fatal(err)
	}
	id, err := env.Engine.AddHistoryEntry(env.Ctx, "RPT404", "lost", tu.Name, "")
	if err != nil || id != "" {
		t.Fatalf("missing report should be a silent no-op: %q %v", id, err)
	}
	if id, err := env.Engine.AddHistoryEntry(env.Ctx, rep.ID, "", tu.Name, "catatan tanpa judul"); err != nil || id == "" {
		t.Fatalf("empty action should still append: %q %v", id, err)
	}
	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name, coordX.Name}})
	got := env.apply(t, coordX, rep.ID, engine.ReturnToTUCommand{})

	if got.History[0].Action != "Report created by TU" {
		t.Fatalf("origin entry moved: %q", got.History[0].Action)
	}
	for i := 1; i < len(got.History); i++ {
		prev, cur := got.History[i-1], got.History[i]
		if cur.Seq <= prev.Seq || cur.Timestamp < prev.Timestamp {
			t.Fatalf("history out of order at %d", i)
		}
	}
}

func TestListForRole(t *testing.T) {
	env := newTestEnv(t)
	r1 := env.create(t, "010/SDM/2025")
	r2 := env.create(t, "011/SDM/2025")
	env.create(t, "012/SDM/2025")
	env.apply(t, tu, r1.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	env.apply(t, tu, r2.ID, engine.ForwardCommand{Coordinators: []string{coordX.Name}})
	env.apply(t, coordX, r2.ID, engine.VerifyAssignCommand{
		Verification: allPresent(), Staff: []string{staffA.Name}, Items: []string{"Untuk diketahui"},
	})

	cases := []struct {
		actor domain.Actor
		want  []string
	}{
		{tu, []string{"RPT001", "RPT002", "RPT003"}},
		{admin, []string{"RPT001", "RPT002", "RPT003"}},
		{coordC, []string{"RPT001"}},
		{coordX, []string{"RPT002"}},
		{staffA, []string{"RPT002"}},
		{staffB, nil},
	}
	for _, tc := range cases {
		list, err := env.Engine.ListForRole(env.Ctx, tc.actor.Role, tc.actor.Name)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != len(tc.want) {
			t.Fatalf("%s sees %d reports, want %d", tc.actor.Name, len(list), len(tc.want))
		}
		for i := range list {
			if list[i].ID != tc.want[i] {
				t.Fatalf("%s: got %s at %d, want %s", tc.actor.Name, list[i].ID, i, tc.want[i])
			}
		}
	}

	var forbidden auth.ForbiddenError
	if _, err := env.Engine.GetReport(env.Ctx, staffB, r2.ID); !errors.As(err, &forbidden) {
		t.Fatalf("staff without task read report: %v", err)
	}
	if _, err := env.Engine.GetReport(env.Ctx, staffA, r2.ID); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentCompletion(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "013/SDM/2025")
	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	staff := []string{"S1", "S2", "S3", "S4"}
	env.apply(t, coordC, rep.ID, engine.VerifyAssignCommand{
		Verification: allPresent(), Staff: staff, Items: []string{"Untuk diketahui"},
	})

	var wg sync.WaitGroup
	errs := make(chan error, len(staff))
	for _, s := range staff {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := env.Engine.Apply(env.Ctx, domain.Actor{Name: name, Role: domain.RoleStaff}, rep.ID, engine.CompleteTaskCommand{})
			errs <- err
		}(s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	got, err := env.Engine.Repo.GetReport(env.Ctx, rep.ID)
	if err != nil {
		t.Fatal(err)
	}
	assertState(t, got, domain.StatusCompleted, 100, 3+len(staff))
	if n := engine.HeldLocks(env.Engine); n != 0 {
		t.Fatalf("%d report lock(s) left after all writers finished", n)
	}
}

func TestLocksAreReleased(t *testing.T) {
	env := newTestEnv(t)
	rep := env.create(t, "016/SDM/2025")
	for i := 0; i < 3; i++ {
		if _, err := env.Engine.AddHistoryEntry(env.Ctx, fmt.Sprintf("NOPE%d", i), "lost", tu.Name, ""); err != nil {
			t.Fatal(err)
		}
	}
	env.apply(t, tu, rep.ID, engine.ForwardCommand{Coordinators: []string{coordC.Name}})
	if _, err := env.Engine.Apply(env.Ctx, tu, "RPT999", engine.ForwardCommand{Coordinators: []string{"x"}}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing report: %v", err)
	}
	if n := engine.HeldLocks(env.Engine); n != 0 {
		t.Fatalf("%d report lock(s) retained", n)
	}
}
