package domain

// Status is the workflow state of a report.
type Status string

const (
	StatusInProgress           Status = "In Progress"
	StatusDocumentVerification Status = "Document Verification"
	StatusAssignedToStaff      Status = "Assigned to Staff"
	StatusRevision             Status = "Revision"
	StatusCompleted            Status = "Completed"
)

// Statuses lists every workflow state in lifecycle order.
var Statuses = []Status{
	StatusInProgress,
	StatusDocumentVerification,
	StatusAssignedToStaff,
	StatusRevision,
	StatusCompleted,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// Role is one of the fixed user roles.
type Role string

const (
	RoleAdmin       Role = "Admin"
	RoleTU          Role = "TU"
	RoleCoordinator Role = "Coordinator"
	RoleStaff       Role = "Staff"
)

var Roles = []Role{RoleAdmin, RoleTU, RoleCoordinator, RoleStaff}

func (r Role) Valid() bool {
	for _, v := range Roles {
		if v == r {
			return true
		}
	}
	return false
}

// DocumentStatus is the presence flag of one required document.
type DocumentStatus string

const (
	DocumentPresent DocumentStatus = "Ada"
	DocumentAbsent  DocumentStatus = "Tidak Ada"
)

func (s DocumentStatus) Valid() bool {
	return s == DocumentPresent || s == DocumentAbsent
}

// Verification maps a required document label to its presence flag.
type Verification map[string]DocumentStatus

// Disposition is the routing sheet attached at intake.
type Disposition struct {
	Nature            []string `json:"nature,omitempty"`
	Urgency           []string `json:"urgency,omitempty"`
	AgendaNumber      string   `json:"agenda_number,omitempty"`
	OriginGroup       string   `json:"origin_group,omitempty"`
	SecretariatAgenda string   `json:"secretariat_agenda,omitempty"`
	Sender            string   `json:"sender,omitempty"`
	AgendaDate        string   `json:"agenda_date,omitempty"`
	LetterDate        string   `json:"letter_date,omitempty"`
}

type Report struct {
	ID                   string         `json:"id"`
	LetterNumber         string         `json:"letter_number"`
	Subject              string         `json:"subject"`
	ServiceType          string         `json:"service_type"`
	Status               Status         `json:"status" enum:"In Progress,Document Verification,Assigned to Staff,Revision,Completed"`
	Progress             int            `json:"progress" minimum:"0" maximum:"100"`
	CreatedBy            string         `json:"created_by"`
	AssignedCoordinators []string       `json:"assigned_coordinators"`
	AssignedStaff        []string       `json:"assigned_staff"`
	Disposition          Disposition    `json:"disposition"`
	Verification         Verification   `json:"document_verification,omitempty"`
	Tasks                []Task         `json:"tasks"`
	Notes                string         `json:"notes,omitempty"`
	RevisionNotes        string         `json:"revision_notes,omitempty"`
	History              []HistoryEntry `json:"history"`
	CreatedAt            string         `json:"created_at" format:"date-time"`
	UpdatedAt            string         `json:"updated_at" format:"date-time"`
}

// CanApprove reports whether the approve action is offered. It looks at
// progress only; the status label is irrelevant.
func (r Report) CanApprove() bool {
	return r.Progress == 100
}

// TaskFor returns the task held by staff on this report.
func (r Report) TaskFor(staff string) (Task, bool) {
	for _, t := range r.Tasks {
		if t.StaffID == staff {
			return t, true
		}
	}
	return Task{}, false
}

type Task struct {
	ID          string   `json:"id"`
	ReportID    string   `json:"report_id"`
	StaffID     string   `json:"staff_id"`
	Items       []string `json:"items"`
	Completed   bool     `json:"completed"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

type HistoryEntry struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	ReportID  string `json:"report_id"`
	Type      string `json:"type"`
	Action    string `json:"action"`
	Actor     string `json:"actor"`
	Notes     string `json:"notes,omitempty"`
	Timestamp string `json:"timestamp" format:"date-time"`
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         Role   `json:"role" enum:"Admin,TU,Coordinator,Staff"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

// Actor is the identity issuing a workflow command. Name is the workflow
// identity stored on reports.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

func (u User) Actor() Actor {
	return Actor{ID: u.ID, Name: u.Name, Role: u.Role}
}
