package server

import (
	"suratline/internal/config"
	"suratline/internal/domain"
)

// Request payloads

type LoginRequest struct {
	ID       string `json:"id" minLength:"1"`
	Password string `json:"password" minLength:"1"`
}

type CreateReportRequest struct {
	LetterNumber string             `json:"letter_number" minLength:"1"`
	Subject      string             `json:"subject" minLength:"1"`
	ServiceType  string             `json:"service_type" minLength:"1"`
	Disposition  domain.Disposition `json:"disposition,omitempty" required:"false"`
	Notes        string             `json:"notes,omitempty" required:"false"`
}

type EditReportRequest struct {
	LetterNumber *string             `json:"letter_number,omitempty" required:"false"`
	Subject      *string             `json:"subject,omitempty" required:"false"`
	ServiceType  *string             `json:"service_type,omitempty" required:"false"`
	Disposition  *domain.Disposition `json:"disposition,omitempty" required:"false"`
	Notes        *string             `json:"notes,omitempty" required:"false"`
}

type ForwardRequest struct {
	Coordinators []string `json:"coordinators"`
}

type AssignRequest struct {
	Verification domain.Verification `json:"document_verification,omitempty" required:"false"`
	Staff        []string            `json:"staff"`
	Items        []string            `json:"items"`
	Notes        string              `json:"notes,omitempty" required:"false"`
}

type NoteRequest struct {
	Note string `json:"note,omitempty" required:"false"`
}

type RecordDocumentRequest struct {
	Status domain.DocumentStatus `json:"status" enum:"Ada,Tidak Ada"`
}

type AddHistoryRequest struct {
	Action string `json:"action" minLength:"1"`
	Notes  string `json:"notes,omitempty" required:"false"`
}

type CreateUserRequest struct {
	ID       string      `json:"id" minLength:"1"`
	Name     string      `json:"name" minLength:"1"`
	Role     domain.Role `json:"role" enum:"Admin,TU,Coordinator,Staff"`
	Password string      `json:"password" minLength:"1"`
}

type UpdateUserRequest struct {
	Name     *string      `json:"name,omitempty" required:"false"`
	Role     *domain.Role `json:"role,omitempty" required:"false" enum:"Admin,TU,Coordinator,Staff"`
	Password *string      `json:"password,omitempty" required:"false"`
}

// Responses

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at" format:"date-time"`
	User      UserResponse `json:"user"`
}

type UserResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Role      domain.Role `json:"role"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at"`
}

type WhoAmIResponse struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Role domain.Role `json:"role"`
}

// TrackResponse is the public view of a report: no assignees or notes.
type TrackResponse struct {
	ID           string               `json:"id"`
	LetterNumber string               `json:"letter_number"`
	Subject      string               `json:"subject"`
	ServiceType  string               `json:"service_type"`
	Status       domain.Status        `json:"status"`
	Progress     int                  `json:"progress"`
	CreatedAt    string               `json:"created_at"`
	UpdatedAt    string               `json:"updated_at"`
	Timeline     []TrackTimelineEntry `json:"timeline"`
}

type TrackTimelineEntry struct {
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

type VerificationResponse struct {
	ReportID     string              `json:"report_id"`
	Required     []string            `json:"required"`
	Verification domain.Verification `json:"document_verification"`
	Missing      []string            `json:"missing"`
	Complete     bool                `json:"complete"`
}

// CatalogResponse leaves out notification sinks, which may carry secrets.
type CatalogResponse struct {
	Office         string               `json:"office"`
	ClericalUnit   string               `json:"clerical_unit"`
	Services       []config.ServiceType `json:"services"`
	ChecklistItems []string             `json:"checklist_items"`
	Nature         []string             `json:"nature"`
	Urgency        []string             `json:"urgency"`
	Coordinators   []string             `json:"coordinators"`
	Staff          []string             `json:"staff"`
}

type paginatedReports struct {
	Items []domain.Report `json:"items"`
	Total int             `json:"total"`
}

type paginatedHistory struct {
	Items      []domain.HistoryEntry `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Role: u.Role, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
}

func trackResponse(r domain.Report) TrackResponse {
	out := TrackResponse{
		ID:           r.ID,
		LetterNumber: r.LetterNumber,
		Subject:      r.Subject,
		ServiceType:  r.ServiceType,
		Status:       r.Status,
		Progress:     r.Progress,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		Timeline:     make([]TrackTimelineEntry, 0, len(r.History)),
	}
	for _, h := range r.History {
		out.Timeline = append(out.Timeline, TrackTimelineEntry{Action: h.Action, Timestamp: h.Timestamp})
	}
	return out
}

func catalogResponse(cfg *config.Config) CatalogResponse {
	return CatalogResponse{
		Office:         cfg.Office.Name,
		ClericalUnit:   cfg.Office.ClericalUnit,
		Services:       nonNilSlice(cfg.Services),
		ChecklistItems: nonNilSlice(cfg.Checklist.Items),
		Nature:         nonNilSlice(cfg.Disposition.Nature),
		Urgency:        nonNilSlice(cfg.Disposition.Urgency),
		Coordinators:   nonNilSlice(cfg.Directory.Coordinators),
		Staff:          nonNilSlice(cfg.Directory.Staff),
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
