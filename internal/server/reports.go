package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"suratline/internal/domain"
	"suratline/internal/engine"
	"suratline/internal/engine/auth"
	"suratline/internal/repo"
	"suratline/internal/verification"
)

type reportOutput struct {
	Body domain.Report `json:"body"`
}

func registerTrack(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "track-report",
		Method:      http.MethodGet,
		Path:        "/track",
		Summary:     "Track a letter by number",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Query string `query:"q"`
	}) (*struct {
		Body TrackResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Query) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "q is required", nil)
		}
		rep, err := e.Track(ctx, input.Query)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TrackResponse `json:"body"`
		}{Body: trackResponse(rep)}, nil
	})
}

func registerCatalog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-catalog",
		Method:      http.MethodGet,
		Path:        "/catalog",
		Summary:     "Service catalog and directory",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CatalogResponse `json:"body"`
	}, error) {
		return &struct {
			Body CatalogResponse `json:"body"`
		}{Body: catalogResponse(e.Config)}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-report",
		Method:        http.MethodPost,
		Path:          "/reports",
		Summary:       "Register incoming correspondence",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateReportRequest `json:"body"`
	}) (*reportOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.CreateReport(ctx, actor, engine.NewReport{
			LetterNumber: input.Body.LetterNumber,
			Subject:      input.Body.Subject,
			ServiceType:  input.Body.ServiceType,
			Disposition:  input.Body.Disposition,
			Notes:        input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &reportOutput{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List reports visible to the caller",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50"`
		Offset int    `query:"offset"`
	}) (*struct {
		Body paginatedReports `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Status != "" && !domain.Status(input.Status).Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid status", map[string]any{"status": input.Status})
		}
		if input.Offset < 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "offset must be >= 0", nil)
		}
		reps, err := e.ListForRole(ctx, actor.Role, actor.Name)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Status != "" {
			filtered := reps[:0]
			for _, r := range reps {
				if string(r.Status) == input.Status {
					filtered = append(filtered, r)
				}
			}
			reps = filtered
		}
		total := len(reps)
		limit := normalizeLimit(input.Limit)
		start := input.Offset
		if start > total {
			start = total
		}
		end := start + limit
		if end > total {
			end = total
		}
		return &struct {
			Body paginatedReports `json:"body"`
		}{Body: paginatedReports{Items: nonNilSlice(reps[start:end]), Total: total}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}",
		Summary:     "Get report",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*reportOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.GetReport(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &reportOutput{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-report",
		Method:      http.MethodPatch,
		Path:        "/reports/{id}",
		Summary:     "Edit descriptive fields",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body EditReportRequest `json:"body"`
	}) (*reportOutput, error) {
		return apply(ctx, e, input.ID, engine.EditFieldsCommand{
			LetterNumber: input.Body.LetterNumber,
			Subject:      input.Body.Subject,
			ServiceType:  input.Body.ServiceType,
			Disposition:  input.Body.Disposition,
			Notes:        input.Body.Notes,
		})
	})
}

func apply(ctx context.Context, e engine.Engine, id string, cmd engine.Command) (*reportOutput, error) {
	actor, authErr := actorFromContext(ctx)
	if authErr != nil {
		return nil, authErr
	}
	rep, err := e.Apply(ctx, actor, id, cmd)
	if err != nil {
		return nil, handleError(err)
	}
	return &reportOutput{Body: rep}, nil
}

func registerActions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "forward-report",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/forward",
		Summary:     "Forward to coordinators",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body ForwardRequest `json:"body"`
	}) (*reportOutput, error) {
		return apply(ctx, e, input.ID, engine.ForwardCommand{Coordinators: input.Body.Coordinators})
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-report",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/assign",
		Summary:     "Verify documents and assign staff",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AssignRequest `json:"body"`
	}) (*reportOutput, error) {
		return apply(ctx, e, input.ID, engine.VerifyAssignCommand{
			Verification: input.Body.Verification,
			Staff:        input.Body.Staff,
			Items:        input.Body.Items,
			Notes:        input.Body.Notes,
		})
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/complete",
		Summary:     "Complete the caller's task",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*reportOutput, error) {
		return apply(ctx, e, input.ID, engine.CompleteTaskCommand{})
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-report",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/approve",
		Summary:     "Approve a fully completed report",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*reportOutput, error) {
		return apply(ctx, e, input.ID, engine.ApproveCommand{})
	})

	huma.Register(api, huma.Operation{
		OperationID: "revise-report",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/revise",
		Summary:     "Send assigned work back for revision",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body NoteRequest `json:"body" required:"false"`
	}) (*reportOutput, error) {
		return apply(ctx, e, input.ID, engine.ReviseCommand{Note: input.Body.Note})
	})

	huma.Register(api, huma.Operation{
		OperationID: "return-report",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/return",
		Summary:     "Return to TU for incomplete documents",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body NoteRequest `json:"body" required:"false"`
	}) (*reportOutput, error) {
		return apply(ctx, e, input.ID, engine.ReturnToTUCommand{Note: input.Body.Note})
	})

	huma.Register(api, huma.Operation{
		OperationID: "handback-report",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/handback",
		Summary:     "Tell coordinators finished work is ready",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*reportOutput, error) {
		return apply(ctx, e, input.ID, engine.HandBackCommand{})
	})
}

func verificationResponse(e engine.Engine, rep domain.Report) VerificationResponse {
	v := rep.Verification
	if v == nil {
		v = domain.Verification{}
	}
	return VerificationResponse{
		ReportID:     rep.ID,
		Required:     nonNilSlice(e.Config.RequiredDocuments(rep.ServiceType)),
		Verification: v,
		Missing:      nonNilSlice(verification.Missing(v)),
		Complete:     verification.AllPresent(v),
	}
}

func registerVerification(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "open-verification",
		Method:      http.MethodPost,
		Path:        "/reports/{id}/verification",
		Summary:     "Start or resume the document check",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body VerificationResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.OpenVerification(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body VerificationResponse `json:"body"`
		}{Body: verificationResponse(e, rep)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-document",
		Method:      http.MethodPut,
		Path:        "/reports/{id}/verification/{doc}",
		Summary:     "Record whether a required document is present",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Doc  string                `path:"doc"`
		Body RecordDocumentRequest `json:"body"`
	}) (*struct {
		Body VerificationResponse `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.RecordDocument(ctx, actor, input.ID, input.Doc, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body VerificationResponse `json:"body"`
		}{Body: verificationResponse(e, rep)}, nil
	})
}

func registerHistory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-report-history",
		Method:      http.MethodGet,
		Path:        "/reports/{id}/history",
		Summary:     "Report history, oldest first",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.HistoryEntry `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.GetReport(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.HistoryEntry `json:"body"`
		}{Body: nonNilSlice(rep.History)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-report-history",
		Method:        http.MethodPost,
		Path:          "/reports/{id}/history",
		Summary:       "Append a note to the report history",
		DefaultStatus: http.StatusCreated,
		Errors:        commonErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body AddHistoryRequest `json:"body"`
	}) (*struct {
		Body domain.HistoryEntry `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.GetReport(ctx, actor, input.ID); err != nil {
			return nil, handleError(err)
		}
		id, err := e.AddHistoryEntry(ctx, input.ID, input.Body.Action, actor.Name, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		entries, err := e.Repo.ListHistory(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		for _, h := range entries {
			if h.ID == id {
				return &struct {
					Body domain.HistoryEntry `json:"body"`
				}{Body: h}, nil
			}
		}
		return nil, handleError(repo.ErrNotFound)
	})

	huma.Register(api, huma.Operation{
		OperationID: "history-feed",
		Method:      http.MethodGet,
		Path:        "/history",
		Summary:     "Ledger feed across reports",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Cursor   string `query:"cursor"`
		Limit    int    `query:"limit" default:"50"`
		ReportID string `query:"report_id"`
		Type     string `query:"type"`
	}) (*struct {
		Body paginatedHistory `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.Require(actor, "read the history feed"); err != nil {
			return nil, handleError(err)
		}
		var cursor int64
		if input.Cursor != "" {
			c, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || c < 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursor = c
		}
		filters := repo.HistoryFilters{ReportID: input.ReportID}
		if input.Type != "" {
			filters.Types = strings.Split(input.Type, ",")
		}
		limit := normalizeLimit(input.Limit)
		entries, err := e.Repo.HistoryAfter(ctx, limit, cursor, filters)
		if err != nil {
			return nil, handleError(err)
		}
		out := paginatedHistory{Items: entries}
		if len(entries) == limit {
			out.NextCursor = strconv.FormatInt(entries[len(entries)-1].Seq, 10)
		}
		return &struct {
			Body paginatedHistory `json:"body"`
		}{Body: out}, nil
	})
}
