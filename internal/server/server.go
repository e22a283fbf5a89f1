// Package server exposes a read-only HTTP API over recorded sync runs and
// sheet contents.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"tasktally/internal/config"
	"tasktally/internal/history"
	"tasktally/internal/sheet"
)

// Config for the HTTP API handler.
type Config struct {
	Projects []config.Project
	History  history.Writer
	Sheets   sheet.Store
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"no runs recorded"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the tasktally API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("tasktally API", "0.1.0")
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerMe(group)
	registerProjects(group, cfg.Projects)
	registerRuns(group, cfg.History)
	registerSheets(group, cfg.Sheets)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Authenticated caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"subject": p.Subject}}, nil
	})
}

// ProjectResponse is one configured project binding.
type ProjectResponse struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Sheet string `json:"sheet"`
	Row   int    `json:"row"`
}

func registerProjects(api huma.API, projects []config.Project) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List configured projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		out := make([]ProjectResponse, 0, len(projects))
		for _, p := range projects {
			out = append(out, ProjectResponse{ID: p.ID, Label: p.Label, Sheet: p.Sheet, Row: p.Row})
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerRuns(api huma.API, h history.Writer) {
	huma.Register(api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/runs",
		Summary:     "List recorded sync runs",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
		Limit     int    `query:"limit"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body history.Page `json:"body"`
	}, error) {
		page, err := h.Runs(ctx, input.ProjectID, input.Limit, input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		return &struct {
			Body history.Page `json:"body"`
		}{Body: page}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "latest-run",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/latest",
		Summary:     "Latest sync run for a project",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body history.Run `json:"body"`
	}, error) {
		run, err := h.Latest(ctx, input.ProjectID)
		if err != nil {
			if errors.Is(err, history.ErrNoRuns) {
				return nil, newAPIError(http.StatusNotFound, "not_found", "no runs recorded for project", nil)
			}
			return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
		}
		return &struct {
			Body history.Run `json:"body"`
		}{Body: run}, nil
	})
}

func registerSheets(api huma.API, s sheet.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "get-sheet",
		Method:      http.MethodGet,
		Path:        "/sheets/{sheet}",
		Summary:     "Populated rows of a sheet",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Sheet string `path:"sheet"`
	}) (*struct {
		Body []sheet.RowRef `json:"body"`
	}, error) {
		rows, err := s.Rows(ctx, input.Sheet)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
		}
		if rows == nil {
			rows = []sheet.RowRef{}
		}
		return &struct {
			Body []sheet.RowRef `json:"body"`
		}{Body: rows}, nil
	})
}
