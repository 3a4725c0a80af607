package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"missionline/internal/domain"
	"missionline/internal/engine"
	"missionline/internal/lifecycle"
	"missionline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid task status transition new -> completed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"from\":\"new\",\"to\":\"completed\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the mission API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request schema failures are the caller's input, not a state machine rule
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}
	if cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowActorHeader {
		cfg.Auth.logger().Printf("WARNING: no JWT secret configured; API is open and acts as the local user")
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Missionline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMissionTypes(group, cfg.Engine)
	registerTemplates(group, cfg.Engine)
	registerEmployees(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerMissions(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

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

// handleError maps the engine's error kinds onto HTTP statuses.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var (
		ve domain.ValidationError
		ne domain.NotFoundError
		ie domain.InvalidTransitionError
		ce domain.ConflictError
		pe domain.PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		return newAPIError(http.StatusBadRequest, "validation_error", err.Error(), map[string]any{"field": ve.Field})
	case errors.As(err, &ne):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), map[string]any{"entity": ne.Entity, "id": ne.ID})
	case errors.As(err, &ie):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", err.Error(), map[string]any{
			"from": ie.From.String(), "to": ie.To.String(), "allowed": statusNames(lifecycle.NextStatuses(ie.From)),
		})
	case errors.As(err, &ce):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.As(err, &pe):
		return newAPIError(http.StatusInternalServerError, "persistence_error", "internal error", map[string]any{"op": pe.Op})
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func statusNames(in []domain.TaskStatus) []string {
	out := []string{}
	for _, s := range in {
		out = append(out, s.String())
	}
	return out
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <title>Missionline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => { SwaggerUIBundle({ url: '%s', dom_id: '#swagger-ui' }); };
    </script>
  </body>
</html>`, specURL)
}

var writeErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
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

type missionTypePath struct {
	ID int64 `path:"id"`
}

func registerMissionTypes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-mission-types",
		Method:      http.MethodGet,
		Path:        "/mission-types",
		Summary:     "List mission types",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MissionTypeList `json:"body"`
	}, error) {
		items, err := e.ListMissionTypes(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionTypeList `json:"body"`
		}{Body: MissionTypeList{Items: orEmpty(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-mission-type",
		Method:        http.MethodPost,
		Path:          "/mission-types",
		Summary:       "Create mission type",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateMissionTypeRequest `json:"body"`
	}) (*struct {
		Body domain.MissionType `json:"body"`
	}, error) {
		mt, err := e.CreateMissionType(ctx, input.Body.Name, input.Body.EstimatedDuration)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MissionType `json:"body"`
		}{Body: mt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission-type",
		Method:      http.MethodGet,
		Path:        "/mission-types/{id}",
		Summary:     "Get mission type",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *missionTypePath) (*struct {
		Body domain.MissionType `json:"body"`
	}, error) {
		mt, err := e.GetMissionType(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MissionType `json:"body"`
		}{Body: mt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-mission-type",
		Method:      http.MethodPatch,
		Path:        "/mission-types/{id}",
		Summary:     "Update mission type",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64                    `path:"id"`
		Body UpdateMissionTypeRequest `json:"body"`
	}) (*struct {
		Body domain.MissionType `json:"body"`
	}, error) {
		mt, err := e.UpdateMissionType(ctx, input.ID, engine.MissionTypeUpdate{
			Name:              input.Body.Name,
			EstimatedDuration: input.Body.EstimatedDuration,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MissionType `json:"body"`
		}{Body: mt}, nil
	})
}

func registerTemplates(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/mission-types/{id}/templates",
		Summary:     "List task templates in order",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *missionTypePath) (*struct {
		Body TemplateList `json:"body"`
	}, error) {
		items, err := e.ListTemplates(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TemplateList `json:"body"`
		}{Body: TemplateList{Items: orEmpty(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-template",
		Method:        http.MethodPost,
		Path:          "/mission-types/{id}/templates",
		Summary:       "Append a task template",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64                 `path:"id"`
		Body CreateTemplateRequest `json:"body"`
	}) (*struct {
		Body domain.TaskTemplate `json:"body"`
	}, error) {
		t, err := e.AddTemplate(ctx, input.ID, input.Body.Description, input.Body.EstimatedDuration)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskTemplate `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "renumber-templates",
		Method:      http.MethodPost,
		Path:        "/mission-types/{id}/templates/renumber",
		Summary:     "Close gaps in template order",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *missionTypePath) (*struct {
		Body TemplateList `json:"body"`
	}, error) {
		items, err := e.Renumber(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TemplateList `json:"body"`
		}{Body: TemplateList{Items: orEmpty(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-template",
		Method:      http.MethodPatch,
		Path:        "/templates/{id}",
		Summary:     "Edit a task template",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body UpdateTemplateRequest `json:"body"`
	}) (*struct {
		Body domain.TaskTemplate `json:"body"`
	}, error) {
		t, err := e.UpdateTemplate(ctx, input.ID, engine.TemplateUpdate{
			Description:       input.Body.Description,
			EstimatedDuration: input.Body.EstimatedDuration,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskTemplate `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-template",
		Method:        http.MethodDelete,
		Path:          "/templates/{id}",
		Summary:       "Delete a task template",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteTemplate(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-template",
		Method:      http.MethodPost,
		Path:        "/templates/{id}/move",
		Summary:     "Swap a template with its neighbour",
		Errors:      writeErrors,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body MoveTemplateRequest `json:"body"`
	}) (*struct {
		Body domain.TaskTemplate `json:"body"`
	}, error) {
		d, err := lifecycle.ParseDirection(input.Body.Direction)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.MoveTemplate(ctx, input.ID, d)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TaskTemplate `json:"body"`
		}{Body: t}, nil
	})
}

func registerEmployees(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-employees",
		Method:      http.MethodGet,
		Path:        "/employees",
		Summary:     "List employees",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body EmployeeList `json:"body"`
	}, error) {
		items, err := e.ListEmployees(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EmployeeList `json:"body"`
		}{Body: EmployeeList{Items: orEmpty(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-employee",
		Method:        http.MethodPost,
		Path:          "/employees",
		Summary:       "Create employee",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateEmployeeRequest `json:"body"`
	}) (*struct {
		Body domain.Employee `json:"body"`
	}, error) {
		emp, err := e.CreateEmployee(ctx, engine.EmployeeCreateOptions{
			ID:        strPtrValue(input.Body.ID),
			FirstName: input.Body.FirstName,
			LastName:  input.Body.LastName,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Employee `json:"body"`
		}{Body: emp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-employee",
		Method:        http.MethodDelete,
		Path:          "/employees/{id}",
		Summary:       "Delete an employee not assigned to any mission",
		DefaultStatus: http.StatusNoContent,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteEmployee(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProjectList `json:"body"`
	}, error) {
		items, err := e.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectList `json:"body"`
		}{Body: ProjectList{Items: orEmpty(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.CreateProject(ctx, input.Body.Name, strPtrValue(input.Body.Description))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions, newest date first",
	}, func(ctx context.Context, input *struct {
		Date          string `query:"date"`
		MissionTypeID int64  `query:"mission_type_id"`
		ProjectID     int64  `query:"project_id"`
		EmployeeID    string `query:"employee_id"`
		Limit         int    `query:"limit" default:"50"`
	}) (*struct {
		Body MissionList `json:"body"`
	}, error) {
		items, err := e.ListMissions(ctx, repo.MissionFilter{
			Date:          input.Date,
			MissionTypeID: input.MissionTypeID,
			ProjectID:     input.ProjectID,
			EmployeeID:    input.EmployeeID,
			Limit:         normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := MissionList{Items: []MissionResponse{}}
		for _, v := range items {
			resp.Items = append(resp.Items, missionResponse(v))
		}
		return &struct {
			Body MissionList `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Create a mission with its team and tasks",
		DefaultStatus: http.StatusCreated,
		Errors:        writeErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateMissionRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		m, err := e.CreateMission(ctx, engine.MissionCreateOptions{
			ID:            strPtrValue(input.Body.ID),
			Date:          input.Body.Date,
			MissionTypeID: input.Body.MissionTypeID,
			ProjectID:     input.Body.ProjectID,
			Description:   strPtrValue(input.Body.Description),
			EmployeeIDs:   input.Body.EmployeeIDs,
			TeamLeaderID:  input.Body.TeamLeaderID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		v, err := e.GetMission(ctx, m.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(v)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get a mission with derived status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		v, err := e.GetMission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(v)}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "transition-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/transition",
		Summary:     "Move a mission task to a new status",
		Description: "When expected_status is given the change only applies if the task is still in that status.",
		Errors:      append([]int{http.StatusUnprocessableEntity}, writeErrors...),
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body TransitionTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		target, ok := domain.ParseTaskStatus(input.Body.Status)
		if !ok {
			return nil, handleError(domain.ValidationError{Field: "status", Reason: "unknown status " + input.Body.Status})
		}
		var next domain.MissionTask
		var err error
		if input.Body.ExpectedStatus != nil {
			expected, ok := domain.ParseTaskStatus(*input.Body.ExpectedStatus)
			if !ok {
				return nil, handleError(domain.ValidationError{Field: "expected_status", Reason: "unknown status " + *input.Body.ExpectedStatus})
			}
			next, err = e.TransitionExpecting(ctx, input.ID, expected, target)
		} else {
			next, err = e.TransitionTask(ctx, input.ID, target)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(next)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
	}, func(ctx context.Context, input *struct {
		EntityKind string `query:"entity_kind" doc:"mission_type, template, mission, task, employee, project or catalog"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body EventList `json:"body"`
	}, error) {
		items, err := e.ListEvents(ctx, repo.EventFilter{
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Limit:      normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EventList `json:"body"`
		}{Body: EventList{Items: orEmpty(items)}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}
