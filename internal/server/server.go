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
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"blueprint/internal/agent"
	"blueprint/internal/domain"
	"blueprint/internal/engine"
	"blueprint/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Agent    *agent.Pipeline
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"project not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Blueprint API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope shape.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Blueprint API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerChat(group, cfg.Engine, cfg.Agent)
	registerActions(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var invErr *agent.InvocationError
	if errors.As(err, &invErr) {
		return newAPIError(http.StatusBadGateway, "assistant_unavailable", "assistant unavailable, try again", map[string]any{"reason": invErr.Reason})
	}
	var storeErr *agent.StorageError
	if errors.As(err, &storeErr) {
		return newAPIError(http.StatusInternalServerError, "storage_error", "could not read project data", map[string]any{"op": storeErr.Op})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "not executable"):
		return newAPIError(http.StatusUnprocessableEntity, "action_not_executable", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must be"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusBadGateway:
		return "assistant_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Blueprint API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
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

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if !authCfg.EnableDevLogin || authCfg.JWTSecret == "" {
			return nil, newAPIError(http.StatusNotFound, "not_found", "dev login is disabled", nil)
		}
		userID := strings.TrimSpace(input.Body.UserID)
		if userID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		token, err := issueToken(userID, authCfg.JWTSecret, 24*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func registerChat(api huma.API, e engine.Engine, pipeline *agent.Pipeline) {
	huma.Register(api, huma.Operation{
		OperationID: "architect-chat",
		Method:      http.MethodPost,
		Path:        "/architect/chat",
		Summary:     "Send a conversation turn to the architect",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body ChatRequest `json:"body"`
	}) (*struct {
		Body ChatResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if pipeline == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "assistant_unavailable", "architect is not configured", nil)
		}
		if len(input.Body.Messages) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "messages are required", nil)
		}
		interactive := true
		if input.Body.Interactive != nil {
			interactive = *input.Body.Interactive
		}
		resp, err := pipeline.Chat(ctx, agent.ChatRequest{
			UserID:      userID,
			Messages:    input.Body.Messages,
			BasePrompt:  deref(input.Body.BasePrompt),
			Interactive: interactive,
		})
		if err != nil {
			return nil, handleError(err)
		}
		actionCount := 0
		if resp.Plan != nil {
			actionCount = len(resp.Plan.Actions)
		}
		turnID, err := e.LogChatTurn(ctx, userID, resp.Usage, actionCount)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChatResponse `json:"body"`
		}{Body: ChatResponse{Content: resp.Content, TurnID: turnID, Usage: resp.Usage}}, nil
	})
}

func registerActions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "architect-apply-action",
		Method:      http.MethodPost,
		Path:        "/architect/actions",
		Summary:     "Execute one extracted architect action",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Body agent.Action `json:"body"`
	}) (*struct {
		Body engine.ApplyResult `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Type == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "action type is required", nil)
		}
		result, err := e.ApplyAction(ctx, userID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ApplyResult `json:"body"`
		}{Body: result}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	type ProjectPath struct {
		ProjectID int64 `path:"project_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List the caller's projects",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projects, err := e.Repo.RecentProjects(ctx, userID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: projects}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create a project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		reqs := make([]engine.RequirementSpec, 0, len(input.Body.Requirements))
		for _, r := range input.Body.Requirements {
			reqs = append(reqs, engine.RequirementSpec{
				Title:       r.Title,
				Description: deref(r.Description),
				Type:        deref(r.Type),
				Category:    deref(r.Category),
				Priority:    deref(r.Priority),
			})
		}
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			UserID:       userID,
			Name:         input.Body.Name,
			Description:  deref(input.Body.Description),
			Stack:        deref(input.Body.Stack),
			Priority:     deref(input.Body.Priority),
			Tags:         input.Body.Tags,
			Requirements: reqs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ProjectPath) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetUserProject(ctx, userID, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project fields",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectPath
		Body UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, engine.ProjectUpdateOptions{
			UserID:      userID,
			ProjectID:   input.ProjectID,
			Status:      input.Body.Status,
			Priority:    input.Body.Priority,
			Progress:    input.Body.Progress,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete a project and its children",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ProjectPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetUserProject(ctx, userID, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-status",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/status",
		Summary:     "Project status summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ProjectPath) (*struct {
		Body ProjectStatusResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetUserProject(ctx, userID, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountTasksByStatus(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectStatusResponse `json:"body"`
		}{Body: ProjectStatusResponse{Project: p, TaskCounts: counts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-requirements",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/requirements",
		Summary:     "List project requirements",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ProjectPath) (*struct {
		Body []domain.Requirement `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetUserProject(ctx, userID, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		reqs, err := e.Repo.RecentRequirements(ctx, input.ProjectID, 0)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Requirement `json:"body"`
		}{Body: reqs}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	type ProjectPath struct {
		ProjectID int64 `path:"project_id"`
	}
	type TaskPath struct {
		TaskID int64 `path:"task_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List project tasks with checklist counts",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *ProjectPath) (*struct {
		Body ProjectTasksResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetUserProject(ctx, userID, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		tasks, err := e.Repo.RecentTasks(ctx, input.ProjectID, 0)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectTasksResponse `json:"body"`
		}{Body: ProjectTasksResponse{Tasks: tasks}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-tasks",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Add tasks to a project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectPath
		Body CreateTasksRequest `json:"body"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if len(input.Body.Tasks) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "tasks are required", nil)
		}
		specs := make([]engine.TaskSpec, 0, len(input.Body.Tasks))
		for _, t := range input.Body.Tasks {
			specs = append(specs, engine.TaskSpec{
				Title:                 t.Title,
				Description:           deref(t.Description),
				GuidancePrompt:        deref(t.GuidancePrompt),
				AdditionalInformation: deref(t.AdditionalInformation),
				Todos:                 t.Todos,
			})
		}
		tasks, err := e.CreateTasks(ctx, engine.TasksCreateOptions{
			UserID:    userID,
			ProjectID: input.ProjectID,
			Tasks:     specs,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Update task status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TaskPath
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetTaskStatus(ctx, userID, input.TaskID, input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-todos",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/todos",
		Summary:     "List a task's checklist",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *TaskPath) (*struct {
		Body []domain.TodoItem `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetUserProject(ctx, userID, t.ProjectID); err != nil {
			return nil, handleError(err)
		}
		todos, err := e.Repo.ListTodos(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TodoItem `json:"body"`
		}{Body: todos}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-todo",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}/todos/{todo_id}",
		Summary:     "Mark a checklist item done or pending",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskPath
		TodoID int64             `path:"todo_id"`
		Body   UpdateTodoRequest `json:"body"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		if _, err := e.Repo.GetUserProject(ctx, userID, t.ProjectID); err != nil {
			return nil, handleError(err)
		}
		if err := e.Repo.SetTodoDone(ctx, input.TodoID, input.Body.Done); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{"id": input.TodoID, "done": input.Body.Done}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest events for the caller",
	}, func(ctx context.Context, input *struct {
		Limit int    `query:"limit"`
		Type  string `query:"type"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		evts, err := e.Repo.LatestEvents(ctx, limit, userID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: evts}, nil
	})
}
