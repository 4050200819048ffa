package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"blueprint/internal/agent"
	"blueprint/internal/config"
	"blueprint/internal/domain"
	"blueprint/internal/events"
	"blueprint/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// RequirementSpec is one requirement attached to a new project.
type RequirementSpec struct {
	Title       string
	Description string
	Type        string
	Category    string
	Priority    string
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	UserID       string
	Name         string
	Description  string
	Stack        string
	Priority     string
	Tags         []string
	Requirements []RequirementSpec
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.UserID == "" {
		return domain.Project{}, errors.New("user is required")
	}
	if opts.Name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if opts.Priority == "" {
		opts.Priority = agent.PriorityMedium
	}
	if opts.Stack == "" {
		opts.Stack = e.Config.Defaults.Stack
	}
	if len(opts.Tags) == 0 {
		opts.Tags = append([]string(nil), e.Config.Defaults.Tags...)
	}
	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Project{
		UserID:      opts.UserID,
		Name:        opts.Name,
		Status:      "planejamento",
		Priority:    opts.Priority,
		Progress:    0,
		Description: opts.Description,
		Stack:       opts.Stack,
		Tags:        opts.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p.ID, err = e.Repo.InsertProject(ctx, tx, p)
	if err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	for _, spec := range opts.Requirements {
		if spec.Title == "" {
			continue
		}
		req := domain.Requirement{
			ProjectID:   p.ID,
			Title:       spec.Title,
			Description: spec.Description,
			Type:        spec.Type,
			Category:    spec.Category,
			Priority:    spec.Priority,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if req.Type == "" {
			req.Type = "Funcional"
		}
		if req.Category == "" {
			req.Category = agent.InferCategory(spec.Description + " " + spec.Title)
		}
		if req.Priority == "" {
			req.Priority = agent.PriorityMedium
		}
		if _, err := e.Repo.InsertRequirement(ctx, tx, req); err != nil {
			return domain.Project{}, fmt.Errorf("insert requirement: %w", err)
		}
	}
	if err := e.Repo.InsertHistory(ctx, tx, domain.HistoryEntry{
		ProjectID: p.ID,
		Summary:   fmt.Sprintf("Projeto criado com %d requisito(s)", len(opts.Requirements)),
		CreatedAt: now,
	}); err != nil {
		return domain.Project{}, fmt.Errorf("insert history: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", opts.UserID, "project", fmt.Sprint(p.ID), events.EventPayload{
		"name":         p.Name,
		"requirements": len(opts.Requirements),
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// TaskSpec is one task, optionally with a checklist, attached to a project.
type TaskSpec struct {
	Title                 string
	Description           string
	GuidancePrompt        string
	AdditionalInformation string
	Todos                 []string
}

// TasksCreateOptions are parameters for adding tasks to an existing project.
type TasksCreateOptions struct {
	UserID    string
	ProjectID int64
	Tasks     []TaskSpec
}

func (e Engine) CreateTasks(ctx context.Context, opts TasksCreateOptions) ([]domain.Task, error) {
	if opts.UserID == "" {
		return nil, errors.New("user is required")
	}
	if len(opts.Tasks) == 0 {
		return nil, errors.New("at least one task is required")
	}
	if _, err := e.Repo.GetUserProject(ctx, opts.UserID, opts.ProjectID); err != nil {
		return nil, err
	}
	now := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	created := make([]domain.Task, 0, len(opts.Tasks))
	for _, spec := range opts.Tasks {
		if spec.Title == "" {
			return nil, errors.New("task title is required")
		}
		t := domain.Task{
			ProjectID:             opts.ProjectID,
			Title:                 spec.Title,
			Description:           spec.Description,
			GuidancePrompt:        spec.GuidancePrompt,
			AdditionalInformation: spec.AdditionalInformation,
			Status:                "pendente",
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		t.ID, err = e.Repo.InsertTask(ctx, tx, t)
		if err != nil {
			return nil, fmt.Errorf("insert task: %w", err)
		}
		for _, todo := range spec.Todos {
			if todo == "" {
				continue
			}
			if _, err := e.Repo.InsertTodo(ctx, tx, domain.TodoItem{
				TaskID:      t.ID,
				Description: todo,
				CreatedAt:   now,
			}); err != nil {
				return nil, fmt.Errorf("insert todo: %w", err)
			}
		}
		created = append(created, t)
	}
	if err := e.Repo.InsertHistory(ctx, tx, domain.HistoryEntry{
		ProjectID: opts.ProjectID,
		Summary:   fmt.Sprintf("%d tarefa(s) adicionada(s)", len(created)),
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("insert history: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at=? WHERE id=?`, now, opts.ProjectID); err != nil {
		return nil, fmt.Errorf("touch project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "tasks.created", opts.UserID, "project", fmt.Sprint(opts.ProjectID), events.EventPayload{
		"count": len(created),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// ApplyResult reports what executing a plan action created.
type ApplyResult struct {
	Project *domain.Project `json:"project,omitempty"`
	Tasks   []domain.Task   `json:"tasks,omitempty"`
}

// ApplyAction executes one normalized architect action for a user. The
// payload must already be the concrete shape for the action's type; anything
// else is rejected, never guessed at.
func (e Engine) ApplyAction(ctx context.Context, userID string, action agent.Action) (ApplyResult, error) {
	switch payload := action.Payload.(type) {
	case agent.CreateProjectPayload:
		if action.Type != agent.ActionCreateProject {
			return ApplyResult{}, fmt.Errorf("payload does not match action type %s", action.Type)
		}
		reqs := make([]RequirementSpec, 0, len(payload.Requirements))
		for _, r := range payload.Requirements {
			reqs = append(reqs, RequirementSpec{
				Title:       r.Title,
				Description: r.Description,
				Type:        r.Type,
				Category:    r.Category,
				Priority:    r.Priority,
			})
		}
		p, err := e.CreateProject(ctx, ProjectCreateOptions{
			UserID:       userID,
			Name:         payload.Name,
			Description:  payload.Description,
			Stack:        payload.Stack,
			Priority:     payload.Priority,
			Tags:         payload.Tags,
			Requirements: reqs,
		})
		if err != nil {
			return ApplyResult{}, err
		}
		return ApplyResult{Project: &p}, nil

	case agent.CreateTasksPayload:
		if action.Type != agent.ActionCreateTasks {
			return ApplyResult{}, fmt.Errorf("payload does not match action type %s", action.Type)
		}
		if payload.ProjectID == nil {
			return ApplyResult{}, errors.New("projectId is required to apply create_tasks")
		}
		specs := make([]TaskSpec, 0, len(payload.Tasks))
		for _, t := range payload.Tasks {
			specs = append(specs, TaskSpec{
				Title:                 t.Title,
				Description:           t.Description,
				GuidancePrompt:        t.GuidancePrompt,
				AdditionalInformation: t.AdditionalInformation,
				Todos:                 t.Todos,
			})
		}
		tasks, err := e.CreateTasks(ctx, TasksCreateOptions{
			UserID:    userID,
			ProjectID: *payload.ProjectID,
			Tasks:     specs,
		})
		if err != nil {
			return ApplyResult{}, err
		}
		return ApplyResult{Tasks: tasks}, nil

	default:
		return ApplyResult{}, fmt.Errorf("action type %s is not executable", action.Type)
	}
}

// ProjectUpdateOptions are parameters for a partial project update.
type ProjectUpdateOptions struct {
	UserID      string
	ProjectID   int64
	Status      *string
	Priority    *string
	Progress    *int
	Description *string
}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	if _, err := e.Repo.GetUserProject(ctx, opts.UserID, opts.ProjectID); err != nil {
		return domain.Project{}, err
	}
	if opts.Progress != nil && (*opts.Progress < 0 || *opts.Progress > 100) {
		return domain.Project{}, errors.New("progress must be between 0 and 100")
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateProject(ctx, opts.ProjectID, opts.Status, opts.Priority, opts.Progress, opts.Description, now); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, opts.ProjectID)
}

func (e Engine) SetTaskStatus(ctx context.Context, userID string, taskID int64, status string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := e.Repo.GetUserProject(ctx, userID, t.ProjectID); err != nil {
		return domain.Task{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateTaskStatus(ctx, taskID, status, now); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, taskID)
}

// LogChatTurn records one architect exchange in the event log and returns the
// turn's correlation id.
func (e Engine) LogChatTurn(ctx context.Context, userID string, usage *agent.Usage, actionCount int) (string, error) {
	turnID := uuid.NewString()
	payload := events.EventPayload{"actions": actionCount, "turn_id": turnID}
	if usage != nil {
		payload["input_tokens"] = usage.InputTokens
		payload["output_tokens"] = usage.OutputTokens
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, "architect.chat", userID, "chat", turnID, payload); err != nil {
		return "", err
	}
	return turnID, tx.Commit()
}
