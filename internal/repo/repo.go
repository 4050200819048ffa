package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"blueprint/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const projectCols = `id,user_id,name,status,priority,progress,COALESCE(description,'') AS description,COALESCE(stack,'') AS stack,COALESCE(tags_json,'') AS tags_json,created_at,updated_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var tagsJSON string
	err := scan(&p.ID, &p.UserID, &p.Name, &p.Status, &p.Priority, &p.Progress, &p.Description, &p.Stack, &tagsJSON, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
			return p, fmt.Errorf("decode project %d tags: %w", p.ID, err)
		}
	}
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) (int64, error) {
	tags, err := marshalTags(p.Tags)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO projects(user_id,name,status,priority,progress,description,stack,tags_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.UserID, p.Name, p.Status, p.Priority, p.Progress, nullable(p.Description), nullable(p.Stack), tags, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id)
	return scanProject(row.Scan)
}

// GetUserProject fetches a project and verifies ownership in one query.
func (r Repo) GetUserProject(ctx context.Context, userID string, id int64) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=? AND user_id=?`, id, userID)
	return scanProject(row.Scan)
}

// RecentProjects returns a user's projects ordered by most recent update.
func (r Repo) RecentProjects(ctx context.Context, userID string, limit int) ([]domain.Project, error) {
	query := `SELECT ` + projectCols + ` FROM projects WHERE user_id=? ORDER BY updated_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProject(ctx context.Context, id int64, status, priority *string, progress *int, description *string, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if status != nil {
		fields = append(fields, "status=?")
		args = append(args, *status)
	}
	if priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, *priority)
	}
	if progress != nil {
		fields = append(fields, "progress=?")
		args = append(args, *progress)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertRequirement(ctx context.Context, tx *sql.Tx, req domain.Requirement) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO requirements(project_id,title,description,type,category,priority,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		req.ProjectID, req.Title, nullable(req.Description), req.Type, req.Category, req.Priority, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentRequirements returns a project's requirements, most recently updated first.
func (r Repo) RecentRequirements(ctx context.Context, projectID int64, limit int) ([]domain.Requirement, error) {
	query := `SELECT id,project_id,title,COALESCE(description,''),type,category,priority,created_at,updated_at FROM requirements WHERE project_id=? ORDER BY updated_at DESC, id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Requirement
	for rows.Next() {
		var req domain.Requirement
		if err := rows.Scan(&req.ID, &req.ProjectID, &req.Title, &req.Description, &req.Type, &req.Category, &req.Priority, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(project_id,title,description,guidance_prompt,additional_information,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		t.ProjectID, t.Title, nullable(t.Description), nullable(t.GuidancePrompt), nullable(t.AdditionalInformation), t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	var t domain.Task
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,title,COALESCE(description,''),COALESCE(guidance_prompt,''),COALESCE(additional_information,''),status,created_at,updated_at FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.GuidancePrompt, &t.AdditionalInformation, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) UpdateTaskStatus(ctx context.Context, id int64, status, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TaskWithTodoCounts carries checklist completion alongside a task.
type TaskWithTodoCounts struct {
	domain.Task
	PendingTodos int `json:"pending_todos"`
	TotalTodos   int `json:"total_todos"`
}

// RecentTasks returns a project's tasks with todo counts, most recently updated first.
func (r Repo) RecentTasks(ctx context.Context, projectID int64, limit int) ([]TaskWithTodoCounts, error) {
	query := `SELECT t.id,t.project_id,t.title,COALESCE(t.description,''),COALESCE(t.guidance_prompt,''),COALESCE(t.additional_information,''),t.status,t.created_at,t.updated_at,
		COALESCE(SUM(CASE WHEN td.done=0 THEN 1 ELSE 0 END),0) AS pending,
		COUNT(td.id) AS total
	FROM tasks t
	LEFT JOIN todos td ON td.task_id=t.id
	WHERE t.project_id=?
	GROUP BY t.id
	ORDER BY t.updated_at DESC, t.id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []TaskWithTodoCounts
	for rows.Next() {
		var t TaskWithTodoCounts
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.GuidancePrompt, &t.AdditionalInformation, &t.Status, &t.CreatedAt, &t.UpdatedAt, &t.PendingTodos, &t.TotalTodos); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertTodo(ctx context.Context, tx *sql.Tx, todo domain.TodoItem) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO todos(task_id,description,done,created_at) VALUES (?,?,?,?)`,
		todo.TaskID, todo.Description, boolToInt(todo.Done), todo.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListTodos(ctx context.Context, taskID int64) ([]domain.TodoItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,description,done,created_at FROM todos WHERE task_id=? ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TodoItem
	for rows.Next() {
		var td domain.TodoItem
		var done int
		if err := rows.Scan(&td.ID, &td.TaskID, &td.Description, &done, &td.CreatedAt); err != nil {
			return nil, err
		}
		td.Done = done != 0
		res = append(res, td)
	}
	return res, rows.Err()
}

func (r Repo) SetTodoDone(ctx context.Context, id int64, done bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE todos SET done=? WHERE id=?`, boolToInt(done), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertHistory(ctx context.Context, tx *sql.Tx, h domain.HistoryEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_history(project_id,summary,created_at) VALUES (?,?,?)`,
		h.ProjectID, h.Summary, h.CreatedAt)
	return err
}

// RecentHistory returns a project's latest history entries.
func (r Repo) RecentHistory(ctx context.Context, projectID int64, limit int) ([]domain.HistoryEntry, error) {
	query := `SELECT id,project_id,summary,created_at FROM project_history WHERE project_id=? ORDER BY created_at DESC, id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.ID, &h.ProjectID, &h.Summary, &h.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) CountTasksByStatus(ctx context.Context, projectID int64) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// LatestEvents returns recent event-log entries, newest first.
func (r Repo) LatestEvents(ctx context.Context, limit int, userID, evtType string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if userID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, userID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(user_id,''),entity_kind,COALESCE(entity_id,''),payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.UserID, &e.EntityKind, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func marshalTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	return string(data), nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
