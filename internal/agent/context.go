package agent

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"blueprint/internal/repo"
)

const (
	defaultContextProjects = 3
	maxContextRequirements = 6
	listedRequirements     = 5
	maxContextTasks        = 5
	maxContextHistory      = 2

	maxDescriptionLen = 280
	maxHistoryLen     = 160

	ellipsis = "…"
)

// StorageError marks a failed read against the project store, so callers can
// tell storage faults apart from other internal errors.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("load %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// ContextBuilder renders a bounded digest of a user's most recent projects
// for prompt injection. Read-only; storage failures propagate to the caller
// as StorageError, never swallowed and never retried here.
type ContextBuilder struct {
	Repo repo.Repo
}

type ContextOptions struct {
	Take           int
	IncludeHistory bool
}

// Build returns one paragraph block per project separated by blank lines, or
// "" when the user has no projects at all.
func (b ContextBuilder) Build(ctx context.Context, userID string, opts ContextOptions) (string, error) {
	take := opts.Take
	if take <= 0 {
		take = defaultContextProjects
	}
	projects, err := b.Repo.RecentProjects(ctx, userID, take)
	if err != nil {
		return "", &StorageError{Op: fmt.Sprintf("projects for %s", userID), Err: err}
	}
	if len(projects) == 0 {
		return "", nil
	}

	blocks := make([]string, 0, len(projects))
	for _, p := range projects {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Projeto #%d: %s (status: %s, prioridade: %s, progresso: %d%%)\n", p.ID, p.Name, p.Status, p.Priority, p.Progress)
		if p.Description != "" {
			fmt.Fprintf(&sb, "Descrição: %s\n", truncate(p.Description, maxDescriptionLen))
		}
		if p.Stack != "" {
			fmt.Fprintf(&sb, "Stack: %s\n", p.Stack)
		}
		fmt.Fprintf(&sb, "Última atualização: %s\n", p.UpdatedAt)

		reqs, err := b.Repo.RecentRequirements(ctx, p.ID, maxContextRequirements)
		if err != nil {
			return "", &StorageError{Op: fmt.Sprintf("requirements for project %d", p.ID), Err: err}
		}
		if len(reqs) == 0 {
			sb.WriteString("Nenhum requisito cadastrado até o momento.\n")
		} else {
			sb.WriteString("Requisitos:\n")
			for i, r := range reqs {
				if i == listedRequirements {
					break
				}
				fmt.Fprintf(&sb, "- [%s] %s\n", r.Priority, r.Title)
			}
		}

		tasks, err := b.Repo.RecentTasks(ctx, p.ID, maxContextTasks)
		if err != nil {
			return "", &StorageError{Op: fmt.Sprintf("tasks for project %d", p.ID), Err: err}
		}
		if len(tasks) == 0 {
			sb.WriteString("Nenhuma tarefa cadastrada até o momento.\n")
		} else {
			sb.WriteString("Tarefas:\n")
			for _, t := range tasks {
				done := t.TotalTodos - t.PendingTodos
				fmt.Fprintf(&sb, "- %s (status: %s, checklist %d/%d)\n", t.Title, t.Status, done, t.TotalTodos)
			}
		}

		if opts.IncludeHistory {
			history, err := b.Repo.RecentHistory(ctx, p.ID, maxContextHistory)
			if err != nil {
				return "", &StorageError{Op: fmt.Sprintf("history for project %d", p.ID), Err: err}
			}
			if len(history) > 0 {
				sb.WriteString("Histórico recente:\n")
				for _, h := range history {
					fmt.Fprintf(&sb, "- %s: %s\n", h.CreatedAt, truncate(h.Summary, maxHistoryLen))
				}
			}
		}
		blocks = append(blocks, strings.TrimRight(sb.String(), "\n"))
	}
	return strings.Join(blocks, "\n\n"), nil
}

// truncate cuts at a rune boundary and appends an ellipsis, so the result
// never exceeds max by more than the ellipsis itself.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + ellipsis
}
