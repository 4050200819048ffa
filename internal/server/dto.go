package server

import (
	"blueprint/internal/agent"
	"blueprint/internal/domain"
	"blueprint/internal/repo"
)

// Request payloads

type CreateProjectRequest struct {
	Name         string                     `json:"name"`
	Description  *string                    `json:"description,omitempty"`
	Stack        *string                    `json:"stack,omitempty"`
	Priority     *string                    `json:"priority,omitempty" enum:"Alta,Média,Baixa"`
	Tags         []string                   `json:"tags,omitempty"`
	Requirements []CreateRequirementRequest `json:"requirements,omitempty"`
}

type CreateRequirementRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Type        *string `json:"type,omitempty"`
	Category    *string `json:"category,omitempty"`
	Priority    *string `json:"priority,omitempty" enum:"Alta,Média,Baixa"`
}

type UpdateProjectRequest struct {
	Status      *string `json:"status,omitempty" enum:"planejamento,em_andamento,pausado,concluido"`
	Priority    *string `json:"priority,omitempty" enum:"Alta,Média,Baixa"`
	Progress    *int    `json:"progress,omitempty" minimum:"0" maximum:"100"`
	Description *string `json:"description,omitempty"`
}

type CreateTasksRequest struct {
	Tasks []CreateTaskRequest `json:"tasks" minItems:"1"`
}

type CreateTaskRequest struct {
	Title                 string   `json:"title"`
	Description           *string  `json:"description,omitempty"`
	GuidancePrompt        *string  `json:"guidance_prompt,omitempty"`
	AdditionalInformation *string  `json:"additional_information,omitempty"`
	Todos                 []string `json:"todos,omitempty"`
}

type UpdateTaskRequest struct {
	Status string `json:"status" enum:"pendente,em_andamento,concluida,cancelada"`
}

type UpdateTodoRequest struct {
	Done bool `json:"done"`
}

type ChatRequest struct {
	Messages    []agent.Message `json:"messages" minItems:"1"`
	BasePrompt  *string         `json:"base_prompt,omitempty"`
	Interactive *bool           `json:"interactive,omitempty"`
}

// Response payloads

type ChatResponse struct {
	Content string       `json:"content"`
	TurnID  string       `json:"turn_id"`
	Usage   *agent.Usage `json:"usage,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id" example:"user-123"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type ProjectStatusResponse struct {
	Project    domain.Project `json:"project"`
	TaskCounts map[string]int `json:"task_counts"`
}

type ProjectTasksResponse struct {
	Tasks []repo.TaskWithTodoCounts `json:"tasks"`
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
