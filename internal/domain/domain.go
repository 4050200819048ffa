package domain

type Project struct {
	ID          int64    `json:"id"`
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	Status      string   `json:"status" enum:"planejamento,em_andamento,pausado,concluido"`
	Priority    string   `json:"priority" enum:"Alta,Média,Baixa"`
	Progress    int      `json:"progress" minimum:"0" maximum:"100"`
	Description string   `json:"description,omitempty"`
	Stack       string   `json:"stack,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Requirement struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Priority    string `json:"priority" enum:"Alta,Média,Baixa"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Task struct {
	ID                    int64  `json:"id"`
	ProjectID             int64  `json:"project_id"`
	Title                 string `json:"title"`
	Description           string `json:"description,omitempty"`
	GuidancePrompt        string `json:"guidance_prompt,omitempty"`
	AdditionalInformation string `json:"additional_information,omitempty"`
	Status                string `json:"status" enum:"pendente,em_andamento,concluida,cancelada"`
	CreatedAt             string `json:"created_at" format:"date-time"`
	UpdatedAt             string `json:"updated_at" format:"date-time"`
}

// TodoItem is a checklist sub-step of a task; completion ratios shown in the
// architect digest are derived from these.
type TodoItem struct {
	ID          int64  `json:"id"`
	TaskID      int64  `json:"task_id"`
	Description string `json:"description"`
	Done        bool   `json:"done"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type HistoryEntry struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	UserID     string `json:"user_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
