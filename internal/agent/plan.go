package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// PlanVersion tags the outbound normalized block schema.
const PlanVersion = 2

// Action types the dashboard can execute. Everything else the model declares
// (update_project, review_project, none, ...) is accepted on input and dropped
// during normalization.
const (
	ActionCreateProject = "create_project"
	ActionCreateTasks   = "create_tasks"
)

const (
	PriorityHigh   = "Alta"
	PriorityMedium = "Média"
	PriorityLow    = "Baixa"
)

const (
	maxRequirementTitleLen = 100
	maxTaskTitleLen        = 80
)

// RawPlan is the model's self-reported plan, exactly as parsed. Nothing here
// is trusted until Normalize has reshaped it.
type RawPlan struct {
	Summary           string      `json:"summary"`
	ProjectFocus      string      `json:"projectFocus"`
	MissingInfo       []string    `json:"missingInfo"`
	Risks             []string    `json:"risks"`
	FollowUpQuestions []string    `json:"followUpQuestions"`
	Actions           []RawAction `json:"actions"`
}

type RawAction struct {
	Type              string         `json:"type"`
	Title             string         `json:"title,omitempty"`
	Description       string         `json:"description,omitempty"`
	Priority          string         `json:"priority,omitempty"`
	Confidence        float64        `json:"confidence,omitempty"`
	NeedsConfirmation bool           `json:"needsConfirmation,omitempty"`
	Project           *ProjectRef    `json:"project,omitempty"`
	Payload           map[string]any `json:"payload,omitempty"`
}

// ProjectRef is how the model points at an existing or to-be-created project.
type ProjectRef struct {
	ID         *int64  `json:"id,omitempty"`
	Name       string  `json:"name,omitempty"`
	Status     string  `json:"status,omitempty" enum:"existente,novo,indefinido"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Plan is the validated, executable output of normalization.
type Plan struct {
	Version int      `json:"version"`
	Summary string   `json:"summary,omitempty"`
	Notes   []string `json:"notes,omitempty"`
	Actions []Action `json:"actions"`
}

// Action pairs a recognized type with its schema-conforming payload. Metadata
// is display-only passthrough and never drives execution.
type Action struct {
	Type     string          `json:"type"`
	Payload  any             `json:"payload"`
	Metadata *ActionMetadata `json:"metadata,omitempty"`
}

type ActionMetadata struct {
	Title             string      `json:"title,omitempty"`
	Description       string      `json:"description,omitempty"`
	Priority          string      `json:"priority,omitempty"`
	Confidence        float64     `json:"confidence,omitempty"`
	NeedsConfirmation bool        `json:"needsConfirmation,omitempty"`
	Project           *ProjectRef `json:"project,omitempty"`
}

type CreateProjectPayload struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Stack        string            `json:"stack"`
	Priority     string            `json:"priority"`
	Tags         []string          `json:"tags"`
	Requirements []PlanRequirement `json:"requirements"`
}

type PlanRequirement struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
}

type CreateTasksPayload struct {
	Tasks       []PlanTask `json:"tasks"`
	ProjectID   *int64     `json:"projectId,omitempty"`
	ProjectName string     `json:"projectName,omitempty"`
}

type PlanTask struct {
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	GuidancePrompt        string   `json:"guidancePrompt"`
	AdditionalInformation string   `json:"additionalInformation,omitempty"`
	Todos                 []string `json:"todos"`
}

// UnmarshalJSON decodes the payload into the concrete shape for the action's
// type, so consumers can type-switch instead of digging through maps.
func (a *Action) UnmarshalJSON(data []byte) error {
	var head struct {
		Type     string          `json:"type"`
		Payload  json.RawMessage `json:"payload"`
		Metadata *ActionMetadata `json:"metadata"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	a.Type = head.Type
	a.Metadata = head.Metadata
	if len(head.Payload) == 0 {
		a.Payload = nil
		return nil
	}
	switch head.Type {
	case ActionCreateProject:
		var p CreateProjectPayload
		if err := json.Unmarshal(head.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", head.Type, err)
		}
		a.Payload = p
	case ActionCreateTasks:
		var p CreateTasksPayload
		if err := json.Unmarshal(head.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", head.Type, err)
		}
		a.Payload = p
	default:
		var p map[string]any
		if err := json.Unmarshal(head.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", head.Type, err)
		}
		a.Payload = p
	}
	return nil
}

// Defaults fill gaps the model left in a create_project payload.
type Defaults struct {
	Stack string
	Tags  []string
}

// Normalize reshapes a raw plan into the closed action schema. A nil raw plan,
// or one whose actions list was empty to begin with, yields nil.
func Normalize(raw *RawPlan, defaults Defaults) *Plan {
	if raw == nil || len(raw.Actions) == 0 {
		return nil
	}
	plan := &Plan{
		Version: PlanVersion,
		Summary: strings.TrimSpace(raw.Summary),
		Notes:   collectNotes(raw),
		Actions: []Action{},
	}
	for i := range raw.Actions {
		plan.Actions = append(plan.Actions, normalizeAction(&raw.Actions[i], defaults)...)
	}
	return plan
}

func normalizeAction(raw *RawAction, defaults Defaults) []Action {
	switch raw.Type {
	case ActionCreateProject:
		return normalizeCreateProject(raw, defaults)
	case ActionCreateTasks:
		return normalizeCreateTasks(raw)
	default:
		return nil
	}
}

func normalizeCreateProject(raw *RawAction, defaults Defaults) []Action {
	name := payloadString(raw.Payload, "name")
	description := payloadString(raw.Payload, "description")
	if description == "" {
		description = strings.TrimSpace(raw.Description)
	}
	if name == "" || description == "" {
		return nil
	}
	payload := CreateProjectPayload{
		Name:         name,
		Description:  description,
		Stack:        payloadString(raw.Payload, "stack"),
		Priority:     payloadString(raw.Payload, "priority"),
		Tags:         payloadStrings(raw.Payload, "tags"),
		Requirements: reshapeRequirements(raw.Payload["requirements"]),
	}
	if payload.Stack == "" {
		payload.Stack = defaults.Stack
	}
	if payload.Priority == "" {
		payload.Priority = PriorityMedium
	}
	if len(payload.Tags) == 0 {
		payload.Tags = append([]string(nil), defaults.Tags...)
	}
	actions := []Action{{Type: ActionCreateProject, Payload: payload, Metadata: actionMetadata(raw)}}
	// Tasks bundled into a create_project split off into their own action,
	// targeting the project about to be created (no id yet).
	if tasks := reshapeTasks(raw.Payload["tasks"]); len(tasks) > 0 {
		actions = append(actions, Action{
			Type:    ActionCreateTasks,
			Payload: CreateTasksPayload{Tasks: tasks, ProjectName: name},
		})
	}
	return actions
}

func normalizeCreateTasks(raw *RawAction) []Action {
	tasks := reshapeTasks(raw.Payload["tasks"])
	if len(tasks) == 0 {
		return nil
	}
	payload := CreateTasksPayload{Tasks: tasks}
	if id, ok := payloadInt(raw.Payload, "projectId"); ok {
		payload.ProjectID = &id
	} else if raw.Project != nil && raw.Project.ID != nil {
		id := *raw.Project.ID
		payload.ProjectID = &id
	}
	payload.ProjectName = payloadString(raw.Payload, "projectName")
	if payload.ProjectName == "" && raw.Project != nil {
		payload.ProjectName = strings.TrimSpace(raw.Project.Name)
	}
	return []Action{{Type: ActionCreateTasks, Payload: payload, Metadata: actionMetadata(raw)}}
}

func actionMetadata(raw *RawAction) *ActionMetadata {
	meta := ActionMetadata{
		Title:             strings.TrimSpace(raw.Title),
		Description:       strings.TrimSpace(raw.Description),
		Priority:          strings.TrimSpace(raw.Priority),
		Confidence:        raw.Confidence,
		NeedsConfirmation: raw.NeedsConfirmation,
		Project:           raw.Project,
	}
	if meta == (ActionMetadata{}) {
		return nil
	}
	return &meta
}

func reshapeRequirements(v any) []PlanRequirement {
	entries, ok := v.([]any)
	if !ok {
		return []PlanRequirement{}
	}
	res := []PlanRequirement{}
	for _, entry := range entries {
		switch e := entry.(type) {
		case string:
			s := strings.TrimSpace(e)
			if s == "" {
				continue
			}
			res = append(res, PlanRequirement{
				Title:       firstRunes(s, maxRequirementTitleLen),
				Description: s,
				Type:        "Funcional",
				Category:    InferCategory(s),
				Priority:    PriorityMedium,
			})
		case map[string]any:
			title := payloadString(e, "title")
			if title == "" {
				title = payloadString(e, "name")
			}
			description := payloadString(e, "description")
			if description == "" {
				description = payloadString(e, "details")
			}
			if title == "" && description != "" {
				title = description
			}
			if title == "" {
				continue
			}
			if description == "" {
				description = title
			}
			reqType := payloadString(e, "type")
			if reqType == "" {
				reqType = "Funcional"
			}
			category := payloadString(e, "category")
			if category == "" {
				category = InferCategory(description)
			}
			priority := payloadString(e, "priority")
			if priority == "" {
				priority = PriorityMedium
			}
			res = append(res, PlanRequirement{
				Title:       firstRunes(title, maxRequirementTitleLen),
				Description: description,
				Type:        reqType,
				Category:    category,
				Priority:    priority,
			})
		}
	}
	return res
}

func reshapeTasks(v any) []PlanTask {
	entries, ok := v.([]any)
	if !ok {
		return nil
	}
	var res []PlanTask
	for _, entry := range entries {
		switch e := entry.(type) {
		case string:
			s := strings.TrimSpace(e)
			if s == "" {
				continue
			}
			res = append(res, PlanTask{
				Title:          firstRunes(s, maxTaskTitleLen),
				Description:    s,
				GuidancePrompt: s,
				Todos:          []string{},
			})
		case map[string]any:
			title := payloadString(e, "title")
			if title == "" {
				title = payloadString(e, "name")
			}
			description := payloadString(e, "description")
			if description == "" {
				description = payloadString(e, "details")
			}
			if title == "" && description != "" {
				title = description
			}
			if title == "" {
				continue
			}
			if description == "" {
				description = title
			}
			guidance := payloadString(e, "guidancePrompt")
			if guidance == "" {
				guidance = description
			}
			res = append(res, PlanTask{
				Title:                 firstRunes(title, maxTaskTitleLen),
				Description:           description,
				GuidancePrompt:        guidance,
				AdditionalInformation: payloadString(e, "additionalInformation"),
				Todos:                 reshapeTodos(e["todos"]),
			})
		}
	}
	return res
}

func reshapeTodos(v any) []string {
	entries, ok := v.([]any)
	if !ok {
		return []string{}
	}
	res := []string{}
	for _, entry := range entries {
		switch e := entry.(type) {
		case string:
			if s := strings.TrimSpace(e); s != "" {
				res = append(res, s)
			}
		case map[string]any:
			for _, key := range []string{"description", "title", "name"} {
				if s := payloadString(e, key); s != "" {
					res = append(res, s)
					break
				}
			}
		}
	}
	return res
}

// collectNotes turns advisory fields into at most one note per source.
func collectNotes(raw *RawPlan) []string {
	var notes []string
	if focus := strings.TrimSpace(raw.ProjectFocus); focus != "" {
		notes = append(notes, "Foco atual: "+focus)
	}
	if joined := joinNonEmpty(raw.MissingInfo); joined != "" {
		notes = append(notes, "Informações pendentes: "+joined)
	}
	if joined := joinNonEmpty(raw.Risks); joined != "" {
		notes = append(notes, "Riscos: "+joined)
	}
	if joined := joinNonEmpty(raw.FollowUpQuestions); joined != "" {
		notes = append(notes, "Próximos passos sugeridos: "+joined)
	}
	return notes
}

func joinNonEmpty(items []string) string {
	var kept []string
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "; ")
}

func payloadString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func payloadStrings(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	entries, ok := m[key].([]any)
	if !ok {
		return nil
	}
	var res []string
	for _, entry := range entries {
		if s, ok := entry.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				res = append(res, s)
			}
		}
	}
	return res
}

func payloadInt(m map[string]any, key string) (int64, bool) {
	if m == nil {
		return 0, false
	}
	switch n := m[key].(type) {
	case float64:
		return int64(n), true
	case json.Number:
		if v, err := n.Int64(); err == nil {
			return v, true
		}
	}
	return 0, false
}

// firstRunes cuts at a rune boundary so multi-byte text never splits
// mid-character.
func firstRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
