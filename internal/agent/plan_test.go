package agent

import (
	"encoding/json"
	"strings"
	"testing"
)

var testDefaults = Defaults{
	Stack: "Next.js, TypeScript, Prisma e PostgreSQL",
	Tags:  []string{"web", "mvp"},
}

func TestNormalizeNilAndEmpty(t *testing.T) {
	if Normalize(nil, testDefaults) != nil {
		t.Fatalf("nil raw should give nil plan")
	}
	raw := &RawPlan{Summary: "nada a fazer", MissingInfo: []string{"objetivo"}}
	if Normalize(raw, testDefaults) != nil {
		t.Fatalf("empty actions should give nil plan")
	}
}

func TestNormalizeCreateProjectDefaults(t *testing.T) {
	raw := &RawPlan{
		Summary: "Criar loja virtual",
		Actions: []RawAction{{
			Type: ActionCreateProject,
			Payload: map[string]any{
				"name":        "Loja Virtual",
				"description": "E-commerce de roupas",
			},
		}},
	}
	plan := Normalize(raw, testDefaults)
	if plan == nil || len(plan.Actions) != 1 {
		t.Fatalf("plan = %+v", plan)
	}
	if plan.Version != PlanVersion {
		t.Fatalf("version = %d", plan.Version)
	}
	payload := plan.Actions[0].Payload.(CreateProjectPayload)
	if payload.Stack != testDefaults.Stack {
		t.Fatalf("stack not defaulted: %q", payload.Stack)
	}
	if payload.Priority != PriorityMedium {
		t.Fatalf("priority not defaulted: %q", payload.Priority)
	}
	if len(payload.Tags) != 2 || payload.Tags[0] != "web" {
		t.Fatalf("tags not defaulted: %v", payload.Tags)
	}
	if payload.Requirements == nil || len(payload.Requirements) != 0 {
		t.Fatalf("requirements should be empty slice, got %v", payload.Requirements)
	}
}

func TestNormalizeCreateProjectDescriptionFallback(t *testing.T) {
	raw := &RawPlan{Actions: []RawAction{{
		Type:        ActionCreateProject,
		Description: "Sistema de agendamento para clínicas",
		Payload:     map[string]any{"name": "Agenda Clínica"},
	}}}
	plan := Normalize(raw, testDefaults)
	if plan == nil || len(plan.Actions) != 1 {
		t.Fatalf("plan = %+v", plan)
	}
	payload := plan.Actions[0].Payload.(CreateProjectPayload)
	if payload.Description != "Sistema de agendamento para clínicas" {
		t.Fatalf("description = %q", payload.Description)
	}
}

func TestNormalizeCreateProjectMissingFieldsDropped(t *testing.T) {
	raw := &RawPlan{Actions: []RawAction{
		{Type: ActionCreateProject, Payload: map[string]any{"description": "sem nome"}},
		{Type: ActionCreateProject, Payload: map[string]any{"name": "sem descrição"}},
	}}
	plan := Normalize(raw, testDefaults)
	if plan == nil {
		t.Fatalf("plan should exist even when all actions drop")
	}
	if len(plan.Actions) != 0 {
		t.Fatalf("incomplete actions should drop, got %+v", plan.Actions)
	}
}

func TestNormalizeUnknownTypesDropped(t *testing.T) {
	raw := &RawPlan{Actions: []RawAction{
		{Type: "update_project", Payload: map[string]any{"projectId": float64(1)}},
		{Type: "review_project"},
		{Type: "none"},
	}}
	plan := Normalize(raw, testDefaults)
	if plan == nil || len(plan.Actions) != 0 {
		t.Fatalf("advisory types must not become executable actions: %+v", plan)
	}
}

func TestNormalizeBundledTasksSplit(t *testing.T) {
	raw := &RawPlan{Actions: []RawAction{{
		Type: ActionCreateProject,
		Payload: map[string]any{
			"name":        "Blog",
			"description": "Blog pessoal",
			"tasks": []any{
				"Configurar ambiente",
				map[string]any{"title": "Criar layout", "todos": []any{"header", "footer"}},
			},
		},
	}}}
	plan := Normalize(raw, testDefaults)
	if plan == nil || len(plan.Actions) != 2 {
		t.Fatalf("expected split into two actions, got %+v", plan)
	}
	if plan.Actions[0].Type != ActionCreateProject || plan.Actions[1].Type != ActionCreateTasks {
		t.Fatalf("action order wrong: %s, %s", plan.Actions[0].Type, plan.Actions[1].Type)
	}
	tasks := plan.Actions[1].Payload.(CreateTasksPayload)
	if tasks.ProjectID != nil {
		t.Fatalf("split tasks must not carry a project id yet")
	}
	if tasks.ProjectName != "Blog" {
		t.Fatalf("projectName = %q", tasks.ProjectName)
	}
	if len(tasks.Tasks) != 2 {
		t.Fatalf("tasks = %+v", tasks.Tasks)
	}
	if tasks.Tasks[0].GuidancePrompt != "Configurar ambiente" {
		t.Fatalf("string task guidance = %q", tasks.Tasks[0].GuidancePrompt)
	}
	if len(tasks.Tasks[1].Todos) != 2 {
		t.Fatalf("todos = %v", tasks.Tasks[1].Todos)
	}
}

func TestNormalizeCreateTasksProjectID(t *testing.T) {
	id := int64(7)
	cases := []struct {
		name string
		raw  RawAction
	}{
		{"from payload", RawAction{
			Type:    ActionCreateTasks,
			Payload: map[string]any{"projectId": float64(7), "tasks": []any{"t1"}},
		}},
		{"from project ref", RawAction{
			Type:    ActionCreateTasks,
			Project: &ProjectRef{ID: &id, Status: "existente"},
			Payload: map[string]any{"tasks": []any{"t1"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan := Normalize(&RawPlan{Actions: []RawAction{tc.raw}}, testDefaults)
			if plan == nil || len(plan.Actions) != 1 {
				t.Fatalf("plan = %+v", plan)
			}
			payload := plan.Actions[0].Payload.(CreateTasksPayload)
			if payload.ProjectID == nil || *payload.ProjectID != 7 {
				t.Fatalf("projectId = %v", payload.ProjectID)
			}
		})
	}
}

func TestNormalizeCreateTasksEmptyDropped(t *testing.T) {
	raw := &RawPlan{Actions: []RawAction{{
		Type:    ActionCreateTasks,
		Payload: map[string]any{"projectId": float64(1), "tasks": []any{}},
	}}}
	plan := Normalize(raw, testDefaults)
	if plan == nil || len(plan.Actions) != 0 {
		t.Fatalf("empty task list should drop the action: %+v", plan)
	}
}

func TestReshapeRequirementsFromStrings(t *testing.T) {
	long := strings.Repeat("a", 150)
	raw := &RawPlan{Actions: []RawAction{{
		Type: ActionCreateProject,
		Payload: map[string]any{
			"name":        "P",
			"description": "D",
			"requirements": []any{
				"Sistema de login de usuário",
				long,
				"",
			},
		},
	}}}
	plan := Normalize(raw, testDefaults)
	payload := plan.Actions[0].Payload.(CreateProjectPayload)
	if len(payload.Requirements) != 2 {
		t.Fatalf("requirements = %+v", payload.Requirements)
	}
	first := payload.Requirements[0]
	if first.Title != "Sistema de login de usuário" {
		t.Fatalf("title = %q", first.Title)
	}
	if first.Type != "Funcional" || first.Priority != PriorityMedium {
		t.Fatalf("defaults missing: %+v", first)
	}
	if first.Category != "Autenticação" {
		t.Fatalf("category = %q", first.Category)
	}
	second := payload.Requirements[1]
	if len([]rune(second.Title)) != 100 {
		t.Fatalf("long title should cut at 100 runes, got %d", len([]rune(second.Title)))
	}
	if strings.HasSuffix(second.Title, ellipsis) {
		t.Fatalf("titles are cut without ellipsis")
	}
	if second.Description != long {
		t.Fatalf("full text must survive in description")
	}
}

func TestReshapeRequirementsFromObjects(t *testing.T) {
	raw := &RawPlan{Actions: []RawAction{{
		Type: ActionCreateProject,
		Payload: map[string]any{
			"name":        "P",
			"description": "D",
			"requirements": []any{
				map[string]any{"name": "Exportar relatórios", "details": "Exportação em PDF"},
				map[string]any{"description": "Só descrição"},
				map[string]any{},
			},
		},
	}}}
	plan := Normalize(raw, testDefaults)
	payload := plan.Actions[0].Payload.(CreateProjectPayload)
	if len(payload.Requirements) != 2 {
		t.Fatalf("requirements = %+v", payload.Requirements)
	}
	if payload.Requirements[0].Title != "Exportar relatórios" {
		t.Fatalf("name key should feed title: %+v", payload.Requirements[0])
	}
	if payload.Requirements[0].Description != "Exportação em PDF" {
		t.Fatalf("details key should feed description: %+v", payload.Requirements[0])
	}
	if payload.Requirements[0].Category != "Relatórios" {
		t.Fatalf("category inferred from description: %+v", payload.Requirements[0])
	}
	if payload.Requirements[1].Title != "Só descrição" || payload.Requirements[1].Description != "Só descrição" {
		t.Fatalf("description-only entry: %+v", payload.Requirements[1])
	}
}

func TestReshapeTaskTitleLimit(t *testing.T) {
	long := strings.Repeat("é", 90)
	raw := &RawPlan{Actions: []RawAction{{
		Type:    ActionCreateTasks,
		Payload: map[string]any{"projectId": float64(1), "tasks": []any{long}},
	}}}
	plan := Normalize(raw, testDefaults)
	task := plan.Actions[0].Payload.(CreateTasksPayload).Tasks[0]
	if got := len([]rune(task.Title)); got != 80 {
		t.Fatalf("task title should cut at 80 runes, got %d", got)
	}
	if task.Description != long {
		t.Fatalf("description keeps the full text")
	}
}

func TestReshapeTodosMixedShapes(t *testing.T) {
	raw := &RawPlan{Actions: []RawAction{{
		Type: ActionCreateTasks,
		Payload: map[string]any{
			"projectId": float64(1),
			"tasks": []any{map[string]any{
				"title": "Tarefa",
				"todos": []any{
					"texto simples",
					map[string]any{"description": "por descrição"},
					map[string]any{"title": "por título"},
					map[string]any{"name": "por nome"},
					map[string]any{"other": "ignorado"},
					"  ",
				},
			}},
		},
	}}}
	plan := Normalize(raw, testDefaults)
	todos := plan.Actions[0].Payload.(CreateTasksPayload).Tasks[0].Todos
	want := []string{"texto simples", "por descrição", "por título", "por nome"}
	if len(todos) != len(want) {
		t.Fatalf("todos = %v", todos)
	}
	for i := range want {
		if todos[i] != want[i] {
			t.Fatalf("todos[%d] = %q, want %q", i, todos[i], want[i])
		}
	}
}

func TestCollectNotes(t *testing.T) {
	raw := &RawPlan{
		ProjectFocus:      "Loja Virtual",
		MissingInfo:       []string{"prazo", " ", "orçamento"},
		Risks:             []string{},
		FollowUpQuestions: []string{"Qual o público-alvo?"},
		Actions:           []RawAction{{Type: "none"}},
	}
	plan := Normalize(raw, testDefaults)
	want := []string{
		"Foco atual: Loja Virtual",
		"Informações pendentes: prazo; orçamento",
		"Próximos passos sugeridos: Qual o público-alvo?",
	}
	if len(plan.Notes) != len(want) {
		t.Fatalf("notes = %v", plan.Notes)
	}
	for i := range want {
		if plan.Notes[i] != want[i] {
			t.Fatalf("notes[%d] = %q, want %q", i, plan.Notes[i], want[i])
		}
	}
}

func TestActionMetadataPassthrough(t *testing.T) {
	raw := &RawPlan{Actions: []RawAction{{
		Type:              ActionCreateProject,
		Title:             "Criar projeto",
		Priority:          PriorityHigh,
		Confidence:        0.9,
		NeedsConfirmation: true,
		Payload:           map[string]any{"name": "X", "description": "Y"},
	}}}
	plan := Normalize(raw, testDefaults)
	meta := plan.Actions[0].Metadata
	if meta == nil {
		t.Fatalf("metadata missing")
	}
	if meta.Title != "Criar projeto" || meta.Priority != PriorityHigh || !meta.NeedsConfirmation {
		t.Fatalf("metadata = %+v", meta)
	}
}

// A normalized plan re-read as a raw plan and normalized again must not
// change: second-pass truncation and defaulting are no-ops.
func TestNormalizeIdempotent(t *testing.T) {
	raw := &RawPlan{
		Summary: "Plano completo",
		Actions: []RawAction{{
			Type: ActionCreateProject,
			Payload: map[string]any{
				"name":         "Loja",
				"description":  "E-commerce",
				"requirements": []any{"Sistema de login", strings.Repeat("r", 120)},
				"tasks":        []any{"Configurar CI", map[string]any{"title": "Modelar banco de dados", "todos": []any{"tabelas"}}},
			},
		}},
	}
	first := Normalize(raw, testDefaults)
	if first == nil {
		t.Fatalf("first pass gave nil")
	}
	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var roundTrip RawPlan
	if err := json.Unmarshal(firstJSON, &roundTrip); err != nil {
		t.Fatalf("re-read as raw plan: %v", err)
	}
	second := Normalize(&roundTrip, testDefaults)
	secondJSON, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal second: %v", err)
	}
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("normalization not idempotent:\nfirst:  %s\nsecond: %s", firstJSON, secondJSON)
	}
}

func TestActionUnmarshalTypedPayloads(t *testing.T) {
	data := []byte(`{"type":"create_project","payload":{"name":"X","description":"Y","tags":["web"]}}`)
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	payload, ok := a.Payload.(CreateProjectPayload)
	if !ok {
		t.Fatalf("payload type %T", a.Payload)
	}
	if payload.Name != "X" || len(payload.Tags) != 1 {
		t.Fatalf("payload = %+v", payload)
	}

	data = []byte(`{"type":"create_tasks","payload":{"projectId":3,"tasks":[{"title":"t","todos":[]}]}}`)
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	tp, ok := a.Payload.(CreateTasksPayload)
	if !ok {
		t.Fatalf("payload type %T", a.Payload)
	}
	if tp.ProjectID == nil || *tp.ProjectID != 3 || len(tp.Tasks) != 1 {
		t.Fatalf("payload = %+v", tp)
	}

	data = []byte(`{"type":"review_project","payload":{"note":"x"}}`)
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal other: %v", err)
	}
	if _, ok := a.Payload.(map[string]any); !ok {
		t.Fatalf("unknown type payload should stay a map, got %T", a.Payload)
	}
}

func TestFirstRunesBoundary(t *testing.T) {
	exact := strings.Repeat("ç", 100)
	if got := firstRunes(exact, 100); got != exact {
		t.Fatalf("exact-length string must pass unchanged")
	}
	cut := firstRunes(exact+"x", 100)
	if cut != exact {
		t.Fatalf("cut = %q", cut)
	}
}
