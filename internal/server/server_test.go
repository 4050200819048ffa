package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"blueprint/internal/agent"
	"blueprint/internal/config"
	"blueprint/internal/db"
	"blueprint/internal/engine"
	"blueprint/internal/migrate"
)

type stubClient struct {
	reply string
}

func (s stubClient) Complete(ctx context.Context, req agent.CompletionRequest) (agent.Completion, error) {
	return agent.Completion{Text: s.reply, Usage: &agent.Usage{InputTokens: 10, OutputTokens: 5}}, nil
}

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Close() { s.close() }

func newTestServer(t *testing.T, reply string) *testServer {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	var pipeline *agent.Pipeline
	if reply != "" {
		pipeline = agent.New(stubClient{reply: reply}, e.Repo, cfg, nil)
	}
	handler, err := New(Config{
		Engine:   e,
		Agent:    pipeline,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:       "test-secret",
			AllowUserHeader: true,
			EnableDevLogin:  true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asUser(userID string) map[string]string {
	return map[string]string{"X-User-Id": userID}
}

func TestHealthOpen(t *testing.T) {
	ts := newTestServer(t, "")
	res, body := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%s", res.StatusCode, body)
	}
}

func TestUnauthorizedWithoutCredentials(t *testing.T) {
	ts := newTestServer(t, "")
	res, body := doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d body=%s", res.StatusCode, body)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, body)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
}

func TestDevLoginAndJWTAuth(t *testing.T) {
	ts := newTestServer(t, "")
	res, body := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/auth/dev/login", map[string]string{"user_id": "u1"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status = %d body=%s", res.StatusCode, body)
	}
	var login DevLoginResponse
	if err := json.Unmarshal(body, &login); err != nil || login.Token == "" {
		t.Fatalf("login = %s, err %v", body, err)
	}
	res, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/projects", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("authed list status = %d body=%s", res.StatusCode, body)
	}
}

func TestProjectCRUDFlow(t *testing.T) {
	ts := newTestServer(t, "")
	res, body := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/projects", CreateProjectRequest{
		Name: "Loja Virtual",
		Requirements: []CreateRequirementRequest{
			{Title: "Login de usuário"},
		},
	}, asUser("u1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", res.StatusCode, body)
	}
	var created struct {
		ID       int64    `json:"id"`
		Status   string   `json:"status"`
		Priority string   `json:"priority"`
		Tags     []string `json:"tags"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	if created.Status != "planejamento" || created.Priority != "Média" {
		t.Fatalf("created = %+v", created)
	}

	res, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/projects", nil, asUser("u1"))
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "Loja Virtual") {
		t.Fatalf("list = %d %s", res.StatusCode, body)
	}

	// Another user sees nothing and cannot fetch it.
	res, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/projects/1", nil, asUser("u2"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-user get = %d %s", res.StatusCode, body)
	}

	status := "em_andamento"
	progress := 30
	res, body = doJSON(t, ts.client, http.MethodPatch, ts.URL+"/v1/projects/1", UpdateProjectRequest{
		Status: &status, Progress: &progress,
	}, asUser("u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch = %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/projects/1/status", nil, asUser("u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d %s", res.StatusCode, body)
	}
	var statusResp ProjectStatusResponse
	if err := json.Unmarshal(body, &statusResp); err != nil {
		t.Fatalf("decode status: %v (%s)", err, body)
	}
	if statusResp.Project.Status != "em_andamento" || statusResp.Project.Progress != 30 {
		t.Fatalf("status project = %+v", statusResp.Project)
	}

	res, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/projects/1/requirements", nil, asUser("u1"))
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "Autenticação") {
		t.Fatalf("requirements = %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, ts.client, http.MethodDelete, ts.URL+"/v1/projects/1", nil, asUser("u1"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete = %d %s", res.StatusCode, body)
	}
}

func TestTasksAndTodos(t *testing.T) {
	ts := newTestServer(t, "")
	res, body := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/projects", CreateProjectRequest{Name: "Blog"}, asUser("u1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project = %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/projects/1/tasks", CreateTasksRequest{
		Tasks: []CreateTaskRequest{
			{Title: "Configurar CI", Todos: []string{"workflow", "badge"}},
		},
	}, asUser("u1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create tasks = %d %s", res.StatusCode, body)
	}
	var tasks []struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &tasks); err != nil || len(tasks) != 1 {
		t.Fatalf("tasks = %s, err %v", body, err)
	}
	if tasks[0].Status != "pendente" {
		t.Fatalf("status = %q", tasks[0].Status)
	}

	res, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/projects/1/tasks", nil, asUser("u1"))
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), `"total_todos":2`) {
		t.Fatalf("list tasks = %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, ts.client, http.MethodPatch, ts.URL+"/v1/tasks/1", UpdateTaskRequest{Status: "em_andamento"}, asUser("u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch task = %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/tasks/1/todos", nil, asUser("u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list todos = %d %s", res.StatusCode, body)
	}
	var todos []struct {
		ID   int64 `json:"id"`
		Done bool  `json:"done"`
	}
	if err := json.Unmarshal(body, &todos); err != nil || len(todos) != 2 {
		t.Fatalf("todos = %s, err %v", body, err)
	}

	res, body = doJSON(t, ts.client, http.MethodPatch, ts.URL+"/v1/tasks/1/todos/1", UpdateTodoRequest{Done: true}, asUser("u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch todo = %d %s", res.StatusCode, body)
	}

	res, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/projects/1/tasks", nil, asUser("u1"))
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), `"pending_todos":1`) {
		t.Fatalf("counts after done = %d %s", res.StatusCode, body)
	}
}

func TestArchitectChatAndApply(t *testing.T) {
	reply := `Proposta pronta.

<agent_plan>{"summary":"Criar projeto","actions":[{"type":"create_project","payload":{"name":"Agenda","description":"Agendamento de consultas","requirements":["Cadastro de pacientes"]}}]}</agent_plan>`
	ts := newTestServer(t, reply)

	res, body := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/architect/chat", ChatRequest{
		Messages: []agent.Message{{Role: agent.RoleUser, Content: "Quero uma agenda de consultas"}},
	}, asUser("u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("chat = %d %s", res.StatusCode, body)
	}
	var chat ChatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		t.Fatalf("decode chat: %v (%s)", err, body)
	}
	if chat.TurnID == "" {
		t.Fatalf("missing turn id")
	}
	if chat.Usage == nil || chat.Usage.InputTokens != 10 {
		t.Fatalf("usage = %+v", chat.Usage)
	}
	plan, ok := agent.ParsePlanBlock(chat.Content)
	if !ok || len(plan.Actions) != 1 {
		t.Fatalf("no executable plan in content: %q", chat.Content)
	}

	actionJSON, err := json.Marshal(plan.Actions[0])
	if err != nil {
		t.Fatalf("marshal action: %v", err)
	}
	res, body = doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/architect/actions", json.RawMessage(actionJSON), asUser("u1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("apply = %d %s", res.StatusCode, body)
	}
	var result engine.ApplyResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode apply: %v (%s)", err, body)
	}
	if result.Project == nil || result.Project.Name != "Agenda" {
		t.Fatalf("apply result = %+v", result)
	}

	res, body = doJSON(t, ts.client, http.MethodGet, ts.URL+"/v1/events?type=architect.chat", nil, asUser("u1"))
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), chat.TurnID) {
		t.Fatalf("chat event missing: %d %s", res.StatusCode, body)
	}
}

func TestArchitectChatUnconfigured(t *testing.T) {
	ts := newTestServer(t, "")
	res, body := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/architect/chat", ChatRequest{
		Messages: []agent.Message{{Role: agent.RoleUser, Content: "oi"}},
	}, asUser("u1"))
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d %s", res.StatusCode, body)
	}
}

func TestApplyActionRejectsAdvisoryType(t *testing.T) {
	ts := newTestServer(t, "")
	res, body := doJSON(t, ts.client, http.MethodPost, ts.URL+"/v1/architect/actions", map[string]any{
		"type":    "review_project",
		"payload": map[string]any{"note": "depois"},
	}, asUser("u1"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d %s", res.StatusCode, body)
	}
	if !strings.Contains(string(body), "action_not_executable") {
		t.Fatalf("body = %s", body)
	}
}

func TestHandleErrorStorageRead(t *testing.T) {
	cause := &agent.StorageError{Op: "projects for u1", Err: fmt.Errorf("database is closed")}
	apiErr := handleError(cause)
	if apiErr.GetStatus() != http.StatusInternalServerError {
		t.Fatalf("status = %d", apiErr.GetStatus())
	}
	envelope, ok := apiErr.(*apiError)
	if !ok {
		t.Fatalf("error type = %T", apiErr)
	}
	if envelope.Body.Code != "storage_error" {
		t.Fatalf("code = %q", envelope.Body.Code)
	}
	if envelope.Body.Details["op"] != "projects for u1" {
		t.Fatalf("details = %v", envelope.Body.Details)
	}
	if strings.Contains(envelope.Body.Message, "database is closed") {
		t.Fatalf("cause leaked into message: %q", envelope.Body.Message)
	}
}
