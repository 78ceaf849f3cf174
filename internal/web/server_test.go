package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mpontes/lexgate/internal/config"
	"github.com/mpontes/lexgate/internal/dispatch"
	"github.com/mpontes/lexgate/internal/llmproxy"
	"github.com/mpontes/lexgate/internal/store"
	"github.com/mpontes/lexgate/internal/task"
	"github.com/mpontes/lexgate/internal/worker"
)

type fakeAnalyzer struct {
	response string
	calls    int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, text, taskContext string) (string, error) {
	f.calls++
	return f.response, nil
}

const analyzerJSON = `{"summary":"Intimação para contestar","suggestedActions":["Elaborar contestação"],"priority":"high","deadline":{"days":15,"type":"úteis"},"documentType":"Intimação","nextSteps":["Revisar processo"]}`

func newTestServer(t *testing.T, cfg config.WebConfig) (*Server, *store.Store) {
	t.Helper()

	st, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	workerCfg := config.WorkerConfig{
		PollInterval:  time.Second,
		TaskTimeout:   5 * time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}
	d := dispatch.New(&fakeAnalyzer{response: analyzerJSON})
	w := worker.New(st, d, nil, workerCfg)

	return NewServer(st, nil, w, d, llmproxy.NewGateway(nil, nil), cfg, workerCfg, "test"), st
}

func longText() string {
	return strings.Repeat("Intimação judicial para manifestação nos autos. ", 3)
}

func analysisTask(id string) task.Task {
	data, _ := json.Marshal(task.AnalysisPayload{
		Text:          longText(),
		ProcessNumber: "0001234-56.2026.8.26.0100",
		Tribunal:      "TJSP",
	})
	return task.Task{
		ID:      id,
		AgentID: "intimation-analyst",
		Type:    task.TypeAnalyzeIntimation,
		Data:    data,
	}
}

func TestProcessTaskValidation(t *testing.T) {
	srv, _ := newTestServer(t, config.WebConfig{})
	handler := srv.routes()

	body := `{"task":{"id":"t1","type":"analyze_intimation"},"agent":{"id":"a1","name":"A"}}`
	req := httptest.NewRequest("POST", "/api/tasks/process", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["error"] != "invalid task" {
		t.Errorf("error = %q, want %q", resp["error"], "invalid task")
	}
	if !strings.Contains(resp["details"], "agentId") {
		t.Errorf("details = %q, want mention of agentId", resp["details"])
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	srv, _ := newTestServer(t, config.WebConfig{})
	handler := srv.routes()

	payload := map[string]any{
		"task":  analysisTask("t1"),
		"agent": task.Agent{ID: "intimation-analyst", Name: "Analista", Enabled: true},
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", "/api/tasks/process", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success     bool                `json:"success"`
		TaskID      string              `json:"taskId"`
		AgentID     string              `json:"agentId"`
		Result      task.AnalysisResult `json:"result"`
		ProcessedAt string              `json:"processedAt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("success = false: %+v", resp.Result)
	}
	if resp.TaskID != "t1" || resp.AgentID != "intimation-analyst" {
		t.Errorf("ids = %q/%q", resp.TaskID, resp.AgentID)
	}
	if resp.Result.Data == nil || resp.Result.Data.Summary != "Intimação para contestar" {
		t.Errorf("unexpected result data: %+v", resp.Result.Data)
	}
	if resp.ProcessedAt == "" {
		t.Error("processedAt missing")
	}
}

func TestQueueActionRouting(t *testing.T) {
	srv, st := newTestServer(t, config.WebConfig{})
	handler := srv.routes()

	// invalid action
	req := httptest.NewRequest("GET", "/api/queue?action=flush", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid action status = %d, want 400", rec.Code)
	}

	// enqueue
	body, _ := json.Marshal(analysisTask("t1"))
	req = httptest.NewRequest("POST", "/api/queue?action=enqueue", strings.NewReader(string(body)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("enqueue status = %d: %s", rec.Code, rec.Body.String())
	}

	// status reflects the queued task
	req = httptest.NewRequest("GET", "/api/queue?action=status", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var status struct {
		Queued    int `json:"queued"`
		Completed int `json:"completed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Queued != 1 || status.Completed != 0 {
		t.Fatalf("status = %+v, want 1 queued", status)
	}

	// process-queue runs one worker cycle
	req = httptest.NewRequest("POST", "/api/queue?action=process-queue", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var processed struct {
		Processed int                  `json:"processed"`
		Result    *task.AnalysisResult `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &processed); err != nil {
		t.Fatalf("decode process response: %v", err)
	}
	if processed.Processed != 1 {
		t.Fatalf("processed = %d, want 1", processed.Processed)
	}
	if processed.Result == nil || !processed.Result.Success {
		t.Fatalf("result = %+v, want success", processed.Result)
	}

	counts, err := st.CountTasks()
	if err != nil {
		t.Fatalf("CountTasks: %v", err)
	}
	if counts.Queued != 0 || counts.Completed != 1 {
		t.Fatalf("counts = %+v, want task archived", counts)
	}
}

func TestQueueComplete(t *testing.T) {
	srv, st := newTestServer(t, config.WebConfig{})
	handler := srv.routes()

	tk := analysisTask("t1")
	if err := st.Enqueue(&tk); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	body := `{"id":"t1","error":"processado externamente"}`
	req := httptest.NewRequest("POST", "/api/queue?action=complete", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete status = %d: %s", rec.Code, rec.Body.String())
	}

	done, err := st.GetCompleted("t1")
	if err != nil {
		t.Fatalf("GetCompleted: %v", err)
	}
	if done == nil || done.Status != task.StatusFailed {
		t.Fatalf("completed task = %+v, want failed status", done)
	}

	// unknown id
	req = httptest.NewRequest("POST", "/api/queue?action=complete", strings.NewReader(`{"id":"nope"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d, want 404", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, st := newTestServer(t, config.WebConfig{})
	handler := srv.routes()

	if err := st.SaveAgent(&task.Agent{ID: "a1", Name: "Analista", Enabled: true}); err != nil {
		t.Fatalf("SaveAgent: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status           string `json:"status"`
		Version          string `json:"version"`
		AgentsConfigured int    `json:"agentsConfigured"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "test" || resp.AgentsConfigured != 1 {
		t.Fatalf("unexpected status payload: %+v", resp)
	}
}

func TestAgentEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, config.WebConfig{})
	handler := srv.routes()

	body := `{"id":"a1","name":"Analista","type":"analyzer","enabled":true}`
	req := httptest.NewRequest("POST", "/api/agents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("save agent status = %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest("POST", "/api/agents/a1/toggle", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var a task.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode toggle: %v", err)
	}
	if a.Enabled {
		t.Error("agent still enabled after toggle")
	}

	req = httptest.NewRequest("GET", "/api/agents", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var agents []task.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &agents); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(agents) != 1 || agents[0].ID != "a1" {
		t.Fatalf("agents = %+v", agents)
	}

	req = httptest.NewRequest("DELETE", "/api/agents/a1", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, config.WebConfig{Auth: "secret"})
	handler := srv.routes()

	// Unauthenticated API call
	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	// Wrong password
	req = httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"password":"wrong"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", rec.Code)
	}

	// Login, then reuse the session cookie
	req = httptest.NewRequest("POST", "/api/login", strings.NewReader(`{"password":"secret"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie set")
	}

	req = httptest.NewRequest("GET", "/api/status", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("session status = %d, want 200", rec.Code)
	}

	// Basic auth works without a session
	req = httptest.NewRequest("GET", "/api/status", nil)
	req.SetBasicAuth("", "secret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("basic auth status = %d, want 200", rec.Code)
	}
}

func TestCORSPreflights(t *testing.T) {
	srv, _ := newTestServer(t, config.WebConfig{Auth: "secret"})
	handler := srv.routes()

	req := httptest.NewRequest("OPTIONS", "/api/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}
}

// sseFrames splits an SSE body into its decoded events.
func sseFrames(t *testing.T, body string) []llmproxy.Event {
	t.Helper()
	var events []llmproxy.Event
	for _, frame := range strings.Split(body, "\n\n") {
		frame = strings.TrimSpace(frame)
		if frame == "" {
			continue
		}
		if !strings.HasPrefix(frame, "data: ") {
			t.Fatalf("malformed SSE frame: %q", frame)
		}
		var ev llmproxy.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &ev); err != nil {
			t.Fatalf("decode frame %q: %v", frame, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestLLMStreamSSE(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Olá\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" mundo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t, config.WebConfig{})
	srv.gateway = llmproxy.FromConfig(config.ProvidersConfig{
		OpenAI: config.OpenAIConfig{
			APIKey:       "sk-test",
			BaseURL:      upstream.URL,
			DefaultModel: "gpt-4o-mini",
			Timeout:      5 * time.Second,
		},
	}, nil)
	handler := srv.routes()

	body := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"Oi"}]}`
	req := httptest.NewRequest("POST", "/api/llm/stream", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	events := sseFrames(t, rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(events), events)
	}
	if events[0].Content != "Olá" || events[1].Content != " mundo" {
		t.Errorf("content events = %+v", events[:2])
	}

	terminals := 0
	for _, ev := range events {
		if ev.Type == llmproxy.EventDone || ev.Type == llmproxy.EventError {
			terminals++
		}
	}
	if terminals != 1 {
		t.Fatalf("terminal events = %d, want exactly 1", terminals)
	}
	last := events[len(events)-1]
	if last.Type != llmproxy.EventDone || last.Provider != "OpenAI" {
		t.Errorf("final event = %+v", last)
	}
}

func TestLLMStreamValidation(t *testing.T) {
	srv, _ := newTestServer(t, config.WebConfig{})
	handler := srv.routes()

	req := httptest.NewRequest("POST", "/api/llm/stream", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	events := sseFrames(t, rec.Body.String())
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(events), events)
	}
	if events[0].Type != llmproxy.EventError || events[0].Message != "Messages array is required" {
		t.Errorf("event = %+v", events[0])
	}
}
