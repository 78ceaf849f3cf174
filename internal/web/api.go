package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mpontes/lexgate/internal/natsbus"
	"github.com/mpontes/lexgate/internal/resilience"
	"github.com/mpontes/lexgate/internal/task"
)

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode json response", "error", err)
	}
}

func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/tasks/process", s.handleProcessTask)
	mux.HandleFunc("/api/queue", s.handleQueue)
	mux.HandleFunc("POST /api/llm/stream", s.handleLLMStream)

	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/agents", s.handleSaveAgent)
	mux.HandleFunc("POST /api/agents/{id}/toggle", s.handleToggleAgent)
	mux.HandleFunc("DELETE /api/agents/{id}", s.handleDeleteAgent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountTasks()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	agents, err := s.store.ListAgents()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	jsonResponse(w, map[string]any{
		"status":           "ok",
		"version":          s.version,
		"uptime":           formatUptime(time.Since(s.startedAt)),
		"queue":            counts,
		"agentsConfigured": len(agents),
	})
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	mins := d / time.Minute
	if days > 0 {
		return fmt.Sprintf("%dd%dh%dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh%dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

// handleProcessTask runs a single task synchronously, outside the queue. The
// caller waits for the full dispatch, bounded by the worker task timeout.
func (s *Server) handleProcessTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Task  task.Task  `json:"task"`
		Agent task.Agent `json:"agent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := body.Task.Validate(); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   "invalid task",
			"details": err.Error(),
		})
		return
	}
	if err := body.Agent.Validate(); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   "invalid agent",
			"details": err.Error(),
		})
		return
	}

	t := body.Task
	retry := resilience.FixedPolicy(s.workerCfg.RetryAttempts, s.workerCfg.RetryDelay)
	result, err := resilience.WithTimeout(r.Context(), s.workerCfg.TaskTimeout, func(ctx context.Context) (task.AnalysisResult, error) {
		var res task.AnalysisResult
		rerr := retry.Do(ctx, func(ctx context.Context) error {
			res = s.dispatcher.Dispatch(ctx, &t)
			return ctx.Err()
		})
		return res, rerr
	})
	if err != nil {
		slog.Error("synchronous task processing failed", "task", t.ID, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   err.Error(),
			"taskId":  t.ID,
			"agentId": t.AgentID,
		})
		return
	}

	jsonResponse(w, map[string]any{
		"success":     result.Success,
		"taskId":      t.ID,
		"agentId":     t.AgentID,
		"result":      result,
		"processedAt": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	switch action {
	case "status":
		s.queueStatus(w)
	case "list":
		s.queueList(w)
	case "enqueue":
		s.queueEnqueue(w, r)
	case "dequeue":
		s.queueDequeue(w, r)
	case "complete":
		s.queueComplete(w, r)
	case "process-queue":
		s.queueProcess(w, r)
	default:
		jsonError(w, fmt.Sprintf("unknown queue action: %q", action), http.StatusBadRequest)
	}
}

func (s *Server) queueStatus(w http.ResponseWriter) {
	counts, err := s.store.CountTasks()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	agents, err := s.store.ListAgents()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]any{
		"queued":           counts.Queued + counts.Processing,
		"completed":        counts.Completed + counts.Failed,
		"agentsConfigured": len(agents),
		"updatedAt":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) queueList(w http.ResponseWriter) {
	queued, err := s.store.ListQueued(100)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	completed, err := s.store.ListCompleted(100)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	agents, err := s.store.ListAgents()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]any{
		"queued":    queued,
		"completed": completed,
		"agents":    agents,
	})
}

func (s *Server) queueEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := t.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.Enqueue(&t); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if s.nats != nil {
		if err := s.nats.PublishJSON(natsbus.TopicTaskEnqueued(t.ID), t); err != nil {
			slog.Warn("publish enqueue event", "task", t.ID, "error", err)
		}
	}

	jsonResponse(w, map[string]any{"success": true, "taskId": t.ID})
}

func (s *Server) queueDequeue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	t, err := s.store.ClaimOldest()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]any{"task": t})
}

func (s *Server) queueComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID     string               `json:"id"`
		Result *task.AnalysisResult `json:"result,omitempty"`
		Error  string               `json:"error,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.ID == "" {
		jsonError(w, "task id is required", http.StatusBadRequest)
		return
	}

	t, err := s.store.GetQueued(body.ID)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if t == nil {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}

	if err := s.store.Archive(t, body.Result, body.Error); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]any{"success": true, "taskId": t.ID})
}

func (s *Server) queueProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	processed, result, err := s.worker.ProcessOne(r.Context())
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := map[string]any{"processed": processed}
	if result != nil {
		resp["result"] = result
	}
	jsonResponse(w, resp)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, agents)
}

func (s *Server) handleSaveAgent(w http.ResponseWriter, r *http.Request) {
	var a task.Agent
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.store.SaveAgent(&a); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, a)
}

func (s *Server) handleToggleAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := s.store.GetAgent(id)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if a == nil {
		jsonError(w, "agent not found", http.StatusNotFound)
		return
	}
	if err := s.store.SetAgentEnabled(id, !a.Enabled); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.Enabled = !a.Enabled
	jsonResponse(w, a)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAgent(r.PathValue("id")); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResponse(w, map[string]string{"status": "ok"})
}
