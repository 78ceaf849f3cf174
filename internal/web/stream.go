package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mpontes/lexgate/internal/llmproxy"
)

// handleLLMStream proxies a chat completion request to the configured provider
// and relays the normalized events as Server-Sent Events. The request context
// follows the client connection, so a disconnect cancels the upstream call.
func (s *Server) handleLLMStream(w http.ResponseWriter, r *http.Request) {
	var req llmproxy.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.gateway.Stream(r.Context(), req, func(ev llmproxy.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("marshal stream event", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	})
}
