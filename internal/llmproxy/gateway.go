package llmproxy

import (
	"context"
	"log/slog"

	"github.com/mpontes/lexgate/internal/config"
)

// ProviderClient streams one chat completion, emitting content events as
// bytes arrive. Implementations never retry; a mid-stream failure returns
// an error after whatever content was already emitted.
type ProviderClient interface {
	Name() string
	Stream(ctx context.Context, req ChatRequest, emit func(Event)) error
}

// Gateway normalizes both provider protocols into one SSE event stream.
// Provider clients are injected; a nil client means that provider is not
// configured. Precedence is fixed: OpenAI, then Gemini.
type Gateway struct {
	openai ProviderClient
	gemini ProviderClient
}

func NewGateway(openai, gemini ProviderClient) *Gateway {
	return &Gateway{openai: openai, gemini: gemini}
}

// FromConfig builds a gateway with clients for every provider that has an
// API key configured.
func FromConfig(cfg config.ProvidersConfig, usage UsageSink) *Gateway {
	var openai, gemini ProviderClient
	if cfg.OpenAI.APIKey != "" {
		openai = NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.DefaultModel, cfg.OpenAI.Timeout)
	}
	if cfg.Gemini.APIKey != "" {
		gemini = NewGeminiClient(cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Gemini.Timeout, usage)
	}
	return NewGateway(openai, gemini)
}

func (g *Gateway) selectProvider() ProviderClient {
	if g.openai != nil {
		return g.openai
	}
	if g.gemini != nil {
		return g.gemini
	}
	return nil
}

// Stream validates the request, picks a provider and relays its stream.
// Exactly one terminal event is emitted: done with the provider name on a
// clean end, error otherwise. Content already emitted before a failure is
// not retracted. ctx carries the caller connection's lifetime: disconnect
// cancels the upstream call.
func (g *Gateway) Stream(ctx context.Context, req ChatRequest, emit func(Event)) {
	if len(req.Messages) == 0 {
		emit(Event{Type: EventError, Message: "Messages array is required"})
		return
	}

	client := g.selectProvider()
	if client == nil {
		emit(Event{Type: EventError, Message: "No LLM provider configured. Set OPENAI_API_KEY or GEMINI_API_KEY"})
		return
	}

	if err := client.Stream(ctx, req, emit); err != nil {
		slog.Error("stream failed", "provider", client.Name(), "error", err)
		emit(Event{Type: EventError, Message: err.Error()})
		return
	}
	emit(Event{Type: EventDone, Provider: client.Name()})
}
