package llmproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const geminiDefaultModel = "gemini-2.5-pro"

// Gemini 2.5 Pro pricing per 1K tokens.
const (
	geminiInputRate  = 0.001875
	geminiOutputRate = 0.00375
)

// Usage is the telemetry record published after a Gemini stream finishes.
// It never reaches the caller; the tokens on content events do.
type Usage struct {
	Model      string  `json:"model"`
	Prompt     int     `json:"promptTokens"`
	Completion int     `json:"completionTokens"`
	Total      int     `json:"totalTokens"`
	Cost       float64 `json:"costUSD"`
}

// UsageSink receives stream usage telemetry. May be nil.
type UsageSink func(Usage)

// GeminiClient streams generateContent responses from the Gemini API.
type GeminiClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	usage   UsageSink
}

func NewGeminiClient(apiKey, baseURL string, timeout time.Duration, usage UsageSink) *GeminiClient {
	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		usage:   usage,
	}
}

func (c *GeminiClient) Name() string { return "Gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

// transformGemini maps an OpenAI-style request to the Gemini wire shape:
// the system message becomes systemInstruction, assistant turns map to the
// "model" role and everything else to "user".
func transformGemini(req ChatRequest) geminiRequest {
	out := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if out.GenerationConfig.Temperature == 0 {
		out.GenerationConfig.Temperature = 0.7
	}
	if out.GenerationConfig.MaxOutputTokens == 0 {
		out.GenerationConfig.MaxOutputTokens = 4096
	}

	for _, m := range req.Messages {
		if m.Role == "system" {
			if out.SystemInstruction == nil {
				out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			}
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		out.Contents = append(out.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	return out
}

// normalizeGeminiModel guards against callers sending OpenAI model names or
// the bare "gemini" alias to the Gemini endpoint.
func normalizeGeminiModel(requested string) string {
	if requested == "" || requested == "gemini" || !strings.HasPrefix(requested, "gemini-") {
		return geminiDefaultModel
	}
	return requested
}

func (c *GeminiClient) Stream(ctx context.Context, req ChatRequest, emit func(Event)) error {
	model := normalizeGeminiModel(req.Model)

	body, err := json.Marshal(transformGemini(req))
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?key=%s&alt=sse", c.baseURL, model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errText, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Gemini error: %d - %s", resp.StatusCode, strings.TrimSpace(string(errText)))
	}

	lastTokens, err := pumpLines(resp.Body, extractGeminiLine, emit)
	if err != nil {
		return err
	}

	if lastTokens != nil {
		c.reportUsage(model, lastTokens)
	}
	return nil
}

func (c *GeminiClient) reportUsage(model string, t *Tokens) {
	cost := float64(t.Prompt)/1000*geminiInputRate + float64(t.Completion)/1000*geminiOutputRate
	slog.Info("gemini stream usage", "model", model, "tokens", t.Total, "cost_usd", fmt.Sprintf("%.4f", cost))
	if c.usage != nil {
		c.usage(Usage{
			Model:      model,
			Prompt:     t.Prompt,
			Completion: t.Completion,
			Total:      t.Total,
			Cost:       cost,
		})
	}
}

type geminiChunk struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// extractGeminiLine reads incremental text from the first candidate's first
// part and usage counts when the chunk carries usageMetadata.
func extractGeminiLine(line string) (string, *Tokens) {
	payload, ok := dataPayload(line)
	if !ok {
		return "", nil
	}

	var chunk geminiChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", nil
	}

	var text string
	if len(chunk.Candidates) > 0 && len(chunk.Candidates[0].Content.Parts) > 0 {
		text = chunk.Candidates[0].Content.Parts[0].Text
	}

	var tokens *Tokens
	if chunk.UsageMetadata != nil {
		tokens = &Tokens{
			Prompt:     chunk.UsageMetadata.PromptTokenCount,
			Completion: chunk.UsageMetadata.CandidatesTokenCount,
			Total:      chunk.UsageMetadata.TotalTokenCount,
		}
	}
	return text, tokens
}
