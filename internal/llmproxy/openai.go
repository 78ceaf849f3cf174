package llmproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openAIDefaultModel = "gpt-4o-mini"

// OpenAIClient streams chat completions from the OpenAI API.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration) *OpenAIClient {
	if model == "" {
		model = openAIDefaultModel
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *OpenAIClient) Name() string { return "OpenAI" }

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

// resolveModel reroutes Gemini model names requested against OpenAI to the
// client's default.
func (c *OpenAIClient) resolveModel(requested string) string {
	if requested == "" || strings.Contains(requested, "gemini") {
		return c.model
	}
	return requested
}

func (c *OpenAIClient) Stream(ctx context.Context, req ChatRequest, emit func(Event)) error {
	body, err := json.Marshal(openAIRequest{
		Model:       c.resolveModel(req.Model),
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errText, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("OpenAI error: %d - %s", resp.StatusCode, strings.TrimSpace(string(errText)))
	}

	if _, err := pumpLines(resp.Body, extractOpenAILine, emit); err != nil {
		return err
	}
	return nil
}

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// extractOpenAILine reads the incremental text from one SSE line. The
// "data: [DONE]" sentinel and malformed JSON yield nothing.
func extractOpenAILine(line string) (string, *Tokens) {
	payload, ok := dataPayload(line)
	if !ok || payload == "[DONE]" {
		return "", nil
	}

	var chunk openAIChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", nil
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}
