package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mpontes/lexgate/internal/resilience"
)

// Analyzer produces a raw structured-text analysis for a legal document.
// The dispatcher depends on this interface so tests can substitute fakes.
type Analyzer interface {
	Analyze(ctx context.Context, text, taskContext string) (string, error)
}

// ProviderError is a non-2xx response from the provider API.
type ProviderError struct {
	Status int
	Body   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider status %d: %s", e.Status, e.Body)
}

const systemPrompt = `Você é uma especialista em análise de intimações judiciais do PJe e DJEN.
Sua função é:
1. Identificar o tipo de intimação (citação, notificação, sentença, despacho, decisão)
2. Extrair prazos e datas importantes
3. Identificar as providências necessárias
4. Classificar a urgência (baixa, média, alta, crítica)
5. Sugerir próximos passos práticos

Sempre retorne JSON estruturado com: summary, deadline (days, type), priority, nextSteps (array), suggestedActions (array), documentType.`

// Client calls the Gemini generateContent endpoint. All dependencies arrive
// through the constructor; there is no package-level state.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	retry   resilience.Policy
}

func New(apiKey, baseURL, model string, timeout time.Duration, retry resilience.Policy) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze posts the analysis prompt and returns the candidate text. Transient
// failures are retried with the client's backoff policy; the last error wins.
func (c *Client) Analyze(ctx context.Context, text, taskContext string) (string, error) {
	prompt := fmt.Sprintf("%s\n\n%s\n\nAnalise a seguinte intimação judicial e retorne JSON estruturado:\n\n%s", systemPrompt, taskContext, text)

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			Temperature:     0.7,
			MaxOutputTokens: 2000,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var out string
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		out, callErr = c.call(ctx, body)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("analyze: %w", err)
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, body []byte) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post generateContent: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ProviderError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var parts []string
	if len(gr.Candidates) > 0 {
		for _, p := range gr.Candidates[0].Content.Parts {
			if p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
	}
	out := strings.TrimSpace(strings.Join(parts, "\n"))
	if out == "" {
		return "", fmt.Errorf("empty candidate content")
	}
	return out, nil
}
