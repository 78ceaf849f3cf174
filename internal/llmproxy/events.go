package llmproxy

// ChatMessage is one turn of an OpenAI-style conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the provider-agnostic request accepted by the gateway.
type ChatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Tokens carries upstream usage counts. Providers emit them with the final
// or near-final chunk.
type Tokens struct {
	Prompt     int `json:"prompt,omitempty"`
	Completion int `json:"completion,omitempty"`
	Total      int `json:"total,omitempty"`
}

const (
	EventContent = "content"
	EventDone    = "done"
	EventError   = "error"
)

// Event is one SSE frame sent to the caller. A stream is any number of
// content events followed by exactly one terminal event (done or error).
type Event struct {
	Type     string  `json:"type"`
	Content  string  `json:"content,omitempty"`
	Provider string  `json:"provider,omitempty"`
	Message  string  `json:"message,omitempty"`
	Tokens   *Tokens `json:"tokens,omitempty"`
}
