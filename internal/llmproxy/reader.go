package llmproxy

import (
	"fmt"
	"io"
	"strings"
)

// extractFunc pulls the incremental text and optional usage counts out of
// one complete line of a provider's stream. Empty text means the line
// carried no content (keep-alive, sentinel, malformed JSON).
type extractFunc func(line string) (text string, usage *Tokens)

// pumpLines reads the stream in chunks, buffers the trailing partial line
// and runs every complete line through extract. Content is emitted the
// moment it is extracted; usage is tracked last-wins and returned after
// the stream ends. Event framing is identical regardless of how the
// provider's bytes are chunked.
func pumpLines(r io.Reader, extract extractFunc, emit func(Event)) (*Tokens, error) {
	var last *Tokens
	var pending string
	buf := make([]byte, 4096)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending += string(buf[:n])
			lines := strings.Split(pending, "\n")
			pending = lines[len(lines)-1]
			for _, line := range lines[:len(lines)-1] {
				text, usage := extract(line)
				if usage != nil {
					last = usage
				}
				if text != "" {
					emit(Event{Type: EventContent, Content: text, Tokens: usage})
				}
			}
		}
		if err == io.EOF {
			return last, nil
		}
		if err != nil {
			return last, fmt.Errorf("read stream: %w", err)
		}
	}
}

// dataPayload strips the SSE "data: " framing from a line. ok is false for
// blank lines and non-data frames.
func dataPayload(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || !strings.HasPrefix(trimmed, "data: ") {
		return "", false
	}
	return trimmed[len("data: "):], true
}
