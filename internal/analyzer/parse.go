package analyzer

import (
	"encoding/json"
	"strings"

	"github.com/mpontes/lexgate/internal/task"
)

// ParseAnalysis extracts the structured analysis from raw model output.
// Models wrap JSON in prose or markdown fences more often than not, so the
// parser brace-matches the embedded object instead of decoding the whole
// string. Unparseable output degrades to a summary-only analysis rather
// than failing the task.
func ParseAnalysis(raw, docType string) *task.Analysis {
	cleaned := stripFences(raw)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start != -1 && end > start {
		var a task.Analysis
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &a); err == nil {
			if a.DocumentType == "" {
				a.DocumentType = docType
			}
			return &a
		}
	}

	return &task.Analysis{
		Summary:      strings.TrimSpace(raw),
		DocumentType: docType,
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
