package notify

import "strings"

// splitMessage breaks text into pieces of at most limit bytes. When a
// newline falls in the second half of a piece, the cut happens right after
// it so multi-line alerts stay readable.
func splitMessage(text string, limit int) []string {
	var parts []string
	for len(text) > limit {
		cut := limit
		if nl := strings.LastIndexByte(text[:limit], '\n'); nl > limit/2 {
			cut = nl + 1
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	return append(parts, text)
}
