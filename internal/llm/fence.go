package llm

import "strings"

// StripCodeFence removes a single leading/trailing markdown code fence from
// model output. Models are told to answer without markdown, but they fence
// SQL and JSON often enough that callers normalize before parsing.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	if strings.HasSuffix(strings.TrimSpace(text), "```") {
		text = strings.TrimSpace(text)
		text = text[:strings.LastIndex(text, "```")]
	}
	return strings.TrimSpace(text)
}
