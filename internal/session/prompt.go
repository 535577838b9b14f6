package session

import "strings"

// promptHistoryWindow bounds prompt size by message count rather than tokens;
// a fixed small window keeps latency and cost on the remote call predictable.
const promptHistoryWindow = 5

func speakerLabel(s Speaker) string {
	if s == SpeakerUser {
		return "User"
	}
	return "Assistant"
}

// buildPrompt assembles the dispatch prompt from prior turns and the new
// utterance. With no history the utterance is sent verbatim; otherwise the
// last promptHistoryWindow turns are rendered oldest-first.
func buildPrompt(history []Turn, utterance string) string {
	if len(history) == 0 {
		return utterance
	}
	start := len(history) - promptHistoryWindow
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, t := range history[start:] {
		b.WriteString(speakerLabel(t.Speaker))
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	b.WriteString("\nUser: ")
	b.WriteString(utterance)
	b.WriteString("\n\nAssistant:")
	return b.String()
}
