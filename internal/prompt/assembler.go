package prompt

import (
	"strings"

	"ragchat/internal/domain"
)

const separator = "\n\n---\n\n"

// Contextualize wraps a query with retrieved chunks in the TASK/CONTEXT
// layout, chunks in ranking order.
func Contextualize(query string, chunks []domain.Chunk) string {
	var sb strings.Builder
	sb.WriteString("TASK: ")
	sb.WriteString(query)
	sb.WriteString("\nCONTEXT: \"\"\"")
	for _, c := range chunks {
		sb.WriteString(c.Text)
		sb.WriteString(separator)
	}
	sb.WriteString("\"\"\"")
	return sb.String()
}

// UserTurn is the turn that stands for query in the conversation. A nil
// chunk slice means retrieval is off and the query is sent as typed.
func UserTurn(query string, chunks []domain.Chunk) domain.Turn {
	if chunks == nil {
		return domain.Turn{Role: domain.RoleUser, Content: query}
	}
	return domain.Turn{Role: domain.RoleUser, Content: Contextualize(query, chunks)}
}

// Build returns [system prompt if any] + history + [user turn]. History is
// copied as-is, never reordered or trimmed.
func Build(history []domain.Turn, mode Mode, query string, chunks []domain.Chunk) []domain.Turn {
	p := mode.Profile()
	out := make([]domain.Turn, 0, len(history)+2)
	if p.SystemPrompt != "" {
		out = append(out, domain.Turn{Role: domain.RoleSystem, Content: p.SystemPrompt})
	}
	out = append(out, history...)
	return append(out, UserTurn(query, chunks))
}
