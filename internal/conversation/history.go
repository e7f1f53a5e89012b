package conversation

import (
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is the prefix used for the role in the rendered history.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		if r == "" {
			return "Unknown"
		}
		return strings.ToUpper(string(r[:1])) + string(r[1:])
	}
}

// Turn is one stored message in chronological order.
type Turn struct {
	Role    Role
	Content string
}

const (
	documentStart  = "<document_start>"
	documentEnd    = "<document_end>"
	historyStart   = "<history_start>"
	historyEnd     = "<history_end>"
	currentStart   = "<current_message>"
	currentEnd     = "</current_message>"
	blockSeparator = "\n\n"
)

// FormatForAgent assembles the prompt sent to the agent runtime.
// With no prior turns and no document the current message is returned as is.
// Otherwise the document, history and current message blocks follow in that order.
// Turns keep their given order.
func FormatForAgent(prior []Turn, current, document string) string {
	document = strings.TrimSpace(document)
	if len(prior) == 0 && document == "" {
		return current
	}

	blocks := make([]string, 0, 3)

	if document != "" {
		blocks = append(blocks, documentStart+"\n"+document+"\n"+documentEnd)
	}

	if len(prior) > 0 {
		var b strings.Builder
		b.WriteString(historyStart)
		b.WriteString("\n")
		for _, turn := range prior {
			b.WriteString(turn.Role.Label())
			b.WriteString(": ")
			b.WriteString(turn.Content)
			b.WriteString("\n")
		}
		b.WriteString(historyEnd)
		blocks = append(blocks, b.String())
	}

	blocks = append(blocks, currentStart+"\n"+current+"\n"+currentEnd)

	return strings.Join(blocks, blockSeparator)
}
