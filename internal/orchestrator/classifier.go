package orchestrator

import (
	"regexp"
	"strings"

	"msgmcp/internal/protocol"
)

// Intent is the fallback classifier's decision for one turn: either a tool
// invocation or a direct reply (used when the request needs a generative
// model the device does not have).
type Intent struct {
	Tool  string
	Args  map[string]interface{}
	Reply string
}

const clarificationReply = "I can't summarize conversations on this device, but I can list or search your messages. Try \"list conversations\" or \"search for <topic>\"."

var (
	searchVerbRe = regexp.MustCompile(`^(?:search|find|look)(?:\s+(?:for|up))?\s*`)
	messagesRe   = regexp.MustCompile(`^(?:my\s+)?(?:messages?|texts?)\s*(?:about|mentioning|containing|with)?\s*`)
	trailingRe   = regexp.MustCompile(`[?!.]+$`)
)

// Classify maps free text to a deterministic intent. The cascade is ordered:
// explicit search verbs win, then conversation listing, then summarization
// (which gets a clarification), then recency; anything else is treated as a
// search for the raw text.
func Classify(text string) Intent {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Intent{Reply: "Tell me what you'd like to do, for example \"list conversations\" or \"search for dinner plans\"."}
	}

	switch {
	case strings.Contains(lower, "search") || strings.Contains(lower, "find"):
		return Intent{
			Tool: protocol.ToolNameSearchMessages,
			Args: map[string]interface{}{"query": cleanQuery(lower)},
		}
	case strings.Contains(lower, "list") && (strings.Contains(lower, "conversation") || strings.Contains(lower, "thread")):
		return Intent{Tool: protocol.ToolNameListThreads, Args: map[string]interface{}{}}
	case strings.Contains(lower, "summar"):
		return Intent{Reply: clarificationReply}
	case strings.Contains(lower, "recent") || strings.Contains(lower, "latest"):
		return Intent{Tool: protocol.ToolNameListMessages, Args: map[string]interface{}{}}
	default:
		return Intent{
			Tool: protocol.ToolNameSearchMessages,
			Args: map[string]interface{}{"query": strings.TrimSpace(trailingRe.ReplaceAllString(lower, ""))},
		}
	}
}

// cleanQuery strips the command phrasing from a search request so only the
// topic reaches the index: "find my messages about invoices" becomes
// "invoices".
func cleanQuery(lower string) string {
	q := trailingRe.ReplaceAllString(lower, "")
	q = searchVerbRe.ReplaceAllString(q, "")
	q = messagesRe.ReplaceAllString(q, "")
	q = strings.TrimSpace(q)
	if q == "" {
		return strings.TrimSpace(trailingRe.ReplaceAllString(lower, ""))
	}
	return q
}
