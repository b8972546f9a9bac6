package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"msgmcp/internal/model"
	"msgmcp/internal/protocol"
)

const (
	defaultThreadLimit   = 20
	maxThreadLimit       = 500
	defaultMessageLimit  = 20
	maxMessageLimit      = 100
	defaultSearchResults = 10
	maxSearchResults     = 50
	defaultSimilarity    = 0.15
)

// messageSearcher is what the search tool needs from the retrieval layer.
type messageSearcher interface {
	Search(ctx context.Context, query model.SearchQuery) ([]model.MessageHit, error)
}

// ListThreadsTool returns recency-ordered thread summaries.
type ListThreadsTool struct {
	store model.MessageStore
}

func NewListThreadsTool(store model.MessageStore) *ListThreadsTool {
	return &ListThreadsTool{store: store}
}

func (t *ListThreadsTool) Name() string { return protocol.ToolNameListThreads }

func (t *ListThreadsTool) Description() string {
	return "List conversation threads ordered by most recent activity."
}

func (t *ListThreadsTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "limit", Type: ParamNumber, Description: "Maximum number of threads to return", Required: false, Default: strPtr("20")},
	}
}

func (t *ListThreadsTool) Execute(ctx context.Context, args map[string]interface{}) model.ToolResult {
	if err := assertNoUnknownArguments(args, map[string]struct{}{"limit": {}}); err != nil {
		return model.FailResult(err.Error())
	}
	limit, err := parseOptionalInteger(args, "limit", defaultThreadLimit)
	if err != nil {
		return model.FailResult(err.Error())
	}
	if limit <= 0 {
		limit = defaultThreadLimit
	}
	// the store contract has no hard cap of its own; bound the result set so
	// an unconstrained call cannot return an unbounded list.
	if limit > maxThreadLimit {
		limit = maxThreadLimit
	}

	threads, err := t.store.GetRecentThreads(ctx, limit)
	if err != nil {
		return model.FailResult(fmt.Sprintf("list threads: %v", err))
	}

	entries := make([]map[string]interface{}, 0, len(threads))
	for _, th := range threads {
		entries = append(entries, map[string]interface{}{
			"thread_id":               th.ThreadID,
			"address":                 th.Address,
			"display_name":            th.DisplayName,
			"snippet":                 th.Snippet,
			"message_count":           th.MessageCount,
			"last_activity":           th.LastActivity,
			"formatted_last_activity": th.FormattedLastActivity(),
		})
	}
	return model.OKResult(map[string]interface{}{
		"threads": entries,
		"count":   len(entries),
		"limit":   limit,
	})
}

// ListMessagesTool returns messages for one thread, or the most recent
// messages across all threads when thread_id is absent.
type ListMessagesTool struct {
	store model.MessageStore
}

func NewListMessagesTool(store model.MessageStore) *ListMessagesTool {
	return &ListMessagesTool{store: store}
}

func (t *ListMessagesTool) Name() string { return protocol.ToolNameListMessages }

func (t *ListMessagesTool) Description() string {
	return "List messages in a thread, or the most recent messages overall when no thread is given."
}

func (t *ListMessagesTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "thread_id", Type: ParamNumber, Description: "Thread to list; omit for most recent messages across all threads", Required: false},
		{Name: "limit", Type: ParamNumber, Description: "Maximum number of messages to return (1-100)", Required: false, Default: strPtr("20")},
	}
}

func (t *ListMessagesTool) Execute(ctx context.Context, args map[string]interface{}) model.ToolResult {
	if err := assertNoUnknownArguments(args, map[string]struct{}{"thread_id": {}, "limit": {}}); err != nil {
		return model.FailResult(err.Error())
	}

	threadID, hasThread, err := parseOptionalIntegerWithPresence(args, "thread_id")
	if err != nil {
		return model.FailResult(err.Error())
	}
	limit, err := parseOptionalInteger(args, "limit", defaultMessageLimit)
	if err != nil {
		return model.FailResult(err.Error())
	}
	limit = clampInt(limit, 1, maxMessageLimit)

	var messages []model.Message
	if hasThread {
		messages, err = t.store.GetMessagesForThread(ctx, int64(threadID), limit)
	} else {
		messages, err = t.store.GetRecentMessages(ctx, limit)
	}
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.FailResult(fmt.Sprintf("thread %d not found", threadID))
		}
		return model.FailResult(fmt.Sprintf("list messages: %v", err))
	}

	entries := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, serializeMessage(msg))
	}
	result := map[string]interface{}{
		"messages": entries,
		"count":    len(entries),
		"limit":    limit,
	}
	if hasThread {
		result["thread_id"] = int64(threadID)
	}
	return model.OKResult(result)
}

// SendMessageTool delegates to the messaging transport. The address argument
// may be a comma-separated list; each recipient is attempted independently
// and one failure never aborts the rest.
type SendMessageTool struct {
	transport model.Transport
}

func NewSendMessageTool(transport model.Transport) *SendMessageTool {
	return &SendMessageTool{transport: transport}
}

func (t *SendMessageTool) Name() string { return protocol.ToolNameSendMessage }

func (t *SendMessageTool) Description() string {
	return "Send a message to one or more recipients (comma-separated addresses)."
}

func (t *SendMessageTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "address", Type: ParamString, Description: "Recipient address, or comma-separated list of addresses", Required: true},
		{Name: "body", Type: ParamString, Description: "Message body", Required: true},
	}
}

func (t *SendMessageTool) Execute(ctx context.Context, args map[string]interface{}) model.ToolResult {
	if err := assertNoUnknownArguments(args, map[string]struct{}{"address": {}, "body": {}}); err != nil {
		return model.FailResult(err.Error())
	}
	address, ok, err := parseRequiredString(args, "address")
	if err != nil {
		return model.FailResult(err.Error())
	}
	if !ok {
		return model.FailResult("address is required")
	}
	body, ok, err := parseRequiredString(args, "body")
	if err != nil {
		return model.FailResult(err.Error())
	}
	if !ok {
		return model.FailResult("body is required")
	}

	recipients := splitRecipients(address)
	if len(recipients) == 0 {
		return model.FailResult("address must contain at least one recipient")
	}

	if len(recipients) == 1 {
		messageID, sendErr := t.transport.SendMessage(ctx, recipients[0], body)
		if sendErr != nil {
			return model.FailResult(fmt.Sprintf("send to %s: %v", recipients[0], sendErr))
		}
		return model.OKResult(map[string]interface{}{
			"message_id": messageID,
			"address":    recipients[0],
		})
	}

	outcomes := make([]map[string]interface{}, 0, len(recipients))
	sent := 0
	for _, recipient := range recipients {
		messageID, sendErr := t.transport.SendMessage(ctx, recipient, body)
		outcome := map[string]interface{}{"address": recipient}
		if sendErr != nil {
			outcome["error"] = sendErr.Error()
		} else {
			outcome["message_id"] = messageID
			sent++
		}
		outcomes = append(outcomes, outcome)
	}
	if sent == 0 {
		return model.FailResult(fmt.Sprintf("send failed for all %d recipients", len(recipients)))
	}
	return model.OKResult(map[string]interface{}{
		"results": outcomes,
		"sent":    sent,
		"failed":  len(recipients) - sent,
	})
}

// SearchMessagesTool runs semantic retrieval over the embedding index.
// While the index has no usable vectors it degrades to a plain text match
// so unembedded messages stay reachable.
type SearchMessagesTool struct {
	searcher messageSearcher
	store    model.MessageStore
}

func NewSearchMessagesTool(searcher messageSearcher, store model.MessageStore) *SearchMessagesTool {
	return &SearchMessagesTool{searcher: searcher, store: store}
}

func (t *SearchMessagesTool) Name() string { return protocol.ToolNameSearchMessages }

func (t *SearchMessagesTool) Description() string {
	return "Semantic search over message contents using vector embeddings."
}

func (t *SearchMessagesTool) Parameters() []ToolParameter {
	return []ToolParameter{
		{Name: "query", Type: ParamString, Description: "Free-text search query", Required: true},
		{Name: "max_results", Type: ParamNumber, Description: "Maximum number of results (1-50)", Required: false, Default: strPtr("10")},
		{Name: "similarity_threshold", Type: ParamNumber, Description: "Minimum cosine similarity in [0,1]", Required: false, Default: strPtr("0.15")},
	}
}

func (t *SearchMessagesTool) Execute(ctx context.Context, args map[string]interface{}) model.ToolResult {
	if err := assertNoUnknownArguments(args, map[string]struct{}{
		"query":                {},
		"max_results":          {},
		"similarity_threshold": {},
	}); err != nil {
		return model.FailResult(err.Error())
	}

	query, ok, err := parseRequiredString(args, "query")
	if err != nil {
		return model.FailResult(err.Error())
	}
	if !ok {
		return model.FailResult("query is required")
	}
	maxResults, err := parseOptionalInteger(args, "max_results", defaultSearchResults)
	if err != nil {
		return model.FailResult(err.Error())
	}
	maxResults = clampInt(maxResults, 1, maxSearchResults)
	threshold, err := parseOptionalFloat(args, "similarity_threshold", defaultSimilarity)
	if err != nil {
		return model.FailResult(err.Error())
	}
	if threshold < 0 || threshold > 1 {
		return model.FailResult("similarity_threshold must be between 0 and 1")
	}

	hits, err := t.searcher.Search(ctx, model.SearchQuery{
		Query:      query,
		MaxResults: maxResults,
		Threshold:  threshold,
	})
	if err != nil {
		if errors.Is(err, model.ErrIndexNotReady) {
			return t.lexicalSearch(ctx, query, maxResults)
		}
		return model.FailResult(fmt.Sprintf("search: %v", err))
	}

	results := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		results = append(results, map[string]interface{}{
			"message_id": hit.MessageID,
			"thread_id":  hit.ThreadID,
			"body":       hit.Body,
			"sender":     hit.Sender,
			"date":       hit.DateUnix,
			"similarity": hit.Similarity,
		})
	}
	return model.OKResult(map[string]interface{}{
		"results": results,
		"count":   len(results),
		"query":   query,
		"match":   "semantic",
	})
}

func (t *SearchMessagesTool) lexicalSearch(ctx context.Context, query string, limit int) model.ToolResult {
	if t.store == nil {
		return model.FailResult("no messages have been indexed yet")
	}
	messages, err := t.store.SearchMessagesByText(ctx, query, limit)
	if err != nil {
		return model.FailResult(fmt.Sprintf("search: %v", err))
	}
	results := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		results = append(results, map[string]interface{}{
			"message_id": msg.MessageID,
			"thread_id":  msg.ThreadID,
			"body":       msg.Body,
			"sender":     msg.Address,
			"date":       msg.DateUnix,
		})
	}
	return model.OKResult(map[string]interface{}{
		"results": results,
		"count":   len(results),
		"query":   query,
		"match":   "lexical",
	})
}

// RegisterBuiltinTools wires the four built-in tools into the registry. Each
// tool is listed under its namespaced wire name and additionally reachable
// through its bare alias.
func RegisterBuiltinTools(registry *Registry, store model.MessageStore, transport model.Transport, searcher messageSearcher) {
	tools := []Tool{
		NewListThreadsTool(store),
		NewListMessagesTool(store),
		NewSendMessageTool(transport),
		NewSearchMessagesTool(searcher, store),
	}
	for _, tool := range tools {
		registry.Register(tool)
		registry.RegisterAlias(strings.TrimPrefix(tool.Name(), protocol.ToolNamespace), tool.Name())
	}
}

func serializeMessage(msg model.Message) map[string]interface{} {
	return map[string]interface{}{
		"message_id":     msg.MessageID,
		"thread_id":      msg.ThreadID,
		"address":        msg.Address,
		"body":           msg.Body,
		"date":           msg.DateUnix,
		"formatted_date": msg.FormattedDate(),
		"type":           msg.Type.String(),
		"read":           msg.Read,
	}
}

func splitRecipients(address string) []string {
	parts := strings.Split(address, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func strPtr(s string) *string { return &s }
