package model

import (
	"time"
)

// MessageType mirrors the store's type column. Values outside the known set
// are reported as TypeUnknown rather than leaking raw integers to callers.
type MessageType int

const (
	TypeUnknown MessageType = iota
	TypeReceived
	TypeSent
)

func (t MessageType) String() string {
	switch t {
	case TypeReceived:
		return "received"
	case TypeSent:
		return "sent"
	default:
		return "unknown"
	}
}

// ParseMessageType maps a stored label back to a MessageType. Unrecognized
// labels map to TypeUnknown, matching String above.
func ParseMessageType(label string) MessageType {
	switch label {
	case "received":
		return TypeReceived
	case "sent":
		return TypeSent
	default:
		return TypeUnknown
	}
}

type Message struct {
	MessageID int64
	ThreadID  int64
	Address   string
	Body      string
	DateUnix  int64
	Type      MessageType
	Read      bool

	// Embedding state lives on the message row. A nil Vector means the
	// message has never been embedded; a Vector whose EmbeddingVersion is
	// behind the index's current version is stale and excluded from semantic
	// search until the backfill worker re-embeds it.
	Vector           []float32
	EmbeddingVersion int
	IndexedAtUnix    int64
}

// FormattedDate renders DateUnix for tool output. Zero dates render empty so
// clients don't see the unix epoch on unset rows.
func (m Message) FormattedDate() string {
	if m.DateUnix == 0 {
		return ""
	}
	return time.Unix(m.DateUnix, 0).UTC().Format("2006-01-02 15:04")
}

type Thread struct {
	ThreadID     int64
	Address      string
	DisplayName  string
	Snippet      string
	MessageCount int64
	LastActivity int64
	Archived     bool
}

func (t Thread) FormattedLastActivity() string {
	if t.LastActivity == 0 {
		return ""
	}
	return time.Unix(t.LastActivity, 0).UTC().Format("2006-01-02 15:04")
}

// SearchQuery carries semantic search parameters from the tool layer to the
// retrieval service.
type SearchQuery struct {
	Query      string
	MaxResults int
	Threshold  float64
}

// MessageHit is one semantic search result.
type MessageHit struct {
	MessageID  int64
	ThreadID   int64
	Body       string
	Sender     string
	DateUnix   int64
	Similarity float64
}

// ToolResult is the uniform outcome of a tool execution. Error is meaningful
// only when Success is false; Data may be nil for side-effect-only tools.
type ToolResult struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func OKResult(data interface{}) ToolResult {
	return ToolResult{Success: true, Data: data}
}

func FailResult(message string) ToolResult {
	return ToolResult{Success: false, Error: message}
}

// Availability is the generative backend's probe outcome.
type Availability int

const (
	AvailabilityUnknown Availability = iota
	Available
	NotAvailable
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case NotAvailable:
		return "not_available"
	default:
		return "unknown"
	}
}

// BackendReply is a generative backend's answer for one conversation turn.
type BackendReply struct {
	Answer          string
	ContextMessages int
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a conversation session's history.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}
