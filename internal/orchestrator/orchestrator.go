package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"msgmcp/internal/model"
	"msgmcp/internal/protocol"
)

const defaultMaxContextMessages = 10

type mode int

const (
	modeUndecided mode = iota
	modeGenerative
	modeFallback
)

// Source identifies which path produced a reply.
type Source string

const (
	SourceGenerative Source = "generative"
	SourceFallback   Source = "fallback"
)

// Reply is the orchestrator's answer for one user turn.
type Reply struct {
	Text   string
	Source Source
	Tool   string
}

// toolCaller is the dispatcher surface the fallback path uses.
type toolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) model.ToolResult
}

// Orchestrator runs the conversation loop. It probes the generative backend
// exactly once per session: an available backend is initialized and used for
// every turn, anything else commits the session permanently to the
// deterministic fallback. A generative failure mid-session falls back for
// that turn only.
type Orchestrator struct {
	Backend            model.GenerativeBackend
	Tools              toolCaller
	MaxContextMessages int

	// Logger is optional; nil falls back to the standard library logger.
	Logger *log.Logger

	// turnMu serializes whole turns, backend call included, so replies land
	// in the transcript in submission order. mu only guards the state fields.
	turnMu sync.Mutex

	mu        sync.Mutex
	mode      mode
	sessionID string
	history   []model.Turn
}

// Start probes the backend and fixes the session mode. Safe to call once per
// session; a second call restarts the session.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.sessionID = uuid.NewString()
	o.history = nil
	o.mode = modeFallback

	if o.Backend == nil {
		return nil
	}
	if o.Backend.CheckAvailability(ctx) != model.Available {
		o.logf("session %s: generative backend unavailable, using fallback", o.sessionID)
		return nil
	}
	if err := o.Backend.Initialize(ctx); err != nil {
		o.logf("session %s: backend initialize failed, using fallback: %v", o.sessionID, err)
		return nil
	}
	if err := o.Backend.StartConversation(ctx); err != nil {
		o.logf("session %s: backend conversation start failed, using fallback: %v", o.sessionID, err)
		return nil
	}
	o.mode = modeGenerative
	return nil
}

// HandleTurn answers one user message. The error return is reserved for
// broken orchestrator state; tool and backend failures surface as reply
// text so the conversation keeps going.
func (o *Orchestrator) HandleTurn(ctx context.Context, text string) (Reply, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	o.mu.Lock()
	if o.mode == modeUndecided {
		o.mu.Unlock()
		if err := o.Start(ctx); err != nil {
			return Reply{}, err
		}
		o.mu.Lock()
	}
	generative := o.mode == modeGenerative
	o.history = append(o.history, model.Turn{Role: model.RoleUser, Text: text, Timestamp: time.Now()})
	o.mu.Unlock()

	var reply Reply
	if generative {
		answer, err := o.Backend.SendMessageInConversation(ctx, text, o.maxContext())
		if err == nil {
			reply = Reply{Text: answer.Answer, Source: SourceGenerative}
		} else {
			// this turn falls back; the next turn tries the backend again.
			o.logf("generative turn failed, falling back: %v", err)
			reply = o.fallbackTurn(ctx, text)
		}
	} else {
		reply = o.fallbackTurn(ctx, text)
	}

	o.mu.Lock()
	o.history = append(o.history, model.Turn{Role: model.RoleAssistant, Text: reply.Text, Timestamp: time.Now()})
	o.mu.Unlock()
	return reply, nil
}

func (o *Orchestrator) fallbackTurn(ctx context.Context, text string) Reply {
	intent := Classify(text)
	if intent.Reply != "" {
		return Reply{Text: intent.Reply, Source: SourceFallback}
	}

	result := o.Tools.CallTool(ctx, intent.Tool, intent.Args)
	if !result.Success {
		return Reply{
			Text:   fmt.Sprintf("Sorry, I couldn't complete that: %s", result.Error),
			Source: SourceFallback,
			Tool:   intent.Tool,
		}
	}
	return Reply{Text: renderToolReply(intent.Tool, result.Data), Source: SourceFallback, Tool: intent.Tool}
}

// ClearHistory wipes the session transcript and, when the backend is live,
// restarts its conversation so server-side context is dropped too. A failed
// restart commits the session to fallback.
func (o *Orchestrator) ClearHistory(ctx context.Context) error {
	o.mu.Lock()
	generative := o.mode == modeGenerative
	o.history = nil
	o.sessionID = uuid.NewString()
	o.mu.Unlock()

	if !generative {
		return nil
	}
	if err := o.Backend.EndConversation(ctx); err != nil {
		o.logf("end conversation failed: %v", err)
	}
	if err := o.Backend.StartConversation(ctx); err != nil {
		o.logf("conversation restart failed, committing to fallback: %v", err)
		o.mu.Lock()
		o.mode = modeFallback
		o.mu.Unlock()
		return err
	}
	return nil
}

// Close ends any live backend conversation.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	generative := o.mode == modeGenerative
	o.mode = modeUndecided
	o.mu.Unlock()
	if !generative {
		return nil
	}
	return o.Backend.EndConversation(ctx)
}

// SessionID returns the current session's identifier.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// GenerativeActive reports whether the session is committed to the backend.
func (o *Orchestrator) GenerativeActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode == modeGenerative
}

// History returns a copy of the session transcript.
func (o *Orchestrator) History() []model.Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.Turn, len(o.history))
	copy(out, o.history)
	return out
}

func (o *Orchestrator) maxContext() int {
	if o.MaxContextMessages > 0 {
		return o.MaxContextMessages
	}
	return defaultMaxContextMessages
}

func (o *Orchestrator) logf(format string, args ...interface{}) {
	if o != nil && o.Logger != nil {
		o.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// renderToolReply turns structured tool output into conversational text.
// Unexpected shapes degrade to a generic confirmation rather than erroring.
func renderToolReply(tool string, data interface{}) string {
	m, _ := data.(map[string]interface{})
	switch tool {
	case protocol.ToolNameSearchMessages:
		return renderSearchReply(m)
	case protocol.ToolNameListThreads:
		return renderThreadsReply(m)
	case protocol.ToolNameListMessages:
		return renderMessagesReply(m)
	case protocol.ToolNameSendMessage:
		return "Message sent."
	default:
		return "Done."
	}
}

func renderSearchReply(m map[string]interface{}) string {
	results, _ := m["results"].([]map[string]interface{})
	query, _ := m["query"].(string)
	if len(results) == 0 {
		return fmt.Sprintf("I didn't find any messages matching %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d message(s) matching %q:", len(results), query)
	for _, r := range results {
		fmt.Fprintf(&b, "\n- %v: %v", r["sender"], r["body"])
	}
	return b.String()
}

func renderThreadsReply(m map[string]interface{}) string {
	threads, _ := m["threads"].([]map[string]interface{})
	if len(threads) == 0 {
		return "You have no conversations yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d conversation(s):", len(threads))
	for _, t := range threads {
		name, _ := t["display_name"].(string)
		if name == "" {
			name, _ = t["address"].(string)
		}
		fmt.Fprintf(&b, "\n- %s: %v", name, t["snippet"])
	}
	return b.String()
}

func renderMessagesReply(m map[string]interface{}) string {
	messages, _ := m["messages"].([]map[string]interface{})
	if len(messages) == 0 {
		return "No recent messages."
	}
	// tools return newest first; keep that order but make it explicit for
	// readers of the transcript.
	sorted := make([]map[string]interface{}, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, _ := sorted[i]["date"].(int64)
		dj, _ := sorted[j]["date"].(int64)
		return di > dj
	})
	var b strings.Builder
	fmt.Fprintf(&b, "Here are your %d most recent message(s):", len(sorted))
	for _, msg := range sorted {
		fmt.Fprintf(&b, "\n- %v: %v", msg["address"], msg["body"])
	}
	return b.String()
}
