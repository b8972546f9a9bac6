package orchestrator

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"msgmcp/internal/model"
	"msgmcp/internal/protocol"
)

type fakeBackend struct {
	availability model.Availability

	initErr  error
	startErr error
	sendErr  error
	answer   string

	// when set, SendMessageInConversation announces the turn's text on
	// sendStarted and then blocks until sendRelease receives.
	sendStarted chan string
	sendRelease chan struct{}

	initCalls  int
	startCalls int
	sendCalls  int
	endCalls   int
	checkCalls int
}

func (b *fakeBackend) CheckAvailability(context.Context) model.Availability {
	b.checkCalls++
	return b.availability
}

func (b *fakeBackend) Initialize(context.Context) error {
	b.initCalls++
	return b.initErr
}

func (b *fakeBackend) StartConversation(context.Context) error {
	b.startCalls++
	return b.startErr
}

func (b *fakeBackend) SendMessageInConversation(_ context.Context, text string, maxContext int) (model.BackendReply, error) {
	b.sendCalls++
	if b.sendStarted != nil {
		b.sendStarted <- text
	}
	if b.sendRelease != nil {
		<-b.sendRelease
	}
	if b.sendErr != nil {
		return model.BackendReply{}, b.sendErr
	}
	answer := b.answer
	if answer == "" {
		answer = "generated: " + text
	}
	return model.BackendReply{Answer: answer, ContextMessages: maxContext}, nil
}

func (b *fakeBackend) EndConversation(context.Context) error {
	b.endCalls++
	return nil
}

type fakeTools struct {
	lastTool string
	lastArgs map[string]interface{}
	result   model.ToolResult
}

func (t *fakeTools) CallTool(_ context.Context, name string, args map[string]interface{}) model.ToolResult {
	t.lastTool = name
	t.lastArgs = args
	return t.result
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestOrchestrator_GenerativePath(t *testing.T) {
	backend := &fakeBackend{availability: model.Available}
	o := &Orchestrator{Backend: backend, Tools: &fakeTools{}, Logger: quietLogger()}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !o.GenerativeActive() {
		t.Fatal("available backend should commit the session to generative")
	}
	if backend.initCalls != 1 || backend.startCalls != 1 {
		t.Fatalf("backend not initialized: init=%d start=%d", backend.initCalls, backend.startCalls)
	}
	if o.SessionID() == "" {
		t.Fatal("expected a session id")
	}

	reply, err := o.HandleTurn(context.Background(), "what did dana say?")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if reply.Source != SourceGenerative || reply.Text != "generated: what did dana say?" {
		t.Fatalf("unexpected reply: %#v", reply)
	}

	history := o.History()
	if len(history) != 2 || history[0].Role != model.RoleUser || history[1].Role != model.RoleAssistant {
		t.Fatalf("unexpected history: %#v", history)
	}
}

func TestOrchestrator_UnavailableBackendCommitsToFallback(t *testing.T) {
	backend := &fakeBackend{availability: model.NotAvailable}
	tools := &fakeTools{result: model.OKResult(map[string]interface{}{"threads": []map[string]interface{}{}})}
	o := &Orchestrator{Backend: backend, Tools: tools, Logger: quietLogger()}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if o.GenerativeActive() {
		t.Fatal("unavailable backend must commit to fallback")
	}

	reply, err := o.HandleTurn(context.Background(), "list my conversations")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if reply.Source != SourceFallback || tools.lastTool != protocol.ToolNameListThreads {
		t.Fatalf("fallback did not route to list_threads: %#v tool=%s", reply, tools.lastTool)
	}
	// the probe happened once; fallback turns never re-probe.
	if backend.checkCalls != 1 || backend.sendCalls != 0 {
		t.Fatalf("backend touched after fallback commit: check=%d send=%d", backend.checkCalls, backend.sendCalls)
	}
}

func TestOrchestrator_InitFailureCommitsToFallback(t *testing.T) {
	backend := &fakeBackend{availability: model.Available, initErr: errors.New("model load failed")}
	o := &Orchestrator{Backend: backend, Tools: &fakeTools{}, Logger: quietLogger()}

	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if o.GenerativeActive() {
		t.Fatal("initialize failure must commit to fallback")
	}
}

func TestOrchestrator_PerTurnFallback(t *testing.T) {
	backend := &fakeBackend{availability: model.Available}
	tools := &fakeTools{result: model.OKResult(map[string]interface{}{
		"results": []map[string]interface{}{{"sender": "+15550100", "body": "invoice attached"}},
		"query":   "invoices",
		"count":   1,
	})}
	o := &Orchestrator{Backend: backend, Tools: tools, Logger: quietLogger()}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	backend.sendErr = errors.New("runtime crashed")
	reply, err := o.HandleTurn(context.Background(), "find invoices")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if reply.Source != SourceFallback || tools.lastTool != protocol.ToolNameSearchMessages {
		t.Fatalf("expected per-turn fallback to search: %#v tool=%s", reply, tools.lastTool)
	}
	if tools.lastArgs["query"] != "invoices" {
		t.Fatalf("query not cleaned: %#v", tools.lastArgs)
	}

	// the session stays generative: the next turn tries the backend again.
	backend.sendErr = nil
	reply, err = o.HandleTurn(context.Background(), "thanks")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if reply.Source != SourceGenerative {
		t.Fatalf("session should have stayed generative: %#v", reply)
	}
}

func TestOrchestrator_ConcurrentTurnsKeepSubmissionOrder(t *testing.T) {
	backend := &fakeBackend{
		availability: model.Available,
		sendStarted:  make(chan string, 2),
		sendRelease:  make(chan struct{}),
	}
	o := &Orchestrator{Backend: backend, Tools: &fakeTools{}, Logger: quietLogger()}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan struct{}, 2)
	go func() {
		o.HandleTurn(context.Background(), "first question")
		done <- struct{}{}
	}()
	// the first turn is inside its backend call (and holding the turn lock)
	// before the second turn is submitted.
	<-backend.sendStarted
	go func() {
		o.HandleTurn(context.Background(), "second question")
		done <- struct{}{}
	}()

	backend.sendRelease <- struct{}{}
	if text := <-backend.sendStarted; text != "second question" {
		t.Fatalf("unexpected second backend call: %q", text)
	}
	backend.sendRelease <- struct{}{}
	<-done
	<-done

	history := o.History()
	if len(history) != 4 {
		t.Fatalf("expected 4 turns, got %#v", history)
	}
	wantTexts := []string{
		"first question",
		"generated: first question",
		"second question",
		"generated: second question",
	}
	for i, want := range wantTexts {
		if history[i].Text != want {
			t.Fatalf("turn %d out of order: got %q, want %q (history %#v)", i, history[i].Text, want, history)
		}
	}
}

func TestOrchestrator_FallbackToolFailureIsApology(t *testing.T) {
	tools := &fakeTools{result: model.FailResult("no messages have been indexed yet")}
	o := &Orchestrator{Backend: &fakeBackend{availability: model.NotAvailable}, Tools: tools, Logger: quietLogger()}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	reply, err := o.HandleTurn(context.Background(), "search for invoices")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if !strings.Contains(reply.Text, "no messages have been indexed yet") {
		t.Fatalf("tool error not surfaced in reply: %q", reply.Text)
	}
}

func TestOrchestrator_ClearHistoryRestartsConversation(t *testing.T) {
	backend := &fakeBackend{availability: model.Available}
	o := &Orchestrator{Backend: backend, Tools: &fakeTools{}, Logger: quietLogger()}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	firstSession := o.SessionID()
	if _, err := o.HandleTurn(context.Background(), "hello"); err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}

	if err := o.ClearHistory(context.Background()); err != nil {
		t.Fatalf("ClearHistory failed: %v", err)
	}
	if len(o.History()) != 0 {
		t.Fatal("history not cleared")
	}
	if o.SessionID() == firstSession {
		t.Fatal("session id not rotated")
	}
	if backend.endCalls != 1 || backend.startCalls != 2 {
		t.Fatalf("backend conversation not restarted: end=%d start=%d", backend.endCalls, backend.startCalls)
	}
	if !o.GenerativeActive() {
		t.Fatal("successful restart should keep the session generative")
	}
}

func TestOrchestrator_ClearHistoryRestartFailure(t *testing.T) {
	backend := &fakeBackend{availability: model.Available}
	o := &Orchestrator{Backend: backend, Tools: &fakeTools{}, Logger: quietLogger()}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	backend.startErr = errors.New("runtime gone")
	if err := o.ClearHistory(context.Background()); err == nil {
		t.Fatal("expected restart error")
	}
	if o.GenerativeActive() {
		t.Fatal("failed restart must commit the session to fallback")
	}
}

func TestOrchestrator_SummarizationClarification(t *testing.T) {
	tools := &fakeTools{}
	o := &Orchestrator{Backend: &fakeBackend{availability: model.NotAvailable}, Tools: tools, Logger: quietLogger()}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	reply, err := o.HandleTurn(context.Background(), "summarize my chat with dana")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if tools.lastTool != "" {
		t.Fatalf("clarification must not call a tool, called %s", tools.lastTool)
	}
	if !strings.Contains(reply.Text, "can't summarize") {
		t.Fatalf("unexpected clarification: %q", reply.Text)
	}
}
