package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"msgmcp/internal/model"
)

func newTestRuntime(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "local-chat", "local-embed", 3)
	c.HTTPClient = srv.Client()
	return c, srv
}

func TestClient_CheckAvailability(t *testing.T) {
	c, _ := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if got := c.CheckAvailability(context.Background()); got != model.Available {
		t.Fatalf("expected available, got %v", got)
	}

	down := NewClient("http://127.0.0.1:1", "m", "e", 1)
	if got := down.CheckAvailability(context.Background()); got != model.NotAvailable {
		t.Fatalf("expected unavailable for unreachable runtime, got %v", got)
	}
}

func TestClient_ConversationFlow(t *testing.T) {
	var sawMaxContext int
	c, _ := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/conversations" && r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]string{"conversation_id": "conv-1"})
		case r.URL.Path == "/v1/conversations/conv-1/messages":
			var in struct {
				Text               string `json:"text"`
				MaxContextMessages int    `json:"max_context_messages"`
			}
			_ = json.NewDecoder(r.Body).Decode(&in)
			sawMaxContext = in.MaxContextMessages
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"answer": "echo: " + in.Text, "context_messages": 4})
		case r.URL.Path == "/v1/conversations/conv-1" && r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	if err := c.StartConversation(ctx); err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}
	reply, err := c.SendMessageInConversation(ctx, "hi", 10)
	if err != nil {
		t.Fatalf("SendMessageInConversation failed: %v", err)
	}
	if reply.Answer != "echo: hi" || reply.ContextMessages != 4 {
		t.Fatalf("unexpected reply: %#v", reply)
	}
	if sawMaxContext != 10 {
		t.Fatalf("max_context_messages not forwarded, got %d", sawMaxContext)
	}
	if err := c.EndConversation(ctx); err != nil {
		t.Fatalf("EndConversation failed: %v", err)
	}

	// sending after the conversation ended must fail locally, not hit the
	// runtime.
	if _, err := c.SendMessageInConversation(ctx, "hi again", 10); err == nil {
		t.Fatal("expected error after EndConversation")
	}
}

func TestClient_EndConversation_NoSessionIsNoop(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "m", "e", 1)
	if err := c.EndConversation(context.Background()); err != nil {
		t.Fatalf("EndConversation without session should be a no-op, got %v", err)
	}
}

func TestClient_Embed(t *testing.T) {
	c, _ := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var in struct {
			Inputs []string `json:"inputs"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		vectors := make([][]float32, len(in.Inputs))
		for i := range vectors {
			vectors[i] = []float32{float32(i), 1}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"vectors": vectors})
	})

	vectors, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if c.Version() != 3 {
		t.Fatalf("expected configured embed version 3, got %d", c.Version())
	}
}

func TestClient_StatusErrorMapping(t *testing.T) {
	c, _ := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.Embed(context.Background(), []string{"a"})
	var pe *model.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !pe.Retryable || pe.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("429 must be retryable: %#v", pe)
	}

	c2, _ := newTestRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown model", http.StatusBadRequest)
	})
	err = c2.Initialize(context.Background())
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Retryable {
		t.Fatalf("400 must not be retryable: %#v", pe)
	}
}
