package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"msgmcp/internal/model"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to a local generative runtime over HTTP. The runtime may be
// absent entirely; CheckAvailability reports that without returning an
// error so callers can fall back instead of failing.
type Client struct {
	BaseURL string
	Model   string

	// EmbedModel and EmbedVersion configure the embedding side. EmbedVersion
	// identifies the vector space; it must be advanced whenever EmbedModel
	// changes.
	EmbedModel   string
	EmbedVersion int

	HTTPClient *http.Client

	mu             sync.Mutex
	conversationID string
}

func NewClient(baseURL, generativeModel, embedModel string, embedVersion int) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Model:        generativeModel,
		EmbedModel:   embedModel,
		EmbedVersion: embedVersion,
	}
}

func (c *Client) CheckAvailability(ctx context.Context) model.Availability {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/health", nil)
	if err != nil {
		return model.NotAvailable
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return model.NotAvailable
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusOK {
		return model.Available
	}
	return model.NotAvailable
}

func (c *Client) Initialize(ctx context.Context) error {
	payload := map[string]string{"model": c.Model}
	return c.post(ctx, "/v1/models/load", payload, nil)
}

func (c *Client) StartConversation(ctx context.Context) error {
	var out struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := c.post(ctx, "/v1/conversations", map[string]string{"model": c.Model}, &out); err != nil {
		return err
	}
	if out.ConversationID == "" {
		return errors.New("runtime returned empty conversation id")
	}
	c.mu.Lock()
	c.conversationID = out.ConversationID
	c.mu.Unlock()
	return nil
}

func (c *Client) SendMessageInConversation(ctx context.Context, text string, maxContextMessages int) (model.BackendReply, error) {
	c.mu.Lock()
	conversationID := c.conversationID
	c.mu.Unlock()
	if conversationID == "" {
		return model.BackendReply{}, errors.New("no active conversation")
	}

	payload := map[string]interface{}{
		"text":                 text,
		"max_context_messages": maxContextMessages,
	}
	var out struct {
		Answer          string `json:"answer"`
		ContextMessages int    `json:"context_messages"`
	}
	path := "/v1/conversations/" + conversationID + "/messages"
	if err := c.post(ctx, path, payload, &out); err != nil {
		return model.BackendReply{}, err
	}
	return model.BackendReply{Answer: out.Answer, ContextMessages: out.ContextMessages}, nil
}

func (c *Client) EndConversation(ctx context.Context) error {
	c.mu.Lock()
	conversationID := c.conversationID
	c.conversationID = ""
	c.mu.Unlock()
	if conversationID == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/v1/conversations/"+conversationID, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return statusError(resp.StatusCode, "end conversation")
	}
	return nil
}

func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	payload := map[string]interface{}{
		"model":  c.EmbedModel,
		"inputs": inputs,
	}
	var out struct {
		Vectors [][]float32 `json:"vectors"`
	}
	if err := c.post(ctx, "/v1/embeddings", payload, &out); err != nil {
		return nil, err
	}
	if len(out.Vectors) != len(inputs) {
		return nil, fmt.Errorf("embeddings: expected %d vectors, got %d", len(inputs), len(out.Vectors))
	}
	return out.Vectors, nil
}

func (c *Client) Version() int {
	if c.EmbedVersion <= 0 {
		return 1
	}
	return c.EmbedVersion
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return &model.ProviderError{Code: "network", Message: err.Error(), Retryable: true, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: defaultRequestTimeout}
}

// statusError maps an HTTP status to a ProviderError. Rate limits and
// server-side failures are retryable; client-side mistakes are not.
func statusError(status int, detail string) error {
	retryable := status == http.StatusTooManyRequests || status >= 500
	code := "http_error"
	switch {
	case status == http.StatusTooManyRequests:
		code = "rate_limited"
	case status >= 500:
		code = "server_error"
	case status == http.StatusNotFound:
		code = "not_found"
	case status >= 400:
		code = "bad_request"
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &model.ProviderError{Code: code, Message: detail, Retryable: retryable, StatusCode: status}
}
