package model

import "errors"

var (
	// ErrNotFound is returned by stores for missing threads or messages.
	ErrNotFound = errors.New("not found")
	// ErrIndexNotReady marks semantic search attempted before any message
	// has been embedded at the current version.
	ErrIndexNotReady = errors.New("embedding index not ready")
)

// ProviderError wraps failures from HTTP providers (embedder, generative
// runtime) with enough structure for callers to decide on retries without
// string matching.
type ProviderError struct {
	Code       string
	Message    string
	Retryable  bool
	StatusCode int
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
