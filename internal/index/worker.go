package index

import (
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"time"

	"msgmcp/internal/model"
)

// MessageSource is the slice of the store the worker needs: fetching
// messages whose embedding is missing or stale and committing fresh vectors.
type MessageSource interface {
	GetMessagesNeedingEmbedding(ctx context.Context, limit int) ([]model.Message, error)
	UpdateEmbedding(ctx context.Context, messageID int64, vector []float32, version int, indexedAtUnix int64) error
	CurrentEmbeddingVersion(ctx context.Context) (int, error)
}

// Worker incrementally embeds message bodies. Each RunOnce cycle drains at
// most one batch; Backfill repeats cycles until the pending set is empty, so
// n pending messages cost ceil(n/BatchSize) embedder calls.
type Worker struct {
	Source    MessageSource
	Embedder  model.Embedder
	BatchSize int

	// Now is overridable so tests can pin indexed_at timestamps.
	Now func() time.Time

	// OnIndexed, if non-nil, is invoked after each message's vector has been
	// committed.
	OnIndexed func(messageID int64)

	// Logger is optional; when nil the standard library's log package is
	// used. Only transient failures and fatal Run() conditions are logged.
	Logger *log.Logger

	// ErrCh is an optional channel that receives fatal errors before Run
	// returns. The channel is never closed by Worker.
	ErrCh chan error
}

// RunOnce embeds one batch of pending messages and reports how many were
// committed. A zero count with a nil error means the backlog is empty.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if w.Source == nil || w.Embedder == nil {
		return 0, errors.New("source and embedder are required")
	}

	batchSize := w.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	pending, err := w.Source.GetMessagesNeedingEmbedding(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	inputs := make([]string, len(pending))
	for i, msg := range pending {
		inputs[i] = msg.Body
	}

	vectors, err := w.Embedder.Embed(ctx, inputs)
	if err != nil {
		// transient failures leave the batch pending; it will be re-fetched
		// on the next cycle.
		if isTransientEmbedError(err) {
			return 0, err
		}
		return 0, errors.Join(ErrFatal, err)
	}
	if len(vectors) != len(pending) {
		return 0, errors.Join(ErrFatal, errors.New("embedding vector count mismatch"))
	}

	version := w.Embedder.Version()
	indexedAt := w.now().Unix()
	committed := 0
	for i, msg := range pending {
		if err := w.Source.UpdateEmbedding(ctx, msg.MessageID, vectors[i], version, indexedAt); err != nil {
			// the remaining messages stay pending and are picked up next
			// cycle; partial progress is fine because each row commits
			// independently.
			w.logf("embedding commit failed for message %d: %v", msg.MessageID, err)
			return committed, err
		}
		committed++
		if w.OnIndexed != nil {
			w.OnIndexed(msg.MessageID)
		}
	}
	return committed, nil
}

// Backfill runs batches until the pending set is drained, returning the
// total number of messages embedded.
func (w *Worker) Backfill(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := w.RunOnce(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

// Run polls for pending messages on the given interval. Retryable errors
// back off exponentially; fatal errors are logged, sent on ErrCh when one is
// configured, and returned.
func (w *Worker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	backoff := interval
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, err := w.RunOnce(ctx)
			if err != nil {
				if isRetryable(err) {
					w.logf("index cycle failed (retryable): %v; backing off %v", err, backoff)
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(backoff):
					}
					backoff *= 2
					if backoff > maxBackoff {
						backoff = maxBackoff
					}
					continue
				}
				w.logf("index cycle failed (fatal): %v", err)
				if w.ErrCh != nil {
					select {
					case w.ErrCh <- err:
					default:
					}
				}
				return err
			}
			backoff = interval
		}
	}
}

func (w *Worker) now() time.Time {
	if w != nil && w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Worker) logf(format string, args ...interface{}) {
	if w != nil && w.Logger != nil {
		w.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// ErrFatal marks errors the Run loop must not retry.
var ErrFatal = errors.New("fatal")

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrFatal) {
		return false
	}
	return true
}

// isTransientEmbedError categorises embedder failures. Network hiccups,
// timeouts, rate limits, and cancellations leave work pending; anything else
// is treated as permanent.
func isTransientEmbedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var pe *model.ProviderError
	if errors.As(err, &pe) && pe.Retryable {
		return true
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "rate limit") || strings.Contains(lower, "timeout") {
		return true
	}
	return false
}
