package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"msgmcp/internal/model"
)

// threadStore is the slice of the message store the outbox needs.
type threadStore interface {
	GetThreadByAddress(ctx context.Context, address string) (model.Thread, error)
	InsertThread(ctx context.Context, thread model.Thread) (int64, error)
	InsertMessage(ctx context.Context, msg model.Message) (int64, error)
}

// Deliverer hands a composed message to the platform messaging stack. The
// message is already persisted when Deliver runs; delivery failures surface
// to the caller but do not roll the row back.
type Deliverer interface {
	Deliver(ctx context.Context, address, body string) error
}

// Outbox implements model.Transport over the local message store. Sending
// resolves (or creates) the thread for the recipient address, records the
// outgoing message, then attempts platform delivery.
type Outbox struct {
	Store     threadStore
	Deliverer Deliverer

	// Now is overridable for tests.
	Now func() time.Time

	// Logger is optional; nil falls back to the standard library logger.
	Logger *log.Logger
}

func (o *Outbox) SendMessage(ctx context.Context, address, body string) (int64, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return 0, errors.New("address must not be empty")
	}
	if strings.TrimSpace(body) == "" {
		return 0, errors.New("body must not be empty")
	}

	threadID, err := o.resolveThread(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("resolve thread for %q: %w", address, err)
	}

	messageID, err := o.Store.InsertMessage(ctx, model.Message{
		ThreadID: threadID,
		Address:  address,
		Body:     body,
		DateUnix: o.now().Unix(),
		Type:     model.TypeSent,
		Read:     true,
	})
	if err != nil {
		return 0, fmt.Errorf("record outgoing message: %w", err)
	}

	if o.Deliverer != nil {
		if err := o.Deliverer.Deliver(ctx, address, body); err != nil {
			o.logf("delivery failed for message %d to %s: %v", messageID, address, err)
			return 0, fmt.Errorf("deliver to %q: %w", address, err)
		}
	}
	return messageID, nil
}

func (o *Outbox) resolveThread(ctx context.Context, address string) (int64, error) {
	thread, err := o.Store.GetThreadByAddress(ctx, address)
	if err == nil {
		return thread.ThreadID, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return 0, err
	}
	return o.Store.InsertThread(ctx, model.Thread{
		Address:      address,
		LastActivity: o.now().Unix(),
	})
}

func (o *Outbox) now() time.Time {
	if o != nil && o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Outbox) logf(format string, args ...interface{}) {
	if o != nil && o.Logger != nil {
		o.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
