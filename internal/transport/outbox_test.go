package transport

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"msgmcp/internal/model"
)

type fakeThreadStore struct {
	threads  map[string]model.Thread
	messages []model.Message
	nextID   int64
}

func newFakeThreadStore() *fakeThreadStore {
	return &fakeThreadStore{threads: map[string]model.Thread{}, nextID: 1}
}

func (s *fakeThreadStore) GetThreadByAddress(_ context.Context, address string) (model.Thread, error) {
	thread, ok := s.threads[address]
	if !ok {
		return model.Thread{}, model.ErrNotFound
	}
	return thread, nil
}

func (s *fakeThreadStore) InsertThread(_ context.Context, thread model.Thread) (int64, error) {
	thread.ThreadID = s.nextID
	s.nextID++
	s.threads[thread.Address] = thread
	return thread.ThreadID, nil
}

func (s *fakeThreadStore) InsertMessage(_ context.Context, msg model.Message) (int64, error) {
	msg.MessageID = s.nextID
	s.nextID++
	s.messages = append(s.messages, msg)
	return msg.MessageID, nil
}

type fakeDeliverer struct {
	delivered []string
	err       error
}

func (d *fakeDeliverer) Deliver(_ context.Context, address, _ string) error {
	if d.err != nil {
		return d.err
	}
	d.delivered = append(d.delivered, address)
	return nil
}

func TestOutbox_SendMessage_CreatesThread(t *testing.T) {
	store := newFakeThreadStore()
	del := &fakeDeliverer{}
	now := time.Unix(1700000000, 0)
	ob := &Outbox{Store: store, Deliverer: del, Now: func() time.Time { return now }}

	id, err := ob.SendMessage(context.Background(), "+15550100", "on my way")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero message id")
	}
	if len(store.messages) != 1 {
		t.Fatalf("expected 1 recorded message, got %d", len(store.messages))
	}
	msg := store.messages[0]
	if msg.Type != model.TypeSent || !msg.Read || msg.DateUnix != now.Unix() {
		t.Fatalf("unexpected message fields: %#v", msg)
	}
	if _, ok := store.threads["+15550100"]; !ok {
		t.Fatal("thread for new recipient was not created")
	}
	if len(del.delivered) != 1 {
		t.Fatal("message was not handed to the deliverer")
	}
}

func TestOutbox_SendMessage_ReusesExistingThread(t *testing.T) {
	store := newFakeThreadStore()
	existing, _ := store.InsertThread(context.Background(), model.Thread{Address: "+15550100"})
	ob := &Outbox{Store: store}

	if _, err := ob.SendMessage(context.Background(), "+15550100", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if store.messages[0].ThreadID != existing {
		t.Fatalf("expected reuse of thread %d, got %d", existing, store.messages[0].ThreadID)
	}
	if len(store.threads) != 1 {
		t.Fatalf("a duplicate thread was created: %#v", store.threads)
	}
}

func TestOutbox_SendMessage_ValidatesInput(t *testing.T) {
	ob := &Outbox{Store: newFakeThreadStore()}
	if _, err := ob.SendMessage(context.Background(), "  ", "body"); err == nil {
		t.Fatal("expected error for blank address")
	}
	if _, err := ob.SendMessage(context.Background(), "+15550100", "  "); err == nil {
		t.Fatal("expected error for blank body")
	}
}

func TestOutbox_SendMessage_DeliveryFailure(t *testing.T) {
	store := newFakeThreadStore()
	boom := errors.New("radio off")
	ob := &Outbox{Store: store, Deliverer: &fakeDeliverer{err: boom}, Logger: log.New(io.Discard, "", 0)}

	_, err := ob.SendMessage(context.Background(), "+15550100", "hello")
	if !errors.Is(err, boom) {
		t.Fatalf("expected delivery error, got %v", err)
	}
	// the outgoing message stays recorded even when delivery fails.
	if len(store.messages) != 1 {
		t.Fatalf("expected message to remain recorded, got %d", len(store.messages))
	}
}
