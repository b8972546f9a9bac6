package model

import "context"

// MessageStore is the persistence boundary for messages and threads. The
// core never assumes a specific storage engine; internal/store provides the
// SQLite implementation used by the CLI.
type MessageStore interface {
	Init(ctx context.Context) error

	GetThreadByID(ctx context.Context, threadID int64) (Thread, error)
	GetThreadByAddress(ctx context.Context, address string) (Thread, error)
	GetRecentThreads(ctx context.Context, limit int) ([]Thread, error)
	InsertThread(ctx context.Context, thread Thread) (int64, error)
	UpdateThread(ctx context.Context, thread Thread) error

	InsertMessage(ctx context.Context, msg Message) (int64, error)
	GetRecentMessages(ctx context.Context, limit int) ([]Message, error)
	GetMessagesForThread(ctx context.Context, threadID int64, limit int) ([]Message, error)
	SearchMessagesByText(ctx context.Context, query string, limit int) ([]Message, error)

	GetMessagesNeedingEmbedding(ctx context.Context, limit int) ([]Message, error)
	GetEmbeddedMessagesBatch(ctx context.Context, limit, offset int) ([]Message, error)
	UpdateEmbedding(ctx context.Context, messageID int64, vector []float32, version int, indexedAtUnix int64) error
	CurrentEmbeddingVersion(ctx context.Context) (int, error)
	SetEmbeddingVersion(ctx context.Context, version int) error

	Close() error
}

// Transport is the platform messaging boundary. Failures are per recipient;
// callers sending to several addresses must not let one failure abort the
// rest of the batch.
type Transport interface {
	SendMessage(ctx context.Context, address, body string) (int64, error)
}

// Embedder turns text into vectors. Version identifies the embedding model
// generation; vectors produced at an older version are stale.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Version() int
}

// VectorSearcher answers nearest-neighbor queries over committed embeddings.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, threshold float64, topK int) ([]MessageHit, error)
}

// GenerativeBackend is the on-device language model boundary.
type GenerativeBackend interface {
	CheckAvailability(ctx context.Context) Availability
	Initialize(ctx context.Context) error
	StartConversation(ctx context.Context) error
	SendMessageInConversation(ctx context.Context, text string, maxContextMessages int) (BackendReply, error)
	EndConversation(ctx context.Context) error
}
