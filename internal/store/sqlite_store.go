package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"msgmcp/internal/model"
)

type SQLiteStore struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return err
	}

	schema := `
CREATE TABLE IF NOT EXISTS threads (
  thread_id INTEGER PRIMARY KEY AUTOINCREMENT,
  address TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  snippet TEXT NOT NULL DEFAULT '',
  message_count INTEGER NOT NULL DEFAULT 0,
  last_activity INTEGER NOT NULL DEFAULT 0,
  archived INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
  message_id INTEGER PRIMARY KEY AUTOINCREMENT,
  thread_id INTEGER NOT NULL,
  address TEXT NOT NULL,
  body TEXT NOT NULL,
  date_unix INTEGER NOT NULL DEFAULT 0,
  type TEXT NOT NULL DEFAULT 'unknown',
  read_flag INTEGER NOT NULL DEFAULT 0,
  vector BLOB,
  embedding_version INTEGER NOT NULL DEFAULT 0,
  indexed_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS index_meta (
  key TEXT PRIMARY KEY,
  value INTEGER NOT NULL
);

-- thread listing is by recency, message listing by thread+date; both paths
-- are on the query critical path so they get covering indexes up front.
CREATE INDEX IF NOT EXISTS idx_threads_last_activity ON threads(archived, last_activity);
CREATE INDEX IF NOT EXISTS idx_messages_thread_date ON messages(thread_id, date_unix);
CREATE INDEX IF NOT EXISTS idx_messages_embedding_version ON messages(embedding_version);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) GetThreadByID(ctx context.Context, threadID int64) (model.Thread, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return model.Thread{}, err
	}

	row := db.QueryRowContext(
		ctx,
		`SELECT thread_id, address, display_name, snippet, message_count, last_activity, archived
		 FROM threads WHERE thread_id = ?`,
		threadID,
	)
	thread, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Thread{}, model.ErrNotFound
	}
	return thread, err
}

func (s *SQLiteStore) GetThreadByAddress(ctx context.Context, address string) (model.Thread, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return model.Thread{}, err
	}

	row := db.QueryRowContext(
		ctx,
		`SELECT thread_id, address, display_name, snippet, message_count, last_activity, archived
		 FROM threads WHERE address = ? ORDER BY last_activity DESC LIMIT 1`,
		address,
	)
	thread, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Thread{}, model.ErrNotFound
	}
	return thread, err
}

func (s *SQLiteStore) GetRecentThreads(ctx context.Context, limit int) ([]model.Thread, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.QueryContext(
		ctx,
		`SELECT thread_id, address, display_name, snippet, message_count, last_activity, archived
		 FROM threads WHERE archived = 0
		 ORDER BY last_activity DESC, thread_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	threads := make([]model.Thread, 0, limit)
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, thread)
	}
	return threads, rows.Err()
}

func (s *SQLiteStore) InsertThread(ctx context.Context, thread model.Thread) (int64, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(
		ctx,
		`INSERT INTO threads(address, display_name, snippet, message_count, last_activity, archived)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		thread.Address,
		thread.DisplayName,
		thread.Snippet,
		thread.MessageCount,
		thread.LastActivity,
		boolToInt(thread.Archived),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) UpdateThread(ctx context.Context, thread model.Thread) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(
		ctx,
		`UPDATE threads SET address = ?, display_name = ?, snippet = ?, message_count = ?, last_activity = ?, archived = ?
		 WHERE thread_id = ?`,
		thread.Address,
		thread.DisplayName,
		thread.Snippet,
		thread.MessageCount,
		thread.LastActivity,
		boolToInt(thread.Archived),
		thread.ThreadID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return model.ErrNotFound
	}
	return nil
}

// InsertMessage writes the message and refreshes the owning thread's
// snippet, message count, and last-activity in one transaction so readers
// never observe a thread summary behind its own messages.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg model.Message) (int64, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO messages(thread_id, address, body, date_unix, type, read_flag, vector, embedding_version, indexed_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ThreadID,
		msg.Address,
		msg.Body,
		msg.DateUnix,
		msg.Type.String(),
		boolToInt(msg.Read),
		encodeVector(msg.Vector),
		msg.EmbeddingVersion,
		msg.IndexedAtUnix,
	)
	if err != nil {
		return 0, err
	}
	messageID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE threads SET snippet = ?, message_count = message_count + 1,
		   last_activity = MAX(last_activity, ?)
		 WHERE thread_id = ?`,
		snippet(msg.Body, 120),
		msg.DateUnix,
		msg.ThreadID,
	); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return messageID, nil
}

func (s *SQLiteStore) GetRecentMessages(ctx context.Context, limit int) ([]model.Message, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.QueryContext(
		ctx,
		messageSelect+` ORDER BY date_unix DESC, message_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows, limit)
}

func (s *SQLiteStore) GetMessagesForThread(ctx context.Context, threadID int64, limit int) ([]model.Message, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.QueryContext(
		ctx,
		messageSelect+` WHERE thread_id = ? ORDER BY date_unix DESC, message_id DESC LIMIT ?`,
		threadID,
		limit,
	)
	if err != nil {
		return nil, err
	}
	messages, err := collectMessages(rows, limit)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		// empty thread and missing thread look identical here; only the
		// latter is an error.
		if _, err := s.GetThreadByID(ctx, threadID); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// SearchMessagesByText is the lexical fallback path; it works regardless of
// embedding state.
func (s *SQLiteStore) SearchMessagesByText(ctx context.Context, query string, limit int) ([]model.Message, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := db.QueryContext(
		ctx,
		messageSelect+` WHERE body LIKE ? ESCAPE '\' ORDER BY date_unix DESC, message_id DESC LIMIT ?`,
		pattern,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows, limit)
}

// GetMessagesNeedingEmbedding returns messages with no vector or a vector
// produced at a stale version, oldest first, bounded by limit.
func (s *SQLiteStore) GetMessagesNeedingEmbedding(ctx context.Context, limit int) ([]model.Message, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	version, err := s.CurrentEmbeddingVersion(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(
		ctx,
		messageSelect+` WHERE vector IS NULL OR embedding_version <> ? ORDER BY message_id LIMIT ?`,
		version,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows, limit)
}

// GetEmbeddedMessagesBatch pages through messages that have a committed
// vector, in stable message_id order so offset pagination never skips or
// repeats rows between calls.
func (s *SQLiteStore) GetEmbeddedMessagesBatch(ctx context.Context, limit, offset int) ([]model.Message, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.QueryContext(
		ctx,
		messageSelect+` WHERE vector IS NOT NULL ORDER BY message_id LIMIT ? OFFSET ?`,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows, limit)
}

func (s *SQLiteStore) UpdateEmbedding(ctx context.Context, messageID int64, vector []float32, version int, indexedAtUnix int64) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(
		ctx,
		`UPDATE messages SET vector = ?, embedding_version = ?, indexed_at = ? WHERE message_id = ?`,
		encodeVector(vector),
		version,
		indexedAtUnix,
		messageID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CurrentEmbeddingVersion(ctx context.Context) (int, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'embedding_version'`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		// first run: version 1 is implied until an operator advances it.
		if setErr := s.SetEmbeddingVersion(ctx, 1); setErr != nil {
			return 0, setErr
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *SQLiteStore) SetEmbeddingVersion(ctx context.Context, version int) error {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(
		ctx,
		`INSERT INTO index_meta(key, value) VALUES('embedding_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		version,
	)
	return err
}

// Stats summarizes store contents for the status command.
type Stats struct {
	Threads  int64
	Messages int64
	Embedded int64
	Pending  int64
}

func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	db, err := s.ensureDB(ctx)
	if err != nil {
		return Stats{}, err
	}
	version, err := s.CurrentEmbeddingVersion(ctx)
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads`).Scan(&st.Threads); err != nil {
		return Stats{}, err
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&st.Messages); err != nil {
		return Stats{}, err
	}
	if err := db.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM messages WHERE vector IS NOT NULL AND embedding_version = ?`,
		version,
	).Scan(&st.Embedded); err != nil {
		return Stats{}, err
	}
	st.Pending = st.Messages - st.Embedded
	return st, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) ensureDB(ctx context.Context) (*sql.DB, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, errors.New("sqlite db not initialized")
	}
	return s.db, nil
}

const messageSelect = `SELECT message_id, thread_id, address, body, date_unix, type, read_flag, vector, embedding_version, indexed_at FROM messages`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner) (model.Thread, error) {
	var thread model.Thread
	var archived int
	if err := row.Scan(
		&thread.ThreadID,
		&thread.Address,
		&thread.DisplayName,
		&thread.Snippet,
		&thread.MessageCount,
		&thread.LastActivity,
		&archived,
	); err != nil {
		return model.Thread{}, err
	}
	thread.Archived = archived == 1
	return thread, nil
}

func scanMessage(row rowScanner) (model.Message, error) {
	var msg model.Message
	var typeLabel string
	var readFlag int
	var blob []byte
	if err := row.Scan(
		&msg.MessageID,
		&msg.ThreadID,
		&msg.Address,
		&msg.Body,
		&msg.DateUnix,
		&typeLabel,
		&readFlag,
		&blob,
		&msg.EmbeddingVersion,
		&msg.IndexedAtUnix,
	); err != nil {
		return model.Message{}, err
	}
	msg.Type = model.ParseMessageType(typeLabel)
	msg.Read = readFlag == 1
	msg.Vector = decodeVector(blob)
	return msg, nil
}

func collectMessages(rows *sql.Rows, capacityHint int) ([]model.Message, error) {
	defer func() { _ = rows.Close() }()

	messages := make([]model.Message, 0, capacityHint)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func snippet(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

func escapeLike(q string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(q)
}
