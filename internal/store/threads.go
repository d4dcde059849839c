package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

type Thread struct {
	ThreadID string `json:"thread_id"`
	Title    string `json:"title"`
	ModelID  string `json:"model_id"`
	OwnerID  string `json:"owner_id"`

	CreatedAtUnixMs     int64 `json:"created_at_unix_ms"`
	UpdatedAtUnixMs     int64 `json:"updated_at_unix_ms"`
	PinnedAtUnixMs      int64 `json:"pinned_at_unix_ms,omitempty"`
	LastMessageAtUnixMs int64 `json:"last_message_at_unix_ms"`

	// DeletedAtUnixMs is 0 for live threads. Stored as NULL in SQLite so the
	// liveness filter is a plain "deleted_at_unix_ms IS NULL".
	DeletedAtUnixMs int64 `json:"deleted_at_unix_ms,omitempty"`
}

// Live reports whether the thread is not soft-deleted.
func (t Thread) Live() bool { return t.DeletedAtUnixMs == 0 }

const threadColumns = `
  thread_id, title, model_id, owner_id,
  created_at_unix_ms, updated_at_unix_ms,
  pinned_at_unix_ms, last_message_at_unix_ms, deleted_at_unix_ms`

func scanThread(row interface{ Scan(...any) error }) (Thread, error) {
	var t Thread
	var pinned, deleted sql.NullInt64
	err := row.Scan(
		&t.ThreadID,
		&t.Title,
		&t.ModelID,
		&t.OwnerID,
		&t.CreatedAtUnixMs,
		&t.UpdatedAtUnixMs,
		&pinned,
		&t.LastMessageAtUnixMs,
		&deleted,
	)
	if err != nil {
		return Thread{}, err
	}
	t.PinnedAtUnixMs = pinned.Int64
	t.DeletedAtUnixMs = deleted.Int64
	return t, nil
}

func nullableMs(ms int64) any {
	if ms <= 0 {
		return nil
	}
	return ms
}

func (s *Store) CreateThread(ctx context.Context, t Thread) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	t.ThreadID = strings.TrimSpace(t.ThreadID)
	t.Title = strings.TrimSpace(t.Title)
	t.ModelID = strings.TrimSpace(t.ModelID)
	t.OwnerID = strings.TrimSpace(t.OwnerID)
	if t.ThreadID == "" {
		return errors.New("invalid thread")
	}
	if len(t.Title) > 200 {
		return errors.New("title too long")
	}

	now := time.Now().UnixMilli()
	if t.CreatedAtUnixMs <= 0 {
		t.CreatedAtUnixMs = now
	}
	if t.UpdatedAtUnixMs <= 0 {
		t.UpdatedAtUnixMs = t.CreatedAtUnixMs
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO threads(
  thread_id, title, model_id, owner_id,
  created_at_unix_ms, updated_at_unix_ms,
  pinned_at_unix_ms, last_message_at_unix_ms, deleted_at_unix_ms
) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		t.ThreadID,
		t.Title,
		t.ModelID,
		t.OwnerID,
		t.CreatedAtUnixMs,
		t.UpdatedAtUnixMs,
		nullableMs(t.PinnedAtUnixMs),
		t.LastMessageAtUnixMs,
		nullableMs(t.DeletedAtUnixMs),
	)
	return err
}

func (s *Store) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, errors.New("invalid request")
	}

	row := s.db.QueryRowContext(ctx, `
SELECT`+threadColumns+`
FROM threads
WHERE thread_id = ?
`, threadID)
	t, err := scanThread(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ListThreads returns threads newest-first. Soft-deleted threads are excluded
// unless includeDeleted is set.
func (s *Store) ListThreads(ctx context.Context, limit int, includeDeleted bool) ([]Thread, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	where := "WHERE deleted_at_unix_ms IS NULL"
	if includeDeleted {
		where = ""
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT`+threadColumns+`
FROM threads
`+where+`
ORDER BY updated_at_unix_ms DESC, thread_id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Thread, 0, limit)
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) RenameThread(ctx context.Context, threadID string, title string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	title = strings.TrimSpace(title)
	if threadID == "" {
		return errors.New("invalid request")
	}
	if len(title) > 200 {
		return errors.New("title too long")
	}

	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
UPDATE threads
SET title = ?, updated_at_unix_ms = ?
WHERE thread_id = ?
`, title, now, threadID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) UpdateThreadModelID(ctx context.Context, threadID string, modelID string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	modelID = strings.TrimSpace(modelID)
	if threadID == "" {
		return errors.New("invalid request")
	}
	if modelID == "" {
		return errors.New("missing model_id")
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE threads
SET model_id = ?
WHERE thread_id = ?
`, modelID, threadID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDeleteThread marks a live thread deleted. The thread's index document is
// left in place; search filters soft-deleted threads at query time, which keeps
// RestoreThread a single UPDATE.
func (s *Store) SoftDeleteThread(ctx context.Context, threadID string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return errors.New("invalid request")
	}

	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
UPDATE threads
SET deleted_at_unix_ms = ?, updated_at_unix_ms = ?
WHERE thread_id = ? AND deleted_at_unix_ms IS NULL
`, now, now, threadID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) RestoreThread(ctx context.Context, threadID string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return errors.New("invalid request")
	}

	now := time.Now().UnixMilli()
	res, err := s.db.ExecContext(ctx, `
UPDATE threads
SET deleted_at_unix_ms = NULL, updated_at_unix_ms = ?
WHERE thread_id = ? AND deleted_at_unix_ms IS NOT NULL
`, now, threadID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PurgeThread permanently removes a thread and its messages. The index
// documents for both go away via the delete triggers, in the same transaction.
func (s *Store) PurgeThread(ctx context.Context, threadID string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return errors.New("invalid request")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE thread_id = ?`, threadID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

func (s *Store) PinThread(ctx context.Context, threadID string, pinned bool) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return errors.New("invalid request")
	}

	var pinnedAt any
	if pinned {
		pinnedAt = time.Now().UnixMilli()
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE threads
SET pinned_at_unix_ms = ?
WHERE thread_id = ?
`, pinnedAt, threadID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
