package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message roles. System messages are indexed like any other but are filtered
// out of search results at query time.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Message struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
	Role      string `json:"role"`
	OwnerID   string `json:"owner_id,omitempty"`
	Content   string `json:"content"`

	PromptTokens     int64 `json:"prompt_tokens,omitempty"`
	CompletionTokens int64 `json:"completion_tokens,omitempty"`
	TotalTokens      int64 `json:"total_tokens,omitempty"`

	ProviderMessageID string `json:"provider_message_id,omitempty"`
	PinnedAtUnixMs    int64  `json:"pinned_at_unix_ms,omitempty"`
	Feedback          string `json:"feedback,omitempty"`
	CreatedAtUnixMs   int64  `json:"created_at_unix_ms"`
}

func validRole(role string) bool {
	switch role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

const messageColumns = `
  message_id, thread_id, role, owner_id, content,
  prompt_tokens, completion_tokens, total_tokens,
  provider_message_id, pinned_at_unix_ms, feedback, created_at_unix_ms`

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	var pinned sql.NullInt64
	err := row.Scan(
		&m.MessageID,
		&m.ThreadID,
		&m.Role,
		&m.OwnerID,
		&m.Content,
		&m.PromptTokens,
		&m.CompletionTokens,
		&m.TotalTokens,
		&m.ProviderMessageID,
		&pinned,
		&m.Feedback,
		&m.CreatedAtUnixMs,
	)
	if err != nil {
		return Message{}, err
	}
	m.PinnedAtUnixMs = pinned.Int64
	return m, nil
}

// AppendMessage inserts a message and updates the owning thread's metadata in
// the same transaction. If the thread has no title yet and this is a user
// message with non-empty content, a title is derived from the content.
//
// Returns sql.ErrNoRows if the thread does not exist.
func (s *Store) AppendMessage(ctx context.Context, m Message) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	m.MessageID = strings.TrimSpace(m.MessageID)
	m.ThreadID = strings.TrimSpace(m.ThreadID)
	m.Role = strings.TrimSpace(m.Role)
	m.OwnerID = strings.TrimSpace(m.OwnerID)
	m.Content = strings.TrimSpace(m.Content)
	m.ProviderMessageID = strings.TrimSpace(m.ProviderMessageID)
	m.Feedback = strings.TrimSpace(m.Feedback)

	if m.MessageID == "" || m.ThreadID == "" {
		return errors.New("invalid message")
	}
	if !validRole(m.Role) {
		return fmt.Errorf("invalid role: %q", m.Role)
	}

	now := time.Now().UnixMilli()
	if m.CreatedAtUnixMs <= 0 {
		m.CreatedAtUnixMs = now
	}

	titleCandidate := ""
	if m.Role == RoleUser {
		titleCandidate = buildTitleCandidate(m.Content)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Ensure the thread exists.
	var existingTitle string
	if err := tx.QueryRowContext(ctx, `
SELECT title
FROM threads
WHERE thread_id = ?
`, m.ThreadID).Scan(&existingTitle); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO messages(
  message_id, thread_id, role, owner_id, content,
  prompt_tokens, completion_tokens, total_tokens,
  provider_message_id, pinned_at_unix_ms, feedback, created_at_unix_ms
) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		m.MessageID,
		m.ThreadID,
		m.Role,
		m.OwnerID,
		m.Content,
		m.PromptTokens,
		m.CompletionTokens,
		m.TotalTokens,
		m.ProviderMessageID,
		nullableMs(m.PinnedAtUnixMs),
		m.Feedback,
		m.CreatedAtUnixMs,
	); err != nil {
		return err
	}

	nextTitle := strings.TrimSpace(existingTitle)
	if nextTitle == "" && titleCandidate != "" {
		nextTitle = titleCandidate
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE threads
SET title = ?,
    updated_at_unix_ms = ?,
    last_message_at_unix_ms = ?
WHERE thread_id = ?
`,
		nextTitle,
		now,
		m.CreatedAtUnixMs,
		m.ThreadID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, errors.New("invalid request")
	}

	row := s.db.QueryRowContext(ctx, `
SELECT`+messageColumns+`
FROM messages
WHERE message_id = ?
`, messageID)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a thread's messages in ascending creation order.
func (s *Store) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
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
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT`+messageColumns+`
FROM messages
WHERE thread_id = ?
ORDER BY created_at_unix_ms ASC, message_id ASC
LIMIT ?
`, threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMessageContent replaces a message's content in place. The update
// trigger rewrites the index document, so a subsequent search reflects the new
// content, not the content at creation time.
func (s *Store) UpdateMessageContent(ctx context.Context, messageID string, content string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return errors.New("invalid request")
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE messages
SET content = ?
WHERE message_id = ?
`, strings.TrimSpace(content), messageID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) SetMessageFeedback(ctx context.Context, messageID string, feedback string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	messageID = strings.TrimSpace(messageID)
	feedback = strings.TrimSpace(feedback)
	if messageID == "" {
		return errors.New("invalid request")
	}
	switch feedback {
	case "", "up", "down":
	default:
		return fmt.Errorf("invalid feedback: %q", feedback)
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE messages
SET feedback = ?
WHERE message_id = ?
`, feedback, messageID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return errors.New("invalid request")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE message_id = ?`, messageID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func buildTitleCandidate(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.TrimSpace(text)
	return truncateRunes(text, 48)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n >= max {
			return strings.TrimSpace(s[:i])
		}
		n++
	}
	return strings.TrimSpace(s)
}
