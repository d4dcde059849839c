package search

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"strings"
)

// Scope selects which entity types a query runs against.
type Scope string

const (
	ScopeThreads  Scope = "threads"
	ScopeMessages Scope = "messages"
	ScopeAll      Scope = "all"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Engine runs ranked keyword queries against the FTS index, joining back to
// the primary tables for display fields and visibility filters. It does not
// own the database handle.
type Engine struct {
	db  *sql.DB
	log *slog.Logger
}

func NewEngine(db *sql.DB, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{db: db, log: logger}
}

type Request struct {
	Query  string
	Scope  Scope
	Limit  int
	Offset int
}

// ThreadHit is one ranked thread match. Rank is the bm25 score of the title
// match; lower is better.
type ThreadHit struct {
	ThreadID            string  `json:"id"`
	Title               string  `json:"title"`
	ModelID             string  `json:"model_id"`
	OwnerID             string  `json:"owner_id"`
	CreatedAtUnixMs     int64   `json:"created_at_unix_ms"`
	UpdatedAtUnixMs     int64   `json:"updated_at_unix_ms"`
	LastMessageAtUnixMs int64   `json:"last_message_at_unix_ms"`
	Rank                float64 `json:"rank"`
}

// MessageHit is one ranked message match, carrying the owning thread's title
// so callers need no second lookup.
type MessageHit struct {
	MessageID       string  `json:"id"`
	ThreadID        string  `json:"thread_id"`
	Role            string  `json:"role"`
	OwnerID         string  `json:"owner_id"`
	Content         string  `json:"content"`
	CreatedAtUnixMs int64   `json:"created_at_unix_ms"`
	ThreadTitle     string  `json:"thread_title"`
	Rank            float64 `json:"rank"`
}

// ThreadResults is one page of thread matches. Total counts all matches under
// the same visibility filter, ignoring limit/offset.
type ThreadResults struct {
	Count int         `json:"count"`
	Total int64       `json:"total"`
	Data  []ThreadHit `json:"data"`
}

type MessageResults struct {
	Count int          `json:"count"`
	Total int64        `json:"total"`
	Data  []MessageHit `json:"data"`
}

// Response holds the per-scope result sets. Scopes are ranked independently;
// thread and message matches are never merged.
type Response struct {
	Threads  *ThreadResults  `json:"threads,omitempty"`
	Messages *MessageResults `json:"messages,omitempty"`
}

// Search executes a ranked query for the requested scope(s).
//
// Limit is clamped to [1, 100] with a default of 10; negative offsets are
// treated as 0. An empty query is a ValidationError and never reaches the
// index.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, validationErrorf("missing query")
	}
	scope := req.Scope
	if scope == "" {
		scope = ScopeAll
	}
	switch scope {
	case ScopeThreads, ScopeMessages, ScopeAll:
	default:
		return nil, validationErrorf("unknown scope: %q", req.Scope)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	match := compileMatch(query)

	var resp Response
	if scope == ScopeThreads || scope == ScopeAll {
		tr, err := e.searchThreads(ctx, match, limit, offset)
		if err != nil {
			e.log.Error("thread search failed", "query", query, "error", err)
			return nil, err
		}
		resp.Threads = tr
	}
	if scope == ScopeMessages || scope == ScopeAll {
		mr, err := e.searchMessages(ctx, match, limit, offset)
		if err != nil {
			e.log.Error("message search failed", "query", query, "error", err)
			return nil, err
		}
		resp.Messages = mr
	}
	return &resp, nil
}

// Soft-deleted threads keep their index documents; visibility is enforced
// here, not at index time. Ties on rank break by recency, then id, so paging
// is stable.
const threadSearchSQL = `
SELECT
  t.thread_id, t.title, t.model_id, t.owner_id,
  t.created_at_unix_ms, t.updated_at_unix_ms, t.last_message_at_unix_ms,
  bm25(threads_fts) AS rank
FROM threads_fts
JOIN threads t ON t.thread_id = threads_fts.thread_id
WHERE threads_fts MATCH ? AND t.deleted_at_unix_ms IS NULL
ORDER BY rank ASC, t.last_message_at_unix_ms DESC, t.thread_id ASC
LIMIT ? OFFSET ?
`

const threadCountSQL = `
SELECT COUNT(1)
FROM threads_fts
JOIN threads t ON t.thread_id = threads_fts.thread_id
WHERE threads_fts MATCH ? AND t.deleted_at_unix_ms IS NULL
`

func (e *Engine) searchThreads(ctx context.Context, match string, limit, offset int) (*ThreadResults, error) {
	rows, err := e.db.QueryContext(ctx, threadSearchSQL, match, limit, offset)
	if err != nil {
		return nil, storeErr("search threads", err)
	}
	defer rows.Close()

	data := make([]ThreadHit, 0, limit)
	for rows.Next() {
		var h ThreadHit
		if err := rows.Scan(
			&h.ThreadID,
			&h.Title,
			&h.ModelID,
			&h.OwnerID,
			&h.CreatedAtUnixMs,
			&h.UpdatedAtUnixMs,
			&h.LastMessageAtUnixMs,
			&h.Rank,
		); err != nil {
			return nil, storeErr("scan thread hit", err)
		}
		data = append(data, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate thread hits", err)
	}

	var total int64
	if err := e.db.QueryRowContext(ctx, threadCountSQL, match).Scan(&total); err != nil {
		return nil, storeErr("count thread hits", err)
	}

	return &ThreadResults{Count: len(data), Total: total, Data: data}, nil
}

// Message matches in soft-deleted threads and system-authored messages are
// never surfaced, regardless of content match.
const messageSearchSQL = `
SELECT
  m.message_id, m.thread_id, m.role, m.owner_id, m.content,
  m.created_at_unix_ms, t.title,
  bm25(messages_fts) AS rank
FROM messages_fts
JOIN messages m ON m.message_id = messages_fts.message_id
JOIN threads t ON t.thread_id = m.thread_id
WHERE messages_fts MATCH ?
  AND t.deleted_at_unix_ms IS NULL
  AND m.role != 'system'
ORDER BY rank ASC, m.created_at_unix_ms DESC, m.message_id ASC
LIMIT ? OFFSET ?
`

const messageCountSQL = `
SELECT COUNT(1)
FROM messages_fts
JOIN messages m ON m.message_id = messages_fts.message_id
JOIN threads t ON t.thread_id = m.thread_id
WHERE messages_fts MATCH ?
  AND t.deleted_at_unix_ms IS NULL
  AND m.role != 'system'
`

func (e *Engine) searchMessages(ctx context.Context, match string, limit, offset int) (*MessageResults, error) {
	rows, err := e.db.QueryContext(ctx, messageSearchSQL, match, limit, offset)
	if err != nil {
		return nil, storeErr("search messages", err)
	}
	defer rows.Close()

	data := make([]MessageHit, 0, limit)
	for rows.Next() {
		var h MessageHit
		if err := rows.Scan(
			&h.MessageID,
			&h.ThreadID,
			&h.Role,
			&h.OwnerID,
			&h.Content,
			&h.CreatedAtUnixMs,
			&h.ThreadTitle,
			&h.Rank,
		); err != nil {
			return nil, storeErr("scan message hit", err)
		}
		data = append(data, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate message hits", err)
	}

	var total int64
	if err := e.db.QueryRowContext(ctx, messageCountSQL, match).Scan(&total); err != nil {
		return nil, storeErr("count message hits", err)
	}

	return &MessageResults{Count: len(data), Total: total, Data: data}, nil
}
