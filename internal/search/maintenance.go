package search

import (
	"context"
	"database/sql"
)

type SetupResult struct {
	TablesCreated   int `json:"tables_created"`
	TriggersCreated int `json:"triggers_created"`
	ThreadsRebuilt  int `json:"threads_rebuilt"`
	MessagesRebuilt int `json:"messages_rebuilt"`
}

type RebuildResult struct {
	ThreadsRebuilt  int `json:"threads_rebuilt"`
	MessagesRebuilt int `json:"messages_rebuilt"`
}

type Status struct {
	Threads            int64  `json:"threads"`
	Messages           int64  `json:"messages"`
	ThreadsIndexCount  int64  `json:"threads_index_count"`
	MessagesIndexCount int64  `json:"messages_index_count"`
	FTSSmokeTest       string `json:"fts_smoke_test"`
}

// Setup drops and recreates the FTS tables and sync triggers, then rebuilds
// the index from the primary tables, all in one transaction. Primary tables
// are never touched. Safe to invoke repeatedly.
func (e *Engine) Setup(ctx context.Context) (*SetupResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("setup begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range indexDropStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, storeErr("setup drop", err)
		}
	}
	res := &SetupResult{}
	for _, stmt := range indexTableStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, storeErr("setup create table", err)
		}
		res.TablesCreated++
	}
	for _, stmt := range indexTriggerStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, storeErr("setup create trigger", err)
		}
		res.TriggersCreated++
	}

	threads, messages, err := rebuildInTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	res.ThreadsRebuilt = threads
	res.MessagesRebuilt = messages

	if err := tx.Commit(); err != nil {
		return nil, storeErr("setup commit", err)
	}
	e.log.Info("index schema recreated",
		"tables", res.TablesCreated,
		"triggers", res.TriggersCreated,
		"threads_rebuilt", res.ThreadsRebuilt,
		"messages_rebuilt", res.MessagesRebuilt,
	)
	return res, nil
}

// Ensure creates the index schema only if it is missing. Used on boot so a
// fresh database is searchable without destroying an existing index on every
// restart.
func (e *Engine) Ensure(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var n int
	err := e.db.QueryRowContext(ctx, `
SELECT COUNT(1) FROM sqlite_master
WHERE type = 'table' AND name IN ('threads_fts', 'messages_fts')
`).Scan(&n)
	if err != nil {
		return storeErr("ensure index schema", err)
	}
	if n == 2 {
		return nil
	}
	_, err = e.Setup(ctx)
	return err
}

// Rebuild clears both FTS tables and re-derives every index document from a
// scan of live threads and all messages, in one transaction. Under WAL,
// concurrent readers keep seeing the pre-rebuild index until commit, so the
// transiently empty index is never observable. Idempotent.
func (e *Engine) Rebuild(ctx context.Context) (*RebuildResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("rebuild begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	threads, messages, err := rebuildInTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("rebuild commit", err)
	}
	e.log.Info("index rebuilt", "threads", threads, "messages", messages)
	return &RebuildResult{ThreadsRebuilt: threads, MessagesRebuilt: messages}, nil
}

func rebuildInTx(ctx context.Context, tx *sql.Tx) (threads int, messages int, err error) {
	if _, err := tx.ExecContext(ctx, clearThreadsFTS); err != nil {
		return 0, 0, storeErr("rebuild clear threads_fts", err)
	}
	if _, err := tx.ExecContext(ctx, clearMessagesFTS); err != nil {
		return 0, 0, storeErr("rebuild clear messages_fts", err)
	}

	res, err := tx.ExecContext(ctx, rebuildThreadsFTS)
	if err != nil {
		return 0, 0, storeErr("rebuild threads_fts", err)
	}
	tn, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, rebuildMessagesFTS)
	if err != nil {
		return 0, 0, storeErr("rebuild messages_fts", err)
	}
	mn, _ := res.RowsAffected()

	return int(tn), int(mn), nil
}

// CheckStatus reports primary and index row counts per entity type and runs
// one live MATCH query against the index as a smoke test.
func (e *Engine) CheckStatus(ctx context.Context) (*Status, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	st := &Status{}
	counts := []struct {
		query string
		dst   *int64
	}{
		{`SELECT COUNT(1) FROM threads`, &st.Threads},
		{`SELECT COUNT(1) FROM messages`, &st.Messages},
		{`SELECT COUNT(1) FROM threads_fts`, &st.ThreadsIndexCount},
		{`SELECT COUNT(1) FROM messages_fts`, &st.MessagesIndexCount},
	}
	for _, c := range counts {
		if err := e.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, storeErr("status counts", err)
		}
	}

	var n int64
	err := e.db.QueryRowContext(ctx, `
SELECT COUNT(1) FROM threads_fts WHERE threads_fts MATCH ?
`, compileMatch("smoke")).Scan(&n)
	if err != nil {
		st.FTSSmokeTest = err.Error()
	} else {
		st.FTSSmokeTest = "ok"
	}
	return st, nil
}

// VerifyIndex checks the sync invariant directly: every live thread has
// exactly one index document carrying its current title, every message has
// exactly one document carrying its current content and role, and no document
// is orphaned. Any violation is a ConsistencyError.
func (e *Engine) VerifyIndex(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []struct {
		op    string
		query string
	}{
		{"live thread missing or stale index document", `
SELECT COUNT(1) FROM threads t
WHERE t.deleted_at_unix_ms IS NULL
  AND (SELECT COUNT(1) FROM threads_fts f
       WHERE f.thread_id = t.thread_id AND f.title = t.title) != 1`},
		{"orphaned thread index document", `
SELECT COUNT(1) FROM threads_fts f
WHERE NOT EXISTS (SELECT 1 FROM threads t WHERE t.thread_id = f.thread_id)`},
		{"message missing or stale index document", `
SELECT COUNT(1) FROM messages m
WHERE (SELECT COUNT(1) FROM messages_fts f
       WHERE f.message_id = m.message_id
         AND f.content = m.content
         AND f.role = m.role
         AND f.thread_id = m.thread_id) != 1`},
		{"orphaned message index document", `
SELECT COUNT(1) FROM messages_fts f
WHERE NOT EXISTS (SELECT 1 FROM messages m WHERE m.message_id = f.message_id)`},
	}

	for _, c := range checks {
		var n int64
		if err := e.db.QueryRowContext(ctx, c.query).Scan(&n); err != nil {
			return storeErr("verify index", err)
		}
		if n != 0 {
			return &ConsistencyError{Op: "verify index", Msg: c.op}
		}
	}
	return nil
}
