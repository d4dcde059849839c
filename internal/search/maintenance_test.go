package search

import (
	"context"
	"errors"
	"testing"
)

func TestSetup_IsIdempotent(t *testing.T) {
	t.Parallel()

	s, e := newTestEnv(t)
	seedStory(t, s)
	ctx := context.Background()

	res, err := e.Setup(ctx)
	if err != nil {
		t.Fatalf("Setup again: %v", err)
	}
	if res.TablesCreated != 2 {
		t.Fatalf("TablesCreated=%d, want 2", res.TablesCreated)
	}
	if res.TriggersCreated != 6 {
		t.Fatalf("TriggersCreated=%d, want 6", res.TriggersCreated)
	}
	if res.ThreadsRebuilt != 1 || res.MessagesRebuilt != 3 {
		t.Fatalf("rebuilt threads=%d messages=%d, want 1/3", res.ThreadsRebuilt, res.MessagesRebuilt)
	}

	if err := e.VerifyIndex(ctx); err != nil {
		t.Fatalf("VerifyIndex after second Setup: %v", err)
	}

	// Primary rows must be untouched.
	tn, mn, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if tn != 1 || mn != 3 {
		t.Fatalf("primary counts after Setup: threads=%d messages=%d", tn, mn)
	}
}

func TestRebuild_MatchesTriggerState(t *testing.T) {
	t.Parallel()

	s, e := newTestEnv(t)
	seedStory(t, s)
	ctx := context.Background()

	before, err := e.Search(ctx, Request{Query: "knight"})
	if err != nil {
		t.Fatalf("Search before: %v", err)
	}

	res, err := e.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if res.ThreadsRebuilt != 1 || res.MessagesRebuilt != 3 {
		t.Fatalf("rebuilt threads=%d messages=%d, want 1/3", res.ThreadsRebuilt, res.MessagesRebuilt)
	}

	after, err := e.Search(ctx, Request{Query: "knight"})
	if err != nil {
		t.Fatalf("Search after: %v", err)
	}
	if before.Messages.Total != after.Messages.Total || before.Threads.Total != after.Threads.Total {
		t.Fatalf("rebuild changed results: before=%+v after=%+v", before, after)
	}
	if err := e.VerifyIndex(ctx); err != nil {
		t.Fatalf("VerifyIndex after rebuild: %v", err)
	}
}

func TestRebuild_PrunedThreadHealsOnUpdate(t *testing.T) {
	t.Parallel()

	s, e := newTestEnv(t)
	seedStory(t, s)
	ctx := context.Background()

	// Rebuild after a soft delete prunes the thread's document entirely.
	if err := s.SoftDeleteThread(ctx, "th_story"); err != nil {
		t.Fatalf("SoftDeleteThread: %v", err)
	}
	if _, err := e.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	var docs int64
	if err := s.DB().QueryRowContext(ctx, `SELECT COUNT(1) FROM threads_fts`).Scan(&docs); err != nil {
		t.Fatalf("count threads_fts: %v", err)
	}
	if docs != 0 {
		t.Fatalf("pruned index has %d thread docs, want 0", docs)
	}

	// Restoring is an UPDATE; the delete+reinsert trigger recreates the doc.
	if err := s.RestoreThread(ctx, "th_story"); err != nil {
		t.Fatalf("RestoreThread: %v", err)
	}
	resp, err := e.Search(ctx, Request{Query: "story", Scope: ScopeThreads})
	if err != nil {
		t.Fatalf("Search after restore: %v", err)
	}
	if resp.Threads.Count != 1 {
		t.Fatalf("restored thread not searchable: %+v", resp.Threads)
	}
	if err := e.VerifyIndex(ctx); err != nil {
		t.Fatalf("VerifyIndex after restore: %v", err)
	}
}

func TestEnsure_PreservesExistingIndex(t *testing.T) {
	t.Parallel()

	s, e := newTestEnv(t)
	seedStory(t, s)
	ctx := context.Background()

	// Simulate a rebuilt-then-restarted process: Ensure must not recreate the
	// schema, so a manually removed doc stays removed.
	if _, err := s.DB().ExecContext(ctx, `DROP TRIGGER messages_fts_ad`); err != nil {
		t.Fatalf("drop trigger: %v", err)
	}
	if err := e.Ensure(ctx); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	var n int
	err := s.DB().QueryRowContext(ctx, `
SELECT COUNT(1) FROM sqlite_master WHERE type = 'trigger' AND name = 'messages_fts_ad'
`).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if n != 0 {
		t.Fatalf("Ensure recreated schema on an intact index")
	}

	// With a table missing, Ensure runs a full Setup.
	if _, err := s.DB().ExecContext(ctx, `DROP TABLE messages_fts`); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if err := e.Ensure(ctx); err != nil {
		t.Fatalf("Ensure after drop: %v", err)
	}
	if err := e.VerifyIndex(ctx); err != nil {
		t.Fatalf("VerifyIndex after Ensure: %v", err)
	}
}

func TestCheckStatus(t *testing.T) {
	t.Parallel()

	s, e := newTestEnv(t)
	seedStory(t, s)
	ctx := context.Background()

	st, err := e.CheckStatus(ctx)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if st.Threads != 1 || st.Messages != 3 {
		t.Fatalf("primary counts: %+v", st)
	}
	if st.ThreadsIndexCount != 1 || st.MessagesIndexCount != 3 {
		t.Fatalf("index counts: %+v", st)
	}
	if st.FTSSmokeTest != "ok" {
		t.Fatalf("FTSSmokeTest=%q, want ok", st.FTSSmokeTest)
	}
}

func TestVerifyIndex_DetectsDrift(t *testing.T) {
	t.Parallel()

	s, e := newTestEnv(t)
	seedStory(t, s)
	ctx := context.Background()

	if err := e.VerifyIndex(ctx); err != nil {
		t.Fatalf("VerifyIndex on consistent state: %v", err)
	}

	// Remove an index document behind the triggers' back.
	if _, err := s.DB().ExecContext(ctx, `DELETE FROM messages_fts WHERE message_id = 'msg_user'`); err != nil {
		t.Fatalf("delete index doc: %v", err)
	}
	var cerr *ConsistencyError
	if err := e.VerifyIndex(ctx); !errors.As(err, &cerr) {
		t.Fatalf("VerifyIndex err=%v, want ConsistencyError", err)
	}

	// Rebuild repairs the drift.
	if _, err := e.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if err := e.VerifyIndex(ctx); err != nil {
		t.Fatalf("VerifyIndex after repair: %v", err)
	}
}
