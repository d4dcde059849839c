package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "threadsearch.sqlite")
	s, err := Open(dbPath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CreateGetThread(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateThread(ctx, Thread{ThreadID: "th_1", Title: "  chat  ", ModelID: "m1", OwnerID: "u1"}); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	th, err := s.GetThread(ctx, "th_1")
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if th == nil {
		t.Fatalf("thread missing")
	}
	if th.Title != "chat" {
		t.Fatalf("Title=%q, want chat", th.Title)
	}
	if th.CreatedAtUnixMs <= 0 || th.UpdatedAtUnixMs <= 0 {
		t.Fatalf("timestamps not set: created=%d updated=%d", th.CreatedAtUnixMs, th.UpdatedAtUnixMs)
	}
	if !th.Live() {
		t.Fatalf("new thread not live")
	}

	missing, err := s.GetThread(ctx, "th_nope")
	if err != nil {
		t.Fatalf("GetThread missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("GetThread missing = %+v, want nil", missing)
	}
}

func TestStore_CreateThreadRejectsLongTitle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	err := s.CreateThread(context.Background(), Thread{ThreadID: "th_1", Title: strings.Repeat("x", 201)})
	if err == nil {
		t.Fatalf("CreateThread accepted 201-char title")
	}
}

func TestStore_AppendMessageUpdatesThread(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateThread(ctx, Thread{ThreadID: "th_1"}); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	if err := s.AppendMessage(ctx, Message{
		MessageID: "msg_1",
		ThreadID:  "th_1",
		Role:      RoleUser,
		Content:   "Tell me a story about a brave knight",
	}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	th, err := s.GetThread(ctx, "th_1")
	if err != nil || th == nil {
		t.Fatalf("GetThread: %v %+v", err, th)
	}
	if th.Title != "Tell me a story about a brave knight" {
		t.Fatalf("derived Title=%q", th.Title)
	}
	if th.LastMessageAtUnixMs <= 0 {
		t.Fatalf("LastMessageAtUnixMs=%d, want > 0", th.LastMessageAtUnixMs)
	}

	// A later user message must not overwrite the existing title.
	if err := s.AppendMessage(ctx, Message{
		MessageID: "msg_2",
		ThreadID:  "th_1",
		Role:      RoleUser,
		Content:   "And then what happened",
	}); err != nil {
		t.Fatalf("AppendMessage second: %v", err)
	}
	th, _ = s.GetThread(ctx, "th_1")
	if th.Title != "Tell me a story about a brave knight" {
		t.Fatalf("Title overwritten: %q", th.Title)
	}

	msgs, err := s.ListMessages(ctx, "th_1", 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs)=%d, want 2", len(msgs))
	}
	if msgs[0].MessageID != "msg_1" {
		t.Fatalf("order wrong: first=%s", msgs[0].MessageID)
	}
}

func TestStore_AppendMessageMissingThread(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	err := s.AppendMessage(context.Background(), Message{
		MessageID: "msg_1",
		ThreadID:  "th_nope",
		Role:      RoleUser,
		Content:   "hello",
	})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err=%v, want sql.ErrNoRows", err)
	}
}

func TestStore_AppendMessageInvalidRole(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	if err := s.CreateThread(ctx, Thread{ThreadID: "th_1"}); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if err := s.AppendMessage(ctx, Message{MessageID: "msg_1", ThreadID: "th_1", Role: "moderator", Content: "x"}); err == nil {
		t.Fatalf("AppendMessage accepted invalid role")
	}
}

func TestStore_SoftDeleteRestore(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateThread(ctx, Thread{ThreadID: "th_1", Title: "keep"}); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if err := s.SoftDeleteThread(ctx, "th_1"); err != nil {
		t.Fatalf("SoftDeleteThread: %v", err)
	}

	th, _ := s.GetThread(ctx, "th_1")
	if th == nil || th.Live() {
		t.Fatalf("thread still live after soft delete: %+v", th)
	}

	// Deleting an already-deleted thread is not found.
	if err := s.SoftDeleteThread(ctx, "th_1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("second SoftDeleteThread err=%v, want sql.ErrNoRows", err)
	}

	live, err := s.ListThreads(ctx, 0, false)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("live threads=%d, want 0", len(live))
	}
	all, _ := s.ListThreads(ctx, 0, true)
	if len(all) != 1 {
		t.Fatalf("all threads=%d, want 1", len(all))
	}

	if err := s.RestoreThread(ctx, "th_1"); err != nil {
		t.Fatalf("RestoreThread: %v", err)
	}
	th, _ = s.GetThread(ctx, "th_1")
	if th == nil || !th.Live() {
		t.Fatalf("thread not live after restore: %+v", th)
	}
	if err := s.RestoreThread(ctx, "th_1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("second RestoreThread err=%v, want sql.ErrNoRows", err)
	}
}

func TestStore_PurgeThreadRemovesMessages(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateThread(ctx, Thread{ThreadID: "th_1", Title: "bye"}); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if err := s.AppendMessage(ctx, Message{MessageID: "msg_1", ThreadID: "th_1", Role: RoleUser, Content: "x"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.PurgeThread(ctx, "th_1"); err != nil {
		t.Fatalf("PurgeThread: %v", err)
	}

	threads, messages, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if threads != 0 || messages != 0 {
		t.Fatalf("counts after purge: threads=%d messages=%d", threads, messages)
	}
	if err := s.PurgeThread(ctx, "th_1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("second PurgeThread err=%v, want sql.ErrNoRows", err)
	}
}

func TestStore_MessageFeedback(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateThread(ctx, Thread{ThreadID: "th_1"}); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if err := s.AppendMessage(ctx, Message{MessageID: "msg_1", ThreadID: "th_1", Role: RoleAssistant, Content: "answer"}); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	if err := s.SetMessageFeedback(ctx, "msg_1", "up"); err != nil {
		t.Fatalf("SetMessageFeedback: %v", err)
	}
	m, _ := s.GetMessage(ctx, "msg_1")
	if m == nil || m.Feedback != "up" {
		t.Fatalf("Feedback=%+v, want up", m)
	}
	if err := s.SetMessageFeedback(ctx, "msg_1", "sideways"); err == nil {
		t.Fatalf("SetMessageFeedback accepted invalid value")
	}
	if err := s.SetMessageFeedback(ctx, "msg_nope", "up"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing message err=%v, want sql.ErrNoRows", err)
	}
}

func TestStore_Seed(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	threads, messages, err := s.Seed(ctx, "u1")
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if threads != 3 {
		t.Fatalf("threads seeded=%d, want 3", threads)
	}
	if messages != 8 {
		t.Fatalf("messages seeded=%d, want 8", messages)
	}

	tn, mn, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if tn != 3 || mn != 8 {
		t.Fatalf("counts: threads=%d messages=%d", tn, mn)
	}
}

func TestBuildTitleCandidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  hello  ", "hello"},
		{"line one\nline two", "line one line two"},
		{strings.Repeat("a", 100), strings.Repeat("a", 48)},
	}
	for _, c := range cases {
		if got := buildTitleCandidate(c.in); got != c.want {
			t.Fatalf("buildTitleCandidate(%q)=%q, want %q", c.in, got, c.want)
		}
	}
}
