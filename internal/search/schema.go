package search

// Inverted-index schema: one FTS5 table per entity type, keyed by the entity
// id. Only the searched column is indexed; join/filter fields ride along
// UNINDEXED so message search can filter on role without touching the primary
// table.
//
// The sync protocol is the triggers below: every insert/update/delete on a
// primary table mirrors into the index within the same SQLite transaction, so
// no reader can observe the primary row changed without its index document (or
// vice versa). Updates are mirrored as delete+reinsert rather than UPDATE so
// that a row whose document is missing (e.g. a thread restored after a
// rebuild pruned its document) heals on its next write.
//
// Soft-deleting a thread is an UPDATE of deleted_at_unix_ms: the document is
// deliberately kept and filtered at query time, which keeps undelete a single
// UPDATE on the primary row.

var indexDropStatements = []string{
	`DROP TRIGGER IF EXISTS threads_fts_ai;`,
	`DROP TRIGGER IF EXISTS threads_fts_au;`,
	`DROP TRIGGER IF EXISTS threads_fts_ad;`,
	`DROP TRIGGER IF EXISTS messages_fts_ai;`,
	`DROP TRIGGER IF EXISTS messages_fts_au;`,
	`DROP TRIGGER IF EXISTS messages_fts_ad;`,
	`DROP TABLE IF EXISTS threads_fts;`,
	`DROP TABLE IF EXISTS messages_fts;`,
}

var indexTableStatements = []string{
	`CREATE VIRTUAL TABLE threads_fts USING fts5(
  title,
  thread_id UNINDEXED,
  tokenize = 'unicode61'
);`,
	`CREATE VIRTUAL TABLE messages_fts USING fts5(
  content,
  message_id UNINDEXED,
  thread_id UNINDEXED,
  role UNINDEXED,
  tokenize = 'unicode61'
);`,
}

var indexTriggerStatements = []string{
	`CREATE TRIGGER threads_fts_ai AFTER INSERT ON threads BEGIN
  INSERT INTO threads_fts(thread_id, title) VALUES (new.thread_id, new.title);
END;`,
	`CREATE TRIGGER threads_fts_au AFTER UPDATE ON threads BEGIN
  DELETE FROM threads_fts WHERE thread_id = old.thread_id;
  INSERT INTO threads_fts(thread_id, title) VALUES (new.thread_id, new.title);
END;`,
	`CREATE TRIGGER threads_fts_ad AFTER DELETE ON threads BEGIN
  DELETE FROM threads_fts WHERE thread_id = old.thread_id;
END;`,
	`CREATE TRIGGER messages_fts_ai AFTER INSERT ON messages BEGIN
  INSERT INTO messages_fts(message_id, thread_id, content, role)
  VALUES (new.message_id, new.thread_id, new.content, new.role);
END;`,
	`CREATE TRIGGER messages_fts_au AFTER UPDATE ON messages BEGIN
  DELETE FROM messages_fts WHERE message_id = old.message_id;
  INSERT INTO messages_fts(message_id, thread_id, content, role)
  VALUES (new.message_id, new.thread_id, new.content, new.role);
END;`,
	`CREATE TRIGGER messages_fts_ad AFTER DELETE ON messages BEGIN
  DELETE FROM messages_fts WHERE message_id = old.message_id;
END;`,
}

// rebuildStatements clear and re-derive all index documents from the primary
// tables: live threads only, all messages.
const (
	clearThreadsFTS  = `DELETE FROM threads_fts;`
	clearMessagesFTS = `DELETE FROM messages_fts;`

	rebuildThreadsFTS = `
INSERT INTO threads_fts(thread_id, title)
SELECT thread_id, title
FROM threads
WHERE deleted_at_unix_ms IS NULL;`

	rebuildMessagesFTS = `
INSERT INTO messages_fts(message_id, thread_id, content, role)
SELECT message_id, thread_id, content, role
FROM messages;`
)
