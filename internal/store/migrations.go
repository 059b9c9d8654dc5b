package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	created    TEXT NOT NULL,
	root       TEXT NOT NULL,
	max_files  INTEGER NOT NULL DEFAULT 0,
	processed  INTEGER NOT NULL DEFAULT 0,
	skipped    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS users (
	id      INTEGER PRIMARY KEY,
	address TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS threads (
	id      INTEGER PRIMARY KEY,
	subject TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS messages (
	id        INTEGER PRIMARY KEY,
	time      TEXT NOT NULL,
	thread_id INTEGER NOT NULL REFERENCES threads(id),
	sender_id INTEGER NOT NULL REFERENCES users(id),
	body      TEXT NOT NULL,
	filepath  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS message_recipients (
	message_id INTEGER NOT NULL REFERENCES messages(id),
	position   INTEGER NOT NULL,
	kind       TEXT NOT NULL CHECK (kind IN ('to', 'cc', 'bcc')),
	user_id    INTEGER NOT NULL REFERENCES users(id),
	PRIMARY KEY (message_id, kind, position)
);

CREATE TABLE IF NOT EXISTS thread_users (
	thread_id INTEGER NOT NULL REFERENCES threads(id),
	user_id   INTEGER NOT NULL REFERENCES users(id),
	PRIMARY KEY (thread_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_thread_users_user ON thread_users(user_id, thread_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
