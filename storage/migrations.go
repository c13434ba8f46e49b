package storage

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations for the SQLite message engine.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	sender_email    TEXT NOT NULL,
	recipient_email TEXT NOT NULL,
	subject         TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_email, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_email, created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
