package episodic

// Schema defines the SQLite schema for episodic events. Context and tags are
// stored as JSON text; the embedding is a little-endian float32 blob with its
// dimension alongside.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	created_at   DATETIME NOT NULL,
	title        TEXT NOT NULL,
	description  TEXT NOT NULL,
	context_json TEXT NOT NULL DEFAULT '{}',
	tags_json    TEXT NOT NULL DEFAULT '[]',
	importance   REAL NOT NULL DEFAULT 0,
	summary      TEXT NOT NULL DEFAULT '',
	embedding    BLOB,
	dimension    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
CREATE INDEX IF NOT EXISTS idx_events_importance ON events(importance);
`
