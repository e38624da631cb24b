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

CREATE TABLE IF NOT EXISTS accounts (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	host            TEXT NOT NULL,
	port            INTEGER NOT NULL DEFAULT 443,
	tls_mode        TEXT NOT NULL DEFAULT 'system',
	username        TEXT NOT NULL,
	credential_key  TEXT NOT NULL,
	pinned_cert_key TEXT NOT NULL DEFAULT '',
	device_id       TEXT NOT NULL,
	device_type     TEXT NOT NULL DEFAULT 'EasClient',
	policy_key      TEXT NOT NULL DEFAULT '',
	provision_state TEXT NOT NULL DEFAULT 'none',
	sync_mode       TEXT NOT NULL DEFAULT 'push',
	heartbeat_sec   INTEGER NOT NULL DEFAULT 480,
	interval_sec    INTEGER NOT NULL DEFAULT 300,
	folder_sync_key TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS folders (
	id           TEXT PRIMARY KEY,
	account_id   TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	server_id    TEXT NOT NULL,
	parent_id    TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL,
	kind         TEXT NOT NULL DEFAULT 'other',
	sync_key     TEXT NOT NULL DEFAULT '',
	last_sync    DATETIME,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(account_id, server_id)
);

CREATE TABLE IF NOT EXISTS items (
	id           TEXT PRIMARY KEY,
	account_id   TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	folder_id    TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
	server_id    TEXT NOT NULL,
	kind         TEXT NOT NULL,
	subject      TEXT NOT NULL DEFAULT '',
	preview      TEXT NOT NULL DEFAULT '',
	from_addr    TEXT NOT NULL DEFAULT '',
	to_addr      TEXT NOT NULL DEFAULT '',
	received_at  DATETIME,
	read         INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	flagged      INTEGER NOT NULL DEFAULT 0 CHECK(flagged IN (0, 1)),
	importance   INTEGER NOT NULL DEFAULT 1,
	location     TEXT NOT NULL DEFAULT '',
	start_time   DATETIME,
	end_time     DATETIME,
	all_day      INTEGER NOT NULL DEFAULT 0 CHECK(all_day IN (0, 1)),
	complete     INTEGER NOT NULL DEFAULT 0 CHECK(complete IN (0, 1)),
	due_date     DATETIME,
	completed_at DATETIME,
	dirty        INTEGER NOT NULL DEFAULT 0 CHECK(dirty IN (0, 1)),
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(account_id, server_id)
);

CREATE TABLE IF NOT EXISTS attachments (
	id             TEXT PRIMARY KEY,
	item_id        TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	display_name   TEXT NOT NULL DEFAULT '',
	file_reference TEXT NOT NULL,
	content_type   TEXT NOT NULL DEFAULT '',
	estimated_size INTEGER NOT NULL DEFAULT 0,
	method         INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS pending_mutations (
	id               TEXT PRIMARY KEY,
	account_id       TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	folder_id        TEXT NOT NULL DEFAULT '',
	op               TEXT NOT NULL,
	item_server_ids  TEXT NOT NULL DEFAULT '[]',
	target_folder_id TEXT NOT NULL DEFAULT '',
	attempts         INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_folders_account ON folders(account_id);
CREATE INDEX IF NOT EXISTS idx_items_folder ON items(folder_id);
CREATE INDEX IF NOT EXISTS idx_items_account_server ON items(account_id, server_id);
CREATE INDEX IF NOT EXISTS idx_items_received ON items(received_at);
CREATE INDEX IF NOT EXISTS idx_items_dirty ON items(dirty);
CREATE INDEX IF NOT EXISTS idx_attachments_item ON attachments(item_id);
CREATE INDEX IF NOT EXISTS idx_mutations_account ON pending_mutations(account_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_items_folder_received
	ON items(folder_id, received_at);
CREATE INDEX IF NOT EXISTS idx_items_folder_due
	ON items(folder_id, due_date);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
