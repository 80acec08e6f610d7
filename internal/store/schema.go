// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

// schema is executed once per connection pool open via
// sqlitex.ExecuteScript. Every statement is idempotent so repeated
// startups against an existing database file are safe.
const schema = `
CREATE TABLE IF NOT EXISTS services (
	identity      TEXT PRIMARY KEY,
	port          INTEGER NOT NULL UNIQUE,
	pid           INTEGER,
	claimed_at    INTEGER NOT NULL,
	last_seen     INTEGER NOT NULL,
	expires_at    INTEGER,
	health_path   TEXT,
	endpoints     TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS locks (
	name          TEXT PRIMARY KEY,
	owner         TEXT NOT NULL,
	acquired_at   INTEGER NOT NULL,
	expires_at    INTEGER,
	pid           INTEGER
);

CREATE TABLE IF NOT EXISTS messages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	channel       TEXT NOT NULL,
	payload       BLOB NOT NULL,
	sender        TEXT,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_channel_id ON messages (channel, id);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at);

CREATE TABLE IF NOT EXISTS agents (
	id                TEXT PRIMARY KEY,
	type              TEXT NOT NULL,
	purpose           TEXT,
	identity_project  TEXT,
	identity_stack    TEXT,
	identity_context  TEXT,
	worktree_id       TEXT,
	registered_at     INTEGER NOT NULL,
	last_heartbeat    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agents_identity_project ON agents (identity_project);

CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	purpose       TEXT,
	created_by    TEXT,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL,
	status        TEXT NOT NULL,
	identity      TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions (status);
CREATE INDEX IF NOT EXISTS idx_sessions_created_by ON sessions (created_by);

CREATE TABLE IF NOT EXISTS notes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	type          TEXT,
	content       TEXT NOT NULL,
	created_by    TEXT,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_session_id ON notes (session_id, id);

CREATE TABLE IF NOT EXISTS file_claims (
	session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	path          TEXT NOT NULL,
	claimed_at    INTEGER NOT NULL,
	PRIMARY KEY (session_id, path)
);
CREATE INDEX IF NOT EXISTS idx_file_claims_path ON file_claims (path);

CREATE TABLE IF NOT EXISTS resurrection_entries (
	id                 TEXT PRIMARY KEY,
	dead_agent_id      TEXT NOT NULL,
	identity           TEXT,
	sessions_snapshot  TEXT NOT NULL,
	notes_snapshot     TEXT NOT NULL,
	created_at         INTEGER NOT NULL,
	state              TEXT NOT NULL,
	claimed_by         TEXT
);
CREATE INDEX IF NOT EXISTS idx_resurrection_state ON resurrection_entries (state);
CREATE INDEX IF NOT EXISTS idx_resurrection_identity ON resurrection_entries (identity);

CREATE TABLE IF NOT EXISTS changelog_entries (
	id            TEXT PRIMARY KEY,
	identity      TEXT NOT NULL,
	type          TEXT NOT NULL,
	summary       TEXT NOT NULL,
	description   TEXT,
	session_id    TEXT,
	agent_id      TEXT,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_changelog_identity ON changelog_entries (identity);
CREATE INDEX IF NOT EXISTS idx_changelog_created_at ON changelog_entries (created_at);

CREATE TABLE IF NOT EXISTS activity_entries (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	type          TEXT NOT NULL,
	action        TEXT NOT NULL,
	target        TEXT,
	details       TEXT,
	agent_id      TEXT,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_entries (created_at);
CREATE INDEX IF NOT EXISTS idx_activity_type ON activity_entries (type);
CREATE INDEX IF NOT EXISTS idx_activity_agent_id ON activity_entries (agent_id);
`
