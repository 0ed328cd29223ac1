package serverdb

// ServerSchemaVersion is the current server database schema version
const ServerSchemaVersion = 2

const serverSchema = `
-- Users table. Anonymous users have no email.
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT UNIQUE,
    is_anonymous INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Bearer tokens, SHA-256 hashed at rest.
CREATE TABLE IF NOT EXISTS tokens (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    token_hash TEXT UNIQUE NOT NULL,
    token_prefix TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    last_used_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
);

-- Append-only event log. event_id is the idempotency key; payload and
-- (device_id, sequence_number) are immutable once stored. user_id is
-- rewritten only by a merge.
CREATE TABLE IF NOT EXISTS events (
    event_id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    payload TEXT NOT NULL,
    user_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    sequence_number INTEGER NOT NULL,
    correlation_id TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Derived state, rebuilt from the log. Never a source of truth.
CREATE TABLE IF NOT EXISTS workouts_projection (
    workout_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at DATETIME,
    ended_at DATETIME
);

CREATE TABLE IF NOT EXISTS sets_projection (
    set_id TEXT PRIMARY KEY,
    workout_id TEXT NOT NULL,
    exercise_id TEXT NOT NULL,
    reps INTEGER NOT NULL,
    weight REAL NOT NULL,
    completed_at DATETIME
);

-- Static catalog, seeded from the embedded YAML.
CREATE TABLE IF NOT EXISTS exercises (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    muscle_group TEXT NOT NULL DEFAULT '',
    equipment TEXT NOT NULL DEFAULT ''
);

-- Schema info table
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_tokens_user ON tokens(user_id);
CREATE INDEX IF NOT EXISTS idx_tokens_prefix ON tokens(token_prefix);
CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id);
CREATE INDEX IF NOT EXISTS idx_events_replay ON events(user_id, device_id, sequence_number);
CREATE INDEX IF NOT EXISTS idx_events_device_cursor ON events(device_id, sequence_number);
CREATE INDEX IF NOT EXISTS idx_workouts_projection_user ON workouts_projection(user_id, started_at);
CREATE INDEX IF NOT EXISTS idx_sets_projection_workout ON sets_projection(workout_id);
`

// Migration defines a server database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all server database migrations in order
var Migrations = []Migration{
	// Version 1 is the initial schema - no migration needed
	{
		Version:     2,
		Description: "Add weekly_metrics table rebuilt alongside the projections",
		SQL: `CREATE TABLE IF NOT EXISTS weekly_metrics (
			user_id TEXT NOT NULL,
			week_start TEXT NOT NULL,
			total_workouts INTEGER NOT NULL DEFAULT 0,
			total_volume REAL NOT NULL DEFAULT 0,
			exercises_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, week_start)
		);`,
	},
}
