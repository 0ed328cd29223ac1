package db

// SchemaVersion is the current database schema version
const SchemaVersion = 2

const schema = `
-- Outbound event queue. Rows are deleted once the server acknowledges them,
-- so the table only ever holds pending, syncing and failed events.
CREATE TABLE IF NOT EXISTS event_queue (
    event_id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    payload TEXT NOT NULL,
    user_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    sequence_number INTEGER NOT NULL,
    correlation_id TEXT DEFAULT '',
    created_at TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    retry_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_event_queue_status ON event_queue(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_event_queue_device_seq ON event_queue(device_id, sequence_number);

-- Persisted sequence generator. next_sequence survives queue deletions, so
-- sequence numbers stay strictly monotonic across restarts and full drains.
CREATE TABLE IF NOT EXISTS device_state (
    device_id TEXT PRIMARY KEY,
    next_sequence INTEGER NOT NULL
);

-- Last acknowledgment cursor returned by the server.
CREATE TABLE IF NOT EXISTS sync_state (
    device_id TEXT PRIMARY KEY,
    last_acked_sequence INTEGER,
    last_sync_at TEXT
);

-- The workout currently being logged, if any. Single row.
CREATE TABLE IF NOT EXISTS open_workout (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    workout_id TEXT NOT NULL,
    started_at TEXT NOT NULL
);

-- Exercise ids minted per workout so repeated sets of the same exercise
-- reuse one id.
CREATE TABLE IF NOT EXISTS workout_exercises (
    workout_id TEXT NOT NULL,
    name TEXT NOT NULL COLLATE NOCASE,
    exercise_id TEXT NOT NULL,
    PRIMARY KEY (workout_id, name)
);

-- Local scratchpad of logged sets. Lets edit/delete address sets by id and
-- status display the open workout. Never synced; events are the source of
-- truth.
CREATE TABLE IF NOT EXISTS local_sets (
    set_id TEXT PRIMARY KEY,
    workout_id TEXT NOT NULL,
    exercise_id TEXT NOT NULL,
    exercise_name TEXT NOT NULL,
    reps INTEGER NOT NULL,
    weight REAL NOT NULL,
    completed_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_local_sets_workout ON local_sets(workout_id);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
