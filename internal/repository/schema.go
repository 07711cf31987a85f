package repository

// Schema definitions for the creditcore database.
// Compatible with both SQLite and PostgreSQL.

const schemaEvents = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    actor_id TEXT NOT NULL,
    key TEXT NOT NULL,
    ts BIGINT NOT NULL,
    task_id TEXT NOT NULL,
    meta TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_actor ON events(actor_id, ts);
CREATE INDEX IF NOT EXISTS idx_events_task ON events(actor_id, task_id, ts);
`

const schemaRulesDocs = `
CREATE TABLE IF NOT EXISTS rules_docs (
    version TEXT PRIMARY KEY,
    doc TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

// seq preserves append order: chain verification replays rows in insertion
// order, which ts alone cannot guarantee.
const schemaLedgerEntries = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    ts BIGINT NOT NULL,
    actor_id TEXT NOT NULL,
    actor_role TEXT NOT NULL,
    action TEXT NOT NULL,
    credits REAL NOT NULL DEFAULT 0,
    tokens TEXT NOT NULL,
    currency_delta REAL NOT NULL DEFAULT 0,
    meta TEXT NOT NULL,
    prev_hash TEXT NOT NULL,
    hash TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_actor ON ledger_entries(actor_id, ts);
CREATE INDEX IF NOT EXISTS idx_ledger_action ON ledger_entries(action);
CREATE INDEX IF NOT EXISTS idx_ledger_ts ON ledger_entries(ts);
`

// Postgres has no AUTOINCREMENT keyword; BIGSERIAL plays the same role.
const schemaLedgerEntriesPostgres = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    ts BIGINT NOT NULL,
    actor_id TEXT NOT NULL,
    actor_role TEXT NOT NULL,
    action TEXT NOT NULL,
    credits REAL NOT NULL DEFAULT 0,
    tokens TEXT NOT NULL,
    currency_delta REAL NOT NULL DEFAULT 0,
    meta TEXT NOT NULL,
    prev_hash TEXT NOT NULL,
    hash TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_actor ON ledger_entries(actor_id, ts);
CREATE INDEX IF NOT EXISTS idx_ledger_action ON ledger_entries(action);
CREATE INDEX IF NOT EXISTS idx_ledger_ts ON ledger_entries(ts);
`

// schemas returns all schema statements for the given driver, in order.
func schemas(driver string) []string {
	ledger := schemaLedgerEntries
	if driver == "postgres" {
		ledger = schemaLedgerEntriesPostgres
	}
	return []string{
		schemaEvents,
		schemaRulesDocs,
		ledger,
	}
}
