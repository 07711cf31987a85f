package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. The ledger and rule
// catalog are storage-agnostic above this interface; SQLite and PostgreSQL
// drivers implement it.
type Repository interface {
	// Event history operations
	SaveEvent(ctx context.Context, ev *Event) error
	GetEvent(ctx context.Context, eventID string) (*Event, error)
	GetEventsByActor(ctx context.Context, actorID string) ([]*Event, error)

	// Rule catalog document
	SaveRulesDoc(ctx context.Context, doc *RulesDoc) error
	GetRulesDoc(ctx context.Context) (*RulesDoc, error)

	// Ledger operations. AppendLedgerEntry must fail with ErrDuplicateID when
	// the id already exists so the ledger can keep appends idempotent.
	AppendLedgerEntry(ctx context.Context, entry *LedgerEntry) error
	GetLedgerEntry(ctx context.Context, entryID string) (*LedgerEntry, error)
	GetLedgerEntries(ctx context.Context, q LedgerQuery) ([]*LedgerEntry, error)
	LastLedgerEntry(ctx context.Context) (*LedgerEntry, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
