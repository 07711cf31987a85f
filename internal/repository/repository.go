// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shfed/creditcore/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicateID  = errors.New("duplicate id")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range schemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveEvent stores an event in the actor's history.
func (r *SQLRepository) SaveEvent(ctx context.Context, ev *domain.Event) error {
	if ev.ID == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}

	meta, _ := json.Marshal(ev.Meta)

	query := `
		INSERT INTO events (id, actor_id, key, ts, task_id, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		ev.ID, ev.ActorID, ev.Key, ev.TS, ev.TaskID,
		string(meta), time.Now().UTC(),
	)
	return err
}

// GetEvent retrieves an event by ID.
func (r *SQLRepository) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	query := `
		SELECT id, actor_id, key, ts, task_id, meta
		FROM events
		WHERE id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), eventID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ev, err
}

// GetEventsByActor retrieves an actor's full event history, oldest first.
// Scoring re-derives from the complete history, so there is no window here.
func (r *SQLRepository) GetEventsByActor(ctx context.Context, actorID string) ([]*domain.Event, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: actorID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, actor_id, key, ts, task_id, meta
		FROM events
		WHERE actor_id = ?
		ORDER BY ts ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SaveRulesDoc stores a rules document version.
func (r *SQLRepository) SaveRulesDoc(ctx context.Context, doc *domain.RulesDoc) error {
	if doc.Version == "" {
		return fmt.Errorf("%w: rules document version is required", ErrInvalidInput)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize rules document: %w", err)
	}

	query := `
		INSERT INTO rules_docs (version, doc, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(version) DO UPDATE SET doc = excluded.doc, created_at = excluded.created_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query), doc.Version, string(raw), time.Now().UTC())
	return err
}

// GetRulesDoc retrieves the most recently stored rules document.
func (r *SQLRepository) GetRulesDoc(ctx context.Context) (*domain.RulesDoc, error) {
	query := `
		SELECT doc FROM rules_docs
		ORDER BY created_at DESC
		LIMIT 1
	`

	var raw string
	err := r.db.QueryRowContext(ctx, query).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var doc domain.RulesDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules document: %w", err)
	}
	return &doc, nil
}

// AppendLedgerEntry inserts a ledger row. Fails with ErrDuplicateID when the
// id already exists, so the ledger's idempotent append can detect races.
func (r *SQLRepository) AppendLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("%w: ledger entry id is required", ErrInvalidInput)
	}

	tokens, _ := json.Marshal(entry.Tokens)
	meta, _ := json.Marshal(entry.Meta)

	query := `
		INSERT INTO ledger_entries (
			id, ts, actor_id, actor_role, action,
			credits, tokens, currency_delta, meta, prev_hash, hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, entry.TS, entry.ActorID, entry.ActorRole, entry.Action,
		entry.Credits, string(tokens), entry.CurrencyDelta, string(meta),
		entry.PrevHash, entry.Hash,
	)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, entry.ID)
	}
	return err
}

// GetLedgerEntry retrieves a ledger entry by ID.
func (r *SQLRepository) GetLedgerEntry(ctx context.Context, entryID string) (*domain.LedgerEntry, error) {
	query := ledgerSelect + ` WHERE id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), entryID)
	entry, err := scanLedgerEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// GetLedgerEntries retrieves entries matching the query in append order.
func (r *SQLRepository) GetLedgerEntries(ctx context.Context, q domain.LedgerQuery) ([]*domain.LedgerEntry, error) {
	var conds []string
	var args []any

	if q.ActorID != "" {
		conds = append(conds, "actor_id = ?")
		args = append(args, q.ActorID)
	}
	if q.FromTS > 0 {
		conds = append(conds, "ts >= ?")
		args = append(args, q.FromTS)
	}
	if q.ToTS > 0 {
		conds = append(conds, "ts <= ?")
		args = append(args, q.ToTS)
	}
	if q.ActionPrefix != "" {
		conds = append(conds, "action LIKE ?")
		args = append(args, q.ActionPrefix+"%")
	}

	query := ledgerSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LastLedgerEntry retrieves the most recently appended entry.
func (r *SQLRepository) LastLedgerEntry(ctx context.Context) (*domain.LedgerEntry, error) {
	query := ledgerSelect + ` ORDER BY seq DESC LIMIT 1`

	row := r.db.QueryRowContext(ctx, query)
	entry, err := scanLedgerEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

const ledgerSelect = `
	SELECT id, ts, actor_id, actor_role, action,
	       credits, tokens, currency_delta, meta, prev_hash, hash
	FROM ledger_entries`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*domain.Event, error) {
	var ev domain.Event
	var meta string
	if err := row.Scan(&ev.ID, &ev.ActorID, &ev.Key, &ev.TS, &ev.TaskID, &meta); err != nil {
		return nil, err
	}
	if meta != "" {
		json.Unmarshal([]byte(meta), &ev.Meta)
	}
	return &ev, nil
}

func scanLedgerEntry(row scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var tokens, meta string
	if err := row.Scan(
		&e.ID, &e.TS, &e.ActorID, &e.ActorRole, &e.Action,
		&e.Credits, &tokens, &e.CurrencyDelta, &meta, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	if tokens != "" {
		json.Unmarshal([]byte(tokens), &e.Tokens)
	}
	if meta != "" {
		json.Unmarshal([]byte(meta), &e.Meta)
	}
	return &e, nil
}

// isUniqueViolation covers both drivers without importing their error types:
// modernc sqlite reports "UNIQUE constraint failed", lib/pq "duplicate key".
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key")
}

// rebind converts ? placeholders to $1, $2, ... for postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
