// Package ledger implements the append-only, hash-chained credit log used
// for audit, export, and balance aggregation.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shfed/creditcore/internal/domain"
	"github.com/shfed/creditcore/internal/repository"
)

// ErrChainCorrupt marks an integrity violation: a stored hash that no longer
// matches its recomputed value, or a broken prevHash link. Fatal for audit
// purposes, never silently ignored.
var ErrChainCorrupt = errors.New("ledger chain integrity violation")

const balancesTTL = 30 * time.Second

// Ledger is the single write path for credit-affecting entries. Appends are
// serialized by one mutex so "read last hash, compute new hash, store" is
// atomic; reads go straight to the repository.
type Ledger struct {
	mu       sync.Mutex
	lastHash string // chain tail, loaded lazily under mu

	repo  domain.Repository
	cache domain.Cache    // optional balance snapshot cache
	bus   domain.EventBus // optional append notifications
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCache enables short-TTL balance snapshots.
func WithCache(c domain.Cache) Option {
	return func(l *Ledger) { l.cache = c }
}

// WithBus publishes appended entries on TopicLedgerAppend.
func WithBus(b domain.EventBus) Option {
	return func(l *Ledger) { l.bus = b }
}

// WithClock injects the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger over the given repository.
func New(repo domain.Repository, opts ...Option) *Ledger {
	l := &Ledger{
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append fills defaults, links the entry to the chain tail, computes its
// hash, and stores it. Append is idempotent with respect to explicit IDs:
// a second call with an ID that already exists returns the stored entry
// without appending. Storage failures are returned, never swallowed.
func (l *Ledger) Append(ctx context.Context, partial domain.LedgerEntry) (*domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.withDefaults(partial)

	if partial.ID != "" {
		existing, err := l.repo.GetLedgerEntry(ctx, entry.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("failed to check ledger entry %s: %w", entry.ID, err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	prev, err := l.tail(ctx)
	if err != nil {
		return nil, err
	}
	entry.PrevHash = prev

	hash, err := EntryHash(&entry)
	if err != nil {
		return nil, err
	}
	entry.Hash = hash

	if err := l.repo.AppendLedgerEntry(ctx, &entry); err != nil {
		if errors.Is(err, repository.ErrDuplicateID) {
			return l.repo.GetLedgerEntry(ctx, entry.ID)
		}
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	l.lastHash = entry.Hash

	l.invalidateBalances(ctx, entry.ActorID)
	l.publish(ctx, &entry)

	return &entry, nil
}

// Entries exports ledger entries matching the query, in append order.
func (l *Ledger) Entries(ctx context.Context, q domain.LedgerQuery) ([]*domain.LedgerEntry, error) {
	return l.repo.GetLedgerEntries(ctx, q)
}

// Balances folds all entries (optionally filtered by actor) into per-token
// sums and the net currency delta. Results are cached briefly when a cache
// is configured.
func (l *Ledger) Balances(ctx context.Context, actorID string) (*domain.Balances, error) {
	cacheKey := "ledger:balances:" + actorID
	if l.cache != nil {
		if raw, err := l.cache.Get(ctx, cacheKey); err == nil && raw != nil {
			var b domain.Balances
			if err := json.Unmarshal(raw, &b); err == nil {
				return &b, nil
			}
		}
	}

	entries, err := l.repo.GetLedgerEntries(ctx, domain.LedgerQuery{ActorID: actorID})
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entries: %w", err)
	}

	b := &domain.Balances{Tokens: map[string]float64{}}
	for _, e := range entries {
		for k, v := range e.Tokens {
			b.Tokens[k] += v
		}
		b.Currency += e.CurrencyDelta
	}

	if l.cache != nil {
		if raw, err := json.Marshal(b); err == nil {
			_ = l.cache.Set(ctx, cacheKey, raw, balancesTTL)
		}
	}
	return b, nil
}

// VerifyChain recomputes every hash front-to-back and confirms the links.
// Any mismatch indicates tampering or corruption and yields ErrChainCorrupt.
func (l *Ledger) VerifyChain(ctx context.Context) error {
	entries, err := l.repo.GetLedgerEntries(ctx, domain.LedgerQuery{})
	if err != nil {
		return fmt.Errorf("failed to load ledger entries: %w", err)
	}
	return VerifyEntries(entries)
}

// tail returns the hash of the last stored entry, or the genesis sentinel.
// Cached after the first load; callers hold mu.
func (l *Ledger) tail(ctx context.Context) (string, error) {
	if l.lastHash != "" {
		return l.lastHash, nil
	}
	last, err := l.repo.LastLedgerEntry(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.GenesisHash, nil
		}
		return "", fmt.Errorf("failed to load chain tail: %w", err)
	}
	l.lastHash = last.Hash
	return last.Hash, nil
}

func (l *Ledger) withDefaults(partial domain.LedgerEntry) domain.LedgerEntry {
	entry := partial
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.TS == 0 {
		entry.TS = l.now().UnixMilli()
	}
	if entry.ActorID == "" {
		entry.ActorID = "anon"
	}
	if entry.ActorRole == "" {
		entry.ActorRole = "student"
	}
	if entry.Action == "" {
		entry.Action = "misc"
	}
	if entry.Tokens == nil {
		entry.Tokens = map[string]float64{}
	}
	if entry.Meta == nil {
		entry.Meta = map[string]any{}
	}
	return entry
}

func (l *Ledger) invalidateBalances(ctx context.Context, actorID string) {
	if l.cache == nil {
		return
	}
	_ = l.cache.Delete(ctx, "ledger:balances:"+actorID)
	_ = l.cache.Delete(ctx, "ledger:balances:")
}

func (l *Ledger) publish(ctx context.Context, entry *domain.LedgerEntry) {
	if l.bus == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := l.bus.Publish(ctx, domain.TopicLedgerAppend, payload); err != nil {
		slog.Warn("failed to publish ledger append",
			"entry_id", entry.ID,
			"error", err,
		)
	}
}
