package ledger

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shfed/creditcore/internal/domain"
)

// Debt and dispute scaffolds: thin wrappers that record the corresponding
// ledger actions. Debts are never edited; payments are new entries with a
// negative currency delta.

// OpenDebt records a new debt for an actor.
func (l *Ledger) OpenDebt(ctx context.Context, actorID, actorRole string, usd float64, meta map[string]any) (*domain.LedgerEntry, error) {
	m := map[string]any{"usd": usd}
	for k, v := range meta {
		m[k] = v
	}
	return l.Append(ctx, domain.LedgerEntry{
		ActorID:   actorID,
		ActorRole: actorRole,
		Action:    "debt.open",
		Meta:      m,
	})
}

// PayDebt records a debt payment as a negative currency delta.
func (l *Ledger) PayDebt(ctx context.Context, actorID string, amount float64, meta map[string]any) (*domain.LedgerEntry, error) {
	return l.Append(ctx, domain.LedgerEntry{
		ActorID:       actorID,
		Action:        "debt.payment",
		CurrencyDelta: -math.Abs(amount),
		Meta:          meta,
	})
}

// OpenDispute records the opening of a dispute against a target entry.
func (l *Ledger) OpenDispute(ctx context.Context, actorID, targetID, reason string) (*domain.LedgerEntry, error) {
	return l.Append(ctx, domain.LedgerEntry{
		ActorID: actorID,
		Action:  "dispute.open",
		Meta:    map[string]any{"targetId": targetID, "reason": reason},
	})
}

// ResolveDispute records a dispute outcome.
func (l *Ledger) ResolveDispute(ctx context.Context, actorID, targetID, outcome string) (*domain.LedgerEntry, error) {
	return l.Append(ctx, domain.LedgerEntry{
		ActorID: actorID,
		Action:  "dispute.resolve",
		Meta:    map[string]any{"targetId": targetID, "outcome": outcome},
	})
}

// ListDebts exports the debt entries for an actor.
func (l *Ledger) ListDebts(ctx context.Context, actorID string) ([]*domain.LedgerEntry, error) {
	return l.Entries(ctx, domain.LedgerQuery{ActorID: actorID, ActionPrefix: "debt."})
}

// Stats summarizes ledger activity over the trailing sinceDays window.
func (l *Ledger) Stats(ctx context.Context, sinceDays int) (*domain.LedgerStats, error) {
	if sinceDays <= 0 {
		sinceDays = 30
	}
	cutoff := l.now().Add(-time.Duration(sinceDays) * 24 * time.Hour).UnixMilli()

	entries, err := l.repo.GetLedgerEntries(ctx, domain.LedgerQuery{FromTS: cutoff})
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entries: %w", err)
	}

	stats := &domain.LedgerStats{ByAction: map[string]int{}}
	actors := map[string]struct{}{}
	for _, e := range entries {
		actors[e.ActorID] = struct{}{}
		stats.Credits += e.Credits
		if e.CurrencyDelta > 0 {
			stats.Minted += e.CurrencyDelta
		}
		if e.CurrencyDelta < 0 {
			stats.Spent += -e.CurrencyDelta
		}
		stats.ByAction[e.Action]++
	}
	stats.Actors = len(actors)
	stats.Entries = len(entries)
	return stats, nil
}

// IsDebtAction reports whether an action belongs to the debt scaffolds.
func IsDebtAction(action string) bool {
	return strings.HasPrefix(action, "debt.")
}
