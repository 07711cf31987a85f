package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/shfed/creditcore/internal/domain"
)

// EntryHash computes the SHA-256 digest of an entry's content plus its
// PrevHash, over an RFC 8785 (JCS) canonical serialization. The Hash field
// itself is excluded. Canonicalization keeps the digest stable across
// encoders and key orderings.
func EntryHash(e *domain.LedgerEntry) (string, error) {
	content := map[string]any{
		"id":            e.ID,
		"ts":            e.TS,
		"actorId":       e.ActorID,
		"actorRole":     e.ActorRole,
		"action":        e.Action,
		"credits":       e.Credits,
		"tokens":        e.Tokens,
		"currencyDelta": e.CurrencyDelta,
		"meta":          e.Meta,
		"prevHash":      e.PrevHash,
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("failed to serialize ledger entry %s: %w", e.ID, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize ledger entry %s: %w", e.ID, err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyEntries recomputes the chain front-to-back over an in-memory
// sequence. It returns nil for an intact chain and ErrChainCorrupt (wrapped
// with the first broken index) otherwise.
func VerifyEntries(entries []*domain.LedgerEntry) error {
	prev := domain.GenesisHash
	for i, e := range entries {
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d (%s): prevHash %s does not match %s", ErrChainCorrupt, i, e.ID, e.PrevHash, prev)
		}
		computed, err := EntryHash(e)
		if err != nil {
			return fmt.Errorf("entry %d (%s): %w", i, e.ID, err)
		}
		if computed != e.Hash {
			return fmt.Errorf("%w: entry %d (%s): stored hash %s, recomputed %s", ErrChainCorrupt, i, e.ID, e.Hash, computed)
		}
		prev = e.Hash
	}
	return nil
}
