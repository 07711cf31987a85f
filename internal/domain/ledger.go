package domain

// GenesisHash is the sentinel prevHash of the first ledger entry.
const GenesisHash = "genesis"

// LedgerEntry is one record of the append-only, hash-chained credit log.
// PrevHash references the previous entry's Hash (or GenesisHash for the
// first entry). Once appended, entries are never edited or deleted;
// corrections are new entries with an opposite-sign CurrencyDelta.
type LedgerEntry struct {
	ID            string             `json:"id"`
	TS            int64              `json:"ts"` // unix milliseconds
	ActorID       string             `json:"actorId"`
	ActorRole     string             `json:"actorRole"`
	Action        string             `json:"action"`
	Credits       float64            `json:"credits"`
	Tokens        map[string]float64 `json:"tokens"`
	CurrencyDelta float64            `json:"currencyDelta"`
	Meta          map[string]any     `json:"meta"`
	PrevHash      string             `json:"prevHash"`
	Hash          string             `json:"hash"`
}

// Balances is the fold of ledger entries: token sums per key plus the net
// currency delta.
type Balances struct {
	Tokens   map[string]float64 `json:"tokens"`
	Currency float64            `json:"currency"`
}

// LedgerQuery filters a ledger export. Zero values mean "no filter".
type LedgerQuery struct {
	ActorID string `json:"actorId,omitempty"`
	FromTS  int64  `json:"fromTs,omitempty"`
	ToTS    int64  `json:"toTs,omitempty"`

	// ActionPrefix matches entries whose action starts with the prefix,
	// e.g. "debt." selects the debt scaffolds.
	ActionPrefix string `json:"actionPrefix,omitempty"`
}

// LedgerStats summarizes activity over a trailing window.
type LedgerStats struct {
	Actors   int            `json:"actors"`
	Credits  float64        `json:"credits"`
	Minted   float64        `json:"minted"`
	Spent    float64        `json:"spent"`
	ByAction map[string]int `json:"byAction"`
	Entries  int            `json:"entries"`
}
