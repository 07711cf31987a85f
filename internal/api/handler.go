package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shfed/creditcore/internal/cache"
	"github.com/shfed/creditcore/internal/catalog"
	"github.com/shfed/creditcore/internal/domain"
	"github.com/shfed/creditcore/internal/ledger"
	"github.com/shfed/creditcore/internal/repository"
	"github.com/shfed/creditcore/internal/schema"
	"github.com/shfed/creditcore/internal/scoring"
)

const scoreSnapshotTTL = 30 * time.Second

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	catalog *catalog.Catalog
	engine  *scoring.Engine
	ledger  *ledger.Ledger
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, c domain.Cache, bus domain.EventBus, cat *catalog.Catalog, engine *scoring.Engine, led *ledger.Ledger, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   c,
		bus:     bus,
		catalog: cat,
		engine:  engine,
		ledger:  led,
		version: version,
	}
}

// ScoreRequest is the request body for POST /score.
type ScoreRequest struct {
	Events []domain.Event `json:"events"`
}

// ScoreResponse is the response for POST /score and GET /actors/{id}/score.
type ScoreResponse struct {
	domain.ScoreResult
	Metadata struct {
		TraceID      string `json:"traceId"`
		TotalMs      int64  `json:"totalMs"`
		RulesVersion string `json:"rulesVersion"`
		Version      string `json:"version"`
	} `json:"metadata"`
}

// Score handles POST /score: stateless evaluation of a posted event list.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result := h.engine.ComputeScore(req.Events)

	resp := ScoreResponse{ScoreResult: result}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.RulesVersion = h.catalog.Version()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// IngestEvent handles POST /events: validate, persist, publish.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var ev domain.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.TS == 0 {
		ev.TS = time.Now().UnixMilli()
	}
	ev = ev.Normalize()

	// The scoring engine drops invalid events silently; the ingest path
	// rejects them so producers hear about schema drift. A declared rule
	// admits its key even when the static schema lags behind it.
	if ev.TS < 0 || (!schema.IsEventKey(ev.Key) && h.catalog.Lookup(ev.Key) == nil) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "unknown event key or invalid timestamp: " + ev.Key,
		})
		return
	}
	if ev.ActorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "actorId is required",
		})
		return
	}

	if err := h.repo.SaveEvent(ctx, &ev); err != nil {
		slog.Error("failed to save event", "event_id", ev.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save event",
		})
		return
	}

	// Stored snapshots are stale once a new event lands.
	if h.cache != nil {
		_ = h.cache.Delete(ctx, cache.ScoreKey(ev.ActorID))
	}

	if h.bus != nil {
		payload, err := json.Marshal(&ev)
		if err == nil {
			if err := h.bus.Publish(ctx, domain.TopicEventIngested, payload); err != nil {
				slog.Warn("failed to publish ingested event", "event_id", ev.ID, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     ev.ID,
		"status": "accepted",
	})
}

// GetEvent retrieves an event by ID.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")

	ev, err := h.repo.GetEvent(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "event not found",
			})
			return
		}
		slog.Error("failed to get event", "event_id", eventID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get event",
		})
		return
	}

	writeJSON(w, http.StatusOK, ev)
}

// GetActorScore recomputes an actor's score from their full stored history.
// The score is derived state: the events are the source of truth, so no
// stored score can drift from them.
func (h *Handler) GetActorScore(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	actorID := chi.URLParam(r, "id")

	if h.cache != nil {
		if snap, err := cache.GetScore(ctx, h.cache, actorID); err == nil && snap != nil {
			resp := ScoreResponse{ScoreResult: *snap}
			resp.Metadata.TraceID = GetTraceID(ctx)
			resp.Metadata.TotalMs = time.Since(start).Milliseconds()
			resp.Metadata.RulesVersion = h.catalog.Version()
			resp.Metadata.Version = h.version
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	events, err := h.repo.GetEventsByActor(ctx, actorID)
	if err != nil {
		slog.Error("failed to load actor events", "actor_id", actorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load events",
		})
		return
	}

	history := make([]domain.Event, len(events))
	for i, ev := range events {
		history[i] = *ev
	}

	result := h.engine.ComputeScore(history)

	if h.cache != nil {
		_ = cache.SetScore(ctx, h.cache, actorID, &result, scoreSnapshotTTL)
	}

	resp := ScoreResponse{ScoreResult: result}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.RulesVersion = h.catalog.Version()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetActorEvents lists an actor's events in timestamp order.
func (h *Handler) GetActorEvents(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "id")

	events, err := h.repo.GetEventsByActor(r.Context(), actorID)
	if err != nil {
		slog.Error("failed to load actor events", "actor_id", actorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load events",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// GetActorDebts lists an actor's debt entries.
func (h *Handler) GetActorDebts(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "id")

	debts, err := h.ledger.ListDebts(r.Context(), actorID)
	if err != nil {
		slog.Error("failed to list debts", "actor_id", actorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list debts",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"debts": debts,
		"count": len(debts),
	})
}

// AppendEntry handles POST /ledger/entries.
func (h *Handler) AppendEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var partial domain.LedgerEntry
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	entry, err := h.ledger.Append(ctx, partial)
	if err != nil {
		slog.Error("failed to append ledger entry", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to append ledger entry",
		})
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// ListEntries handles GET /ledger/entries with optional filters:
// ?actor=, ?from=, ?to= (unix ms), ?action= (prefix).
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := domain.LedgerQuery{
		ActorID:      r.URL.Query().Get("actor"),
		ActionPrefix: r.URL.Query().Get("action"),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		ts, err := strconv.ParseInt(from, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "from must be a unix millisecond timestamp",
			})
			return
		}
		q.FromTS = ts
	}
	if to := r.URL.Query().Get("to"); to != "" {
		ts, err := strconv.ParseInt(to, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "to must be a unix millisecond timestamp",
			})
			return
		}
		q.ToTS = ts
	}

	entries, err := h.ledger.Entries(r.Context(), q)
	if err != nil {
		slog.Error("failed to list ledger entries", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list ledger entries",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetBalances folds ledger entries into balances, optionally per ?actor=.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	actorID := r.URL.Query().Get("actor")

	balances, err := h.ledger.Balances(r.Context(), actorID)
	if err != nil {
		slog.Error("failed to compute balances", "actor_id", actorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute balances",
		})
		return
	}

	writeJSON(w, http.StatusOK, balances)
}

// VerifyLedger recomputes the full hash chain.
func (h *Handler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.VerifyChain(r.Context()); err != nil {
		if errors.Is(err, ledger.ErrChainCorrupt) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"valid": false,
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to verify ledger", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to verify ledger",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
	})
}

// LedgerStats summarizes activity over a trailing window (?sinceDays=).
func (h *Handler) LedgerStats(w http.ResponseWriter, r *http.Request) {
	sinceDays := 30
	if s := r.URL.Query().Get("sinceDays"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "sinceDays must be a positive integer",
			})
			return
		}
		sinceDays = n
	}

	stats, err := h.ledger.Stats(r.Context(), sinceDays)
	if err != nil {
		slog.Error("failed to compute ledger stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to compute ledger stats",
		})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// DebtRequest is the request body for POST /debts.
type DebtRequest struct {
	ActorID   string         `json:"actorId"`
	ActorRole string         `json:"actorRole,omitempty"`
	USD       float64        `json:"usd"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// OpenDebt handles POST /debts.
func (h *Handler) OpenDebt(w http.ResponseWriter, r *http.Request) {
	var req DebtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ActorID == "" || req.USD <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "actorId and a positive usd amount are required",
		})
		return
	}

	entry, err := h.ledger.OpenDebt(r.Context(), req.ActorID, req.ActorRole, req.USD, req.Meta)
	if err != nil {
		slog.Error("failed to open debt", "actor_id", req.ActorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to open debt",
		})
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// PaymentRequest is the request body for POST /debts/payments.
type PaymentRequest struct {
	ActorID string         `json:"actorId"`
	Amount  float64        `json:"amount"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// PayDebt handles POST /debts/payments.
func (h *Handler) PayDebt(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ActorID == "" || req.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "actorId and a positive amount are required",
		})
		return
	}

	entry, err := h.ledger.PayDebt(r.Context(), req.ActorID, req.Amount, req.Meta)
	if err != nil {
		slog.Error("failed to record payment", "actor_id", req.ActorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to record payment",
		})
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// DisputeRequest is the request body for the dispute endpoints.
type DisputeRequest struct {
	ActorID  string `json:"actorId"`
	TargetID string `json:"targetId"`
	Reason   string `json:"reason,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

// OpenDispute handles POST /disputes.
func (h *Handler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	var req DisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ActorID == "" || req.TargetID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "actorId and targetId are required",
		})
		return
	}

	entry, err := h.ledger.OpenDispute(r.Context(), req.ActorID, req.TargetID, req.Reason)
	if err != nil {
		slog.Error("failed to open dispute", "actor_id", req.ActorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to open dispute",
		})
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// ResolveDispute handles POST /disputes/resolve.
func (h *Handler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req DisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ActorID == "" || req.TargetID == "" || req.Outcome == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "actorId, targetId, and outcome are required",
		})
		return
	}

	entry, err := h.ledger.ResolveDispute(r.Context(), req.ActorID, req.TargetID, req.Outcome)
	if err != nil {
		slog.Error("failed to resolve dispute", "actor_id", req.ActorID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve dispute",
		})
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// ListRules returns the active rule set.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version": h.catalog.Version(),
		"bounds":  h.catalog.Bounds(),
		"rules":   h.catalog.Rules(),
		"count":   h.catalog.Count(),
	})
}

// GetRule retrieves the rule for an event key.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	cr := h.catalog.Lookup(key)
	if cr == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no rule for key " + key,
		})
		return
	}

	writeJSON(w, http.StatusOK, cr.Rule)
}

// UpdateRules handles POST /rules: validate, persist, and activate a new
// rules document. A document that fails to compile leaves the active set
// untouched.
func (h *Handler) UpdateRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var doc domain.RulesDoc
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if doc.Version == "" || len(doc.Rules) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "version and at least one rule are required",
		})
		return
	}

	if err := h.catalog.Reload(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rules document: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRulesDoc(ctx, &doc); err != nil {
		slog.Error("failed to save rules document", "version", doc.Version, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rules document",
		})
		return
	}

	slog.Info("rules updated", "version", doc.Version, "count", len(doc.Rules))
	writeJSON(w, http.StatusOK, map[string]any{
		"version": doc.Version,
		"count":   len(doc.Rules),
	})
}

// ReloadRules reloads the latest stored rules document into the catalog.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	doc, err := h.repo.GetRulesDoc(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no stored rules document",
			})
			return
		}
		slog.Error("failed to load rules document", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules document",
		})
		return
	}

	if err := h.catalog.Reload(doc); err != nil {
		slog.Error("failed to reload rules", "version", doc.Version, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded", "version", doc.Version, "count", len(doc.Rules))
	writeJSON(w, http.StatusOK, map[string]any{
		"version": doc.Version,
		"count":   len(doc.Rules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
