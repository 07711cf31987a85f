// Package worker provides async score recomputation driven by the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/shfed/creditcore/internal/cache"
	"github.com/shfed/creditcore/internal/catalog"
	"github.com/shfed/creditcore/internal/domain"
	"github.com/shfed/creditcore/internal/ledger"
	"github.com/shfed/creditcore/internal/scoring"
)

const snapshotTTL = 30 * time.Second

// Worker recomputes actor scores when events are ingested. It subscribes to
// the event-ingested topic, re-derives the score from the actor's full stored
// history, publishes the result, and records tier transitions in the ledger.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	cache   domain.Cache
	engine  *scoring.Engine
	catalog *catalog.Catalog
	ledger  *ledger.Ledger

	mu        sync.Mutex
	lastTiers map[string]domain.Tier

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, c domain.Cache, cat *catalog.Catalog, engine *scoring.Engine, led *ledger.Ledger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		cache:     c,
		engine:    engine,
		catalog:   cat,
		ledger:    led,
		lastTiers: make(map[string]domain.Tier),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the event-ingested topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicEventIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started", "topic", domain.TopicEventIngested)
	return nil
}

// ScoreComputedMessage is the payload published on the score-computed topic.
type ScoreComputedMessage struct {
	ActorID      string      `json:"actorId"`
	EventID      string      `json:"eventId,omitempty"`
	Points       float64     `json:"points"`
	Score        int         `json:"score"`
	Tier         domain.Tier `json:"tier"`
	RulesVersion string      `json:"rulesVersion"`
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var ev domain.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("failed to parse ingested event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if ev.ActorID == "" {
		return nil
	}
	return w.recompute(ctx, ev.ActorID, ev.ID)
}

// recompute re-derives the actor's score from their full stored history.
// The stored events are the source of truth; nothing incremental is kept.
func (w *Worker) recompute(ctx context.Context, actorID, eventID string) error {
	start := time.Now()

	events, err := w.repo.GetEventsByActor(ctx, actorID)
	if err != nil {
		slog.Error("failed to load actor events",
			"actor_id", actorID,
			"error", err,
		)
		return err
	}

	history := make([]domain.Event, len(events))
	for i, ev := range events {
		history[i] = *ev
	}

	result := w.engine.ComputeScore(history)

	if w.cache != nil {
		_ = cache.SetScore(ctx, w.cache, actorID, &result, snapshotTTL)
	}

	payload, _ := json.Marshal(ScoreComputedMessage{
		ActorID:      actorID,
		EventID:      eventID,
		Points:       result.Points,
		Score:        result.Score,
		Tier:         result.Tier,
		RulesVersion: w.catalog.Version(),
	})
	if err := w.bus.Publish(ctx, domain.TopicScoreComputed, payload); err != nil {
		slog.Error("failed to publish computed score",
			"actor_id", actorID,
			"error", err,
		)
	}

	w.recordTierChange(ctx, actorID, result)

	slog.Info("score recomputed",
		"actor_id", actorID,
		"event_count", len(history),
		"score", result.Score,
		"tier", result.Tier.Name,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// recordTierChange appends a ledger entry and publishes a notification when
// the actor moves between tiers. The first observed tier is only remembered.
func (w *Worker) recordTierChange(ctx context.Context, actorID string, result domain.ScoreResult) {
	w.mu.Lock()
	prev, seen := w.lastTiers[actorID]
	w.lastTiers[actorID] = result.Tier
	w.mu.Unlock()

	if !seen || prev == result.Tier {
		return
	}

	entry, err := w.ledger.Append(ctx, domain.LedgerEntry{
		ActorID: actorID,
		Action:  "score.tier",
		Meta: map[string]any{
			"from":  prev.Name,
			"to":    result.Tier.Name,
			"band":  result.Tier.Band,
			"score": result.Score,
		},
	})
	if err != nil {
		slog.Error("failed to record tier change",
			"actor_id", actorID,
			"error", err,
		)
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"actorId": actorID,
		"from":    prev,
		"to":      result.Tier,
		"score":   result.Score,
		"entryId": entry.ID,
	})
	if err := w.bus.Publish(ctx, domain.TopicTierChanged, payload); err != nil {
		slog.Error("failed to publish tier change",
			"actor_id", actorID,
			"error", err,
		)
	}

	slog.Info("tier changed",
		"actor_id", actorID,
		"from", prev.Name,
		"to", result.Tier.Name,
	)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
