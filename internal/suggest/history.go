package suggest

import (
	"context"
	"log"
	"time"

	"trade-journal-bot/internal/domain"
)

// Scoring weights. Frequency dominates, recency is a secondary tiebreaker,
// global popularity is a smaller uniform nudge: a value used twice recently
// must outrank a value used once long ago, and a globally common value the
// user never touched must rank below anything they have used at all.
const (
	frequencyWeight = 0.7
	freshnessWeight = 0.3
	globalWeight    = 0.2
)

// TradeQuerier is the read side of the trade store.
type TradeQuerier interface {
	Query(ctx context.Context, userID int64) ([]domain.TradeEntry, error)
	QueryAll(ctx context.Context) ([]domain.TradeEntry, error)
}

// FieldScores carries the two score components for values of one field.
type FieldScores struct {
	Personal map[string]float64
	Global   map[string]float64
}

func (s FieldScores) Combined(value string) float64 {
	return s.Personal[value] + s.Global[value]
}

// HistoryAggregator turns a user's trade history into recency-and-frequency
// weighted scores per value, plus a flat cross-user popularity score.
type HistoryAggregator struct {
	store TradeQuerier
	now   func() time.Time
}

func NewHistoryAggregator(store TradeQuerier) *HistoryAggregator {
	return &HistoryAggregator{store: store, now: time.Now}
}

// Scores never fails: a storage error degrades to empty maps so ranking falls
// back to schema order.
func (a *HistoryAggregator) Scores(ctx context.Context, userID int64, field domain.Field) FieldScores {
	scores := FieldScores{
		Personal: make(map[string]float64),
		Global:   make(map[string]float64),
	}
	if a.store == nil {
		return scores
	}

	now := a.now().UTC()

	own, err := a.store.Query(ctx, userID)
	if err != nil {
		log.Printf("history scan failed for user %d: %v", userID, err)
	} else {
		for _, e := range own {
			freshness := 1.0 / ageDays(now, e.EnteredAt)
			for _, v := range field.TradeValues(e) {
				scores.Personal[v] += frequencyWeight + freshness*freshnessWeight
			}
		}
	}

	all, err := a.store.QueryAll(ctx)
	if err != nil {
		log.Printf("global history scan failed: %v", err)
		return scores
	}
	for _, e := range all {
		for _, v := range field.TradeValues(e) {
			scores.Global[v] += globalWeight
		}
	}
	return scores
}

func ageDays(now, enteredAt time.Time) float64 {
	days := now.Sub(enteredAt).Hours() / 24
	if days < 1 {
		return 1
	}
	return days
}
