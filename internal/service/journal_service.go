package service

import (
	"context"
	"fmt"
	"time"

	"trade-journal-bot/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

type TradeStore interface {
	Add(ctx context.Context, e domain.TradeEntry) (int64, error)
	Update(ctx context.Context, e domain.TradeEntry) error
	Delete(ctx context.Context, userID, id int64) error
	Query(ctx context.Context, userID int64) ([]domain.TradeEntry, error)
	QueryAll(ctx context.Context) ([]domain.TradeEntry, error)
}

type SuggestionCache interface {
	Suggestions(ctx context.Context, userID int64, field domain.Field, draft *domain.DraftEntry, topN int) []domain.FieldOption
	InvalidateUser(userID int64, fields ...domain.Field)
}

// JournalService owns the commit path: draft validation, durable add, and
// suggestion cache invalidation so freshly used values surface immediately.
type JournalService struct {
	tracer trace.Tracer
	store  TradeStore
	cache  SuggestionCache
	now    func() time.Time
}

func NewJournalService(tracer trace.Tracer, store TradeStore, cache SuggestionCache) *JournalService {
	return &JournalService{
		tracer: tracer,
		store:  store,
		cache:  cache,
		now:    time.Now,
	}
}

// CommitDraft persists a completed draft. Store errors propagate so the
// conversation can offer a retry; the cache is only touched on success.
func (s *JournalService) CommitDraft(ctx context.Context, draft *domain.DraftEntry) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "journal-service.commit-draft")
	defer span.End()

	if s.store == nil {
		return 0, fmt.Errorf("journal service is not fully initialized")
	}
	if draft == nil {
		return 0, fmt.Errorf("no draft to commit")
	}
	touched := draft.Fields()
	if len(touched) == 0 {
		return 0, fmt.Errorf("draft %s has no values", draft.ID)
	}
	if v, ok := draft.Get(domain.FieldTicker); !ok || v.Text == "" {
		return 0, fmt.Errorf("draft %s has no ticker", draft.ID)
	}

	id, err := s.store.Add(ctx, draft.ToTrade(s.now()))
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		s.cache.InvalidateUser(draft.UserID, touched...)
	}
	return id, nil
}

func (s *JournalService) ListEntries(ctx context.Context, userID int64, limit int) ([]domain.TradeEntry, error) {
	ctx, span := s.tracer.Start(ctx, "journal-service.list-entries")
	defer span.End()

	if s.store == nil {
		return nil, fmt.Errorf("journal service is not fully initialized")
	}
	entries, err := s.store.Query(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// DeleteEntry removes a committed trade and drops the user's suggestion cache
// entirely, since any field's history may have changed.
func (s *JournalService) DeleteEntry(ctx context.Context, userID, id int64) error {
	ctx, span := s.tracer.Start(ctx, "journal-service.delete-entry")
	defer span.End()

	if s.store == nil {
		return fmt.Errorf("journal service is not fully initialized")
	}
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.InvalidateUser(userID)
	}
	return nil
}

// Suggest exposes ranked candidates for one field, for read-only surfaces
// that address fields by key.
func (s *JournalService) Suggest(ctx context.Context, userID int64, fieldKey string, topN int) ([]domain.FieldOption, error) {
	ctx, span := s.tracer.Start(ctx, "journal-service.suggest")
	defer span.End()

	if s.cache == nil {
		return nil, fmt.Errorf("suggestions unavailable")
	}
	field, ok := domain.ParseField(fieldKey)
	if !ok {
		return nil, fmt.Errorf("unknown field: %s", fieldKey)
	}
	return s.cache.Suggestions(ctx, userID, field, nil, topN), nil
}
