package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"trade-journal-bot/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// PendingRepository stores drafts parked mid-flow. Entries live in a per-user
// Redis hash keyed by draft id, so they survive process restarts and can be
// listed, resumed, or bulk-cleared.
type PendingRepository struct {
	client *redis.Client
	tracer trace.Tracer
}

func NewPendingRepository(client *redis.Client, tracer trace.Tracer) *PendingRepository {
	return &PendingRepository{client: client, tracer: tracer}
}

func pendingKey(userID int64) string {
	return fmt.Sprintf("journal:pending:%d", userID)
}

func (r *PendingRepository) Park(ctx context.Context, p domain.PendingEntry) error {
	_, span := r.tracer.Start(ctx, "pending-repo.park")
	defer span.End()

	if p.Draft == nil {
		return fmt.Errorf("pending entry %s has no draft", p.ID)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending entry: %w", err)
	}
	if err := r.client.HSet(ctx, pendingKey(p.UserID), p.ID, raw).Err(); err != nil {
		return fmt.Errorf("park draft %s: %w", p.ID, err)
	}
	return nil
}

func (r *PendingRepository) List(ctx context.Context, userID int64) ([]domain.PendingEntry, error) {
	_, span := r.tracer.Start(ctx, "pending-repo.list")
	defer span.End()

	raw, err := r.client.HGetAll(ctx, pendingKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending drafts: %w", err)
	}
	entries := make([]domain.PendingEntry, 0, len(raw))
	for id, data := range raw {
		var p domain.PendingEntry
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("decode pending draft %s: %w", id, err)
		}
		entries = append(entries, p)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// Take removes and returns one parked draft, so a draft is never active and
// parked at the same time. Returns redis.Nil when the id is unknown.
func (r *PendingRepository) Take(ctx context.Context, userID int64, id string) (*domain.PendingEntry, error) {
	_, span := r.tracer.Start(ctx, "pending-repo.take")
	defer span.End()

	key := pendingKey(userID)
	data, err := r.client.HGet(ctx, key, id).Result()
	if err != nil {
		return nil, err
	}
	var p domain.PendingEntry
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decode pending draft %s: %w", id, err)
	}
	if err := r.client.HDel(ctx, key, id).Err(); err != nil {
		return nil, fmt.Errorf("remove pending draft %s: %w", id, err)
	}
	return &p, nil
}

func (r *PendingRepository) Clear(ctx context.Context, userID int64) (int64, error) {
	_, span := r.tracer.Start(ctx, "pending-repo.clear")
	defer span.End()

	key := pendingKey(userID)
	n, err := r.client.HLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("count pending drafts: %w", err)
	}
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return 0, fmt.Errorf("clear pending drafts: %w", err)
	}
	return n, nil
}
