package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"trade-journal-bot/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Aggregator is the history scoring dependency, an interface so tests can
// count invocations.
type Aggregator interface {
	Scores(ctx context.Context, userID int64, field domain.Field) FieldScores
}

type schemaEntry struct {
	options   []string
	expiresAt time.Time
}

type suggestionKey struct {
	userID int64
	field  domain.Field
}

type suggestionEntry struct {
	ranked    []domain.FieldOption
	expiresAt time.Time
}

// Cache memoizes schema option fetches and base rankings with independent
// TTLs. Schema entries additionally write through to Redis (TTL key plus a
// non-expiring stale copy used when the schema source is down). Suggestion
// entries are memory-only and keyed by (user, field): the context boost is
// applied after the cached base ranking, so draft edits never invalidate.
type Cache struct {
	opts     *OptionSource
	hist     Aggregator
	rdb      *redis.Client
	schemaID string

	schemaTTL     time.Duration
	suggestionTTL time.Duration
	now           func() time.Time

	mu          sync.RWMutex
	schema      map[domain.Field]schemaEntry
	suggestions map[suggestionKey]suggestionEntry
}

func NewCache(opts *OptionSource, hist Aggregator, rdb *redis.Client, schemaID string, schemaTTL, suggestionTTL time.Duration) *Cache {
	return &Cache{
		opts:          opts,
		hist:          hist,
		rdb:           rdb,
		schemaID:      schemaID,
		schemaTTL:     schemaTTL,
		suggestionTTL: suggestionTTL,
		now:           time.Now,
		schema:        make(map[domain.Field]schemaEntry),
		suggestions:   make(map[suggestionKey]suggestionEntry),
	}
}

func (c *Cache) schemaKey(field domain.Field) string {
	return fmt.Sprintf("journal:schema:%s:%s", c.schemaID, field.Key())
}

// SchemaOptions returns the allowed values for a field, serving from cache
// inside the schema TTL. A fetch failure falls back to stale data (expired
// memory entry, then the Redis stale copy) and finally to built-in defaults.
func (c *Cache) SchemaOptions(ctx context.Context, field domain.Field) []string {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.schema[field]
	c.mu.RUnlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.options
	}

	if options, ok := c.redisSchemaGet(ctx, c.schemaKey(field)); ok {
		c.storeSchema(field, options, now)
		return withDefaults(field, options)
	}

	options, err := c.opts.Options(ctx, field)
	if err == nil {
		c.storeSchema(field, options, now)
		c.redisSchemaSet(ctx, field, options)
		return withDefaults(field, options)
	}
	log.Printf("schema fetch failed for %s: %v", field.Key(), err)

	// Stale-over-fresh: an expired memory entry beats an empty answer.
	if ok {
		return entry.options
	}
	if stale, ok := c.redisSchemaGet(ctx, c.schemaKey(field)+":stale"); ok {
		return withDefaults(field, stale)
	}
	return DefaultOptions(field)
}

func withDefaults(field domain.Field, options []string) []string {
	if len(options) == 0 {
		return DefaultOptions(field)
	}
	return options
}

func (c *Cache) storeSchema(field domain.Field, options []string, now time.Time) {
	c.mu.Lock()
	c.schema[field] = schemaEntry{options: withDefaults(field, options), expiresAt: now.Add(c.schemaTTL)}
	c.mu.Unlock()
}

func (c *Cache) redisSchemaGet(ctx context.Context, key string) ([]string, bool) {
	if c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("schema cache read failed for %s: %v", key, err)
		}
		return nil, false
	}
	var options []string
	if err := json.Unmarshal([]byte(raw), &options); err != nil {
		log.Printf("schema cache decode failed for %s: %v", key, err)
		return nil, false
	}
	return options, true
}

func (c *Cache) redisSchemaSet(ctx context.Context, field domain.Field, options []string) {
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(withDefaults(field, options))
	if err != nil {
		return
	}
	key := c.schemaKey(field)
	if err := c.rdb.Set(ctx, key, raw, c.schemaTTL).Err(); err != nil {
		log.Printf("schema cache write failed for %s: %v", key, err)
		return
	}
	// Stale copy has no TTL; it backs the availability-over-freshness path.
	if err := c.rdb.Set(ctx, key+":stale", raw, 0).Err(); err != nil {
		log.Printf("stale schema cache write failed for %s: %v", key, err)
	}
}

// Suggestions returns the ranked candidate list for a step. The base ranking
// (schema options blended with history scores) is cached per (user, field);
// the draft's current values are boosted on top per call. topN <= 0 returns
// the full ranking.
func (c *Cache) Suggestions(ctx context.Context, userID int64, field domain.Field, draft *domain.DraftEntry, topN int) []domain.FieldOption {
	now := c.now()
	key := suggestionKey{userID: userID, field: field}

	c.mu.RLock()
	entry, ok := c.suggestions[key]
	c.mu.RUnlock()

	base := entry.ranked
	if !ok || !now.Before(entry.expiresAt) {
		options := c.SchemaOptions(ctx, field)
		scores := c.hist.Scores(ctx, userID, field)
		base = Rank(options, scores, nil)

		// Racing misses may both compute; last write wins.
		c.mu.Lock()
		c.suggestions[key] = suggestionEntry{ranked: base, expiresAt: now.Add(c.suggestionTTL)}
		c.mu.Unlock()
	}

	var context []string
	if draft != nil {
		if v, ok := draft.Get(field); ok {
			context = v.Values()
		}
	}
	return TopN(ApplyContextBoost(base, context), topN)
}

// InvalidateUser drops the user's cached suggestions for the given fields, or
// for every field when none are named. Called after a successful commit so
// fresh values surface before the TTL lapses. The schema cache is untouched.
func (c *Cache) InvalidateUser(userID int64, fields ...domain.Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(fields) == 0 {
		fields = domain.FlowFields
	}
	for _, f := range fields {
		delete(c.suggestions, suggestionKey{userID: userID, field: f})
	}
}

// InvalidateSchema clears cached schema options, memory and Redis both. Used
// when the configured schema source changes.
func (c *Cache) InvalidateSchema(ctx context.Context) {
	c.mu.Lock()
	c.schema = make(map[domain.Field]schemaEntry)
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}
	for _, f := range domain.FlowFields {
		key := c.schemaKey(f)
		if err := c.rdb.Del(ctx, key, key+":stale").Err(); err != nil {
			log.Printf("schema cache delete failed for %s: %v", key, err)
		}
	}
}
