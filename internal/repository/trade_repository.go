package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trade-journal-bot/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrNotConnected is returned by every repository method when the service
// runs without a database. Callers either surface it or fall back.
var ErrNotConnected = errors.New("postgres is not connected")

// TradeRepository is the durable trade store behind commit and history scans.
type TradeRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewTradeRepository(pool PgxPool, tracer trace.Tracer) *TradeRepository {
	return &TradeRepository{pool: pool, tracer: tracer}
}

func (r *TradeRepository) RunMigrations(ctx context.Context) error {
	if r.pool == nil {
		return ErrNotConnected
	}
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS trades (
			id          BIGSERIAL PRIMARY KEY,
			user_id     BIGINT NOT NULL,
			ticker      TEXT NOT NULL,
			direction   TEXT NOT NULL DEFAULT '',
			pnl         DOUBLE PRECISION,
			open_price  DOUBLE PRECISION,
			close_price DOUBLE PRECISION,
			stop_loss   DOUBLE PRECISION,
			take_profit DOUBLE PRECISION,
			volume      DOUBLE PRECISION,
			tags        TEXT[] NOT NULL DEFAULT '{}',
			comment     TEXT NOT NULL DEFAULT '',
			entered_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_trades_user_entered
			ON trades (user_id, entered_at DESC);
	`)
	return err
}

func (r *TradeRepository) Add(ctx context.Context, e domain.TradeEntry) (int64, error) {
	_, span := r.tracer.Start(ctx, "trade-repo.add")
	defer span.End()

	if r.pool == nil {
		return 0, ErrNotConnected
	}

	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO trades (user_id, ticker, direction, pnl, open_price, close_price,
		                     stop_loss, take_profit, volume, tags, comment, entered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		e.UserID,
		e.Ticker,
		e.Direction,
		e.PnL,
		e.OpenPrice,
		e.ClosePrice,
		e.StopLoss,
		e.TakeProfit,
		e.Volume,
		tagsOrEmpty(e.Tags),
		e.Comment,
		e.EnteredAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	return id, nil
}

func (r *TradeRepository) Update(ctx context.Context, e domain.TradeEntry) error {
	_, span := r.tracer.Start(ctx, "trade-repo.update")
	defer span.End()

	if r.pool == nil {
		return ErrNotConnected
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE trades SET ticker = $1, direction = $2, pnl = $3, open_price = $4,
		        close_price = $5, stop_loss = $6, take_profit = $7, volume = $8,
		        tags = $9, comment = $10
		 WHERE id = $11 AND user_id = $12`,
		e.Ticker,
		e.Direction,
		e.PnL,
		e.OpenPrice,
		e.ClosePrice,
		e.StopLoss,
		e.TakeProfit,
		e.Volume,
		tagsOrEmpty(e.Tags),
		e.Comment,
		e.ID,
		e.UserID,
	)
	if err != nil {
		return fmt.Errorf("update trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %d not found for user %d", e.ID, e.UserID)
	}
	return nil
}

func (r *TradeRepository) Delete(ctx context.Context, userID, id int64) error {
	_, span := r.tracer.Start(ctx, "trade-repo.delete")
	defer span.End()

	if r.pool == nil {
		return ErrNotConnected
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM trades WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %d not found for user %d", id, userID)
	}
	return nil
}

func (r *TradeRepository) Query(ctx context.Context, userID int64) ([]domain.TradeEntry, error) {
	ctx, span := r.tracer.Start(ctx, "trade-repo.query")
	defer span.End()

	if r.pool == nil {
		return nil, ErrNotConnected
	}

	rows, err := r.pool.Query(ctx, selectColumns+` WHERE user_id = $1 ORDER BY entered_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (r *TradeRepository) QueryAll(ctx context.Context) ([]domain.TradeEntry, error) {
	ctx, span := r.tracer.Start(ctx, "trade-repo.query-all")
	defer span.End()

	if r.pool == nil {
		return nil, ErrNotConnected
	}

	rows, err := r.pool.Query(ctx, selectColumns+` ORDER BY entered_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query all trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

const selectColumns = `SELECT id, user_id, ticker, direction, pnl, open_price, close_price,
       stop_loss, take_profit, volume, tags, comment, entered_at
  FROM trades`

func scanTrades(rows pgx.Rows) ([]domain.TradeEntry, error) {
	var entries []domain.TradeEntry
	for rows.Next() {
		var e domain.TradeEntry
		var enteredAt time.Time
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.Ticker,
			&e.Direction,
			&e.PnL,
			&e.OpenPrice,
			&e.ClosePrice,
			&e.StopLoss,
			&e.TakeProfit,
			&e.Volume,
			&e.Tags,
			&e.Comment,
			&enteredAt,
		); err != nil {
			return nil, err
		}
		e.EnteredAt = enteredAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
