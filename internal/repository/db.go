package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of *pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password      TEXT NOT NULL,
		role          TEXT NOT NULL DEFAULT 'user',
		username      TEXT UNIQUE,
		referral_code TEXT NOT NULL UNIQUE,
		plan          TEXT NOT NULL DEFAULT 'free',
		payout_email  TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id                   TEXT PRIMARY KEY,
		user_id              TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		plan                 TEXT NOT NULL,
		status               TEXT NOT NULL,
		current_period_start TIMESTAMPTZ NOT NULL,
		current_period_end   TIMESTAMPTZ NOT NULL,
		payment_provider_id  TEXT NOT NULL DEFAULT '',
		recurring            BOOLEAN NOT NULL DEFAULT FALSE,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_subscriptions_user_status ON subscriptions(user_id, status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_one_active ON subscriptions(user_id) WHERE status = 'active';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriptions_provider ON subscriptions(payment_provider_id) WHERE payment_provider_id <> '';

	CREATE TABLE IF NOT EXISTS orders (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		plan               TEXT NOT NULL,
		amount_minor_units BIGINT NOT NULL,
		currency           TEXT NOT NULL,
		status             TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);

	CREATE TABLE IF NOT EXISTS referrals (
		id               TEXT PRIMARY KEY,
		referrer_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		referred_email   TEXT NOT NULL UNIQUE,
		status           TEXT NOT NULL DEFAULT 'pending',
		commission_cents BIGINT NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		connected_at     TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_referrals_referrer ON referrals(referrer_id);

	CREATE TABLE IF NOT EXISTS payouts (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount_cents BIGINT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_payouts_user ON payouts(user_id);

	CREATE TABLE IF NOT EXISTS refund_requests (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		order_id     TEXT NOT NULL,
		reason       TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'pending',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS contents (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		kind       TEXT NOT NULL,
		title      TEXT NOT NULL,
		body       TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'draft',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_contents_user ON contents(user_id);

	CREATE TABLE IF NOT EXISTS websites (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		username   TEXT NOT NULL UNIQUE,
		theme      TEXT NOT NULL,
		content    JSONB NOT NULL,
		status     TEXT NOT NULL DEFAULT 'draft',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS plan_change_logs (
		id         TEXT PRIMARY KEY,
		saga_id    TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		status     TEXT NOT NULL,
		step       TEXT NOT NULL,
		detail     TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_plan_change_logs_user ON plan_change_logs(user_id, created_at);

	CREATE TABLE IF NOT EXISTS system_cache (
		key        TEXT PRIMARY KEY,
		data       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// RunMigrations creates the schema if it does not exist yet.
func RunMigrations(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
