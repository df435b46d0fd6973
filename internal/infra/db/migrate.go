package db

import (
	"context"
	"database/sql"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var tables = []string{`
CREATE TABLE IF NOT EXISTS feeds (
    id                   BIGSERIAL PRIMARY KEY,
    url                  TEXT NOT NULL UNIQUE,
    title                TEXT NOT NULL DEFAULT '',
    description          TEXT NOT NULL DEFAULT '',
    source_type          VARCHAR(32) NOT NULL DEFAULT 'rss',
    topics               JSONB NOT NULL DEFAULT '[]',
    domain               TEXT NOT NULL DEFAULT '',
    category             TEXT NOT NULL DEFAULT '',
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    last_fetch_status    VARCHAR(20) NOT NULL DEFAULT 'ok',
    last_error_message   TEXT NOT NULL DEFAULT '',
    last_fetched_at      TIMESTAMPTZ,
    is_active            BOOLEAN NOT NULL DEFAULT TRUE,
    is_approved          BOOLEAN NOT NULL DEFAULT FALSE
)`, `
CREATE TABLE IF NOT EXISTS subscriptions (
    user_id    TEXT NOT NULL,
    feed_id    BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, feed_id)
)`, `
CREATE TABLE IF NOT EXISTS discovery_attempts (
    id                BIGSERIAL PRIMARY KEY,
    original_feed_id  BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    candidate_feed_id BIGINT REFERENCES feeds(id) ON DELETE SET NULL,
    candidate_url     TEXT NOT NULL,
    strategy          VARCHAR(32) NOT NULL,
    confidence        INTEGER NOT NULL CHECK (confidence BETWEEN 0 AND 100),
    auto_subscribed   BOOLEAN NOT NULL DEFAULT FALSE,
    accepted          BOOLEAN,
    user_note         TEXT NOT NULL DEFAULT '',
    metadata          JSONB NOT NULL DEFAULT '{}',
    counted           BOOLEAN NOT NULL DEFAULT TRUE,
    validated_at      TIMESTAMPTZ,
    processed_at      TIMESTAMPTZ NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS healing_profiles (
    feed_id                BIGINT PRIMARY KEY REFERENCES feeds(id) ON DELETE CASCADE,
    success_count          INTEGER NOT NULL DEFAULT 0,
    failure_count          INTEGER NOT NULL DEFAULT 0,
    avg_recovery_ms        BIGINT NOT NULL DEFAULT 0,
    preferred_tactic       VARCHAR(32) NOT NULL DEFAULT '',
    last_successful_tactic VARCHAR(32) NOT NULL DEFAULT '',
    updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
)`, `
CREATE TABLE IF NOT EXISTS healing_attempts (
    id            BIGSERIAL PRIMARY KEY,
    feed_id       BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
    tactic        VARCHAR(32) NOT NULL,
    success       BOOLEAN NOT NULL,
    error_message TEXT NOT NULL DEFAULT '',
    response_ms   BIGINT NOT NULL DEFAULT 0,
    metadata      JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`, `
CREATE TABLE IF NOT EXISTS notifications (
    id          BIGSERIAL PRIMARY KEY,
    user_id     TEXT NOT NULL,
    kind        VARCHAR(32) NOT NULL,
    old_feed_id BIGINT NOT NULL,
    new_feed_id BIGINT NOT NULL,
    title       TEXT NOT NULL,
    body        TEXT NOT NULL,
    actionable  BOOLEAN NOT NULL DEFAULT FALSE,
    read_at     TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`}

var indexes = []string{
	// active catalog scans
	`CREATE INDEX IF NOT EXISTS idx_feeds_active ON feeds(is_active) WHERE is_active = TRUE`,
	`CREATE INDEX IF NOT EXISTS idx_feeds_source_type ON feeds(source_type)`,
	`CREATE INDEX IF NOT EXISTS idx_feeds_topics_gin ON feeds USING gin(topics)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_feed_active ON subscriptions(feed_id) WHERE active = TRUE`,
	// attempt cap lookups
	`CREATE INDEX IF NOT EXISTS idx_discovery_attempts_feed ON discovery_attempts(original_feed_id, processed_at)`,
	`CREATE INDEX IF NOT EXISTS idx_healing_attempts_feed_created ON healing_attempts(feed_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_healing_attempts_created ON healing_attempts(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC)`,
}

// MigrateUp creates the schema. Every statement is idempotent.
func MigrateUp(ctx context.Context, db Execer) error {
	for _, stmt := range tables {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for _, idx := range indexes {
		if _, err := db.ExecContext(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

// MigrateDown drops the schema in reverse dependency order.
// All feed, subscription and healing data is lost.
func MigrateDown(ctx context.Context, db Execer) error {
	dropStatements := []string{
		`DROP TABLE IF EXISTS notifications`,
		`DROP TABLE IF EXISTS healing_attempts`,
		`DROP TABLE IF EXISTS healing_profiles`,
		`DROP TABLE IF EXISTS discovery_attempts`,
		`DROP TABLE IF EXISTS subscriptions`,
		`DROP TABLE IF EXISTS feeds`,
	}
	for _, stmt := range dropStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
