package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"feed-resilience/internal/domain/entity"
	"feed-resilience/internal/repository"
)

const feedColumns = `id, url, title, description, source_type, topics, domain, category,
       consecutive_failures, last_fetch_status, last_error_message, last_fetched_at,
       is_active, is_approved`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(r rowScanner) (*entity.Feed, error) {
	var f entity.Feed
	var topics []byte
	if err := r.Scan(
		&f.ID, &f.URL, &f.Title, &f.Description, &f.SourceType, &topics, &f.Domain, &f.Category,
		&f.ConsecutiveFailures, &f.LastFetchStatus, &f.LastErrorMessage, &f.LastFetchedAt,
		&f.IsActive, &f.IsApproved,
	); err != nil {
		return nil, err
	}
	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &f.Topics); err != nil {
			return nil, fmt.Errorf("unmarshal topics: %w", err)
		}
	}
	return &f, nil
}

// FeedCatalogRepo is the feed catalog backed by the feeds and
// subscriptions tables.
type FeedCatalogRepo struct{ db DB }

func NewFeedCatalogRepo(db DB) repository.FeedCatalog {
	return &FeedCatalogRepo{db: db}
}

func (repo *FeedCatalogRepo) GetFeedByID(ctx context.Context, id int64) (*entity.Feed, error) {
	defer observe("feed_get", time.Now())
	query := `SELECT ` + feedColumns + `
FROM feeds
WHERE id = $1
LIMIT 1`
	feed, err := scanFeed(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetFeedByID: %w", err)
	}
	return feed, nil
}

// buildCatalogQuery renders the WHERE clause for filter.
func buildCatalogQuery(filter entity.CatalogFilter) (string, []any, error) {
	var conds []string
	var args []any

	if filter.ActiveOnly {
		conds = append(conds, "is_active = TRUE")
	}
	if filter.SourceType != "" {
		args = append(args, filter.SourceType)
		conds = append(conds, fmt.Sprintf("source_type = $%d", len(args)))
	}
	if len(filter.Topics) > 0 {
		topics, err := json.Marshal(filter.Topics)
		if err != nil {
			return "", nil, err
		}
		args = append(args, string(topics))
		conds = append(conds, fmt.Sprintf("topics ?| ARRAY(SELECT jsonb_array_elements_text($%d::jsonb))", len(args)))
	}

	query := `SELECT ` + feedColumns + `
FROM feeds`
	if len(conds) > 0 {
		query += "\nWHERE " + strings.Join(conds, " AND ")
	}
	query += "\nORDER BY id ASC"
	return query, args, nil
}

func (repo *FeedCatalogRepo) GetFeedCatalog(ctx context.Context, filter entity.CatalogFilter) ([]*entity.Feed, error) {
	defer observe("feed_catalog", time.Now())
	query, args, err := buildCatalogQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("GetFeedCatalog: %w", err)
	}
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetFeedCatalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	feeds := make([]*entity.Feed, 0, 64)
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("GetFeedCatalog: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// InsertOrFindCatalogEntry upserts on url. The no-op update makes
// RETURNING yield the existing row on conflict.
func (repo *FeedCatalogRepo) InsertOrFindCatalogEntry(ctx context.Context, c *entity.Candidate) (*entity.Feed, error) {
	defer observe("feed_upsert", time.Now())
	topics, err := json.Marshal(c.Topics)
	if err != nil {
		return nil, fmt.Errorf("InsertOrFindCatalogEntry: marshal topics: %w", err)
	}
	if c.Topics == nil {
		topics = []byte("[]")
	}

	domain := ""
	if host := (&entity.Feed{URL: c.URL}).Host(); host != "" {
		domain = strings.TrimPrefix(host, "www.")
	}

	query := `
INSERT INTO feeds (url, title, description, source_type, topics, domain, is_active, is_approved)
VALUES ($1, $2, $3, $4, $5, $6, TRUE, FALSE)
ON CONFLICT (url) DO UPDATE SET url = EXCLUDED.url
RETURNING ` + feedColumns
	feed, err := scanFeed(repo.db.QueryRowContext(ctx, query,
		c.URL, c.Title, c.Description, c.SourceType, topics, domain,
	))
	if err != nil {
		return nil, fmt.Errorf("InsertOrFindCatalogEntry: %w", err)
	}
	return feed, nil
}

func (repo *FeedCatalogRepo) UpdateFeedHealth(ctx context.Context, feedID int64, patch entity.HealthPatch) error {
	defer observe("feed_health", time.Now())
	const query = `
UPDATE feeds SET
       consecutive_failures = COALESCE($1, consecutive_failures),
       last_fetch_status    = COALESCE($2, last_fetch_status),
       last_error_message   = COALESCE($3, last_error_message),
       last_fetched_at      = COALESCE($4, last_fetched_at),
       is_active            = COALESCE($5, is_active)
WHERE id = $6`
	res, err := repo.db.ExecContext(ctx, query,
		nullable(patch.ConsecutiveFailures),
		nullable(patch.LastFetchStatus),
		nullable(patch.LastErrorMessage),
		nullable(patch.LastFetchedAt),
		nullable(patch.IsActive),
		feedID,
	)
	if err != nil {
		return fmt.Errorf("UpdateFeedHealth: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("UpdateFeedHealth: %w", entity.ErrNotFound)
	}
	return nil
}

func (repo *FeedCatalogRepo) GetAllFeedSubscriptions(ctx context.Context) ([]entity.Subscription, error) {
	defer observe("subscriptions_list", time.Now())
	const query = `
SELECT user_id, feed_id, active
FROM subscriptions
WHERE active = TRUE
ORDER BY feed_id ASC, user_id ASC`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("GetAllFeedSubscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []entity.Subscription
	for rows.Next() {
		var s entity.Subscription
		if err := rows.Scan(&s.UserID, &s.FeedID, &s.Active); err != nil {
			return nil, fmt.Errorf("GetAllFeedSubscriptions: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// AutoSubscribeUsersToAlternative moves active subscribers in one
// transaction and returns the moved user IDs.
func (repo *FeedCatalogRepo) AutoSubscribeUsersToAlternative(ctx context.Context, oldFeedID, newFeedID int64) ([]string, error) {
	defer observe("subscriptions_migrate", time.Now())
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("AutoSubscribeUsersToAlternative: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const moveQuery = `
INSERT INTO subscriptions (user_id, feed_id, active)
SELECT user_id, $2, TRUE
FROM subscriptions
WHERE feed_id = $1 AND active = TRUE
ON CONFLICT (user_id, feed_id) DO UPDATE SET active = TRUE
RETURNING user_id`
	rows, err := tx.QueryContext(ctx, moveQuery, oldFeedID, newFeedID)
	if err != nil {
		return nil, fmt.Errorf("AutoSubscribeUsersToAlternative: %w", err)
	}
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("AutoSubscribeUsersToAlternative: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("AutoSubscribeUsersToAlternative: %w", err)
	}
	_ = rows.Close()

	const deactivateQuery = `UPDATE subscriptions SET active = FALSE WHERE feed_id = $1 AND active = TRUE`
	if _, err := tx.ExecContext(ctx, deactivateQuery, oldFeedID); err != nil {
		return nil, fmt.Errorf("AutoSubscribeUsersToAlternative: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("AutoSubscribeUsersToAlternative: commit: %w", err)
	}
	return users, nil
}
