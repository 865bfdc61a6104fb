package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ FeedRepository = (*SQLFeedRepository)(nil)

type SQLFeedRepository struct {
	db *DB
}

func NewFeedRepository(db *DB) *SQLFeedRepository {
	return &SQLFeedRepository{db: db}
}

const feedColumns = `id, catalog_id, url, title, link, description, created_at, updated_at`

func (r *SQLFeedRepository) GetFeed(ctx context.Context, id string) (*Feed, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		WHERE id = ?
	`, id)
	return scanFeedRow(row)
}

func (r *SQLFeedRepository) GetFeedByURL(ctx context.Context, url string) (*Feed, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		WHERE url = ?
		LIMIT 1
	`, url)
	return scanFeedRow(row)
}

func (r *SQLFeedRepository) UpsertFeed(ctx context.Context, feed Feed) (*Feed, error) {
	now := time.Now().UTC()
	id := feed.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feeds (id, catalog_id, url, title, link, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (catalog_id, url) DO UPDATE SET
			title = excluded.title,
			link = excluded.link,
			description = excluded.description,
			updated_at = excluded.updated_at
	`, id, feed.CatalogID, feed.URL, feed.Title, feed.Link, feed.Description,
		formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert feed: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		WHERE catalog_id = ? AND url = ?
	`, feed.CatalogID, feed.URL)
	stored, err := scanFeedRow(row)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("feed missing after upsert: %s", feed.URL)
	}
	return stored, nil
}

func (r *SQLFeedRepository) GetFeedsForCatalog(ctx context.Context, catalogID string) ([]Feed, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+feedColumns+`
		FROM feeds
		WHERE catalog_id = ?
		ORDER BY created_at ASC
	`, catalogID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feeds for catalog: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}
	return feeds, nil
}

func (r *SQLFeedRepository) GetFeedCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feeds`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

func scanFeed(row rowScanner) (*Feed, error) {
	var feed Feed
	var createdAt, updatedAt string
	err := row.Scan(&feed.ID, &feed.CatalogID, &feed.URL, &feed.Title, &feed.Link,
		&feed.Description, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if feed.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if feed.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &feed, nil
}

func scanFeedRow(row *sql.Row) (*Feed, error) {
	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan feed: %w", err)
	}
	return feed, nil
}
