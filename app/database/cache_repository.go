package database

import (
	"context"
	"database/sql"
	"fmt"
)

var _ FeedCacheRepository = (*SQLFeedCacheRepository)(nil)

type SQLFeedCacheRepository struct {
	db *DB
}

func NewFeedCacheRepository(db *DB) *SQLFeedCacheRepository {
	return &SQLFeedCacheRepository{db: db}
}

func (r *SQLFeedCacheRepository) GetCachedFeed(ctx context.Context, catalogID, url string) (*CachedFeed, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT catalog_id, url, payload, item_count, cached_at, expires_at
		FROM cached_feeds
		WHERE catalog_id = ? AND url = ?
	`, catalogID, url)

	var cached CachedFeed
	var cachedAt string
	var expiresAt sql.NullString
	err := row.Scan(&cached.CatalogID, &cached.URL, &cached.Payload,
		&cached.ItemCount, &cachedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached feed: %w", err)
	}

	if cached.CachedAt, err = parseTime(cachedAt); err != nil {
		return nil, err
	}
	if cached.ExpiresAt, err = parseNullableTime(expiresAt); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (r *SQLFeedCacheRepository) PutCachedFeed(ctx context.Context, cached CachedFeed) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cached_feeds (catalog_id, url, payload, item_count, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (catalog_id, url) DO UPDATE SET
			payload = excluded.payload,
			item_count = excluded.item_count,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at
	`, cached.CatalogID, cached.URL, cached.Payload, cached.ItemCount,
		formatTime(cached.CachedAt), formatNullableTime(cached.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to put cached feed: %w", err)
	}
	return nil
}

func (r *SQLFeedCacheRepository) DeleteCachedFeedsForCatalog(ctx context.Context, catalogID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cached_feeds WHERE catalog_id = ?`, catalogID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cached feeds: %w", err)
	}
	return res.RowsAffected()
}
