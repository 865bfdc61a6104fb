package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

var _ MappingRepository = (*SQLMappingRepository)(nil)

type SQLMappingRepository struct {
	db *DB
}

func NewMappingRepository(db *DB) *SQLMappingRepository {
	return &SQLMappingRepository{db: db}
}

func (r *SQLMappingRepository) GetFeedMapping(ctx context.Context, catalogID string, remoteFeedID int64) (*FeedMapping, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT catalog_id, remote_feed_id, local_feed_id, created_at
		FROM feed_mappings
		WHERE catalog_id = ? AND remote_feed_id = ?
	`, catalogID, remoteFeedID)

	var m FeedMapping
	var createdAt string
	err := row.Scan(&m.CatalogID, &m.RemoteFeedID, &m.LocalFeedID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed mapping: %w", err)
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *SQLMappingRepository) CreateFeedMapping(ctx context.Context, mapping FeedMapping) error {
	createdAt := mapping.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feed_mappings (catalog_id, remote_feed_id, local_feed_id, created_at)
		VALUES (?, ?, ?, ?)
	`, mapping.CatalogID, mapping.RemoteFeedID, mapping.LocalFeedID, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("failed to create feed mapping: %w", err)
	}
	return nil
}

func (r *SQLMappingRepository) GetFeedMappingsForCatalog(ctx context.Context, catalogID string) ([]FeedMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT catalog_id, remote_feed_id, local_feed_id, created_at
		FROM feed_mappings
		WHERE catalog_id = ?
		ORDER BY remote_feed_id ASC
	`, catalogID)
	if err != nil {
		return nil, fmt.Errorf("failed to get feed mappings: %w", err)
	}
	defer rows.Close()

	var mappings []FeedMapping
	for rows.Next() {
		var m FeedMapping
		var createdAt string
		if err := rows.Scan(&m.CatalogID, &m.RemoteFeedID, &m.LocalFeedID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan feed mapping: %w", err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed mappings: %w", err)
	}
	return mappings, nil
}

func (r *SQLMappingRepository) GetItemMapping(ctx context.Context, catalogID string, remoteItemID int64) (*ItemMapping, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT catalog_id, remote_item_id, local_item_id, created_at
		FROM item_mappings
		WHERE catalog_id = ? AND remote_item_id = ?
	`, catalogID, remoteItemID)

	var m ItemMapping
	var createdAt string
	err := row.Scan(&m.CatalogID, &m.RemoteItemID, &m.LocalItemID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item mapping: %w", err)
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *SQLMappingRepository) CreateItemMapping(ctx context.Context, mapping ItemMapping) error {
	createdAt := mapping.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO item_mappings (catalog_id, remote_item_id, local_item_id, created_at)
		VALUES (?, ?, ?, ?)
	`, mapping.CatalogID, mapping.RemoteItemID, mapping.LocalItemID, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("failed to create item mapping: %w", err)
	}
	return nil
}

// DeleteMappingsForCatalog removes both feed and item mappings; used as
// cascade cleanup when news sync is disabled for a catalog.
func (r *SQLMappingRepository) DeleteMappingsForCatalog(ctx context.Context, catalogID string) (int64, error) {
	var total int64

	res, err := r.db.ExecContext(ctx, `DELETE FROM item_mappings WHERE catalog_id = ?`, catalogID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete item mappings: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = r.db.ExecContext(ctx, `DELETE FROM feed_mappings WHERE catalog_id = ?`, catalogID)
	if err != nil {
		return total, fmt.Errorf("failed to delete feed mappings: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}
