package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ ItemRepository = (*SQLItemRepository)(nil)

type SQLItemRepository struct {
	db *DB
}

func NewItemRepository(db *DB) *SQLItemRepository {
	return &SQLItemRepository{db: db}
}

const itemColumns = `id, feed_id, guid, title, link, content, is_read, is_starred, pub_date, fetched_at`

func (r *SQLItemRepository) GetItem(ctx context.Context, id string) (*FeedItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM feed_items
		WHERE id = ?
	`, id)
	return scanItemRow(row)
}

func (r *SQLItemRepository) GetItemByGUID(ctx context.Context, feedID, guid string) (*FeedItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM feed_items
		WHERE feed_id = ? AND guid = ?
	`, feedID, guid)
	return scanItemRow(row)
}

// UpsertItems writes a batch of items keyed by (feed_id, guid). Metadata is
// refreshed on conflict; the locally tracked read/starred flags are left
// untouched so a refresh never clobbers user state.
func (r *SQLItemRepository) UpsertItems(ctx context.Context, feedID string, items []FeedItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO feed_items (id, feed_id, guid, title, link, content, is_read, is_starred, pub_date, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (feed_id, guid) DO UPDATE SET
			title = excluded.title,
			link = excluded.link,
			content = excluded.content,
			pub_date = excluded.pub_date,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		fetchedAt := item.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = now
		}
		_, err := stmt.ExecContext(ctx, id, feedID, item.GUID, item.Title, item.Link,
			item.Content, boolToInt(item.IsRead), boolToInt(item.IsStarred),
			formatNullableTime(item.PubDate), formatTime(fetchedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert item %q: %w", item.GUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit item upserts: %w", err)
	}
	return nil
}

func (r *SQLItemRepository) CreateItem(ctx context.Context, item FeedItem) error {
	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}
	fetchedAt := item.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feed_items (id, feed_id, guid, title, link, content, is_read, is_starred, pub_date, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, item.FeedID, item.GUID, item.Title, item.Link, item.Content,
		boolToInt(item.IsRead), boolToInt(item.IsStarred),
		formatNullableTime(item.PubDate), formatTime(fetchedAt))
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func (r *SQLItemRepository) UpdateItemState(ctx context.Context, itemID string, isRead, isStarred bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE feed_items
		SET is_read = ?, is_starred = ?
		WHERE id = ?
	`, boolToInt(isRead), boolToInt(isStarred), itemID)
	if err != nil {
		return fmt.Errorf("failed to update item state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("item not found: %s", itemID)
	}
	return nil
}

func (r *SQLItemRepository) GetItemCount(ctx context.Context, feedID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM feed_items WHERE feed_id = ?
	`, feedID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count: %w", err)
	}
	return count, nil
}

// DeleteOldItems keeps the newest keepCount items of a feed (by publication
// date, falling back to fetch time) and removes the rest.
func (r *SQLItemRepository) DeleteOldItems(ctx context.Context, feedID string, keepCount int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM feed_items
		WHERE feed_id = ?
		  AND id NOT IN (
			SELECT id FROM feed_items
			WHERE feed_id = ?
			ORDER BY COALESCE(pub_date, fetched_at) DESC
			LIMIT ?
		  )
	`, feedID, feedID, keepCount)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old items: %w", err)
	}
	return res.RowsAffected()
}

func scanItem(row rowScanner) (*FeedItem, error) {
	var item FeedItem
	var isRead, isStarred int
	var pubDate sql.NullString
	var fetchedAt string

	err := row.Scan(&item.ID, &item.FeedID, &item.GUID, &item.Title, &item.Link,
		&item.Content, &isRead, &isStarred, &pubDate, &fetchedAt)
	if err != nil {
		return nil, err
	}
	item.IsRead = isRead != 0
	item.IsStarred = isStarred != 0

	if item.PubDate, err = parseNullableTime(pubDate); err != nil {
		return nil, err
	}
	if item.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

func scanItemRow(row *sql.Row) (*FeedItem, error) {
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}
	return item, nil
}
