package database

import (
	"context"
	"database/sql"
	"fmt"
)

var _ ProgressRepository = (*SQLProgressRepository)(nil)

type SQLProgressRepository struct {
	db *DB
}

func NewProgressRepository(db *DB) *SQLProgressRepository {
	return &SQLProgressRepository{db: db}
}

func (r *SQLProgressRepository) GetProgress(ctx context.Context, bookID string) (*ReadingProgress, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT book_id, catalog_id, progress, cfi, updated_at
		FROM reading_progress
		WHERE book_id = ?
	`, bookID)

	var p ReadingProgress
	var updatedAt string
	err := row.Scan(&p.BookID, &p.CatalogID, &p.Progress, &p.CFI, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *SQLProgressRepository) UpsertProgress(ctx context.Context, progress ReadingProgress) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reading_progress (book_id, catalog_id, progress, cfi, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (book_id) DO UPDATE SET
			catalog_id = excluded.catalog_id,
			progress = excluded.progress,
			cfi = excluded.cfi,
			updated_at = excluded.updated_at
	`, progress.BookID, progress.CatalogID, progress.Progress, progress.CFI,
		formatTime(progress.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert progress: %w", err)
	}
	return nil
}
