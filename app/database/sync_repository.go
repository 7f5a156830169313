package database

import (
	"database/sql"
	"fmt"
)

var _ SyncRepository = (*SyncRepo)(nil)

type SyncRepo struct {
	db *DB
}

func NewSyncRepository(db *DB) *SyncRepo {
	return &SyncRepo{db: db}
}

func (r *SyncRepo) CreateSyncRecord(record *SyncRecord) (int64, error) {
	result, err := r.db.Exec(`
		INSERT INTO sync_log (sync_type, status, started_at)
		VALUES (?, ?, ?)
	`, record.SyncType, record.Status, record.StartedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create sync record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read sync record id: %w", err)
	}

	record.ID = id
	return id, nil
}

func (r *SyncRepo) CompleteSyncRecord(record *SyncRecord) error {
	_, err := r.db.Exec(`
		UPDATE sync_log
		SET status = ?, articles_fetched = ?, error_message = ?, completed_at = ?
		WHERE id = ?
	`, record.Status, record.ArticlesFetched, record.ErrorMessage,
		record.CompletedAt, record.ID)

	if err != nil {
		return fmt.Errorf("failed to complete sync record: %w", err)
	}

	return nil
}

func (r *SyncRepo) GetLatestSyncRecord() (*SyncRecord, error) {
	var record SyncRecord
	err := r.db.QueryRow(`
		SELECT id, sync_type, status, articles_fetched, error_message,
		       started_at, completed_at
		FROM sync_log
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(
		&record.ID, &record.SyncType, &record.Status, &record.ArticlesFetched,
		&record.ErrorMessage, &record.StartedAt, &record.CompletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sync record: %w", err)
	}

	return &record, nil
}
