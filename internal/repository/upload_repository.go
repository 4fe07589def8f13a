package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/impactdash/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uploadColumns = `id, owner_id, content_hash, file_name, file_size, column_mapping, status,
	rows_processed, rows_failed, errors, created_at, updated_at`

type uploadRepository struct {
	pool *pgxpool.Pool
}

// NewUploadRepository wires an upload ledger backed by pgxpool.
func NewUploadRepository(pool *pgxpool.Pool) UploadRepository {
	return &uploadRepository{pool: pool}
}

func (r *uploadRepository) Create(ctx context.Context, upload domain.Upload) (domain.Upload, error) {
	if r.pool == nil {
		return domain.Upload{}, fmt.Errorf("upload repository not initialized")
	}

	mappingJSON, err := json.Marshal(upload.ColumnMapping)
	if err != nil {
		return domain.Upload{}, fmt.Errorf("failed to encode column mapping: %w", err)
	}
	errorsJSON, err := upload.ErrorsToJSON()
	if err != nil {
		return domain.Upload{}, fmt.Errorf("failed to encode upload errors: %w", err)
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO uploads (id, owner_id, content_hash, file_name, file_size, column_mapping, status,
			rows_processed, rows_failed, errors, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+uploadColumns,
		upload.ID,
		upload.OwnerID,
		upload.ContentHash,
		upload.FileName,
		upload.FileSize,
		mappingJSON,
		string(upload.Status),
		upload.RowsProcessed,
		upload.RowsFailed,
		errorsJSON,
		upload.CreatedAt,
		upload.UpdatedAt,
	)

	created, err := scanUpload(row)
	if err != nil {
		if isUniqueViolation(err, "uploads_content_hash_key") {
			return domain.Upload{}, ErrDuplicateContentHash
		}
		return domain.Upload{}, fmt.Errorf("failed to create upload: %w", err)
	}
	return created, nil
}

func (r *uploadRepository) Complete(ctx context.Context, upload domain.Upload) (domain.Upload, error) {
	if r.pool == nil {
		return domain.Upload{}, fmt.Errorf("upload repository not initialized")
	}

	errorsJSON, err := upload.ErrorsToJSON()
	if err != nil {
		return domain.Upload{}, fmt.Errorf("failed to encode upload errors: %w", err)
	}

	row := r.pool.QueryRow(
		ctx,
		`UPDATE uploads
		 SET status = $2, rows_processed = $3, rows_failed = $4, errors = $5, updated_at = $6
		 WHERE id = $1
		 RETURNING `+uploadColumns,
		upload.ID,
		string(upload.Status),
		upload.RowsProcessed,
		upload.RowsFailed,
		errorsJSON,
		upload.UpdatedAt,
	)

	updated, err := scanUpload(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Upload{}, ErrNotFound
		}
		return domain.Upload{}, fmt.Errorf("failed to complete upload: %w", err)
	}
	return updated, nil
}

func (r *uploadRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Upload, error) {
	return r.getOne(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = $1`, id)
}

func (r *uploadRepository) GetByContentHash(ctx context.Context, contentHash string) (domain.Upload, error) {
	return r.getOne(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE content_hash = $1`, contentHash)
}

func (r *uploadRepository) getOne(ctx context.Context, query string, arg any) (domain.Upload, error) {
	if r.pool == nil {
		return domain.Upload{}, fmt.Errorf("upload repository not initialized")
	}

	upload, err := scanUpload(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Upload{}, ErrNotFound
		}
		return domain.Upload{}, fmt.Errorf("failed to get upload: %w", err)
	}
	return upload, nil
}

func (r *uploadRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Upload, error) {
	return r.list(ctx,
		`SELECT `+uploadColumns+`
		 FROM uploads
		 WHERE owner_id = $1
		 ORDER BY created_at DESC`,
		ownerID,
	)
}

func (r *uploadRepository) Heartbeat(ctx context.Context, id uuid.UUID, processed, failed int, at time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("upload repository not initialized")
	}

	_, err := r.pool.Exec(
		ctx,
		`UPDATE uploads
		 SET rows_processed = $2, rows_failed = $3, updated_at = $4
		 WHERE id = $1 AND status = $5`,
		id,
		processed,
		failed,
		at,
		string(domain.UploadStatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to record upload heartbeat: %w", err)
	}
	return nil
}

func (r *uploadRepository) ListStale(ctx context.Context, olderThan time.Time) ([]domain.Upload, error) {
	return r.list(ctx,
		`SELECT `+uploadColumns+`
		 FROM uploads
		 WHERE status = $1
		   AND updated_at < $2
		 ORDER BY updated_at ASC`,
		string(domain.UploadStatusProcessing),
		olderThan,
	)
}

func (r *uploadRepository) list(ctx context.Context, query string, args ...any) ([]domain.Upload, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("upload repository not initialized")
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	uploads := []domain.Upload{}
	for rows.Next() {
		upload, scanErr := scanUpload(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", scanErr)
		}
		uploads = append(uploads, upload)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate uploads: %w", rowsErr)
	}

	return uploads, nil
}

func scanUpload(row pgx.Row) (domain.Upload, error) {
	var (
		upload      domain.Upload
		status      string
		mappingJSON []byte
		errorsJSON  []byte
	)
	if err := row.Scan(
		&upload.ID,
		&upload.OwnerID,
		&upload.ContentHash,
		&upload.FileName,
		&upload.FileSize,
		&mappingJSON,
		&status,
		&upload.RowsProcessed,
		&upload.RowsFailed,
		&errorsJSON,
		&upload.CreatedAt,
		&upload.UpdatedAt,
	); err != nil {
		return domain.Upload{}, err
	}

	upload.Status = domain.UploadStatus(status)
	upload.ColumnMapping = domain.ColumnMapping{}
	if len(mappingJSON) > 0 {
		if err := json.Unmarshal(mappingJSON, &upload.ColumnMapping); err != nil {
			return domain.Upload{}, fmt.Errorf("failed to decode column mapping: %w", err)
		}
	}
	upload.Errors = []string{}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &upload.Errors); err != nil {
			return domain.Upload{}, fmt.Errorf("failed to decode upload errors: %w", err)
		}
	}
	return upload, nil
}
