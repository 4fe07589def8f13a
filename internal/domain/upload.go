package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UploadStatus captures lifecycle state for an upload record.
type UploadStatus string

const (
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
)

// Upload is the ledger entry for one ingested file and its outcome.
// Uploads that finished with row failures still end in UploadStatusCompleted;
// RowsFailed and Errors carry that signal.
type Upload struct {
	ID            uuid.UUID     `json:"id"`
	OwnerID       uuid.UUID     `json:"owner_id"`
	ContentHash   string        `json:"content_hash"`
	FileName      string        `json:"file_name"`
	FileSize      int64         `json:"file_size"`
	ColumnMapping ColumnMapping `json:"column_mapping"`
	Status        UploadStatus  `json:"status"`
	RowsProcessed int           `json:"rows_processed"`
	RowsFailed    int           `json:"rows_failed"`
	Errors        []string      `json:"errors"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewUpload creates an upload record in the processing state.
func NewUpload(ownerID uuid.UUID, contentHash, fileName string, fileSize int64, mapping ColumnMapping) Upload {
	now := time.Now().UTC()
	return Upload{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		ContentHash:   contentHash,
		FileName:      fileName,
		FileSize:      fileSize,
		ColumnMapping: mapping.Clone(),
		Status:        UploadStatusProcessing,
		Errors:        []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Completed returns a copy of the upload moved to its terminal state.
func (u Upload) Completed(processed, failed int, errs []string) Upload {
	out := u
	out.Status = UploadStatusCompleted
	out.RowsProcessed = processed
	out.RowsFailed = failed
	out.Errors = append([]string{}, errs...)
	out.UpdatedAt = time.Now().UTC()
	return out
}

// ErrorsToJSON marshals the row error list into the JSONB layout stored in Postgres.
func (u Upload) ErrorsToJSON() (json.RawMessage, error) {
	errs := u.Errors
	if errs == nil {
		errs = []string{}
	}
	return json.Marshal(errs)
}
