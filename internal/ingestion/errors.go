package ingestion

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrEmptyOrInvalidFile is returned when a file has no header or no data rows.
	ErrEmptyOrInvalidFile = errors.New("file is empty or invalid")
	// ErrDuplicateUpload matches any *DuplicateUploadError.
	ErrDuplicateUpload = errors.New("file has already been uploaded")
	// ErrOwnerRequired is returned when a submission carries no owner identity.
	ErrOwnerRequired = errors.New("owner id is required")
)

// DuplicateUploadError reports byte-identical content that was ingested before.
// Callers should treat it as "already done"; it is never retried.
type DuplicateUploadError struct {
	ExistingID uuid.UUID
}

func (e *DuplicateUploadError) Error() string {
	return fmt.Sprintf("%s (upload %s)", ErrDuplicateUpload.Error(), e.ExistingID)
}

// Is lets errors.Is(err, ErrDuplicateUpload) match.
func (e *DuplicateUploadError) Is(target error) bool {
	return target == ErrDuplicateUpload
}
