package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/impactdash/internal/repository"

	"go.uber.org/zap"
)

// InterruptedMessage is appended to uploads closed by the reconcile sweep.
const InterruptedMessage = "upload interrupted before all rows were attempted"

// SweepRecorder is told how many uploads a sweep closed.
type SweepRecorder interface {
	StaleUploadsReconciled(n int)
}

// Reconciler closes uploads left in the processing state by a crash or an
// aborted request. It only runs when invoked; the pipeline never calls it.
type Reconciler struct {
	uploads  repository.UploadRepository
	logger   *zap.Logger
	recorder SweepRecorder
	now      func() time.Time
}

// NewReconciler builds a Reconciler. logger and recorder may be nil.
func NewReconciler(uploads repository.UploadRepository, logger *zap.Logger, recorder SweepRecorder) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		uploads:  uploads,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Sweep moves every processing upload whose last heartbeat is older than
// olderThan to completed, keeping its counters and appending
// InterruptedMessage to its errors. Running uploads heartbeat every
// ingestion heartbeat interval, so olderThan must be longer than that. It returns how many uploads were closed; failures on individual
// uploads are joined into the returned error.
func (r *Reconciler) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive, got %s", olderThan)
	}

	cutoff := r.now().Add(-olderThan)
	stale, err := r.uploads.ListStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale uploads: %w", err)
	}

	var (
		closed int
		errs   []error
	)
	for _, upload := range stale {
		errList := append(append([]string{}, upload.Errors...), InterruptedMessage)
		if _, err := r.uploads.Complete(ctx, upload.Completed(upload.RowsProcessed, upload.RowsFailed, errList)); err != nil {
			errs = append(errs, fmt.Errorf("upload %s: %w", upload.ID, err))
			continue
		}
		closed++
		r.logger.Warn("Closed stale upload",
			zap.String("upload_id", upload.ID.String()),
			zap.String("owner_id", upload.OwnerID.String()),
			zap.Time("created_at", upload.CreatedAt),
			zap.Time("last_heartbeat", upload.UpdatedAt))
	}

	if r.recorder != nil && closed > 0 {
		r.recorder.StaleUploadsReconciled(closed)
	}
	return closed, errors.Join(errs...)
}
