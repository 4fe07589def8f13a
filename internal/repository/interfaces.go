package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rpattn/impactdash/internal/domain"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateContentHash is returned when an upload with the same digest is already stored.
	ErrDuplicateContentHash = errors.New("upload with identical content hash already exists")
)

// OrganizationRepository defines the interface for the tenant catalog
type OrganizationRepository interface {
	Create(ctx context.Context, org domain.Organization) (domain.Organization, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Organization, error)
	List(ctx context.Context) ([]domain.Organization, error)
}

// UploadRepository is the content-addressable upload ledger.
type UploadRepository interface {
	// Create inserts a new upload. A digest collision returns ErrDuplicateContentHash.
	Create(ctx context.Context, upload domain.Upload) (domain.Upload, error)
	// Complete stores the terminal status, counters and the full error list.
	Complete(ctx context.Context, upload domain.Upload) (domain.Upload, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Upload, error)
	// GetByContentHash returns ErrNotFound when no upload carries the digest.
	GetByContentHash(ctx context.Context, contentHash string) (domain.Upload, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Upload, error)
	// Heartbeat stores running counters and bumps updated_at on a processing
	// upload. Completed uploads are left untouched.
	Heartbeat(ctx context.Context, id uuid.UUID, processed, failed int, at time.Time) error
	// ListStale returns processing uploads whose updated_at is before olderThan.
	ListStale(ctx context.Context, olderThan time.Time) ([]domain.Upload, error)
}

// ObservationRepository is the append-only metric observation store.
type ObservationRepository interface {
	Create(ctx context.Context, observation domain.Observation) (domain.Observation, error)
	List(ctx context.Context, ownerID uuid.UUID, filter domain.ObservationFilter) ([]domain.Observation, error)
	Delete(ctx context.Context, ownerID uuid.UUID, id uuid.UUID) error
}

// MetricRepository reads the metric catalog.
type MetricRepository interface {
	List(ctx context.Context, category domain.MetricCategory) ([]domain.MetricDefinition, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.MetricDefinition, error)
}
