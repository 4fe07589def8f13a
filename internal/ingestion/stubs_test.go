package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/rpattn/impactdash/internal/domain"
	"github.com/rpattn/impactdash/internal/repository"

	"github.com/google/uuid"
)

type stubUploadRepo struct {
	mu sync.Mutex

	uploads   map[uuid.UUID]domain.Upload
	created   []domain.Upload
	completed []domain.Upload

	// hashMisses makes the next n GetByContentHash calls report not found,
	// mimicking a concurrent submission that commits after the pre-check.
	hashMisses     int
	completeErr    error
	completeErrFor map[uuid.UUID]error
	onCreate       func()

	stale       []domain.Upload
	staleCutoff time.Time
	staleErr    error

	heartbeats   []heartbeat
	heartbeatErr error
}

type heartbeat struct {
	id        uuid.UUID
	processed int
	failed    int
	at        time.Time
}

func newStubUploadRepo() *stubUploadRepo {
	return &stubUploadRepo{uploads: map[uuid.UUID]domain.Upload{}}
}

func (s *stubUploadRepo) Create(ctx context.Context, upload domain.Upload) (domain.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.uploads {
		if existing.ContentHash == upload.ContentHash {
			return domain.Upload{}, repository.ErrDuplicateContentHash
		}
	}
	s.uploads[upload.ID] = upload
	s.created = append(s.created, upload)
	if s.onCreate != nil {
		s.onCreate()
	}
	return upload, nil
}

func (s *stubUploadRepo) Complete(ctx context.Context, upload domain.Upload) (domain.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return domain.Upload{}, s.completeErr
	}
	if err := s.completeErrFor[upload.ID]; err != nil {
		return domain.Upload{}, err
	}
	s.uploads[upload.ID] = upload
	s.completed = append(s.completed, upload)
	return upload, nil
}

func (s *stubUploadRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	upload, ok := s.uploads[id]
	if !ok {
		return domain.Upload{}, repository.ErrNotFound
	}
	return upload, nil
}

func (s *stubUploadRepo) GetByContentHash(ctx context.Context, contentHash string) (domain.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hashMisses > 0 {
		s.hashMisses--
		return domain.Upload{}, repository.ErrNotFound
	}
	for _, upload := range s.uploads {
		if upload.ContentHash == contentHash {
			return upload, nil
		}
	}
	return domain.Upload{}, repository.ErrNotFound
}

func (s *stubUploadRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Upload{}
	for i := len(s.created) - 1; i >= 0; i-- {
		upload := s.uploads[s.created[i].ID]
		if upload.OwnerID == ownerID {
			out = append(out, upload)
		}
	}
	return out, nil
}

func (s *stubUploadRepo) Heartbeat(ctx context.Context, id uuid.UUID, processed, failed int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heartbeatErr != nil {
		return s.heartbeatErr
	}
	s.heartbeats = append(s.heartbeats, heartbeat{id: id, processed: processed, failed: failed, at: at})
	return nil
}

func (s *stubUploadRepo) ListStale(ctx context.Context, olderThan time.Time) ([]domain.Upload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleCutoff = olderThan
	if s.staleErr != nil {
		return nil, s.staleErr
	}
	return append([]domain.Upload{}, s.stale...), nil
}

func (s *stubUploadRepo) final() domain.Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.completed) == 0 {
		return domain.Upload{}
	}
	return s.completed[len(s.completed)-1]
}

type stubObservationRepo struct {
	mu      sync.Mutex
	created []domain.Observation
	failOn  func(domain.Observation) error
	ctxErrs []error
}

func (s *stubObservationRepo) Create(ctx context.Context, observation domain.Observation) (domain.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	if s.failOn != nil {
		if err := s.failOn(observation); err != nil {
			return domain.Observation{}, err
		}
	}
	s.created = append(s.created, observation)
	return observation, nil
}

func (s *stubObservationRepo) List(ctx context.Context, ownerID uuid.UUID, filter domain.ObservationFilter) ([]domain.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Observation{}
	for _, o := range s.created {
		if o.OwnerID == ownerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *stubObservationRepo) Delete(ctx context.Context, ownerID uuid.UUID, id uuid.UUID) error {
	return repository.ErrNotFound
}

type stubMetricRepo struct {
	known map[string]domain.MetricDefinition
	err   error
}

func (s *stubMetricRepo) List(ctx context.Context, category domain.MetricCategory) ([]domain.MetricDefinition, error) {
	out := []domain.MetricDefinition{}
	for _, m := range s.known {
		out = append(out, m)
	}
	return out, s.err
}

func (s *stubMetricRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.MetricDefinition, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := []domain.MetricDefinition{}
	for _, id := range ids {
		if m, ok := s.known[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

type recordedUpload struct {
	outcome   string
	processed int
	failed    int
}

type stubRecorder struct {
	mu      sync.Mutex
	uploads []recordedUpload
	stale   int
}

func (s *stubRecorder) UploadFinished(outcome string, processed, failed int, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, recordedUpload{outcome: outcome, processed: processed, failed: failed})
}

func (s *stubRecorder) StaleUploadsReconciled(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale += n
}
