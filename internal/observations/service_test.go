package observations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rpattn/impactdash/internal/domain"
	"github.com/rpattn/impactdash/internal/ingestion"
	"github.com/rpattn/impactdash/internal/metricloader"
	"github.com/rpattn/impactdash/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubObservationRepo struct {
	mu         sync.Mutex
	stored     []domain.Observation
	lastFilter domain.ObservationFilter
	listErr    error
}

func (s *stubObservationRepo) Create(ctx context.Context, observation domain.Observation) (domain.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, observation)
	return observation, nil
}

func (s *stubObservationRepo) List(ctx context.Context, ownerID uuid.UUID, filter domain.ObservationFilter) ([]domain.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = filter
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := []domain.Observation{}
	for _, o := range s.stored {
		if o.OwnerID != ownerID {
			continue
		}
		if filter.MetricID != "" && o.MetricID != filter.MetricID {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *stubObservationRepo) Delete(ctx context.Context, ownerID uuid.UUID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.stored {
		if o.ID == id && o.OwnerID == ownerID {
			s.stored = append(s.stored[:i], s.stored[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

type stubMetricRepo struct {
	mu    sync.Mutex
	calls int
}

var catalog = map[string]domain.MetricDefinition{
	"meals_served":      {ID: "meals_served", Name: "Meals served", Category: domain.MetricCategoryFoodDistribution, DataType: domain.MetricDataTypeInteger},
	"students_enrolled": {ID: "students_enrolled", Name: "Students enrolled", Category: domain.MetricCategoryEducation, DataType: domain.MetricDataTypeInteger},
}

func (s *stubMetricRepo) List(ctx context.Context, category domain.MetricCategory) ([]domain.MetricDefinition, error) {
	return nil, nil
}

func (s *stubMetricRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.MetricDefinition, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	out := []domain.MetricDefinition{}
	for _, id := range ids {
		if m, ok := catalog[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestRecordStoresManualObservation(t *testing.T) {
	repo := &stubObservationRepo{}
	service := NewService(repo, &stubMetricRepo{}, nil)
	ownerID := uuid.New()

	created, err := service.Record(context.Background(), RecordRequest{
		OwnerID:  ownerID,
		MetricID: " meals_served ",
		Value:    " 250 ",
		Date:     "2024-04-02",
		Note:     "Easter weekend",
	})
	require.NoError(t, err)

	assert.Equal(t, "meals_served", created.MetricID)
	assert.Equal(t, "250", created.Value)
	assert.Equal(t, domain.ObservationSourceManual, created.Source)
	assert.Equal(t, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), created.ObservedOn)
	require.NotNil(t, created.Note)
	assert.Equal(t, "Easter weekend", *created.Note)
	assert.Nil(t, created.UploadID)
	assert.Len(t, repo.stored, 1)
}

func TestRecordValidation(t *testing.T) {
	ownerID := uuid.New()
	valid := RecordRequest{OwnerID: ownerID, MetricID: "meals_served", Value: "1", Date: "2024-01-01"}

	tests := []struct {
		name   string
		mutate func(*RecordRequest)
		want   error
	}{
		{name: "no owner", mutate: func(r *RecordRequest) { r.OwnerID = uuid.Nil }, want: ingestion.ErrOwnerRequired},
		{name: "no metric", mutate: func(r *RecordRequest) { r.MetricID = "" }, want: ErrInvalidObservation},
		{name: "no value", mutate: func(r *RecordRequest) { r.Value = "  " }, want: ErrInvalidObservation},
		{name: "bad date", mutate: func(r *RecordRequest) { r.Date = "next tuesday" }, want: ErrInvalidObservation},
		{name: "csv source", mutate: func(r *RecordRequest) { r.Source = domain.ObservationSourceCSV }, want: ErrInvalidObservation},
		{name: "value not an integer", mutate: func(r *RecordRequest) { r.Value = "about 40" }, want: ErrInvalidObservation},
		{name: "unknown metric", mutate: func(r *RecordRequest) { r.MetricID = "volunteer_hours" }, want: ErrUnknownMetric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubObservationRepo{}
			req := valid
			tt.mutate(&req)

			_, err := NewService(repo, &stubMetricRepo{}, nil).Record(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, repo.stored)
		})
	}
}

func TestRecordAcceptsAPISource(t *testing.T) {
	service := NewService(&stubObservationRepo{}, &stubMetricRepo{}, nil)
	created, err := service.Record(context.Background(), RecordRequest{
		OwnerID: uuid.New(), MetricID: "students_enrolled", Value: "31", Date: "2024-09-01", Source: domain.ObservationSourceAPI,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ObservationSourceAPI, created.Source)
}

func TestListResolvesCatalogEntries(t *testing.T) {
	ownerID := uuid.New()
	repo := &stubObservationRepo{stored: []domain.Observation{
		domain.NewObservation(ownerID, "meals_served", "10", time.Now(), domain.ObservationSourceCSV),
		domain.NewObservation(ownerID, "custom_metric", "3", time.Now(), domain.ObservationSourceCSV),
		domain.NewObservation(ownerID, "meals_served", "12", time.Now(), domain.ObservationSourceManual),
		domain.NewObservation(uuid.New(), "meals_served", "99", time.Now(), domain.ObservationSourceManual),
	}}
	metrics := &stubMetricRepo{}
	service := NewService(repo, metrics, nil)

	ctx := metricloader.NewContext(context.Background(), metricloader.NewMetricLoader(metrics))
	listed, err := service.List(ctx, ownerID, domain.ObservationFilter{Limit: 50})
	require.NoError(t, err)

	require.Len(t, listed, 3)
	require.NotNil(t, listed[0].Metric)
	assert.Equal(t, "Meals served", listed[0].Metric.Name)
	assert.Nil(t, listed[1].Metric)
	require.NotNil(t, listed[2].Metric)
	assert.Equal(t, 1, metrics.calls)
	assert.Equal(t, 50, repo.lastFilter.Limit)
}

func TestListWithoutLoaderInContext(t *testing.T) {
	ownerID := uuid.New()
	repo := &stubObservationRepo{stored: []domain.Observation{
		domain.NewObservation(ownerID, "students_enrolled", "40", time.Now(), domain.ObservationSourceAPI),
	}}
	listed, err := NewService(repo, &stubMetricRepo{}, nil).List(context.Background(), ownerID, domain.ObservationFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].Metric)
	assert.Equal(t, domain.MetricCategoryEducation, listed[0].Metric.Category)
}

func TestListWrapsRepositoryErrors(t *testing.T) {
	repo := &stubObservationRepo{listErr: errors.New("boom")}
	_, err := NewService(repo, &stubMetricRepo{}, nil).List(context.Background(), uuid.New(), domain.ObservationFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list observations")
}

func TestDeleteIsOwnerScoped(t *testing.T) {
	ownerID := uuid.New()
	observation := domain.NewObservation(ownerID, "meals_served", "10", time.Now(), domain.ObservationSourceManual)
	repo := &stubObservationRepo{stored: []domain.Observation{observation}}
	service := NewService(repo, &stubMetricRepo{}, nil)

	err := service.Delete(context.Background(), uuid.New(), observation.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Len(t, repo.stored, 1)

	require.NoError(t, service.Delete(context.Background(), ownerID, observation.ID))
	assert.Empty(t, repo.stored)
}
