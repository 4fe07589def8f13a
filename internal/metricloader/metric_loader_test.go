package metricloader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rpattn/impactdash/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (r *countingRepo) List(ctx context.Context, category domain.MetricCategory) ([]domain.MetricDefinition, error) {
	return nil, nil
}

func (r *countingRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.MetricDefinition, error) {
	r.mu.Lock()
	r.batches = append(r.batches, append([]string{}, ids...))
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := []domain.MetricDefinition{}
	for _, id := range ids {
		if id != "unknown" {
			out = append(out, domain.MetricDefinition{ID: id, Name: id})
		}
	}
	return out, nil
}

func TestLoadManyBatchesAndCaches(t *testing.T) {
	repo := &countingRepo{}
	loader := NewMetricLoader(repo)

	got, err := loader.LoadMany(context.Background(), []string{"meals_served", "unknown", "students_enrolled"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "meals_served")
	assert.NotContains(t, got, "unknown")

	_, err = loader.LoadMany(context.Background(), []string{"meals_served"})
	require.NoError(t, err)
	assert.Len(t, repo.batches, 1, "second lookup should be served from cache")
}

func TestLoadManyPropagatesErrors(t *testing.T) {
	loader := NewMetricLoader(&countingRepo{err: errors.New("catalog offline")})
	_, err := loader.LoadMany(context.Background(), []string{"meals_served"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog offline")
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	loader := NewMetricLoader(&countingRepo{})
	assert.Same(t, loader, FromContext(NewContext(context.Background(), loader)))

	empty, err := loader.LoadMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
