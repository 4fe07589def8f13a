package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rpattn/impactdash/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMetricRepo struct {
	lastCategory domain.MetricCategory
	err          error
}

func (s *stubMetricRepo) List(ctx context.Context, category domain.MetricCategory) ([]domain.MetricDefinition, error) {
	s.lastCategory = category
	if s.err != nil {
		return nil, s.err
	}
	return []domain.MetricDefinition{
		{ID: "meals_served", Name: "Meals served", Category: domain.MetricCategoryFoodDistribution, DataType: domain.MetricDataTypeInteger, Unit: "meals"},
	}, nil
}

func (s *stubMetricRepo) GetByIDs(ctx context.Context, ids []string) ([]domain.MetricDefinition, error) {
	return nil, nil
}

func TestHandlerListsCatalog(t *testing.T) {
	repo := &stubMetricRepo{}
	handler := NewHTTPHandler(repo, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics?category=Food_Distribution", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.MetricCategoryFoodDistribution, repo.lastCategory)

	var metrics []domain.MetricDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	require.Len(t, metrics, 1)
	assert.Equal(t, "meals", metrics[0].Unit)
}

func TestHandlerErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHTTPHandler(&stubMetricRepo{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics?category=sports", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	NewHTTPHandler(&stubMetricRepo{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	NewHTTPHandler(&stubMetricRepo{err: errors.New("down")}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
