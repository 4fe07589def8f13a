package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/impactdash/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type metricRepository struct {
	pool *pgxpool.Pool
}

// NewMetricRepository wires the metric catalog backed by pgxpool.
func NewMetricRepository(pool *pgxpool.Pool) MetricRepository {
	return &metricRepository{pool: pool}
}

func (r *metricRepository) List(ctx context.Context, category domain.MetricCategory) ([]domain.MetricDefinition, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("metric repository not initialized")
	}

	var categoryFilter any
	if category != "" {
		categoryFilter = string(category)
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, name, category, data_type, unit, description
		 FROM metric_definitions
		 WHERE ($1::text IS NULL OR category = $1)
		 ORDER BY category, name`,
		categoryFilter,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric definitions: %w", err)
	}
	return collectMetrics(rows)
}

func (r *metricRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.MetricDefinition, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("metric repository not initialized")
	}
	if len(ids) == 0 {
		return []domain.MetricDefinition{}, nil
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, name, category, data_type, unit, description
		 FROM metric_definitions
		 WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric definitions: %w", err)
	}
	return collectMetrics(rows)
}

func collectMetrics(rows pgx.Rows) ([]domain.MetricDefinition, error) {
	defer rows.Close()

	metrics := []domain.MetricDefinition{}
	for rows.Next() {
		var (
			metric      domain.MetricDefinition
			category    string
			dataType    string
			unit        pgtype.Text
			description pgtype.Text
		)
		if err := rows.Scan(&metric.ID, &metric.Name, &category, &dataType, &unit, &description); err != nil {
			return nil, fmt.Errorf("failed to scan metric definition: %w", err)
		}
		metric.Category = domain.MetricCategory(category)
		metric.DataType = domain.MetricDataType(dataType)
		metric.Unit = unit.String
		metric.Description = description.String
		metrics = append(metrics, metric)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metric definitions: %w", err)
	}
	return metrics, nil
}
