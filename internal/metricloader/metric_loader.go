package metricloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/impactdash/internal/domain"
	"github.com/rpattn/impactdash/internal/repository"

	"github.com/graph-gophers/dataloader"
)

type ctxKey string

const loaderKey ctxKey = "metricLoader"

// MetricLoader batches metric catalog lookups made while serving one request.
type MetricLoader struct {
	Loader *dataloader.Loader
}

func NewMetricLoader(repo repository.MetricRepository) *MetricLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := keys.Keys()

		metrics, err := repo.GetByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		byID := make(map[string]domain.MetricDefinition, len(metrics))
		for _, m := range metrics {
			byID[m.ID] = m
		}

		// Results must line up with keys; unknown ids resolve to nil.
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if m, ok := byID[id]; ok {
				results[i] = &dataloader.Result{Data: m}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))
	return &MetricLoader{Loader: loader}
}

// LoadMany resolves ids to catalog entries. Ids missing from the catalog are
// absent from the returned map.
func (l *MetricLoader) LoadMany(ctx context.Context, ids []string) (map[string]domain.MetricDefinition, error) {
	out := make(map[string]domain.MetricDefinition, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	values, errs := l.Loader.LoadMany(ctx, dataloader.NewKeysFromStrings(ids))()
	for i, id := range ids {
		if i < len(errs) && errs[i] != nil {
			return nil, fmt.Errorf("failed to load metric %s: %w", id, errs[i])
		}
		if i >= len(values) || values[i] == nil {
			continue
		}
		if m, ok := values[i].(domain.MetricDefinition); ok {
			out[id] = m
		}
	}
	return out, nil
}

// NewContext stores the loader for handlers further down the chain.
func NewContext(ctx context.Context, loader *MetricLoader) context.Context {
	return context.WithValue(ctx, loaderKey, loader)
}

// FromContext returns the request loader, or nil.
func FromContext(ctx context.Context) *MetricLoader {
	if l, ok := ctx.Value(loaderKey).(*MetricLoader); ok {
		return l
	}
	return nil
}
