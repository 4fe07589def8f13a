package middleware

import (
	"net/http"

	"github.com/rpattn/impactdash/internal/metricloader"
	"github.com/rpattn/impactdash/internal/repository"
)

// DataLoaderMiddleware attaches a fresh metric loader to every request context
func DataLoaderMiddleware(repo repository.MetricRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := metricloader.NewMetricLoader(repo)
			next.ServeHTTP(w, r.WithContext(metricloader.NewContext(r.Context(), loader)))
		})
	}
}
