package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rpattn/impactdash/internal/domain"
	"github.com/rpattn/impactdash/internal/repository"

	"go.uber.org/zap"
)

var categories = map[domain.MetricCategory]struct{}{
	domain.MetricCategoryEducation:        {},
	domain.MetricCategoryFoodDistribution: {},
	domain.MetricCategoryWellbeing:        {},
	domain.MetricCategoryESG:              {},
}

// Handler lists the metric catalog at GET /api/metrics?category=.
type Handler struct {
	metrics repository.MetricRepository
	logger  *zap.Logger
}

func NewHTTPHandler(metrics repository.MetricRepository, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{metrics: metrics, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	category := domain.MetricCategory(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("category"))))
	if category != "" {
		if _, ok := categories[category]; !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown category %q", category)})
			return
		}
	}

	metrics, err := h.metrics.List(r.Context(), category)
	if err != nil {
		h.logger.Error("Failed to list metric catalog", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
