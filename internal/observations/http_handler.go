package observations

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/impactdash/internal/auth"
	"github.com/rpattn/impactdash/internal/domain"
	"github.com/rpattn/impactdash/internal/ingestion"
	"github.com/rpattn/impactdash/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler serves /api/observations.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHTTPHandler(service *Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := auth.OrganizationIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, ingestion.ErrOwnerRequired.Error())
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleList(w, r, ownerID)
	case http.MethodPost:
		h.handleRecord(w, r, ownerID)
	case http.MethodDelete:
		h.handleDelete(w, r, ownerID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type recordPayload struct {
	MetricID string `json:"metricId"`
	Value    string `json:"value"`
	Date     string `json:"date"`
	Note     string `json:"note"`
	Source   string `json:"source"`
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	defer r.Body.Close()
	var payload recordPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	created, err := h.service.Record(r.Context(), RecordRequest{
		OwnerID:  ownerID,
		MetricID: payload.MetricID,
		Value:    payload.Value,
		Date:     payload.Date,
		Note:     payload.Note,
		Source:   domain.ObservationSource(strings.ToLower(strings.TrimSpace(payload.Source))),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listed, err := h.service.List(r.Context(), ownerID, filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listed)
}

// ParseFilter reads metricId, from, to, source, uploadId, limit and offset
// from a query string.
func ParseFilter(query url.Values) (domain.ObservationFilter, error) {
	filter := domain.ObservationFilter{
		MetricID: strings.TrimSpace(query.Get("metricId")),
	}

	for _, bound := range []struct {
		name   string
		target **time.Time
	}{
		{"from", &filter.From},
		{"to", &filter.To},
	} {
		raw := strings.TrimSpace(query.Get(bound.name))
		if raw == "" {
			continue
		}
		parsed, err := ingestion.ParseDate(raw)
		if err != nil {
			return domain.ObservationFilter{}, fmt.Errorf("invalid %s date %q", bound.name, raw)
		}
		*bound.target = &parsed
	}

	if raw := strings.ToLower(strings.TrimSpace(query.Get("source"))); raw != "" {
		source := domain.ObservationSource(raw)
		if !source.Valid() {
			return domain.ObservationFilter{}, fmt.Errorf("unsupported source %q", raw)
		}
		filter.Source = source
	}

	if raw := strings.TrimSpace(query.Get("uploadId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return domain.ObservationFilter{}, fmt.Errorf("invalid uploadId: %v", err)
		}
		filter.UploadID = &id
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return domain.ObservationFilter{}, errors.New("limit must be a positive integer")
		}
		filter.Limit = parsed
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return domain.ObservationFilter{}, errors.New("offset must be zero or positive")
		}
		filter.Offset = parsed
	}
	return filter, nil
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	idx := strings.LastIndex(path, "/")
	if idx == -1 || idx == len(path)-1 {
		writeError(w, http.StatusBadRequest, "missing observation identifier")
		return
	}
	id, err := uuid.Parse(path[idx+1:])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid observation identifier: %v", err))
		return
	}

	if err := h.service.Delete(r.Context(), ownerID, id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidObservation), errors.Is(err, ErrUnknownMetric):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "observation not found")
	case errors.Is(err, ingestion.ErrOwnerRequired):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		h.logger.Error("Observation request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
