package observations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rpattn/impactdash/internal/domain"
	"github.com/rpattn/impactdash/internal/ingestion"
	"github.com/rpattn/impactdash/internal/metricloader"
	"github.com/rpattn/impactdash/internal/repository"
	"github.com/rpattn/impactdash/pkg/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnknownMetric is returned when a manual entry names a metric outside the catalog.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrInvalidObservation wraps field validation failures.
	ErrInvalidObservation = errors.New("invalid observation")
)

// Service handles manual and API observation entry, listing and deletion.
// CSV observations are written by the ingestion pipeline, not here.
type Service struct {
	observations repository.ObservationRepository
	metrics      repository.MetricRepository
	values       *validator.ValueValidator
	logger       *zap.Logger
}

func NewService(observations repository.ObservationRepository, metrics repository.MetricRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		observations: observations,
		metrics:      metrics,
		values:       validator.NewValueValidator(),
		logger:       logger,
	}
}

// RecordRequest is a single manually entered value.
type RecordRequest struct {
	OwnerID  uuid.UUID
	MetricID string
	Value    string
	Date     string
	Note     string
	Source   domain.ObservationSource
}

// Record validates and stores one observation. Unlike CSV ingestion, the
// metric must exist in the catalog and the value must read as its data type.
func (s *Service) Record(ctx context.Context, req RecordRequest) (domain.Observation, error) {
	if req.OwnerID == uuid.Nil {
		return domain.Observation{}, ingestion.ErrOwnerRequired
	}

	metricID := strings.TrimSpace(req.MetricID)
	if metricID == "" {
		return domain.Observation{}, fmt.Errorf("%w: metricId is required", ErrInvalidObservation)
	}
	value := strings.TrimSpace(req.Value)
	if value == "" {
		return domain.Observation{}, fmt.Errorf("%w: value is required", ErrInvalidObservation)
	}
	observedOn, err := ingestion.ParseDate(req.Date)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("%w: invalid date %q", ErrInvalidObservation, req.Date)
	}

	source := req.Source
	if source == "" {
		source = domain.ObservationSourceManual
	}
	if source != domain.ObservationSourceManual && source != domain.ObservationSourceAPI {
		return domain.Observation{}, fmt.Errorf("%w: source must be manual or api", ErrInvalidObservation)
	}

	known, err := s.metrics.GetByIDs(ctx, []string{metricID})
	if err != nil {
		return domain.Observation{}, fmt.Errorf("failed to look up metric: %w", err)
	}
	if len(known) == 0 {
		return domain.Observation{}, fmt.Errorf("%w: %s", ErrUnknownMetric, metricID)
	}
	if err := s.values.Validate(known[0], value); err != nil {
		return domain.Observation{}, fmt.Errorf("%w: %v", ErrInvalidObservation, err)
	}

	observation := domain.NewObservation(req.OwnerID, metricID, value, observedOn, source).
		WithNote(strings.TrimSpace(req.Note))
	created, err := s.observations.Create(ctx, observation)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("failed to record observation: %w", err)
	}

	s.logger.Info("Observation recorded",
		zap.String("owner_id", req.OwnerID.String()),
		zap.String("metric_id", metricID),
		zap.String("source", string(source)))
	return created, nil
}

// ListedObservation pairs an observation with its catalog entry. Metric is
// nil for identifiers that are not in the catalog.
type ListedObservation struct {
	domain.Observation
	Metric *domain.MetricDefinition `json:"metric"`
}

// List returns the owner's observations matching filter, each resolved
// against the catalog through the request's metric loader.
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, filter domain.ObservationFilter) ([]ListedObservation, error) {
	if ownerID == uuid.Nil {
		return nil, ingestion.ErrOwnerRequired
	}

	found, err := s.observations.List(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}

	loader := metricloader.FromContext(ctx)
	if loader == nil {
		loader = metricloader.NewMetricLoader(s.metrics)
	}

	ids := make([]string, 0, len(found))
	seen := make(map[string]struct{}, len(found))
	for _, o := range found {
		if _, ok := seen[o.MetricID]; ok {
			continue
		}
		seen[o.MetricID] = struct{}{}
		ids = append(ids, o.MetricID)
	}

	definitions, err := loader.LoadMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	listed := make([]ListedObservation, len(found))
	for i, o := range found {
		listed[i] = ListedObservation{Observation: o}
		if def, ok := definitions[o.MetricID]; ok {
			d := def
			listed[i].Metric = &d
		}
	}
	return listed, nil
}

// Delete removes one observation owned by ownerID. Deleting an observation
// never touches the upload that produced it.
func (s *Service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if ownerID == uuid.Nil {
		return ingestion.ErrOwnerRequired
	}
	if err := s.observations.Delete(ctx, ownerID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete observation: %w", err)
	}
	return nil
}
