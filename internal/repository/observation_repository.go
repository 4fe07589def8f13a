package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/impactdash/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const observationColumns = `id, owner_id, metric_id, value, observed_on, note, source, upload_id, created_at, updated_at`

type observationRepository struct {
	pool *pgxpool.Pool
}

// NewObservationRepository wires an observation store backed by pgxpool.
func NewObservationRepository(pool *pgxpool.Pool) ObservationRepository {
	return &observationRepository{pool: pool}
}

func (r *observationRepository) Create(ctx context.Context, observation domain.Observation) (domain.Observation, error) {
	if r.pool == nil {
		return domain.Observation{}, fmt.Errorf("observation repository not initialized")
	}

	var note any
	if observation.Note != nil {
		note = *observation.Note
	}
	var uploadID any
	if observation.UploadID != nil {
		uploadID = *observation.UploadID
	}

	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO metric_observations (id, owner_id, metric_id, value, observed_on, note, source, upload_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+observationColumns,
		observation.ID,
		observation.OwnerID,
		observation.MetricID,
		observation.Value,
		observation.ObservedOn,
		note,
		string(observation.Source),
		uploadID,
		observation.CreatedAt,
		observation.UpdatedAt,
	)

	created, err := scanObservation(row)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("failed to create observation: %w", err)
	}
	return created, nil
}

func (r *observationRepository) List(ctx context.Context, ownerID uuid.UUID, filter domain.ObservationFilter) ([]domain.Observation, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("observation repository not initialized")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	conditions := []string{"owner_id = $1"}
	args := []any{ownerID}
	addCondition := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.MetricID != "" {
		addCondition("metric_id = $%d", filter.MetricID)
	}
	if filter.From != nil {
		addCondition("observed_on >= $%d", domain.CalendarDate(*filter.From))
	}
	if filter.To != nil {
		addCondition("observed_on <= $%d", domain.CalendarDate(*filter.To))
	}
	if filter.Source != "" {
		addCondition("source = $%d", string(filter.Source))
	}
	if filter.UploadID != nil {
		addCondition("upload_id = $%d", *filter.UploadID)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT %s
		 FROM metric_observations
		 WHERE %s
		 ORDER BY observed_on ASC, created_at ASC
		 LIMIT $%d OFFSET $%d`,
		observationColumns,
		strings.Join(conditions, " AND "),
		len(args)-1,
		len(args),
	)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	defer rows.Close()

	observations := []domain.Observation{}
	for rows.Next() {
		observation, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", scanErr)
		}
		observations = append(observations, observation)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate observations: %w", rowsErr)
	}

	return observations, nil
}

func (r *observationRepository) Delete(ctx context.Context, ownerID uuid.UUID, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("observation repository not initialized")
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM metric_observations WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete observation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanObservation(row pgx.Row) (domain.Observation, error) {
	var (
		observation domain.Observation
		note        pgtype.Text
		source      string
		uploadID    pgtype.UUID
		observedOn  pgtype.Date
	)
	if err := row.Scan(
		&observation.ID,
		&observation.OwnerID,
		&observation.MetricID,
		&observation.Value,
		&observedOn,
		&note,
		&source,
		&uploadID,
		&observation.CreatedAt,
		&observation.UpdatedAt,
	); err != nil {
		return domain.Observation{}, err
	}

	observation.Source = domain.ObservationSource(source)
	if observedOn.Valid {
		observation.ObservedOn = domain.CalendarDate(observedOn.Time)
	}
	if note.Valid {
		value := note.String
		observation.Note = &value
	}
	if uploadID.Valid {
		id := uuid.UUID(uploadID.Bytes)
		observation.UploadID = &id
	}
	return observation, nil
}
