package domain

import (
	"time"

	"github.com/google/uuid"
)

// ObservationSource records how an observation entered the system.
type ObservationSource string

const (
	ObservationSourceManual ObservationSource = "manual"
	ObservationSourceCSV    ObservationSource = "csv"
	ObservationSourceAPI    ObservationSource = "api"
)

// Valid reports whether the source is one of the known provenance tags.
func (s ObservationSource) Valid() bool {
	switch s {
	case ObservationSourceManual, ObservationSourceCSV, ObservationSourceAPI:
		return true
	}
	return false
}

// Observation is a single dated value for one metric belonging to one owner.
// Value is kept as the raw string and interpreted per the metric's data type.
type Observation struct {
	ID         uuid.UUID         `json:"id"`
	OwnerID    uuid.UUID         `json:"owner_id"`
	MetricID   string            `json:"metric_id"`
	Value      string            `json:"value"`
	ObservedOn time.Time         `json:"observed_on"`
	Note       *string           `json:"note,omitempty"`
	Source     ObservationSource `json:"source"`
	UploadID   *uuid.UUID        `json:"upload_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewObservation creates an observation for the given calendar date.
func NewObservation(ownerID uuid.UUID, metricID, value string, observedOn time.Time, source ObservationSource) Observation {
	now := time.Now().UTC()
	return Observation{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		MetricID:   metricID,
		Value:      value,
		ObservedOn: CalendarDate(observedOn),
		Source:     source,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithUpload returns a copy that references the upload that produced it.
func (o Observation) WithUpload(uploadID uuid.UUID) Observation {
	out := o
	id := uploadID
	out.UploadID = &id
	return out
}

// WithNote returns a copy carrying a free-text note. Blank notes clear it.
func (o Observation) WithNote(note string) Observation {
	out := o
	if note == "" {
		out.Note = nil
		return out
	}
	n := note
	out.Note = &n
	return out
}

// CalendarDate truncates t to midnight UTC of its own calendar day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ObservationFilter narrows observation listings.
type ObservationFilter struct {
	MetricID string
	From     *time.Time
	To       *time.Time
	Source   ObservationSource
	UploadID *uuid.UUID
	Limit    int
	Offset   int
}
