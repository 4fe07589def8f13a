package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/impactdash/internal/domain"
	"github.com/rpattn/impactdash/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxReturnedErrors = 10
	defaultPreviewRows       = 10
	defaultHeartbeatInterval = 30 * time.Second
)

// Upload outcomes reported to the Recorder.
const (
	OutcomeCompleted = "completed"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// Recorder receives one call per upload submission.
type Recorder interface {
	UploadFinished(outcome string, processed, failed int, d time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) UploadFinished(string, int, int, time.Duration) {}

// Service ingests tabular files into metric observations.
type Service struct {
	uploads      repository.UploadRepository
	observations repository.ObservationRepository
	metrics      repository.MetricRepository

	parser            recordParser
	maxReturnedErrors int
	previewRows       int
	heartbeatInterval time.Duration
	recorder          Recorder
	logger            *zap.Logger
	now               func() time.Time
}

// Option customizes the Service.
type Option func(*Service)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder reports upload outcomes, typically to Prometheus.
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// WithCSVMode selects CSVModeNaive or CSVModeRFC4180 for delimited files.
func WithCSVMode(mode string) Option {
	return func(s *Service) {
		s.parser = newRecordParser(mode, s.parser.delimiter)
	}
}

// WithDelimiter sets the field delimiter for delimited files.
func WithDelimiter(delimiter rune) Option {
	return func(s *Service) {
		s.parser = newRecordParser(s.parser.mode, delimiter)
	}
}

// WithMaxReturnedErrors bounds the row errors returned synchronously.
func WithMaxReturnedErrors(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxReturnedErrors = n
		}
	}
}

// WithPreviewRows sets the default number of rows a preview returns.
func WithPreviewRows(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.previewRows = n
		}
	}
}

// WithHeartbeatInterval sets how often a running upload refreshes its
// counters and updated_at. The reconcile sweep's older_than must be longer.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.heartbeatInterval = d
		}
	}
}

// NewService creates a new ingestion service. metrics may be nil, in which
// case previews skip the catalog check.
func NewService(
	uploads repository.UploadRepository,
	observations repository.ObservationRepository,
	metrics repository.MetricRepository,
	opts ...Option,
) *Service {
	service := &Service{
		uploads:           uploads,
		observations:      observations,
		metrics:           metrics,
		parser:            newRecordParser(CSVModeNaive, ','),
		maxReturnedErrors: defaultMaxReturnedErrors,
		previewRows:       defaultPreviewRows,
		heartbeatInterval: defaultHeartbeatInterval,
		recorder:          noopRecorder{},
		logger:            zap.NewNop(),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Request describes one upload submission.
type Request struct {
	OwnerID       uuid.UUID
	FileName      string
	FileSize      int64
	Data          []byte
	ColumnMapping domain.ColumnMapping
}

// Result summarises a completed upload. Errors holds at most the configured
// number of row errors; the upload record keeps all of them.
type Result struct {
	UploadID      uuid.UUID `json:"uploadId"`
	RowsProcessed int       `json:"rowsProcessed"`
	RowsFailed    int       `json:"rowsFailed"`
	Errors        []string  `json:"errors"`
}

// SubmitUpload hashes, deduplicates, parses and ingests one file.
//
// Byte-identical content that was ingested before fails with a
// *DuplicateUploadError before anything is parsed or written. A file without
// a header and at least one data row fails with ErrEmptyOrInvalidFile. Bad rows
// never fail the submission; they are counted and reported in the Result.
func (s *Service) SubmitUpload(ctx context.Context, req Request) (result Result, err error) {
	started := s.now()
	outcome := OutcomeError
	defer func() {
		s.recorder.UploadFinished(outcome, result.RowsProcessed, result.RowsFailed, s.now().Sub(started))
	}()

	if req.OwnerID == uuid.Nil {
		return Result{}, ErrOwnerRequired
	}
	if len(req.Data) == 0 {
		outcome = OutcomeInvalid
		return Result{}, ErrEmptyOrInvalidFile
	}

	logger := s.logger.With(
		zap.String("owner_id", req.OwnerID.String()),
		zap.String("file_name", req.FileName),
	)

	contentHash := ContentHash(req.Data)

	existing, err := s.uploads.GetByContentHash(ctx, contentHash)
	switch {
	case err == nil:
		outcome = OutcomeDuplicate
		logger.Info("Rejected duplicate upload", zap.String("existing_upload_id", existing.ID.String()))
		return Result{}, &DuplicateUploadError{ExistingID: existing.ID}
	case !errors.Is(err, repository.ErrNotFound):
		return Result{}, fmt.Errorf("failed to check for duplicate upload: %w", err)
	}

	records, err := s.parser.parse(req.FileName, req.Data)
	if err != nil {
		if errors.Is(err, ErrEmptyOrInvalidFile) {
			outcome = OutcomeInvalid
		}
		return Result{}, err
	}
	if len(records) < 2 {
		outcome = OutcomeInvalid
		return Result{}, ErrEmptyOrInvalidFile
	}
	headers := records[0]

	fileSize := req.FileSize
	if fileSize <= 0 {
		fileSize = int64(len(req.Data))
	}

	upload, err := s.uploads.Create(ctx, domain.NewUpload(req.OwnerID, contentHash, req.FileName, fileSize, req.ColumnMapping))
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateContentHash) {
			// Lost a race with a concurrent submission of the same bytes.
			outcome = OutcomeDuplicate
			return Result{}, s.duplicateOf(ctx, contentHash)
		}
		return Result{}, fmt.Errorf("failed to create upload record: %w", err)
	}
	logger = logger.With(zap.String("upload_id", upload.ID.String()))

	// Once the record exists the rows run to completion even if the caller goes away.
	rowCtx := context.WithoutCancel(ctx)

	var (
		processed int
		failed    int
		rowErrors []string
		lastBeat  = s.now()
	)
	for idx, record := range records[1:] {
		if now := s.now(); now.Sub(lastBeat) >= s.heartbeatInterval {
			if err := s.uploads.Heartbeat(rowCtx, upload.ID, processed, failed, now.UTC()); err != nil {
				logger.Warn("Failed to record upload heartbeat", zap.Error(err))
			}
			lastBeat = now
		}

		rowNumber := idx + 2
		if rowErr := s.ingestRow(rowCtx, upload, headers, record); rowErr != nil {
			failed++
			message := fmt.Sprintf("Row %d: %s", rowNumber, rowErr.Error())
			rowErrors = append(rowErrors, message)
			logger.Debug("Row failed", zap.Int("row", rowNumber), zap.Error(rowErr))
			continue
		}
		processed++
	}

	completed, err := s.uploads.Complete(rowCtx, upload.Completed(processed, failed, rowErrors))
	if err != nil {
		logger.Error("Failed to finalize upload", zap.Error(err))
		return Result{}, fmt.Errorf("failed to finalize upload %s: %w", upload.ID, err)
	}

	outcome = OutcomeCompleted
	logger.Info("Upload completed",
		zap.Int("rows_processed", completed.RowsProcessed),
		zap.Int("rows_failed", completed.RowsFailed))

	return Result{
		UploadID:      completed.ID,
		RowsProcessed: processed,
		RowsFailed:    failed,
		Errors:        truncateErrors(rowErrors, s.maxReturnedErrors),
	}, nil
}

// ingestRow writes one observation per mapped, non-empty cell. Observations
// written before a failing one are kept.
func (s *Service) ingestRow(ctx context.Context, upload domain.Upload, headers, record []string) error {
	values := alignRow(headers, record)

	observedOn, err := rowDate(values)
	if err != nil {
		return err
	}

	for _, entry := range upload.ColumnMapping {
		value, ok := values[entry.Column]
		if !ok || value == "" {
			continue
		}
		observation := domain.NewObservation(upload.OwnerID, entry.MetricID, value, observedOn, domain.ObservationSourceCSV).
			WithUpload(upload.ID)
		if _, err := s.observations.Create(ctx, observation); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) duplicateOf(ctx context.Context, contentHash string) error {
	existing, err := s.uploads.GetByContentHash(ctx, contentHash)
	if err != nil {
		return fmt.Errorf("%w: failed to load existing upload: %v", ErrDuplicateUpload, err)
	}
	return &DuplicateUploadError{ExistingID: existing.ID}
}

// ListUploads returns every upload for the owner, most recent first.
func (s *Service) ListUploads(ctx context.Context, ownerID uuid.UUID) ([]domain.Upload, error) {
	if ownerID == uuid.Nil {
		return nil, ErrOwnerRequired
	}
	uploads, err := s.uploads.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return uploads, nil
}

// ContentHash is the hex SHA-256 digest used as the upload natural key.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func truncateErrors(errs []string, limit int) []string {
	if len(errs) > limit {
		errs = errs[:limit]
	}
	return append([]string{}, errs...)
}

// PreviewRequest describes a dry run of an upload.
type PreviewRequest struct {
	OwnerID       uuid.UUID
	FileName      string
	Data          []byte
	ColumnMapping domain.ColumnMapping
	Limit         int
}

// PreviewRow is one parsed data row with its date check.
type PreviewRow struct {
	RowNumber int               `json:"rowNumber"`
	Values    map[string]string `json:"values"`
	Date      string            `json:"date,omitempty"`
	Errors    []string          `json:"errors,omitempty"`
}

// PreviewResult reports what SubmitUpload would do without writing anything.
type PreviewResult struct {
	TotalRows        int          `json:"totalRows"`
	InvalidRows      int          `json:"invalidRows"`
	Headers          []string     `json:"headers"`
	DateColumn       string       `json:"dateColumn,omitempty"`
	Rows             []PreviewRow `json:"rows"`
	UnmatchedColumns []string     `json:"unmatchedColumns"`
	UnknownMetrics   []string     `json:"unknownMetrics"`
	DuplicateOf      *uuid.UUID   `json:"duplicateOf,omitempty"`
}

// Preview parses the file and checks dates and the mapping. Unknown metric
// identifiers are reported but would still be ingested.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (PreviewResult, error) {
	result := PreviewResult{
		Headers:          []string{},
		Rows:             []PreviewRow{},
		UnmatchedColumns: []string{},
		UnknownMetrics:   []string{},
	}

	if req.OwnerID == uuid.Nil {
		return result, ErrOwnerRequired
	}
	if len(req.Data) == 0 {
		return result, ErrEmptyOrInvalidFile
	}

	existing, err := s.uploads.GetByContentHash(ctx, ContentHash(req.Data))
	switch {
	case err == nil:
		id := existing.ID
		result.DuplicateOf = &id
	case !errors.Is(err, repository.ErrNotFound):
		return result, fmt.Errorf("failed to check for duplicate upload: %w", err)
	}

	records, err := s.parser.parse(req.FileName, req.Data)
	if err != nil {
		return result, err
	}
	if len(records) < 2 {
		return result, ErrEmptyOrInvalidFile
	}

	headers := records[0]
	result.Headers = append(result.Headers, headers...)
	result.DateColumn = detectDateColumn(headers)
	result.TotalRows = len(records) - 1

	headerSet := make(map[string]struct{}, len(headers))
	for _, header := range headers {
		headerSet[header] = struct{}{}
	}
	for _, column := range req.ColumnMapping.Columns() {
		if _, ok := headerSet[column]; !ok {
			result.UnmatchedColumns = append(result.UnmatchedColumns, column)
		}
	}

	unknown, err := s.unknownMetrics(ctx, req.ColumnMapping.MetricIDs())
	if err != nil {
		return result, err
	}
	result.UnknownMetrics = unknown

	limit := req.Limit
	if limit <= 0 {
		limit = s.previewRows
	}

	for idx, record := range records[1:] {
		rowNumber := idx + 2
		values := alignRow(headers, record)
		row := PreviewRow{RowNumber: rowNumber, Values: values}

		observedOn, dateErr := rowDate(values)
		if dateErr != nil {
			result.InvalidRows++
			row.Errors = []string{fmt.Sprintf("Row %d: %s", rowNumber, dateErr.Error())}
		} else {
			row.Date = observedOn.Format("2006-01-02")
		}

		if idx < limit {
			result.Rows = append(result.Rows, row)
		}
	}

	return result, nil
}

func (s *Service) unknownMetrics(ctx context.Context, ids []string) ([]string, error) {
	if s.metrics == nil || len(ids) == 0 {
		return []string{}, nil
	}

	known, err := s.metrics.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric catalog: %w", err)
	}
	found := make(map[string]struct{}, len(known))
	for _, metric := range known {
		found[metric.ID] = struct{}{}
	}

	unknown := []string{}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	return unknown, nil
}
