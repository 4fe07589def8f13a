package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rpattn/impactdash/internal/domain"
	"github.com/rpattn/impactdash/internal/repository"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const defaultPageSize = 1000

// Supported export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ErrUnsupportedFormat is returned for formats other than csv and xlsx.
var ErrUnsupportedFormat = errors.New("unsupported export format")

var exportHeaders = []string{"observed_on", "metric_id", "metric_name", "unit", "value", "source", "upload_id", "note"}

// Service writes an owner's observations out as CSV or XLSX.
type Service struct {
	observations repository.ObservationRepository
	metrics      repository.MetricRepository
	pageSize     int
	logger       *zap.Logger
}

// Option customizes the export service.
type Option func(*Service)

// WithPageSize sets how many observations are read per repository call.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(observations repository.ObservationRepository, metrics repository.MetricRepository, opts ...Option) *Service {
	s := &Service{
		observations: observations,
		metrics:      metrics,
		pageSize:     defaultPageSize,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summary describes a finished export.
type Summary struct {
	Rows         int
	BytesWritten int64
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// FileName builds the download name for an export.
func FileName(filter domain.ObservationFilter, format string, now time.Time) string {
	scope := "all"
	if filter.MetricID != "" {
		scope = sanitizeFileComponent(filter.MetricID)
	}
	return fmt.Sprintf("observations-%s-%s.%s", scope, now.UTC().Format("20060102"), format)
}

// Export writes every observation matching filter to w. filter.Limit caps
// the number of rows; zero exports everything.
func (s *Service) Export(ctx context.Context, ownerID uuid.UUID, filter domain.ObservationFilter, format string, w io.Writer) (Summary, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatCSV
	}

	var sink rowSink
	switch format {
	case FormatCSV:
		sink = newCSVSink(w)
	case FormatXLSX:
		xs, err := newXLSXSink(w)
		if err != nil {
			return Summary{}, err
		}
		sink = xs
	default:
		return Summary{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	defer sink.Close()

	if err := sink.WriteRow(exportHeaders); err != nil {
		return Summary{}, fmt.Errorf("write header: %w", err)
	}

	rowsTarget := filter.Limit
	rowsExported := 0
	offset := filter.Offset
	names := map[string]domain.MetricDefinition{}
	row := make([]string, len(exportHeaders))

	for {
		if ctx.Err() != nil {
			return Summary{}, ctx.Err()
		}
		page := s.pageSize
		if rowsTarget > 0 && rowsTarget-rowsExported < page {
			page = rowsTarget - rowsExported
		}

		pageFilter := filter
		pageFilter.Limit = page
		pageFilter.Offset = offset
		batch, err := s.observations.List(ctx, ownerID, pageFilter)
		if err != nil {
			return Summary{}, fmt.Errorf("list observations: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		if err := s.resolveMetrics(ctx, batch, names); err != nil {
			return Summary{}, err
		}

		for _, o := range batch {
			fillRow(row, o, names[o.MetricID])
			if err := sink.WriteRow(row); err != nil {
				return Summary{}, fmt.Errorf("write observation row: %w", err)
			}
			rowsExported++
		}

		if rowsTarget > 0 && rowsExported >= rowsTarget {
			break
		}
		if len(batch) < page {
			break
		}
		offset += len(batch)
	}

	written, err := sink.Finish()
	if err != nil {
		return Summary{}, fmt.Errorf("finish export: %w", err)
	}

	s.logger.Info("Observation export completed",
		zap.String("owner_id", ownerID.String()),
		zap.String("format", format),
		zap.Int("rows", rowsExported),
		zap.Int64("bytes", written))
	return Summary{Rows: rowsExported, BytesWritten: written}, nil
}

func (s *Service) resolveMetrics(ctx context.Context, batch []domain.Observation, known map[string]domain.MetricDefinition) error {
	var missing []string
	seen := map[string]struct{}{}
	for _, o := range batch {
		if _, ok := known[o.MetricID]; ok {
			continue
		}
		if _, ok := seen[o.MetricID]; ok {
			continue
		}
		seen[o.MetricID] = struct{}{}
		missing = append(missing, o.MetricID)
	}
	if len(missing) == 0 || s.metrics == nil {
		return nil
	}

	found, err := s.metrics.GetByIDs(ctx, missing)
	if err != nil {
		return fmt.Errorf("load metric definitions: %w", err)
	}
	for _, m := range found {
		known[m.ID] = m
	}
	// Remember misses so uncatalogued ids are looked up once.
	for _, id := range missing {
		if _, ok := known[id]; !ok {
			known[id] = domain.MetricDefinition{ID: id}
		}
	}
	return nil
}

func fillRow(row []string, o domain.Observation, metric domain.MetricDefinition) {
	row[0] = o.ObservedOn.Format("2006-01-02")
	row[1] = o.MetricID
	row[2] = metric.Name
	row[3] = metric.Unit
	row[4] = o.Value
	row[5] = string(o.Source)
	row[6] = ""
	if o.UploadID != nil {
		row[6] = o.UploadID.String()
	}
	row[7] = ""
	if o.Note != nil {
		row[7] = *o.Note
	}
}

type rowSink interface {
	WriteRow(fields []string) error
	Finish() (int64, error)
	Close()
}

type countingWriter struct {
	writer io.Writer
	count  int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.writer.Write(p)
	c.count += int64(n)
	return n, err
}

type csvSink struct {
	buffered *bufio.Writer
	counter  *countingWriter
	writer   *csv.Writer
}

func newCSVSink(w io.Writer) *csvSink {
	counter := &countingWriter{writer: w}
	buffered := bufio.NewWriterSize(counter, 64<<10)
	return &csvSink{buffered: buffered, counter: counter, writer: csv.NewWriter(buffered)}
}

func (s *csvSink) WriteRow(fields []string) error {
	return s.writer.Write(fields)
}

func (s *csvSink) Finish() (int64, error) {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return 0, err
	}
	if err := s.buffered.Flush(); err != nil {
		return 0, err
	}
	return s.counter.count, nil
}

func (s *csvSink) Close() {}

type xlsxSink struct {
	file   *excelize.File
	stream *excelize.StreamWriter
	out    io.Writer
	row    int
}

const exportSheet = "Observations"

func newXLSXSink(w io.Writer) (*xlsxSink, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("name export sheet: %w", err)
	}
	stream, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open xlsx stream: %w", err)
	}
	return &xlsxSink{file: f, stream: stream, out: w}, nil
}

func (s *xlsxSink) WriteRow(fields []string) error {
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	values := make([]any, len(fields))
	for i, field := range fields {
		values[i] = field
	}
	return s.stream.SetRow(cell, values)
}

func (s *xlsxSink) Finish() (int64, error) {
	if err := s.stream.Flush(); err != nil {
		return 0, err
	}
	return s.file.WriteTo(s.out)
}

func (s *xlsxSink) Close() {
	_ = s.file.Close()
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "export"
	}
	return result
}
