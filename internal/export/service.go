package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/rpattn/contentql/internal/domain"
	"github.com/rpattn/contentql/internal/search"
)

// Format selects the output encoding of an export.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

const sheetName = "Results"

// ParseFormat accepts csv (the default) or xlsx.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(FormatCSV):
		return FormatCSV, nil
	case string(FormatXLSX):
		return FormatXLSX, nil
	}
	return "", search.NewValidationError("format", "unsupported export format %q", raw)
}

// ContentType returns the MIME type written for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Summary describes a finished export.
type Summary struct {
	Rows      int
	Columns   []string
	Truncated bool
}

// Service exports every page of a search.
type Service struct {
	search   search.Service
	maxRows  int
	pageSize int
	logger   *zap.Logger
}

type Option func(*Service)

func WithMaxRows(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRows = n
		}
	}
}

func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 && size <= domain.MaxSearchLimit {
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

func NewService(svc search.Service, opts ...Option) *Service {
	service := &Service{
		search:   svc,
		maxRows:  10000,
		pageSize: domain.MaxSearchLimit,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Export runs req page by page, starting at req.After, until the results are
// exhausted or maxRows is reached, then writes them to w. Partial fan-out
// pages abort the export.
func (s *Service) Export(ctx context.Context, tenant uuid.UUID, scope *search.Scope, req domain.SearchRequest, format Format, w io.Writer) (Summary, error) {
	start := time.Now()
	rows, truncated, err := s.collect(ctx, tenant, scope, req)
	if err != nil {
		return Summary{}, err
	}

	columns := columnsFor(req, rows)
	switch format {
	case FormatXLSX:
		err = writeXLSX(w, columns, rows)
	default:
		err = writeCSV(w, columns, rows)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("write %s export: %w", format, err)
	}

	s.logger.Info("[EXPORT] export completed",
		zap.String("organizationId", tenant.String()),
		zap.String("entityType", string(req.EntityType)),
		zap.String("format", string(format)),
		zap.Int("rows", len(rows)),
		zap.Bool("truncated", truncated),
		zap.Duration("duration", time.Since(start)),
	)
	return Summary{Rows: len(rows), Columns: columns, Truncated: truncated}, nil
}

func (s *Service) collect(ctx context.Context, tenant uuid.UUID, scope *search.Scope, req domain.SearchRequest) ([]domain.Record, bool, error) {
	var rows []domain.Record
	page := req
	for {
		page.Limit = min(s.pageSize, s.maxRows-len(rows))
		result, err := s.search.Search(ctx, tenant, scope, page)
		if err != nil {
			return nil, false, err
		}
		if result.Partial() {
			failed := result.Errors[0]
			return nil, false, search.NewExecutionError(failed.Entity, errors.New(failed.Message))
		}
		rows = append(rows, result.Results...)
		if result.NextCursor == "" {
			return rows, false, nil
		}
		if len(rows) >= s.maxRows {
			return rows, true, nil
		}
		page = page.WithAfter(result.NextCursor)
	}
}

// columnsFor keeps the requested property order when there is one; otherwise
// id and entityType lead and the remaining keys follow alphabetically.
func columnsFor(req domain.SearchRequest, rows []domain.Record) []string {
	seen := make(map[string]bool)
	var columns []string
	push := func(name string) {
		if !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}

	push("id")
	if req.EntityType == domain.EntityTypeAll {
		push("entityType")
	}
	for _, p := range req.Properties {
		push(p)
	}

	var rest []string
	for _, row := range rows {
		for key := range row {
			if !seen[key] {
				seen[key] = true
				rest = append(rest, key)
			}
		}
	}
	sort.Strings(rest)
	return append(columns, rest...)
}

func writeCSV(w io.Writer, columns []string, rows []domain.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = formatValue(row[col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, columns []string, rows []domain.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}

	header := make([]interface{}, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for r, row := range rows {
		cells := make([]interface{}, len(columns))
		for i, col := range columns {
			cells[i] = cellValue(row[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.Write(w)
}

// cellValue keeps numbers and booleans native so spreadsheets can sort them.
func cellValue(value any) interface{} {
	switch v := value.(type) {
	case int64, float64, bool:
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return formatValue(value)
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	case []string:
		return strings.Join(v, ";")
	case map[string]any, []any, domain.Record:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
