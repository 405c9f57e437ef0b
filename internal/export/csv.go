package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/phrazzld/leadgen-api/internal/domain"
)

// DefaultPageSize is the number of leads fetched per page.
const DefaultPageSize = 500

// ContentType is the media type of the exported document.
const ContentType = "text/csv; charset=utf-8"

// Header is the fixed first row of every export.
var Header = []string{"ID", "Name", "Email", "Company", "Title", "Source URL", "Confidence%"}

// LeadLister is the store capability the exporter needs.
type LeadLister interface {
	ListLeads(ctx context.Context, jobID int64, offset, limit int) ([]*domain.Lead, error)
}

// CSVExporter streams a job's leads as CSV.
type CSVExporter struct {
	leads    LeadLister
	pageSize int
	logger   *slog.Logger
}

// NewCSVExporter creates an exporter reading pageSize leads at a time.
// A non-positive pageSize selects DefaultPageSize.
func NewCSVExporter(leads LeadLister, pageSize int, logger *slog.Logger) *CSVExporter {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVExporter{
		leads:    leads,
		pageSize: pageSize,
		logger:   logger.With(slog.String("component", "csv_exporter")),
	}
}

// Filename returns the attachment name used for jobID's export.
func Filename(jobID int64) string {
	return fmt.Sprintf("leads_job_%d.csv", jobID)
}

// Chunks returns a lazy sequence of CSV fragments for jobID: the header row,
// then one fragment per page of leads. Nothing is read from the store until
// iteration starts, and each call starts from the first lead. Iteration stops
// after a short page, on the first error, or when the consumer stops.
func (e *CSVExporter) Chunks(ctx context.Context, jobID int64) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		header, err := encode(func(w *csv.Writer) error { return w.Write(Header) })
		if err != nil {
			yield(nil, err)
			return
		}
		if !yield(header, nil) {
			return
		}

		for offset := 0; ; {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := e.leads.ListLeads(ctx, jobID, offset, e.pageSize)
			if err != nil {
				yield(nil, fmt.Errorf("list leads (offset %d): %w", offset, err))
				return
			}
			if len(page) == 0 {
				return
			}

			chunk, err := encode(func(w *csv.Writer) error {
				for _, lead := range page {
					if err := w.Write(row(lead)); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}

			if len(page) < e.pageSize {
				return
			}
			offset += len(page)
		}
	}
}

// Stream writes the full export for jobID to w, flushing after every chunk
// when w is an http.Flusher.
func (e *CSVExporter) Stream(ctx context.Context, w io.Writer, jobID int64) error {
	flusher, _ := w.(http.Flusher)

	var written int64
	for chunk, err := range e.Chunks(ctx, jobID) {
		if err != nil {
			return err
		}
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return fmt.Errorf("write csv chunk: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	e.logger.DebugContext(ctx, "csv export written",
		slog.Int64("job_id", jobID),
		slog.Int64("bytes", written))
	return nil
}

func encode(fn func(w *csv.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := fn(w); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

func row(lead *domain.Lead) []string {
	return []string{
		strconv.FormatInt(lead.ID, 10),
		deref(lead.Name),
		deref(lead.Email),
		deref(lead.Company),
		deref(lead.Title),
		deref(lead.SourceURL),
		FormatConfidence(lead.Confidence),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FormatConfidence renders a [0, 1] confidence as a percentage rounded to two
// decimals, always with a fractional part: 0.95 → "95.0", 0.1235 → "12.35".
func FormatConfidence(v float64) string {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v*100, 'f', 2, 64), 64)
	if err != nil {
		rounded = v * 100
	}
	s := strconv.FormatFloat(rounded, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
