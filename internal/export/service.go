package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rkanadam/sssbcsj-api/internal/signup"
)

const (
	dateLayout       = "01/02/2006"
	signedUpOnLayout = "01/02/2006 03:04:05.000 PM MST"
)

// Source is the signup ledger read by an export.
type Source interface {
	Discover(ctx context.Context, domain signup.Domain, filter signup.DateFilter) ([]signup.Summary, error)
	DetailedSheet(ctx context.Context, domain signup.Domain, documentID, sheetTitle string, viewer signup.Viewer, includeAll bool) (signup.Sheet, error)
	Location() *time.Location
}

// Archive keeps a copy of an export and returns a download URL for it.
type Archive interface {
	Store(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Request contains parameters for an export operation
type Request struct {
	Domain  signup.Domain
	Format  Format
	Viewer  signup.Viewer
	Archive bool
}

// Service provides signup export functionality
type Service struct {
	source  Source
	archive Archive
	now     func() time.Time
}

// NewService creates a new export service. archive may be nil.
func NewService(source Source, archive Archive) *Service {
	return &Service{source: source, archive: archive, now: time.Now}
}

// HasArchive reports whether exports can be archived.
func (s *Service) HasArchive() bool {
	return s.archive != nil
}

// Export writes one line per visible signee across every dated sheet of the
// domain, past and upcoming. The columns follow the domain's layout.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if _, err := ParseFormat(string(req.Format)); err != nil {
		return nil, err
	}
	if req.Archive && s.archive == nil {
		return nil, ErrArchiveUnavailable
	}

	records, err := s.Records(ctx, req.Domain, req.Viewer)
	if err != nil {
		return nil, err
	}
	data, err := encode(req.Format, ColumnsFor(req.Domain.Layout), records)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Data:     data,
		Filename: fmt.Sprintf("%s-signups-%s.%s", sanitizeFilename(req.Domain.Name), s.now().In(s.source.Location()).Format("20060102-150405"), req.Format),
		MimeType: req.Format.MimeType(),
		Rows:     len(records),
	}
	if req.Archive {
		url, err := s.archive.Store(ctx, result.Filename, result.MimeType, data)
		if err != nil {
			return nil, fmt.Errorf("archive export: %w", err)
		}
		result.URL = url
	}
	return result, nil
}

// Records collects the export lines in sheet date order.
func (s *Service) Records(ctx context.Context, domain signup.Domain, viewer signup.Viewer) ([]Record, error) {
	summaries, err := s.source.Discover(ctx, domain, signup.AllDates)
	if err != nil {
		return nil, fmt.Errorf("discover sheets: %w", err)
	}
	loc := s.source.Location()
	records := []Record{}
	for _, summary := range summaries {
		sheet, err := s.source.DetailedSheet(ctx, domain, summary.DocumentID, summary.SheetTitle, viewer, true)
		if errors.Is(err, signup.ErrMalformedSheet) {
			slog.Debug("export skipping malformed sheet", "document", summary.DocumentID, "sheet", summary.SheetTitle)
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, row := range sheet.Signees {
			records = append(records, Record{
				Date:        summary.Date.Format(dateLayout),
				Location:    sheet.Location,
				Title:       sheet.Title,
				Description: sheet.Description,
				Item:        row.Item,
				Quantity:    row.Quantity,
				ItemCount:   row.Count.String(),
				Selection:   row.Selection,
				Scale:       row.Scale,
				Notes:       row.Notes,
				Name:        row.Name,
				Email:       row.Email,
				PhoneNumber: row.Phone,
				SignedUpOn:  formatSignedUpOn(row.SignedUpOn, loc),
			})
		}
	}
	return records, nil
}

// formatSignedUpOn rewrites a stored signup stamp; stamps that do not parse
// are passed through.
func formatSignedUpOn(raw string, loc *time.Location) string {
	stamp, err := time.ParseInLocation(signup.SignedUpOnLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return raw
	}
	return stamp.Format(signedUpOnLayout)
}

// sanitizeFilename creates a safe filename from a title
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		case r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	result := b.String()
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		return "export"
	}
	return result
}
