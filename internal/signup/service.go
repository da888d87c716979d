package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rkanadam/sssbcsj-api/internal/store"
)

// Notifier sends the confirmation after a successful batch.
type Notifier interface {
	SendTemplatedMessage(ctx context.Context, to []string, template string, params any) error
}

// Confirmation is the data handed to the confirmation templates.
type Confirmation struct {
	Name        string             `json:"name"`
	Service     string             `json:"service"`
	Description string             `json:"description"`
	Where       string             `json:"where"`
	When        string             `json:"when"`
	Items       []ConfirmationItem `json:"items"`
}

type ConfirmationItem struct {
	Index       int    `json:"index"`
	Item        string `json:"item"`
	ItemCount   int    `json:"itemCount"`
	Notes       string `json:"notes"`
	BhajanOrTFD string `json:"bhajanOrTFD"`
	Scale       string `json:"scale"`
}

// Service is the signup ledger: discovery, parsing, visibility and
// reconciliation over one document store.
type Service struct {
	store      store.Store
	reconciler *Reconciler
	notifier   Notifier
	location   *time.Location
	now        func() time.Time
}

func NewService(s store.Store, notifier Notifier, location *time.Location) *Service {
	if location == nil {
		location = time.Local
	}
	return &Service{
		store:      s,
		reconciler: NewReconciler(s, location),
		notifier:   notifier,
		location:   location,
		now:        time.Now,
	}
}

// Location is the zone sheet dates and timestamps are read in.
func (s *Service) Location() *time.Location {
	return s.location
}

func (s *Service) today() time.Time {
	return s.now().In(s.location)
}

// Discover lists the domain's dated sheets.
func (s *Service) Discover(ctx context.Context, domain Domain, filter DateFilter) ([]Summary, error) {
	return Discover(ctx, s.store, domain.Keyword, filter, s.today())
}

// ListUpcoming returns the parsed upcoming sheets of a domain, optionally
// restricted to a tag. Malformed sheets are skipped.
func (s *Service) ListUpcoming(ctx context.Context, domain Domain, viewer Viewer, tag string) ([]Sheet, error) {
	summaries, err := s.Discover(ctx, domain, Upcoming)
	if err != nil {
		return nil, err
	}
	sheets := []Sheet{}
	for _, summary := range summaries {
		sheet, err := s.readSheet(ctx, domain, summary.DocumentID, summary.SheetTitle)
		if errors.Is(err, ErrMalformedSheet) {
			slog.Debug("skipping malformed sheet", "domain", domain.Name, "document", summary.DocumentID, "sheet", summary.SheetTitle)
			continue
		}
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(tag) != "" && !sheet.HasTag(tag) {
			continue
		}
		sheets = append(sheets, sheet.Visible(viewer, false))
	}
	return sheets, nil
}

// DetailedSheet parses one sheet and filters its signees for the viewer.
func (s *Service) DetailedSheet(ctx context.Context, domain Domain, documentID, sheetTitle string, viewer Viewer, includeAll bool) (Sheet, error) {
	sheet, err := s.readSheet(ctx, domain, documentID, sheetTitle)
	if err != nil {
		return Sheet{}, err
	}
	return sheet.Visible(viewer, includeAll), nil
}

// MySignups returns the upcoming sheets in which the caller holds a signee
// row, showing only the caller's rows.
func (s *Service) MySignups(ctx context.Context, domain Domain, caller Caller) ([]Sheet, error) {
	if caller.Email == "" {
		return []Sheet{}, nil
	}
	sheets, err := s.ListUpcoming(ctx, domain, Viewer{Caller: caller}, "")
	if err != nil {
		return nil, err
	}
	mine := []Sheet{}
	for _, sheet := range sheets {
		if len(sheet.Signees) > 0 {
			mine = append(mine, sheet)
		}
	}
	return mine, nil
}

// SubmitBatch reconciles a batch and, when any row was written, emails the
// caller one confirmation listing those rows. A failed confirmation is
// logged, not returned.
func (s *Service) SubmitBatch(ctx context.Context, domain Domain, batch Batch, caller Caller) (BatchResult, error) {
	result, err := s.reconciler.SubmitBatch(ctx, domain, batch, caller)
	if err != nil {
		return result, err
	}
	if len(result.Applied) == 0 || s.notifier == nil || caller.Email == "" {
		return result, nil
	}
	sheet, err := s.readSheet(ctx, domain, batch.DocumentID, batch.SheetTitle)
	if err != nil {
		slog.Warn("confirmation skipped", "document", batch.DocumentID, "sheet", batch.SheetTitle, "error", err)
		return result, nil
	}
	confirmation := NewConfirmation(sheet, caller, result.Applied)
	if err := s.notifier.SendTemplatedMessage(ctx, []string{caller.Email}, domain.ConfirmationTemplate, confirmation); err != nil {
		slog.Warn("confirmation failed", "template", domain.ConfirmationTemplate, "to", caller.Email, "error", err)
	}
	return result, nil
}

// NewConfirmation builds the confirmation for the rows written in a batch.
func NewConfirmation(sheet Sheet, caller Caller, applied []Row) Confirmation {
	c := Confirmation{
		Name:        caller.Name,
		Service:     sheet.Title,
		Description: sheet.Description,
		Where:       sheet.Location,
		When:        sheet.Date,
		Items:       make([]ConfirmationItem, 0, len(applied)),
	}
	for i, row := range applied {
		c.Items = append(c.Items, ConfirmationItem{
			Index:       i + 1,
			Item:        row.Item,
			ItemCount:   row.Count.Value,
			Notes:       row.Notes,
			BhajanOrTFD: row.Selection,
			Scale:       row.Scale,
		})
	}
	return c
}

func (s *Service) readSheet(ctx context.Context, domain Domain, documentID, sheetTitle string) (Sheet, error) {
	rows, err := s.store.ReadRange(ctx, documentID, store.SheetRange(sheetTitle))
	if err != nil {
		return Sheet{}, fmt.Errorf("read sheet %q: %w", sheetTitle, err)
	}
	sheet, err := Parse(domain, rows)
	if err != nil {
		return Sheet{}, err
	}
	sheet.DocumentID = documentID
	sheet.SheetTitle = sheetTitle
	return sheet, nil
}
