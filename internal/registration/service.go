// Package registration searches and edits the registration spreadsheet.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rkanadam/sssbcsj-api/internal/search"
	"github.com/rkanadam/sssbcsj-api/internal/store"
)

// MinQueryLength is the shortest query that runs a search.
const MinQueryLength = 3

// Column positions in a registration row. Column 0 carries the row number.
const (
	ColRow = iota
	ColFatherFirstName
	ColFatherLastName
	ColFatherEmail
	ColFatherPhone
	ColMotherFirstName
	ColMotherLastName
	ColMotherEmail
	ColMotherPhone
	ColChildFirstName
	ColChildLastName
	ColChildGroup
	ColChildGrade
	ColChildAllergies
	ColComments
)

// contactColumns are blanked in every search result.
var contactColumns = []int{ColFatherEmail, ColFatherPhone, ColMotherEmail, ColMotherPhone}

// ErrInvalidRow is returned for a registration whose first cell is neither
// empty nor a row number.
var ErrInvalidRow = errors.New("invalid registration row reference")

// SaveResult counts the rows written by Save.
type SaveResult struct {
	Appended int `json:"appended"`
	Updated  int `json:"updated"`
}

// Service reads and writes one registration sheet.
type Service struct {
	store      store.Store
	documentID string
	sheet      string
	search     *search.Service
}

// NewService wires the registration sheet to a search facade that uses meili
// when given and a direct sheet scan otherwise.
func NewService(s store.Store, documentID, sheet string, meili *search.Meili) *Service {
	svc := &Service{store: s, documentID: documentID, sheet: sheet}
	svc.search = search.NewService(meili, scanner{svc})
	return svc
}

func (s *Service) IsConfigured() bool {
	return s.documentID != ""
}

// IndexHealthy reports whether searches go to the index.
func (s *Service) IndexHealthy() bool {
	return s.search.Healthy()
}

func (s *Service) sheetRange() store.Range {
	return store.Range{Sheet: s.sheet, StartCol: "A", EndCol: "Z"}
}

// Search returns the rows containing q, case-insensitively. Queries shorter
// than MinQueryLength return no rows.
func (s *Service) Search(ctx context.Context, q string) ([][]string, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if utf8.RuneCountInString(q) < MinQueryLength || !s.IsConfigured() {
		return [][]string{}, nil
	}
	resp, err := s.search.Search(ctx, search.Query{Text: q, Limit: search.MaxHits})
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		rows = append(rows, r.Cells)
	}
	return rows, nil
}

// Load reads every registration row with its row number in column 0 and the
// contact columns blanked.
func (s *Service) Load(ctx context.Context) ([]search.Registration, error) {
	rows, err := s.store.ReadRange(ctx, s.documentID, s.sheetRange())
	if err != nil {
		return nil, fmt.Errorf("read registrations: %w", err)
	}
	records := make([]search.Registration, 0, len(rows))
	for i, row := range rows {
		records = append(records, redact(i+1, row))
	}
	return records, nil
}

func redact(rowNumber int, row []string) search.Registration {
	width := max(len(row), ColMotherPhone+1)
	cells := make([]string, width)
	copy(cells, row)
	cells[ColRow] = strconv.Itoa(rowNumber)
	for _, col := range contactColumns {
		cells[col] = ""
	}
	return search.Registration{
		ID:    cells[ColRow],
		Row:   rowNumber,
		Cells: cells,
		Text:  strings.ToLower(strings.Join(cells, " ")),
	}
}

// Save writes registrations: a row whose first cell is empty is appended,
// otherwise the first cell names the row to overwrite. Every reference is
// checked before anything is written.
func (s *Service) Save(ctx context.Context, registrations [][]string) (SaveResult, error) {
	var result SaveResult
	if !s.IsConfigured() {
		return result, errors.New("registration sheet not configured")
	}
	targets := make([]int, len(registrations))
	for i, reg := range registrations {
		if len(reg) == 0 {
			return result, fmt.Errorf("%w: registration %d is empty", ErrInvalidRow, i)
		}
		ref := strings.TrimSpace(reg[ColRow])
		if ref == "" {
			continue
		}
		row, err := strconv.Atoi(ref)
		if err != nil || row < 1 {
			return result, fmt.Errorf("%w: %q", ErrInvalidRow, ref)
		}
		targets[i] = row
	}

	for i, reg := range registrations {
		if targets[i] == 0 {
			if err := s.store.AppendRow(ctx, s.documentID, s.sheet, reg); err != nil {
				return result, fmt.Errorf("append registration: %w", err)
			}
			result.Appended++
			continue
		}
		if err := s.store.UpdateRange(ctx, s.documentID, store.RowRange(s.sheet, targets[i]), reg); err != nil {
			return result, fmt.Errorf("update registration row %d: %w", targets[i], err)
		}
		result.Updated++
	}

	if records, err := s.Load(ctx); err != nil {
		slog.Warn("registration reindex skipped", "error", err)
	} else {
		s.search.IndexRegistrations(records)
	}
	return result, nil
}

// Reindex pushes every registration into the search index.
func (s *Service) Reindex(ctx context.Context) error {
	if !s.IsConfigured() {
		return nil
	}
	return s.search.ReindexAll(ctx, s.Load)
}

// scanner searches the sheet directly.
type scanner struct {
	svc *Service
}

func (sc scanner) Healthy() bool { return true }

func (sc scanner) Search(ctx context.Context, q search.Query) ([]search.Registration, int, error) {
	records, err := sc.svc.Load(ctx)
	if err != nil {
		return nil, 0, err
	}
	needle := strings.ToLower(q.Text)
	matches := []search.Registration{}
	for _, r := range records {
		if matchesAny(r.Cells, needle) {
			matches = append(matches, r)
		}
	}
	return search.Page(matches, q.Offset, q.Limit), len(matches), nil
}

func matchesAny(cells []string, needle string) bool {
	for _, cell := range cells {
		if cell != "" && strings.Contains(strings.ToLower(cell), needle) {
			return true
		}
	}
	return false
}
