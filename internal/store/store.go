// Package store is the document store behind the sign-up ledger: spreadsheet
// documents made of titled sheets of string cells.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNotFound is returned when a document or sheet does not exist.
var ErrNotFound = errors.New("not found")

// UpstreamError wraps a failure of the backing store or another upstream
// Google API.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

// Document is a spreadsheet file as listed by the store.
type Document struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Sheet is one tab of a spreadsheet. Handle is the numeric id used for
// structural edits.
type Sheet struct {
	Handle int64  `json:"handle"`
	Title  string `json:"title"`
}

// Spreadsheet is the metadata of a document.
type Spreadsheet struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Sheets []Sheet `json:"sheets"`
}

// SheetByTitle returns the tab with the given title.
func (s Spreadsheet) SheetByTitle(title string) (Sheet, bool) {
	for _, sheet := range s.Sheets {
		if sheet.Title == title {
			return sheet, true
		}
	}
	return Sheet{}, false
}

// Range addresses cells of one sheet. Rows are 1-based and inclusive; zero
// leaves that end unbounded. Empty columns mean every column.
type Range struct {
	Sheet    string
	StartRow int
	EndRow   int
	StartCol string
	EndCol   string
}

// RowRange addresses a single row.
func RowRange(sheet string, row int) Range {
	return Range{Sheet: sheet, StartRow: row, EndRow: row}
}

// SheetRange addresses a whole sheet.
func SheetRange(sheet string) Range {
	return Range{Sheet: sheet}
}

// QuoteSheet renders a sheet title for A1 notation.
func QuoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// String renders the range in A1 notation, e.g. 'Service-2030-01-05'!5:5.
func (r Range) String() string {
	quoted := QuoteSheet(r.Sheet)
	if r.StartRow == 0 && r.EndRow == 0 && r.StartCol == "" && r.EndCol == "" {
		return quoted
	}
	return quoted + "!" + r.StartCol + rowLabel(r.StartRow) + ":" + r.EndCol + rowLabel(r.EndRow)
}

func rowLabel(row int) string {
	if row <= 0 {
		return ""
	}
	return strconv.Itoa(row)
}

// slice cuts a full sheet grid down to the range.
func (r Range) slice(rows [][]string) ([][]string, error) {
	start := 0
	if r.StartRow > 0 {
		start = r.StartRow - 1
	}
	end := len(rows)
	if r.EndRow > 0 && r.EndRow < end {
		end = r.EndRow
	}
	if start >= end {
		return [][]string{}, nil
	}
	firstCol, lastCol, err := r.columns()
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, end-start)
	for _, row := range rows[start:end] {
		lo := min(firstCol, len(row))
		hi := len(row)
		if lastCol >= 0 && lastCol+1 < hi {
			hi = lastCol + 1
		}
		if hi < lo {
			hi = lo
		}
		out = append(out, append([]string(nil), row[lo:hi]...))
	}
	return out, nil
}

// columns returns 0-based column bounds; last is -1 when unbounded.
func (r Range) columns() (int, int, error) {
	first, last := 0, -1
	if r.StartCol != "" {
		n, err := excelize.ColumnNameToNumber(r.StartCol)
		if err != nil {
			return 0, 0, fmt.Errorf("range %s: %w", r, err)
		}
		first = n - 1
	}
	if r.EndCol != "" {
		n, err := excelize.ColumnNameToNumber(r.EndCol)
		if err != nil {
			return 0, 0, fmt.Errorf("range %s: %w", r, err)
		}
		last = n - 1
	}
	return first, last, nil
}

// Store is the tabular document store. Every call may fail with an
// UpstreamError; none are retried.
type Store interface {
	ListDocuments(ctx context.Context) ([]Document, error)
	GetSpreadsheet(ctx context.Context, documentID string) (Spreadsheet, error)
	ReadRange(ctx context.Context, documentID string, r Range) ([][]string, error)
	// AppendRow writes cells after the last non-empty row of the sheet.
	AppendRow(ctx context.Context, documentID, sheetTitle string, cells []string) error
	// UpdateRange overwrites cells starting at the range's first row and column.
	UpdateRange(ctx context.Context, documentID string, r Range, cells []string) error
	// DeleteRows removes rows [start, end) (0-based) and shifts the rest up.
	DeleteRows(ctx context.Context, documentID string, handle int64, start, end int) error
}

// Locker is implemented by stores that can serialize writers across
// processes.
type Locker interface {
	Lock(ctx context.Context, documentID string) (unlock func(), err error)
}

func trimTrailingEmpty(rows [][]string) [][]string {
	end := len(rows)
	for end > 0 && isEmptyRow(rows[end-1]) {
		end--
	}
	return rows[:end]
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// writeCells overlays cells onto row starting at column col.
func writeCells(row []string, col int, cells []string) []string {
	for len(row) < col+len(cells) {
		row = append(row, "")
	}
	copy(row[col:], cells)
	return row
}
