package signup

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rkanadam/sssbcsj-api/internal/store"
)

// DateFilter selects which dated sheets discovery keeps.
type DateFilter int

const (
	// Upcoming keeps sheets dated today or later.
	Upcoming DateFilter = iota
	// AllDates keeps every dated sheet.
	AllDates
)

var sheetDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Summary identifies a dated signup sheet.
type Summary struct {
	DocumentID   string    `json:"spreadsheetId"`
	DocumentName string    `json:"spreadsheetTitle"`
	SheetTitle   string    `json:"sheetTitle"`
	SheetHandle  int64     `json:"sheetId"`
	Date         time.Time `json:"date"`
}

// Discover lists the sheets of every document whose name contains keyword,
// keeping tabs whose title carries a YYYY-MM-DD date. Dates are read in
// today's location. The result is sorted by date.
func Discover(ctx context.Context, s store.Store, keyword string, filter DateFilter, today time.Time) ([]Summary, error) {
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	loc := today.Location()
	midnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	want := normalizeName(keyword)

	summaries := []Summary{}
	for _, doc := range docs {
		if !strings.Contains(normalizeName(doc.Name), want) {
			continue
		}
		meta, err := s.GetSpreadsheet(ctx, doc.ID)
		if err != nil {
			return nil, fmt.Errorf("spreadsheet %s: %w", doc.ID, err)
		}
		for _, sheet := range meta.Sheets {
			date, ok := sheetDate(sheet.Title, loc)
			if !ok {
				continue
			}
			if filter == Upcoming && date.Before(midnight) {
				continue
			}
			summaries = append(summaries, Summary{
				DocumentID:   doc.ID,
				DocumentName: doc.Name,
				SheetTitle:   sheet.Title,
				SheetHandle:  sheet.Handle,
				Date:         date,
			})
		}
	}
	sort.SliceStable(summaries, func(i, j int) bool { return summaries[i].Date.Before(summaries[j].Date) })
	return summaries, nil
}

func sheetDate(title string, loc *time.Location) (time.Time, bool) {
	match := sheetDatePattern.FindString(title)
	if match == "" {
		return time.Time{}, false
	}
	date, err := time.ParseInLocation("2006-01-02", match, loc)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// normalizeName case-folds s and drops everything but letters and digits.
func normalizeName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, fold(strings.TrimSpace(s)))
}
