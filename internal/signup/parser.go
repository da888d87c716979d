package signup

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
)

// ErrMalformedSheet is returned when a sheet's required headers are missing
// or placed after the "#" sentinel row.
var ErrMalformedSheet = errors.New("malformed signup sheet")

const sentinelLabel = "#"

// Header holds the labelled rows above the sentinel.
type Header struct {
	Date        string   `json:"date"`
	Location    string   `json:"location"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Sheet is a parsed signup sheet. Items are the open rows; Signees the rows
// already taken.
type Sheet struct {
	DocumentID string `json:"spreadsheetId"`
	SheetTitle string `json:"sheetTitle"`
	Header
	Items   []Row `json:"signupItems"`
	Signees []Row `json:"signees"`
	// FirstRow is the 1-based number of the first row below the sentinel.
	FirstRow int `json:"-"`
}

// HasTag reports whether the sheet carries the tag, ignoring case.
func (s Sheet) HasTag(tag string) bool {
	want := fold(strings.TrimSpace(tag))
	for _, t := range s.Tags {
		if t == want {
			return true
		}
	}
	return false
}

// Parse locates the header rows by label and classifies every row below the
// sentinel as an open item or a signee.
func Parse(domain Domain, rows [][]string) (Sheet, error) {
	dateAt := findLabel(rows, "date")
	locationAt := findLabel(rows, "location")
	descriptionAt := findLabel(rows, "description")
	titleAt := findLabel(rows, "title")
	tagsAt := findLabel(rows, "tags")
	sentinelAt := findLabel(rows, sentinelLabel)

	required := []int{dateAt, locationAt, descriptionAt}
	if domain.RequireTitle {
		required = append(required, titleAt)
	}
	for _, at := range required {
		if at == -1 || at >= sentinelAt {
			return Sheet{}, ErrMalformedSheet
		}
	}

	sheet := Sheet{
		Header: Header{
			Date:        labelValue(rows, dateAt),
			Location:    labelValue(rows, locationAt),
			Description: joinFields(rows[descriptionAt][1:], " "),
			Tags:        []string{},
		},
		Items:    []Row{},
		Signees:  []Row{},
		FirstRow: sentinelAt + 2,
	}
	if titleAt != -1 && titleAt < sentinelAt {
		sheet.Title = labelValue(rows, titleAt)
	}
	if tagsAt != -1 && tagsAt <= sentinelAt {
		sheet.Tags = parseTags(rows[tagsAt][1:])
	}

	for i := sentinelAt + 1; i < len(rows); i++ {
		if isBlank(rows[i]) {
			continue
		}
		row := domain.Layout.Decode(i+1, rows[i])
		switch {
		case row.IsSignee():
			sheet.Signees = append(sheet.Signees, row)
		case row.Count.Valid && row.Count.Value > 0:
			sheet.Items = append(sheet.Items, row)
		}
	}
	return sheet, nil
}

// findLabel returns the first row whose first cell contains label, or -1.
func findLabel(rows [][]string, label string) int {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if strings.Contains(fold(strings.TrimSpace(row[0])), label) {
			return i
		}
	}
	return -1
}

func labelValue(rows [][]string, at int) string {
	if len(rows[at]) < 2 {
		return ""
	}
	return strings.TrimSpace(rows[at][1])
}

func joinFields(cells []string, sep string) string {
	parts := make([]string, 0, len(cells))
	for _, cell := range cells {
		if trimmed := strings.TrimSpace(cell); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, sep)
}

func parseTags(cells []string) []string {
	tags := []string{}
	for _, tag := range strings.Split(strings.Join(cells, ""), ",") {
		if tag = fold(strings.TrimSpace(tag)); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func fold(s string) string {
	return cases.Fold().String(s)
}
