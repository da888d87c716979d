// Package export flattens signup sheets into CSV or XLSX files.
package export

import (
	"errors"
	"fmt"

	"github.com/rkanadam/sssbcsj-api/internal/signup"
)

// Format represents the export output format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" (the default for an empty string) or "xlsx".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
	}
}

func (f Format) MimeType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// ColumnsFor is the header line of an export of a domain with the given
// layout. Fields the layout does not store get no column.
func ColumnsFor(layout signup.Layout) []string {
	columns := []string{"date", "location", "title", "description", "item"}
	if layout.Quantity >= 0 {
		columns = append(columns, "quantity")
	}
	if layout.Count >= 0 {
		columns = append(columns, "itemCount")
	}
	if layout.Selection >= 0 {
		columns = append(columns, "selection")
	}
	if layout.Scale >= 0 {
		columns = append(columns, "scale")
	}
	return append(columns, "notes", "name", "email", "phoneNumber", "signedUpOn")
}

// Record is one exported signee row.
type Record struct {
	Date        string
	Location    string
	Title       string
	Description string
	Item        string
	Quantity    string
	ItemCount   string
	Selection   string
	Scale       string
	Notes       string
	Name        string
	Email       string
	PhoneNumber string
	SignedUpOn  string
}

func (r Record) value(column string) string {
	switch column {
	case "date":
		return r.Date
	case "location":
		return r.Location
	case "title":
		return r.Title
	case "description":
		return r.Description
	case "item":
		return r.Item
	case "quantity":
		return r.Quantity
	case "itemCount":
		return r.ItemCount
	case "selection":
		return r.Selection
	case "scale":
		return r.Scale
	case "notes":
		return r.Notes
	case "name":
		return r.Name
	case "email":
		return r.Email
	case "phoneNumber":
		return r.PhoneNumber
	case "signedUpOn":
		return r.SignedUpOn
	}
	return ""
}

func (r Record) cells(columns []string) []string {
	cells := make([]string, len(columns))
	for i, column := range columns {
		cells[i] = r.value(column)
	}
	return cells
}

// Result contains the export output
type Result struct {
	Data     []byte `json:"-"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Rows     int    `json:"rows"`
	// URL is a presigned download link, set when the file was archived.
	URL string `json:"url,omitempty"`
}

var (
	// ErrUnsupportedFormat indicates an unknown export format was requested.
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrArchiveUnavailable indicates archiving was requested without an archive.
	ErrArchiveUnavailable = errors.New("export archive not configured")
)
