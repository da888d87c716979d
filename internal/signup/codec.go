package signup

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Count is the remaining capacity of an open item. Valid is false when the
// cell does not hold a base-10 integer.
type Count struct {
	Value int
	Valid bool
	raw   string
}

// ParseCount parses a count cell.
func ParseCount(raw string) Count {
	trimmed := strings.TrimSpace(raw)
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return Count{raw: raw}
	}
	return Count{Value: value, Valid: true, raw: raw}
}

// CountOf returns a valid count.
func CountOf(value int) Count {
	return Count{Value: value, Valid: true}
}

// MarshalJSON renders an invalid count as null.
func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(c.Value)
}

func (c *Count) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Count{}
		return nil
	}
	var value int
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*c = CountOf(value)
	return nil
}

func (c Count) String() string {
	if !c.Valid {
		return c.raw
	}
	return strconv.Itoa(c.Value)
}

// Layout maps record fields to 0-based cell indexes. A negative index means
// the domain does not store that field.
type Layout struct {
	SignedUpOn int
	Item       int
	Quantity   int
	Count      int
	Name       int
	Phone      int
	Email      int
	Notes      int
	Selection  int
	Scale      int
}

// Row is one decoded sheet row. Index is its 1-based row number in the sheet.
type Row struct {
	Index      int    `json:"row"`
	SignedUpOn string `json:"signedUpOn,omitempty"`
	Item       string `json:"item"`
	Quantity   string `json:"quantity,omitempty"`
	Count      Count  `json:"itemCount"`
	Name       string `json:"name,omitempty"`
	Phone      string `json:"phoneNumber,omitempty"`
	Email      string `json:"email,omitempty"`
	Notes      string `json:"notes,omitempty"`
	Selection  string `json:"selection,omitempty"`
	Scale      string `json:"scale,omitempty"`

	cells []string
}

// IsSignee reports whether any signer field is filled in.
func (r Row) IsSignee() bool {
	return r.Name != "" || r.Phone != "" || r.Email != ""
}

// Decode maps cells to a Row. Missing cells decode as empty strings. When
// the layout has no count column every row counts as one slot.
func (l Layout) Decode(index int, cells []string) Row {
	row := Row{
		Index:      index,
		SignedUpOn: cellAt(cells, l.SignedUpOn),
		Item:       cellAt(cells, l.Item),
		Quantity:   cellAt(cells, l.Quantity),
		Name:       cellAt(cells, l.Name),
		Phone:      cellAt(cells, l.Phone),
		Email:      cellAt(cells, l.Email),
		Notes:      cellAt(cells, l.Notes),
		Selection:  cellAt(cells, l.Selection),
		Scale:      cellAt(cells, l.Scale),
		cells:      append([]string(nil), cells...),
	}
	if l.Count < 0 {
		row.Count = CountOf(1)
	} else {
		row.Count = ParseCount(cellAt(cells, l.Count))
	}
	return row
}

// Encode writes the row's fields back over its original cells. Cells the
// layout does not know about are preserved; an invalid count keeps its raw
// cell.
func (l Layout) Encode(row Row) []string {
	out := append([]string(nil), row.cells...)
	for len(out) < l.width() {
		out = append(out, "")
	}
	put := func(index int, value string) {
		if index >= 0 {
			out[index] = value
		}
	}
	put(l.SignedUpOn, row.SignedUpOn)
	put(l.Item, row.Item)
	put(l.Quantity, row.Quantity)
	put(l.Name, row.Name)
	put(l.Phone, row.Phone)
	put(l.Email, row.Email)
	put(l.Notes, row.Notes)
	put(l.Selection, row.Selection)
	put(l.Scale, row.Scale)
	if l.Count >= 0 && row.Count.Valid {
		out[l.Count] = row.Count.String()
	}
	return out
}

func (l Layout) width() int {
	width := 0
	for _, index := range []int{l.SignedUpOn, l.Item, l.Quantity, l.Count, l.Name, l.Phone, l.Email, l.Notes, l.Selection, l.Scale} {
		width = max(width, index+1)
	}
	return width
}

func cellAt(cells []string, index int) string {
	if index < 0 || index >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[index])
}
