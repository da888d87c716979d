package signup

import (
	"errors"
	"reflect"
	"testing"
)

func serviceSheetRows() [][]string {
	return [][]string{
		{"Date", "2030-01-05"},
		{"Location", "Temple hall"},
		{"Tags", "Youth, Seva", ",FOOD"},
		{"Service Title", "Spring cleaning"},
		{"Description", "Help us", "", "clean the hall"},
		{"#", "Item", "Quantity", "Count"},
		{"", "Mops", "each", "3", "", "", "", ""},
		{"", "Buckets", "each", "0"},
		{"", "Chairs", "each", "lots"},
		{},
		{"Sat, Jan/05/2030", "Soap", "bar", "2", "A", "555", "a@x.com", ""},
		{"Sat, Jan/05/2030", "Soap", "bar", "1", "B", "556", "b@x.com", ""},
	}
}

func TestParseServiceSheet(t *testing.T) {
	sheet, err := Parse(ServiceDomain, serviceSheetRows())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if sheet.Date != "2030-01-05" || sheet.Location != "Temple hall" || sheet.Title != "Spring cleaning" {
		t.Fatalf("Parse() header = %+v", sheet.Header)
	}
	if sheet.Description != "Help us clean the hall" {
		t.Fatalf("Parse() description = %q", sheet.Description)
	}
	if want := []string{"youth", "seva", "food"}; !reflect.DeepEqual(sheet.Tags, want) {
		t.Fatalf("Parse() tags = %#v, want %#v", sheet.Tags, want)
	}
	if len(sheet.Items) != 1 || sheet.Items[0].Item != "Mops" || sheet.Items[0].Index != 7 {
		t.Fatalf("Parse() items = %+v", sheet.Items)
	}
	if len(sheet.Signees) != 2 || sheet.Signees[0].Index != 11 || sheet.Signees[1].Email != "b@x.com" {
		t.Fatalf("Parse() signees = %+v", sheet.Signees)
	}
	if sheet.FirstRow != 7 {
		t.Fatalf("Parse() first row = %d, want 7", sheet.FirstRow)
	}
	if !sheet.HasTag("Seva") || sheet.HasTag("music") {
		t.Fatalf("HasTag() mismatch for tags %#v", sheet.Tags)
	}
}

func TestParseRejectsMalformedSheets(t *testing.T) {
	cases := []struct {
		name   string
		domain Domain
		rows   [][]string
	}{
		{
			name:   "no sentinel",
			domain: ServiceDomain,
			rows:   [][]string{{"date", "x"}, {"location", "y"}, {"title", "t"}, {"description", "d"}},
		},
		{
			name:   "missing title for service",
			domain: ServiceDomain,
			rows:   [][]string{{"date", "x"}, {"location", "y"}, {"description", "d"}, {"#"}},
		},
		{
			name:   "description after sentinel",
			domain: DevotionDomain,
			rows:   [][]string{{"date", "x"}, {"location", "y"}, {"#"}, {"description", "d"}},
		},
		{
			name:   "empty sheet",
			domain: DevotionDomain,
			rows:   nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.domain, tc.rows); !errors.Is(err, ErrMalformedSheet) {
				t.Fatalf("Parse() error = %v, want ErrMalformedSheet", err)
			}
		})
	}
}

func TestParseDevotionDoesNotNeedTitle(t *testing.T) {
	rows := [][]string{
		{"date", "2030-02-01"},
		{"location", "Home of C"},
		{"description", "Monthly bhajans"},
		{"#"},
		{"", "Bhajan"},
		{"", "Bhajan", "C", "Shiva", "C#", "", "", "c@x.com"},
	}
	sheet, err := Parse(DevotionDomain, rows)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(sheet.Items) != 1 || len(sheet.Signees) != 1 {
		t.Fatalf("Parse() items=%d signees=%d", len(sheet.Items), len(sheet.Signees))
	}
	if got := sheet.Signees[0]; got.Selection != "Shiva" || got.Scale != "C#" {
		t.Fatalf("Parse() signee = %+v", got)
	}
}

func TestSentinelBeforeHeaderMakesSheetMalformed(t *testing.T) {
	base := serviceSheetRows()
	if _, err := Parse(ServiceDomain, base); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	for _, header := range []int{0, 1, 3, 4} {
		rows := serviceSheetRows()
		rows[header], rows[5] = rows[5], rows[header]
		if _, err := Parse(ServiceDomain, rows); !errors.Is(err, ErrMalformedSheet) {
			t.Fatalf("swap sentinel with row %d: Parse() error = %v, want ErrMalformedSheet", header, err)
		}
	}
}
