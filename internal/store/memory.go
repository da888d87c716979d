package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps documents in process memory. It backs tests and the
// CLI's dry runs.
type MemoryStore struct {
	mu         sync.Mutex
	docs       []*memoryDocument
	nextHandle int64
	calls      map[string]int
}

type memoryDocument struct {
	id     string
	name   string
	sheets []*memorySheet
}

type memorySheet struct {
	handle int64
	title  string
	rows   [][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: map[string]int{}}
}

// AddSheet creates the document if needed and adds (or replaces) a tab.
func (s *MemoryStore) AddSheet(documentID, documentName, sheetTitle string, rows [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.document(documentID)
	if doc == nil {
		doc = &memoryDocument{id: documentID, name: documentName}
		s.docs = append(s.docs, doc)
	}
	for _, sheet := range doc.sheets {
		if sheet.title == sheetTitle {
			sheet.rows = cloneRows(rows)
			return
		}
	}
	doc.sheets = append(doc.sheets, &memorySheet{handle: s.nextHandle, title: sheetTitle, rows: cloneRows(rows)})
	s.nextHandle++
}

// Rows returns a copy of a sheet's cells.
func (s *MemoryStore) Rows(documentID, sheetTitle string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, err := s.sheet(documentID, sheetTitle)
	if err != nil {
		return nil
	}
	return cloneRows(sheet.rows)
}

// Calls reports how many times an operation was invoked.
func (s *MemoryStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *MemoryStore) ListDocuments(ctx context.Context) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["ListDocuments"]++
	out := make([]Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, Document{ID: doc.id, Name: doc.name})
	}
	return out, nil
}

func (s *MemoryStore) GetSpreadsheet(ctx context.Context, documentID string) (Spreadsheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["GetSpreadsheet"]++
	doc := s.document(documentID)
	if doc == nil {
		return Spreadsheet{}, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	out := Spreadsheet{ID: doc.id, Title: doc.name}
	for _, sheet := range doc.sheets {
		out.Sheets = append(out.Sheets, Sheet{Handle: sheet.handle, Title: sheet.title})
	}
	return out, nil
}

func (s *MemoryStore) ReadRange(ctx context.Context, documentID string, r Range) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["ReadRange"]++
	sheet, err := s.sheet(documentID, r.Sheet)
	if err != nil {
		return nil, err
	}
	return r.slice(sheet.rows)
}

func (s *MemoryStore) AppendRow(ctx context.Context, documentID, sheetTitle string, cells []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["AppendRow"]++
	sheet, err := s.sheet(documentID, sheetTitle)
	if err != nil {
		return err
	}
	sheet.rows = append(trimTrailingEmpty(sheet.rows), append([]string(nil), cells...))
	return nil
}

func (s *MemoryStore) UpdateRange(ctx context.Context, documentID string, r Range, cells []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["UpdateRange"]++
	sheet, err := s.sheet(documentID, r.Sheet)
	if err != nil {
		return err
	}
	if r.StartRow < 1 {
		return fmt.Errorf("update %s: start row required", r)
	}
	col, _, err := r.columns()
	if err != nil {
		return err
	}
	for len(sheet.rows) < r.StartRow {
		sheet.rows = append(sheet.rows, nil)
	}
	sheet.rows[r.StartRow-1] = writeCells(sheet.rows[r.StartRow-1], col, cells)
	return nil
}

func (s *MemoryStore) DeleteRows(ctx context.Context, documentID string, handle int64, start, end int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["DeleteRows"]++
	doc := s.document(documentID)
	if doc == nil {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	for _, sheet := range doc.sheets {
		if sheet.handle != handle {
			continue
		}
		if start < 0 || start >= end || start >= len(sheet.rows) {
			return nil
		}
		end = min(end, len(sheet.rows))
		sheet.rows = append(sheet.rows[:start], sheet.rows[end:]...)
		return nil
	}
	return fmt.Errorf("sheet %d: %w", handle, ErrNotFound)
}

func (s *MemoryStore) document(id string) *memoryDocument {
	for _, doc := range s.docs {
		if doc.id == id {
			return doc
		}
	}
	return nil
}

func (s *MemoryStore) sheet(documentID, title string) (*memorySheet, error) {
	doc := s.document(documentID)
	if doc == nil {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	for _, sheet := range doc.sheets {
		if sheet.title == title {
			return sheet, nil
		}
	}
	return nil, fmt.Errorf("sheet %q: %w", title, ErrNotFound)
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
