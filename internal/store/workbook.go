package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/xuri/excelize/v2"
)

const workbookExt = ".xlsx"

// WorkbookStore serves a directory of .xlsx files as documents. The file
// name is the document ID.
type WorkbookStore struct {
	dir       string
	mu        sync.Mutex
	lockRetry time.Duration
}

func NewWorkbookStore(dir string) (*WorkbookStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workbook dir: %w", err)
	}
	return &WorkbookStore{dir: dir, lockRetry: 50 * time.Millisecond}, nil
}

func (s *WorkbookStore) ListDocuments(ctx context.Context) ([]Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, upstream("list documents", err)
	}
	var docs []Document
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), workbookExt) || strings.HasPrefix(name, "~$") {
			continue
		}
		docs = append(docs, Document{ID: name, Name: strings.TrimSuffix(name, filepath.Ext(name))})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *WorkbookStore) GetSpreadsheet(ctx context.Context, documentID string) (Spreadsheet, error) {
	var out Spreadsheet
	err := s.withFile(documentID, false, func(f *excelize.File) error {
		out = Spreadsheet{ID: documentID, Title: strings.TrimSuffix(documentID, filepath.Ext(documentID))}
		for _, name := range f.GetSheetList() {
			index, err := f.GetSheetIndex(name)
			if err != nil {
				return err
			}
			out.Sheets = append(out.Sheets, Sheet{Handle: int64(index), Title: name})
		}
		return nil
	})
	return out, upstream("get spreadsheet", err)
}

func (s *WorkbookStore) ReadRange(ctx context.Context, documentID string, r Range) ([][]string, error) {
	var out [][]string
	err := s.withFile(documentID, false, func(f *excelize.File) error {
		rows, err := sheetRows(f, r.Sheet)
		if err != nil {
			return err
		}
		out, err = r.slice(rows)
		return err
	})
	return out, upstream("read range", err)
}

func (s *WorkbookStore) AppendRow(ctx context.Context, documentID, sheetTitle string, cells []string) error {
	err := s.withFile(documentID, true, func(f *excelize.File) error {
		rows, err := sheetRows(f, sheetTitle)
		if err != nil {
			return err
		}
		next := len(trimTrailingEmpty(rows)) + 1
		return setRow(f, sheetTitle, 1, next, cells)
	})
	return upstream("append row", err)
}

func (s *WorkbookStore) UpdateRange(ctx context.Context, documentID string, r Range, cells []string) error {
	err := s.withFile(documentID, true, func(f *excelize.File) error {
		if _, err := sheetRows(f, r.Sheet); err != nil {
			return err
		}
		if r.StartRow < 1 {
			return fmt.Errorf("update %s: start row required", r)
		}
		col, _, err := r.columns()
		if err != nil {
			return err
		}
		return setRow(f, r.Sheet, col+1, r.StartRow, cells)
	})
	return upstream("update range", err)
}

func (s *WorkbookStore) DeleteRows(ctx context.Context, documentID string, handle int64, start, end int) error {
	err := s.withFile(documentID, true, func(f *excelize.File) error {
		name := f.GetSheetName(int(handle))
		if name == "" {
			return fmt.Errorf("sheet %d: %w", handle, ErrNotFound)
		}
		for i := start; i < end; i++ {
			if err := f.RemoveRow(name, start+1); err != nil {
				return err
			}
		}
		return nil
	})
	return upstream("delete rows", err)
}

// Lock takes an exclusive OS file lock on the document until unlock is
// called.
func (s *WorkbookStore) Lock(ctx context.Context, documentID string) (func(), error) {
	path, err := s.path(documentID)
	if err != nil {
		return nil, err
	}
	fl := flock.New(path + ".lock")
	locked, err := fl.TryLockContext(ctx, s.lockRetry)
	if err != nil {
		return nil, upstream("lock", err)
	}
	if !locked {
		return nil, upstream("lock", ctx.Err())
	}
	return func() { _ = fl.Unlock() }, nil
}

func (s *WorkbookStore) path(documentID string) (string, error) {
	if documentID == "" || filepath.Base(documentID) != documentID {
		return "", fmt.Errorf("document %q: %w", documentID, ErrNotFound)
	}
	path := filepath.Join(s.dir, documentID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("document %q: %w", documentID, ErrNotFound)
		}
		return "", err
	}
	return path, nil
}

func (s *WorkbookStore) withFile(documentID string, write bool, fn func(*excelize.File) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, err := s.path(documentID)
	if err != nil {
		return err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return err
	}
	if write {
		return f.Save()
	}
	return nil
}

func sheetRows(f *excelize.File, sheet string) ([][]string, error) {
	if index, err := f.GetSheetIndex(sheet); err != nil || index < 0 {
		return nil, fmt.Errorf("sheet %q: %w", sheet, ErrNotFound)
	}
	return f.GetRows(sheet)
}

func setRow(f *excelize.File, sheet string, col, row int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	values := append([]string(nil), cells...)
	return f.SetSheetRow(sheet, cell, &values)
}
