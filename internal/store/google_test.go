package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"google.golang.org/api/option"
)

func newTestGoogleStore(t *testing.T, handler http.HandlerFunc) *GoogleStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := NewGoogleStore(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewGoogleStore() error = %v", err)
	}
	return s
}

func TestGoogleStoreReadRange(t *testing.T) {
	var gotPath string
	s := newTestGoogleStore(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"'Service-2030-01-05'!5:5","values":[["","Mops","each",3]]}`))
	})

	rows, err := s.ReadRange(context.Background(), "doc-1", RowRange("Service-2030-01-05", 5))
	if err != nil {
		t.Fatalf("ReadRange() error = %v", err)
	}
	if want := [][]string{{"", "Mops", "each", "3"}}; !reflect.DeepEqual(rows, want) {
		t.Fatalf("ReadRange() = %#v, want %#v", rows, want)
	}
	if !strings.Contains(gotPath, "doc-1/values/") {
		t.Fatalf("unexpected request path %q", gotPath)
	}
}

func TestGoogleStoreDeleteRowsSendsZeroIndexes(t *testing.T) {
	var body map[string]any
	s := newTestGoogleStore(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":batchUpdate") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"spreadsheetId":"doc-1"}`))
	})

	if err := s.DeleteRows(context.Background(), "doc-1", 0, 0, 1); err != nil {
		t.Fatalf("DeleteRows() error = %v", err)
	}
	requests, _ := body["requests"].([]any)
	if len(requests) != 1 {
		t.Fatalf("unexpected batch body %#v", body)
	}
	rng := requests[0].(map[string]any)["deleteDimension"].(map[string]any)["range"].(map[string]any)
	for _, key := range []string{"sheetId", "startIndex", "endIndex"} {
		if _, ok := rng[key]; !ok {
			t.Fatalf("range missing %q: %#v", key, rng)
		}
	}
}

func TestGoogleStoreNotFound(t *testing.T) {
	s := newTestGoogleStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
	})
	_, err := s.GetSpreadsheet(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetSpreadsheet() error = %v, want not found", err)
	}
}
