package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// GoogleScopes are the OAuth scopes the Google store needs.
var GoogleScopes = []string{sheets.SpreadsheetsScope, drive.DriveReadonlyScope}

// GoogleHTTPClient builds an authorized client from service account
// credentials.
func GoogleHTTPClient(ctx context.Context, credentialsJSON []byte, scopes ...string) (*http.Client, error) {
	conf, err := google.JWTConfigFromJSON(credentialsJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	return conf.Client(ctx), nil
}

// GoogleStore serves spreadsheets from Google Drive and Sheets.
type GoogleStore struct {
	sheets *sheets.Service
	drive  *drive.Service
}

func NewGoogleStore(ctx context.Context, opts ...option.ClientOption) (*GoogleStore, error) {
	sheetsService, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	driveService, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive client: %w", err)
	}
	return &GoogleStore{sheets: sheetsService, drive: driveService}, nil
}

func (s *GoogleStore) ListDocuments(ctx context.Context) ([]Document, error) {
	var docs []Document
	call := s.drive.Files.List().
		Q(fmt.Sprintf("mimeType='%s' and trashed=false", spreadsheetMimeType)).
		Fields("nextPageToken", "files(id, name)").
		PageSize(100)
	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, file := range page.Files {
			docs = append(docs, Document{ID: file.Id, Name: file.Name})
		}
		return nil
	})
	if err != nil {
		return nil, googleError("list documents", err)
	}
	return docs, nil
}

func (s *GoogleStore) GetSpreadsheet(ctx context.Context, documentID string) (Spreadsheet, error) {
	resp, err := s.sheets.Spreadsheets.Get(documentID).
		Fields("spreadsheetId", "properties.title", "sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return Spreadsheet{}, googleError("get spreadsheet", err)
	}
	out := Spreadsheet{ID: resp.SpreadsheetId}
	if resp.Properties != nil {
		out.Title = resp.Properties.Title
	}
	for _, sheet := range resp.Sheets {
		if sheet.Properties == nil {
			continue
		}
		out.Sheets = append(out.Sheets, Sheet{Handle: sheet.Properties.SheetId, Title: sheet.Properties.Title})
	}
	return out, nil
}

func (s *GoogleStore) ReadRange(ctx context.Context, documentID string, r Range) ([][]string, error) {
	resp, err := s.sheets.Spreadsheets.Values.Get(documentID, r.String()).Context(ctx).Do()
	if err != nil {
		return nil, googleError("read range", err)
	}
	rows := make([][]string, len(resp.Values))
	for i, values := range resp.Values {
		row := make([]string, len(values))
		for j, value := range values {
			row[j] = fmt.Sprint(value)
		}
		rows[i] = row
	}
	return rows, nil
}

func (s *GoogleStore) AppendRow(ctx context.Context, documentID, sheetTitle string, cells []string) error {
	_, err := s.sheets.Spreadsheets.Values.Append(documentID, QuoteSheet(sheetTitle), valueRange(cells)).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return googleError("append row", err)
}

func (s *GoogleStore) UpdateRange(ctx context.Context, documentID string, r Range, cells []string) error {
	_, err := s.sheets.Spreadsheets.Values.Update(documentID, r.String(), valueRange(cells)).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return googleError("update range", err)
}

func (s *GoogleStore) DeleteRows(ctx context.Context, documentID string, handle int64, start, end int) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    handle,
					Dimension:  "ROWS",
					StartIndex: int64(start),
					EndIndex:   int64(end),
					// zero is a valid sheet id and row index
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	_, err := s.sheets.Spreadsheets.BatchUpdate(documentID, req).Context(ctx).Do()
	return googleError("delete rows", err)
}

func valueRange(cells []string) *sheets.ValueRange {
	values := make([]interface{}, len(cells))
	for i, cell := range cells {
		values[i] = cell
	}
	return &sheets.ValueRange{Values: [][]interface{}{values}}
}

func googleError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return upstream(op, err)
}
