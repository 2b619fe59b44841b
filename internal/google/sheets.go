package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"barangay/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const timestampLayout = "2006-01-02 15:04:05"

var requestHeaders = []interface{}{
	"ID", "Item ID", "Item", "Quantity", "Borrow Date", "Return Date", "Status",
	"User ID", "Borrower", "Contact", "Purpose", "Created At", "Updated At",
}

// ErrRowNotFound is returned when a request has no row in the sheet yet.
var ErrRowNotFound = errors.New("request row not found")

// SheetsService mirrors borrow requests into one sheet, one row per request.
// Column A holds the request id; row positions are cached by id.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

// NewSheetsService authenticates with a service-account key file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newSheetsService(srv, spreadsheetID, sheetName), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID, sheetName string) *SheetsService {
	if sheetName == "" {
		sheetName = "Requests"
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowCache:      make(map[int64]int),
	}
}

func (s *SheetsService) rng(format string, args ...interface{}) string {
	return s.sheetName + "!" + fmt.Sprintf(format, args...)
}

func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the address the spreadsheet must be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}
	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// WarmUpCache rebuilds the row index from the id column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[int64]int)
	for i, row := range resp.Values {
		if id, ok := cellID(row); ok {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func cellID(row []interface{}) (int64, bool) {
	if len(row) == 0 {
		return 0, false
	}
	switch v := row[0].(type) {
	case float64:
		return int64(v), v > 0
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		return id, err == nil && id > 0
	}
	return 0, false
}

// FindRequestRow returns the 1-based sheet row of a request.
func (s *SheetsService) FindRequestRow(ctx context.Context, requestID int64) (int, error) {
	if requestID == 0 {
		return 0, errors.New("request id is required")
	}
	if row, ok := s.getCachedRow(requestID); ok {
		return row, nil
	}
	if err := s.WarmUpCache(ctx); err != nil {
		return 0, err
	}
	if row, ok := s.getCachedRow(requestID); ok {
		return row, nil
	}
	return 0, ErrRowNotFound
}

var updatedRangeRow = regexp.MustCompile(`![A-Z]+(\d+)`)

func (s *SheetsService) appendRequest(ctx context.Context, r *models.BorrowRequest) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{requestRowValues(r)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if m := updatedRangeRow.FindStringSubmatch(resp.Updates.UpdatedRange); m != nil {
			if row, err := strconv.Atoi(m[1]); err == nil {
				s.setCachedRow(r.ID, row)
			}
		}
	}
	return nil
}

// UpsertRequest rewrites the request's row, appending it when missing.
func (s *SheetsService) UpsertRequest(ctx context.Context, r *models.BorrowRequest) error {
	if r == nil {
		return errors.New("request is nil")
	}

	row, err := s.FindRequestRow(ctx, r.ID)
	if errors.Is(err, ErrRowNotFound) {
		return s.appendRequest(ctx, r)
	}
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A%d:M%d", row, row), &sheets.ValueRange{
		Values: [][]interface{}{requestRowValues(r)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// UpdateRequestStatus touches only the status and updated-at cells.
func (s *SheetsService) UpdateRequestStatus(ctx context.Context, requestID int64, status string) error {
	row, err := s.FindRequestRow(ctx, requestID)
	if err != nil {
		return err
	}

	data := []*sheets.ValueRange{
		{Range: s.rng("G%d", row), Values: [][]interface{}{{status}}},
		{Range: s.rng("M%d", row), Values: [][]interface{}{{time.Now().UTC().Format(timestampLayout)}}},
	}
	_, err = s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	return err
}

// ReplaceRequests clears the sheet and writes a header plus every request.
func (s *SheetsService) ReplaceRequests(ctx context.Context, requests []*models.BorrowRequest) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rng("A:M"), &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear sheet: %w", err)
	}

	values := [][]interface{}{requestHeaders}
	cache := make(map[int64]int, len(requests))
	for i, r := range requests {
		values = append(values, requestRowValues(r))
		cache[r.ID] = i + 2
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1"), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write sheet: %w", err)
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func requestRowValues(r *models.BorrowRequest) []interface{} {
	return []interface{}{
		r.ID,
		r.ItemID,
		r.ItemName,
		r.Quantity,
		models.FormatDate(r.BorrowDate),
		models.FormatDate(r.ReturnDate),
		r.Status,
		r.UserID,
		r.BorrowerName,
		r.ContactNumber,
		r.Purpose,
		r.CreatedAt.UTC().Format(timestampLayout),
		r.UpdatedAt.UTC().Format(timestampLayout),
	}
}
