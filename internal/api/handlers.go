package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"barangay/internal/export"
	"barangay/internal/models"
	"barangay/internal/schedule"

	"github.com/go-chi/chi/v5"
)

const (
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	defaultExportDays = 14
)

// requestView renders dates as calendar days rather than timestamps.
type requestView struct {
	ID               int64                    `json:"id"`
	ItemID           int64                    `json:"item_id"`
	ItemName         string                   `json:"item_name"`
	UserID           int64                    `json:"user_id"`
	BorrowerName     string                   `json:"borrower_name"`
	ContactNumber    string                   `json:"contact_number"`
	Purpose          string                   `json:"purpose"`
	Notes            string                   `json:"notes"`
	Quantity         int64                    `json:"quantity"`
	BorrowDate       string                   `json:"borrow_date"`
	ReturnDate       string                   `json:"return_date"`
	Status           string                   `json:"status"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
	Version          int64                    `json:"version"`
	AvailabilityInfo *models.AvailabilityInfo `json:"availability_info,omitempty"`
}

func newRequestView(r *models.BorrowRequest, info *models.AvailabilityInfo) requestView {
	return requestView{
		ID:               r.ID,
		ItemID:           r.ItemID,
		ItemName:         r.ItemName,
		UserID:           r.UserID,
		BorrowerName:     r.BorrowerName,
		ContactNumber:    r.ContactNumber,
		Purpose:          r.Purpose,
		Notes:            r.Notes,
		Quantity:         r.Quantity,
		BorrowDate:       models.FormatDate(r.BorrowDate),
		ReturnDate:       models.FormatDate(r.ReturnDate),
		Status:           r.Status,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		Version:          r.Version,
		AvailabilityInfo: info,
	}
}

func enrichedView(r *models.EnrichedRequest) requestView {
	info := r.AvailabilityInfo
	if info.Conflicts == nil {
		info.Conflicts = []models.Conflict{}
	}
	return newRequestView(r.BorrowRequest, &info)
}

type borrowRequestBody struct {
	ItemID        int64  `json:"item_id"`
	UserID        int64  `json:"user_id"`
	BorrowerName  string `json:"borrower_name"`
	ContactNumber string `json:"contact_number"`
	Purpose       string `json:"purpose"`
	Notes         string `json:"notes"`
	Quantity      int64  `json:"quantity"`
	BorrowDate    string `json:"borrow_date"`
	ReturnDate    string `json:"return_date"`
}

type statusBody struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

// itemBody is shared by create and update; nil fields are left unchanged.
type itemBody struct {
	Name        *string `json:"name"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
	TotalUnits  *int64  `json:"total_units"`
	SortOrder   *int64  `json:"sort_order"`
	IsActive    *bool   `json:"is_active"`
}

func (b itemBody) apply(item *models.Item) {
	if b.Name != nil {
		item.Name = *b.Name
	}
	if b.Category != nil {
		item.Category = *b.Category
	}
	if b.Description != nil {
		item.Description = *b.Description
	}
	if b.TotalUnits != nil {
		item.TotalUnits = *b.TotalUnits
	}
	if b.SortOrder != nil {
		item.SortOrder = *b.SortOrder
	}
	if b.IsActive != nil {
		item.IsActive = *b.IsActive
	}
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.PingContext(ctx); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *HTTPServer) handleListItems(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))

	items, err := s.items.GetItems(r.Context(), includeInactive)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*models.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *HTTPServer) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var body itemBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	item := &models.Item{IsActive: true}
	body.apply(item)
	if err := s.items.CreateItem(r.Context(), item); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item": item})
}

// handleUpdateItem never refuses a stock reduction; it reports the active
// requests left over-committed instead.
func (s *HTTPServer) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body itemBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	item, err := s.items.GetItemByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	body.apply(item)

	over, err := s.items.UpdateItem(r.Context(), item)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	conflicts := make([]models.Conflict, 0, len(over))
	for _, req := range over {
		conflicts = append(conflicts, models.NewConflict(req))
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item, "overcommitted": conflicts})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	start, ok := queryDate(w, q.Get("borrow_date"), "borrow_date")
	if !ok {
		return
	}
	end, ok := queryDate(w, q.Get("return_date"), "return_date")
	if !ok {
		return
	}

	view, err := s.borrow.CheckAvailability(r.Context(), id, start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body borrowRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	start, ok := queryDate(w, body.BorrowDate, "borrow_date")
	if !ok {
		return
	}
	end, ok := queryDate(w, body.ReturnDate, "return_date")
	if !ok {
		return
	}

	request, err := s.borrow.CreateBorrowRequest(r.Context(), models.BorrowInput{
		ItemID:        body.ItemID,
		UserID:        body.UserID,
		BorrowerName:  strings.TrimSpace(body.BorrowerName),
		ContactNumber: strings.TrimSpace(body.ContactNumber),
		Purpose:       strings.TrimSpace(body.Purpose),
		Notes:         strings.TrimSpace(body.Notes),
		Quantity:      body.Quantity,
		BorrowDate:    start,
		ReturnDate:    end,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"request": newRequestView(request, nil)})
}

func (s *HTTPServer) handleListRequests(w http.ResponseWriter, r *http.Request) {
	filter, ok := requestFilter(w, r)
	if !ok {
		return
	}

	requests, err := s.borrow.ListRequests(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if len(requests) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no requests found", Reason: "not_found"})
		return
	}

	views := make([]requestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, enrichedView(req))
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": views})
}

func (s *HTTPServer) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	request, err := s.borrow.GetRequest(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": enrichedView(request)})
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var body statusBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	request, err := s.borrow.TransitionStatus(r.Context(), id, strings.TrimSpace(body.Status), body.Version)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": newRequestView(request, nil)})
}

// handleExport streams an XLSX report. The schedule sheet covers [from, to),
// two weeks from today by default.
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, ok := requestFilter(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	now := s.now().In(s.location)
	from := models.TruncateDate(now)
	if raw := q.Get("from"); raw != "" {
		if from, ok = queryDate(w, raw, "from"); !ok {
			return
		}
	}
	to := from.AddDate(0, 0, defaultExportDays)
	if raw := q.Get("to"); raw != "" {
		if to, ok = queryDate(w, raw, "to"); !ok {
			return
		}
	}
	if !to.After(from) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "to must be after from", Reason: "invalid_range"})
		return
	}

	requests, err := s.borrow.ListRequests(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	ledgers, err := s.borrow.ItemLedgers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if filter.ItemID != 0 {
		ledgers = ledgersForItem(ledgers, filter.ItemID)
	}

	report := export.Report{Requests: requests, Ledgers: ledgers, From: from, To: to}

	var buf bytes.Buffer
	if err := export.Write(&buf, report); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if s.exportDir != "" {
		if path, err := export.Save(s.exportDir, report, now); err != nil {
			s.log.Warn().Err(err).Msg("failed to archive export")
		} else {
			s.log.Info().Str("path", path).Int("requests", len(requests)).Msg("export archived")
		}
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="requests_%s.xlsx"`, now.Format("2006-01-02_15-04-05")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func ledgersForItem(ledgers []*schedule.Ledger, itemID int64) []*schedule.Ledger {
	out := ledgers[:0:0]
	for _, l := range ledgers {
		if l.Item().ID == itemID {
			out = append(out, l)
		}
	}
	return out
}

func requestFilter(w http.ResponseWriter, r *http.Request) (models.RequestFilter, bool) {
	q := r.URL.Query()
	filter := models.RequestFilter{
		Statuses: splitCSV(q.Get("status")),
		Search:   strings.TrimSpace(q.Get("search")),
	}

	var ok bool
	if filter.ItemID, ok = queryID(w, q.Get("item_id"), "item_id"); !ok {
		return filter, false
	}
	if filter.UserID, ok = queryID(w, q.Get("user_id"), "user_id"); !ok {
		return filter, false
	}
	return filter, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// queryID parses an optional positive id; empty means zero.
func queryID(w http.ResponseWriter, raw, name string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryDate(w http.ResponseWriter, raw, name string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		writeError(w, http.StatusBadRequest, name+" is required")
		return time.Time{}, false
	}
	t, err := models.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+" format; expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
