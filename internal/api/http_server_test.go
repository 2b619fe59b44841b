package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"barangay/internal/config"
	"barangay/internal/database"
	"barangay/internal/events"
	"barangay/internal/lock"
	"barangay/internal/models"
	"barangay/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var testNow = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	db     *database.DB
	borrow *service.BorrowService
	items  *service.ItemService
	server *HTTPServer
	ts     *httptest.Server
}

func newTestEnv(t *testing.T, cfg config.APIConfig, exportDir string) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(":memory:", &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := events.NewEventBus()
	borrowCfg := config.BorrowingConfig{MaxAdvanceDays: 365, LockWait: 5 * time.Second}
	borrow := service.NewBorrowService(db, lock.NewMemoryLocker(), bus, nil, nil, borrowCfg, &logger)
	borrow.SetClock(func() time.Time { return testNow })
	items := service.NewItemService(db, bus, &logger)

	server := NewHTTPServer(cfg, borrow, items, db, exportDir, &logger)
	server.now = func() time.Time { return testNow }
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{db: db, borrow: borrow, items: items, server: server, ts: ts}
}

func openConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true, Port: 0},
		Auth:    config.APIAuthConfig{Enabled: false},
	}
}

func (e *testEnv) createItem(t *testing.T, name string, units int64) *models.Item {
	t.Helper()
	item := &models.Item{Name: name, Category: "equipment", TotalUnits: units, IsActive: true}
	if err := e.items.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("create item: %v", err)
	}
	return item
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func borrowBody(itemID, userID, qty int64, from, to string) string {
	return fmt.Sprintf(`{"item_id":%d,"user_id":%d,"borrower_name":"Juan","contact_number":"0917","purpose":"fiesta","quantity":%d,"borrow_date":%q,"return_date":%q}`,
		itemID, userID, qty, from, to)
}

type requestEnvelope struct {
	Request requestView `json:"request"`
}

func (e *testEnv) submit(t *testing.T, itemID, qty int64, from, to string) requestView {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/requests", borrowBody(itemID, 7, qty, from, to))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d", resp.StatusCode)
	}
	var body requestEnvelope
	decodeBody(t, resp, &body)
	return body.Request
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")

	resp := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("x-request-id"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/healthz", http.NoBody)
	req.Header.Set("x-request-id", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("x-request-id"))
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")

	resp := env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.db.Close()
	resp = env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestItems_CreateListUpdate(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")

	resp := env.do(t, http.MethodPost, "/api/v1/items", `{"name":"Monobloc chair","category":"furniture","total_units":5}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		Item models.Item `json:"item"`
	}
	decodeBody(t, resp, &created)
	assert.NotZero(t, created.Item.ID)
	assert.True(t, created.Item.IsActive)

	resp = env.do(t, http.MethodGet, "/api/v1/items", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed struct {
		Items []models.Item `json:"items"`
	}
	decodeBody(t, resp, &listed)
	require.Len(t, listed.Items, 1)
	assert.Equal(t, int64(5), listed.Items[0].TotalUnits)

	env.submit(t, created.Item.ID, 4, "2024-06-01", "2024-06-03")

	resp = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/items/%d", created.Item.ID), `{"total_units":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated struct {
		Item          models.Item       `json:"item"`
		Overcommitted []models.Conflict `json:"overcommitted"`
	}
	decodeBody(t, resp, &updated)
	assert.Equal(t, int64(3), updated.Item.TotalUnits)
	assert.Equal(t, "Monobloc chair", updated.Item.Name)
	require.Len(t, updated.Overcommitted, 1)
	assert.Equal(t, int64(4), updated.Overcommitted[0].Quantity)
}

func TestItems_Errors(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")

	t.Run("EmptyName", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/items", `{"name":"  ","total_units":1}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UnknownField", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/items", `{"name":"Tent","stock":1}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UnknownItem", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/v1/items/999", `{"total_units":1}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("BadID", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/v1/items/abc", `{"total_units":1}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAvailability(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")
	item := env.createItem(t, "Tent", 5)
	env.submit(t, item.ID, 3, "2024-06-01", "2024-06-04")

	resp := env.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/items/%d/availability?borrow_date=2024-06-02&return_date=2024-06-05", item.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body models.Availability
	decodeBody(t, resp, &body)
	assert.Equal(t, item.ID, body.ItemID)
	assert.Equal(t, int64(5), body.Total)
	assert.Equal(t, int64(2), body.Available)
	assert.Equal(t, int64(3), body.Reserved)
	assert.False(t, body.Overcommitted)
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, "2024-06-01", body.Conflicts[0].BorrowDate)
	assert.Equal(t, models.StatusPending, body.Conflicts[0].Status)

	// touching the return date does not overlap
	resp = env.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/items/%d/availability?borrow_date=2024-06-04&return_date=2024-06-05", item.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &body)
	assert.Equal(t, int64(5), body.Available)
	assert.Empty(t, body.Conflicts)
}

func TestAvailability_Errors(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")
	item := env.createItem(t, "Tent", 5)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"MissingDate", fmt.Sprintf("/api/v1/items/%d/availability?borrow_date=2024-06-01", item.ID), http.StatusBadRequest},
		{"InvalidDate", fmt.Sprintf("/api/v1/items/%d/availability?borrow_date=June&return_date=2024-06-02", item.ID), http.StatusBadRequest},
		{"InvalidRange", fmt.Sprintf("/api/v1/items/%d/availability?borrow_date=2024-06-02&return_date=2024-06-02", item.ID), http.StatusBadRequest},
		{"UnknownItem", "/api/v1/items/404/availability?borrow_date=2024-06-01&return_date=2024-06-02", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	t.Run("MethodNotAllowed", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/items/%d/availability", item.ID), "")
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestCreateRequest(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")
	item := env.createItem(t, "Monobloc chair", 5)

	created := env.submit(t, item.ID, 3, "2024-06-01", "2024-06-03")
	assert.NotZero(t, created.ID)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, "2024-06-01", created.BorrowDate)
	assert.Equal(t, "2024-06-03", created.ReturnDate)
	assert.Equal(t, "Monobloc chair", created.ItemName)
	assert.Nil(t, created.AvailabilityInfo)
}

func TestCreateRequest_Rejections(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")
	item := env.createItem(t, "Monobloc chair", 5)
	env.submit(t, item.ID, 3, "2024-06-01", "2024-06-03")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantReason string
	}{
		{"InsufficientCapacity", borrowBody(item.ID, 8, 3, "2024-06-02", "2024-06-04"), http.StatusBadRequest, "insufficient_capacity"},
		{"UnknownItem", borrowBody(999, 8, 1, "2024-06-02", "2024-06-04"), http.StatusNotFound, "not_found"},
		{"InvalidRange", borrowBody(item.ID, 8, 1, "2024-06-04", "2024-06-02"), http.StatusBadRequest, "invalid_range"},
		{"PastDate", borrowBody(item.ID, 8, 1, "2024-05-19", "2024-05-21"), http.StatusBadRequest, "past_date"},
		{"InvalidQuantity", borrowBody(item.ID, 8, 0, "2024-06-02", "2024-06-04"), http.StatusBadRequest, "invalid_quantity"},
		{"TooFar", borrowBody(item.ID, 8, 1, "2025-06-02", "2025-06-04"), http.StatusBadRequest, "date_too_far"},
		{"BadDate", borrowBody(item.ID, 8, 1, "06/02/2024", "2024-06-04"), http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/v1/requests", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body errorResponse
			decodeBody(t, resp, &body)
			assert.Equal(t, tt.wantReason, body.Reason)
			assert.NotEmpty(t, body.Error)
			if tt.wantReason == "insufficient_capacity" {
				require.NotNil(t, body.Available)
				assert.Equal(t, int64(2), *body.Available)
			}
		})
	}

	t.Run("InvalidJSON", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/requests", "invalid json")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCreateRequest_ZeroAvailableIsReported(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")
	item := env.createItem(t, "Sound system", 1)
	env.submit(t, item.ID, 1, "2024-06-01", "2024-06-03")

	resp := env.do(t, http.MethodPost, "/api/v1/requests", borrowBody(item.ID, 8, 1, "2024-06-02", "2024-06-03"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"available":0`)
}

func TestListRequests(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")
	item := env.createItem(t, "Monobloc chair", 5)

	resp := env.do(t, http.MethodGet, "/api/v1/requests", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	first := env.submit(t, item.ID, 3, "2024-06-01", "2024-06-03")
	env.submit(t, item.ID, 2, "2024-06-02", "2024-06-05")

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/requests?item_id=%d", item.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Requests []requestView `json:"requests"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Requests, 2)

	got := body.Requests[0]
	assert.Equal(t, first.ID, got.ID)
	require.NotNil(t, got.AvailabilityInfo)
	assert.Equal(t, int64(3), got.AvailabilityInfo.Available)
	assert.True(t, got.AvailabilityInfo.CanApprove)
	require.Len(t, got.AvailabilityInfo.Conflicts, 1)

	t.Run("Search", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/requests?search=nobody", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/requests?status=bogus", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("InvalidItemID", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/requests?item_id=x", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetRequest(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")
	item := env.createItem(t, "Tent", 2)
	created := env.submit(t, item.ID, 1, "2024-06-01", "2024-06-02")

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/requests/%d", created.ID), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body requestEnvelope
	decodeBody(t, resp, &body)
	assert.Equal(t, created.ID, body.Request.ID)
	require.NotNil(t, body.Request.AvailabilityInfo)
	assert.Equal(t, int64(2), body.Request.AvailabilityInfo.Available)
	assert.NotNil(t, body.Request.AvailabilityInfo.Conflicts)

	resp = env.do(t, http.MethodGet, "/api/v1/requests/999", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/requests/0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")
	item := env.createItem(t, "Monobloc chair", 5)
	created := env.submit(t, item.ID, 3, "2024-06-01", "2024-06-03")
	path := fmt.Sprintf("/api/v1/requests/%d/status", created.ID)

	resp := env.do(t, http.MethodPut, path, fmt.Sprintf(`{"status":"approved","version":%d}`, created.Version))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body requestEnvelope
	decodeBody(t, resp, &body)
	assert.Equal(t, models.StatusApproved, body.Request.Status)
	assert.Greater(t, body.Request.Version, created.Version)

	t.Run("InvalidTransition", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, path, `{"status":"rejected"}`)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		var e errorResponse
		decodeBody(t, resp, &e)
		assert.Equal(t, "invalid_transition", e.Reason)
	})

	t.Run("StaleVersion", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, path, fmt.Sprintf(`{"status":"returned","version":%d}`, created.Version))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		var e errorResponse
		decodeBody(t, resp, &e)
		assert.Equal(t, "concurrent_modification", e.Reason)
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, path, `{"status":"reserved"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UnknownRequest", func(t *testing.T) {
		resp := env.do(t, http.MethodPut, "/api/v1/requests/999/status", `{"status":"approved"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestUpdateStatus_CapacityNoLongerSufficient(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")
	item := env.createItem(t, "Monobloc chair", 5)
	a := env.submit(t, item.ID, 3, "2024-06-01", "2024-06-03")
	env.submit(t, item.ID, 2, "2024-06-01", "2024-06-03")

	resp := env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/items/%d", item.ID), `{"total_units":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/status", a.ID), `{"status":"approved"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var e errorResponse
	decodeBody(t, resp, &e)
	assert.Equal(t, "capacity_no_longer_sufficient", e.Reason)

	// rejecting frees the capacity again
	resp = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/requests/%d/status", a.ID), `{"status":"rejected"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	env := newTestEnv(t, openConfig(), dir)
	item := env.createItem(t, "Monobloc chair", 5)
	env.submit(t, item.ID, 2, "2024-06-01", "2024-06-03")

	resp := env.do(t, http.MethodGet, "/api/v1/requests/export?from=2024-06-01&to=2024-06-05", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "requests_2024-05-20_09-00-00.xlsx")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Requests", "Schedule"}, f.GetSheetList())

	rows, err := f.GetRows("Schedule")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Monobloc chair (5)", "3", "3", "5", "5"}, rows[2])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExport_DefaultWindowUsesBorrowingZone(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")
	env.createItem(t, "Tent", 3)
	loc, err := time.LoadLocation("Asia/Manila")
	require.NoError(t, err)
	env.server.SetLocation(loc)
	// 04:00 on May 21 in Manila
	env.server.now = func() time.Time { return time.Date(2024, 5, 20, 20, 0, 0, 0, time.UTC) }

	resp := env.do(t, http.MethodGet, "/api/v1/requests/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer f.Close()

	title, err := f.GetCellValue("Schedule", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Free units 2024-05-21 to 2024-06-03", title)
}

func TestExport_Errors(t *testing.T) {
	env := newTestEnv(t, openConfig(), "")

	resp := env.do(t, http.MethodGet, "/api/v1/requests/export?from=2024-06-05&to=2024-06-01", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/requests/export?from=soon", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// an empty listing still exports
	resp = env.do(t, http.MethodGet, "/api/v1/requests/export", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	cfg := config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true, Port: 0},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "valid-key", Extra: "valid-extra", Name: "kiosk", Permissions: []string{"read:items"}},
				{Key: "staff-key", Extra: "staff-extra", Name: "staff"},
			},
		},
	}
	env := newTestEnv(t, cfg, "")
	item := env.createItem(t, "Tent", 2)

	call := func(t *testing.T, method, path, key, extra string) int {
		t.Helper()
		req, _ := http.NewRequest(method, env.ts.URL+path, http.NoBody)
		if key != "" {
			req.Header.Set("x-api-key", key)
			req.Header.Set("x-api-extra", extra)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	availability := fmt.Sprintf("/api/v1/items/%d/availability?borrow_date=2024-06-01&return_date=2024-06-02", item.ID)

	assert.Equal(t, http.StatusUnauthorized, call(t, http.MethodGet, "/api/v1/items", "", ""))
	assert.Equal(t, http.StatusUnauthorized, call(t, http.MethodGet, "/api/v1/items", "wrong", "valid-extra"))
	assert.Equal(t, http.StatusUnauthorized, call(t, http.MethodGet, "/api/v1/items", "valid-key", "wrong"))
	assert.Equal(t, http.StatusOK, call(t, http.MethodGet, "/api/v1/items", "valid-key", "valid-extra"))
	assert.Equal(t, http.StatusForbidden, call(t, http.MethodGet, availability, "valid-key", "valid-extra"))
	assert.Equal(t, http.StatusOK, call(t, http.MethodGet, availability, "staff-key", "staff-extra"))
	assert.Equal(t, http.StatusOK, call(t, http.MethodGet, "/healthz", "", ""))
}

func TestRateLimit(t *testing.T) {
	cfg := openConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 1, Burst: 1}
	env := newTestEnv(t, cfg, "")

	resp := env.do(t, http.MethodGet, "/api/v1/items", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/items", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// health checks are not limited
	resp = env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServer_StartStop(t *testing.T) {
	logger := zerolog.New(io.Discard)
	cfg := config.APIConfig{HTTP: config.APIHTTPConfig{Enabled: true, Port: 0}}
	s := NewHTTPServer(cfg, nil, nil, nil, "", &logger)

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-done)
}

func TestSplitCSV(t *testing.T) {
	assert.Nil(t, splitCSV(""))
	assert.Equal(t, []string{"a"}, splitCSV("a"))
	assert.Equal(t, []string{"pending", "approved"}, splitCSV("pending, approved,"))
}
