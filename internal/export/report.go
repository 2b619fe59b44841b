// Package export renders staff XLSX reports of borrow requests.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"barangay/internal/models"
	"barangay/internal/schedule"

	"github.com/xuri/excelize/v2"
)

const (
	requestsSheet = "Requests"
	scheduleSheet = "Schedule"
)

var requestHeaders = []string{
	"ID", "Item", "Borrower", "Contact", "Purpose", "Quantity", "Borrow Date", "Return Date",
	"Status", "Available", "Reserved", "Can Approve", "Overdue", "Conflicts",
}

// Report is one export: the request listing plus a daily free-units grid
// for [From, To).
type Report struct {
	Requests []*models.EnrichedRequest
	Ledgers  []*schedule.Ledger
	From     time.Time
	To       time.Time
}

type styles struct {
	header   int
	blocked  int
	pending  int
	approved int
	closed   int
	full     int
	free     int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error
	fill := func(color string, bold bool) (int, error) {
		return f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Font:      &excelize.Font{Bold: bold},
			Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		})
	}
	if s.header, err = fill("#DDEBF7", true); err != nil {
		return s, err
	}
	if s.blocked, err = fill("#FFC7CE", false); err != nil {
		return s, err
	}
	if s.pending, err = fill("#FFEB9C", false); err != nil {
		return s, err
	}
	if s.approved, err = fill("#C6EFCE", false); err != nil {
		return s, err
	}
	if s.closed, err = fill("#EDEDED", false); err != nil {
		return s, err
	}
	s.full, s.free = s.blocked, s.approved
	return s, nil
}

// rowStyle colours a request by what staff can do with it.
func (s styles) rowStyle(r *models.EnrichedRequest) int {
	switch {
	case r.Status == models.StatusPending && !r.AvailabilityInfo.CanApprove:
		return s.blocked
	case r.Status == models.StatusPending:
		return s.pending
	case r.Status == models.StatusApproved && r.AvailabilityInfo.Overdue:
		return s.blocked
	case r.Status == models.StatusApproved:
		return s.approved
	default:
		return s.closed
	}
}

// Build assembles the workbook. The caller closes it.
func Build(report Report) (*excelize.File, error) {
	f := excelize.NewFile()
	st, err := newStyles(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating styles: %w", err)
	}

	if err := writeRequests(f, st, report.Requests); err != nil {
		f.Close()
		return nil, err
	}
	if len(report.Ledgers) > 0 && report.To.After(report.From) {
		if err := writeSchedule(f, st, report); err != nil {
			f.Close()
			return nil, err
		}
	}

	if idx, err := f.GetSheetIndex(requestsSheet); err == nil {
		f.SetActiveSheet(idx)
	}
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

func writeRequests(f *excelize.File, st styles, requests []*models.EnrichedRequest) error {
	if _, err := f.NewSheet(requestsSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	for i, h := range requestHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(requestsSheet, cell, h)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(requestHeaders))
	_ = f.SetCellStyle(requestsSheet, "A1", lastCol+"1", st.header)

	for i, r := range requests {
		row := i + 2
		info := r.AvailabilityInfo
		values := []interface{}{
			r.ID,
			r.ItemName,
			r.BorrowerName,
			r.ContactNumber,
			r.Purpose,
			r.Quantity,
			models.FormatDate(r.BorrowDate),
			models.FormatDate(r.ReturnDate),
			r.Status,
			info.Available,
			info.Reserved,
			yesNo(info.CanApprove),
			yesNo(info.Overdue),
			len(info.Conflicts),
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(requestsSheet, start, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", row, err)
		}
		end, _ := excelize.CoordinatesToCellName(len(values), row)
		_ = f.SetCellStyle(requestsSheet, start, end, st.rowStyle(r))
	}

	_ = f.SetColWidth(requestsSheet, "A", "A", 8)
	_ = f.SetColWidth(requestsSheet, "B", "E", 22)
	_ = f.SetColWidth(requestsSheet, "F", lastCol, 13)
	_ = f.SetPanes(requestsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

// writeSchedule lays out one row per item and one column per day with the
// units still free that day.
func writeSchedule(f *excelize.File, st styles, report Report) error {
	if _, err := f.NewSheet(scheduleSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	from, to := models.TruncateDate(report.From), models.TruncateDate(report.To)
	_ = f.SetCellValue(scheduleSheet, "A1", fmt.Sprintf("Free units %s to %s",
		models.FormatDate(from), models.FormatDate(to.AddDate(0, 0, -1))))
	_ = f.SetCellValue(scheduleSheet, "A2", "Item")

	col := 2
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(scheduleSheet, cell, d.Format("Jan 02"))
		col++
	}
	lastCol, _ := excelize.ColumnNumberToName(max(col-1, 1))
	_ = f.MergeCell(scheduleSheet, "A1", lastCol+"1")
	_ = f.SetCellStyle(scheduleSheet, "A1", lastCol+"2", st.header)

	for i, ledger := range report.Ledgers {
		row := i + 3
		item := ledger.Item()
		nameCell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(scheduleSheet, nameCell, fmt.Sprintf("%s (%d)", item.Name, item.TotalUnits))
		_ = f.SetCellStyle(scheduleSheet, nameCell, nameCell, st.header)

		col := 2
		for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
			next := d.AddDate(0, 0, 1)
			cell, _ := excelize.CoordinatesToCellName(col, row)
			free := ledger.Available(d, next, 0)
			_ = f.SetCellValue(scheduleSheet, cell, free)
			if free == 0 || ledger.Overcommitted(d, next, 0) {
				_ = f.SetCellStyle(scheduleSheet, cell, cell, st.full)
			} else if free == item.TotalUnits {
				_ = f.SetCellStyle(scheduleSheet, cell, cell, st.free)
			} else {
				_ = f.SetCellStyle(scheduleSheet, cell, cell, st.pending)
			}
			col++
		}
	}

	_ = f.SetColWidth(scheduleSheet, "A", "A", 28)
	return nil
}

// Write streams the workbook to w.
func Write(w io.Writer, report Report) error {
	f, err := Build(report)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// Save stores the workbook under dir and returns its path.
func Save(dir string, report Report, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := Build(report)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, fmt.Sprintf("requests_%s.xlsx", now.Format("2006-01-02_15-04-05")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return path, nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
