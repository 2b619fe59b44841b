package schedule

import (
	"testing"
	"time"

	"barangay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func req(id int64, qty int64, from, to, status string) *models.BorrowRequest {
	return &models.BorrowRequest{
		ID:         id,
		ItemID:     1,
		Quantity:   qty,
		BorrowDate: day(from),
		ReturnDate: day(to),
		Status:     status,
		CreatedAt:  time.Date(2024, 5, 1, 0, 0, int(id), 0, time.UTC),
	}
}

var chairs = models.Item{ID: 1, Name: "Monobloc chairs", TotalUnits: 5, IsActive: true}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name                   string
		aFrom, aTo, bFrom, bTo string
		want                   bool
	}{
		{"disjoint", "2024-06-01", "2024-06-03", "2024-06-05", "2024-06-07", false},
		{"touching", "2024-06-01", "2024-06-03", "2024-06-03", "2024-06-05", false},
		{"touching reversed", "2024-06-03", "2024-06-05", "2024-06-01", "2024-06-03", false},
		{"partial", "2024-06-01", "2024-06-03", "2024-06-02", "2024-06-04", true},
		{"contained", "2024-06-01", "2024-06-10", "2024-06-02", "2024-06-04", true},
		{"identical", "2024-06-01", "2024-06-02", "2024-06-01", "2024-06-02", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Overlaps(day(tt.aFrom), day(tt.aTo), day(tt.bFrom), day(tt.bTo))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Overlaps(day(tt.bFrom), day(tt.bTo), day(tt.aFrom), day(tt.aTo)))
		})
	}
}

func TestLedger_EmptyItemIsFullyAvailable(t *testing.T) {
	l := NewLedger(chairs, nil)
	assert.Equal(t, int64(5), l.Available(day("2024-06-01"), day("2024-06-05"), 0))
	assert.Empty(t, l.Conflicts(day("2024-06-01"), day("2024-06-05"), 0))
}

func TestLedger_ApprovedRequestReducesOverlap(t *testing.T) {
	l := NewLedger(chairs, []*models.BorrowRequest{
		req(1, 3, "2024-06-01", "2024-06-03", models.StatusApproved),
	})
	assert.Equal(t, int64(2), l.Available(day("2024-06-02"), day("2024-06-04"), 0))
	assert.Equal(t, int64(5), l.Available(day("2024-06-03"), day("2024-06-04"), 0))
}

func TestLedger_IgnoresInactiveAndForeignRequests(t *testing.T) {
	foreign := req(4, 5, "2024-06-01", "2024-06-05", models.StatusApproved)
	foreign.ItemID = 2
	l := NewLedger(chairs, []*models.BorrowRequest{
		req(1, 2, "2024-06-01", "2024-06-05", models.StatusRejected),
		req(2, 2, "2024-06-01", "2024-06-05", models.StatusReturned),
		req(3, 1, "2024-06-01", "2024-06-05", models.StatusPending),
		foreign,
	})
	assert.Equal(t, int64(4), l.Available(day("2024-06-01"), day("2024-06-05"), 0))
}

func TestLedger_ExclusionAddsBackOwnQuantity(t *testing.T) {
	r := req(7, 2, "2024-06-01", "2024-06-04", models.StatusPending)
	l := NewLedger(chairs, []*models.BorrowRequest{
		r,
		req(8, 1, "2024-06-02", "2024-06-03", models.StatusApproved),
	})
	without := l.Available(r.BorrowDate, r.ReturnDate, 0)
	with := l.Available(r.BorrowDate, r.ReturnDate, r.ID)
	assert.Equal(t, without+r.Quantity, with)
}

func TestLedger_ClampsAndFlagsOvercommitment(t *testing.T) {
	small := chairs
	small.TotalUnits = 2
	l := NewLedger(small, []*models.BorrowRequest{
		req(1, 2, "2024-06-01", "2024-06-03", models.StatusApproved),
		req(2, 2, "2024-06-02", "2024-06-04", models.StatusPending),
	})
	assert.Equal(t, int64(0), l.Available(day("2024-06-01"), day("2024-06-04"), 0))
	assert.True(t, l.Overcommitted(day("2024-06-01"), day("2024-06-04"), 0))
	assert.False(t, l.Overcommitted(day("2024-06-01"), day("2024-06-04"), 2))
}

func TestLedger_ConflictOrderingIsDeterministic(t *testing.T) {
	a := req(3, 1, "2024-06-02", "2024-06-04", models.StatusPending)
	b := req(1, 1, "2024-06-01", "2024-06-03", models.StatusApproved)
	c := req(2, 1, "2024-06-02", "2024-06-05", models.StatusPending)
	d := req(4, 1, "2024-06-02", "2024-06-05", models.StatusPending)
	d.CreatedAt = c.CreatedAt

	l := NewLedger(chairs, []*models.BorrowRequest{a, d, b, c})
	first := l.Conflicts(day("2024-06-01"), day("2024-06-06"), 0)
	second := l.Conflicts(day("2024-06-01"), day("2024-06-06"), 0)

	require.Len(t, first, 4)
	ids := []int64{first[0].ID, first[1].ID, first[2].ID, first[3].ID}
	assert.Equal(t, []int64{1, 2, 4, 3}, ids)
	assert.Equal(t, first, second)
}

func TestLedger_Info(t *testing.T) {
	mine := req(1, 3, "2024-06-01", "2024-06-04", models.StatusPending)
	other := req(2, 3, "2024-06-02", "2024-06-03", models.StatusApproved)
	l := NewLedger(chairs, []*models.BorrowRequest{mine, other})

	info := l.Info(mine, day("2024-05-20"))
	assert.Equal(t, int64(5), info.Total)
	assert.Equal(t, int64(2), info.Available)
	assert.Equal(t, int64(3), info.Reserved)
	assert.False(t, info.CanApprove)
	assert.False(t, info.Overdue)
	require.Len(t, info.Conflicts, 1)
	assert.Equal(t, int64(2), info.Conflicts[0].RequestID)
	assert.Equal(t, "2024-06-02", info.Conflicts[0].BorrowDate)

	otherInfo := l.Info(other, day("2024-06-10"))
	assert.False(t, otherInfo.CanApprove, "only pending requests can be approved")
	assert.True(t, otherInfo.Overdue)
}
