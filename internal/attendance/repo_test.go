package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterQueryNoDimensions(t *testing.T) {
	query, args := filterQuery(Filter{})

	assert.NotContains(t, query, "WHERE")
	assert.NotContains(t, query, "JOIN")
	assert.Contains(t, query, "ORDER BY a.date DESC, a.student_id ASC")
	assert.Empty(t, args)
}

func TestFilterQueryStudentOnly(t *testing.T) {
	query, args := filterQuery(Filter{StudentID: "s1"})

	assert.Contains(t, query, "a.student_id = $1")
	assert.NotContains(t, query, "JOIN")
	assert.Equal(t, []any{"s1"}, args)
}

func TestFilterQueryClassJoinsRoster(t *testing.T) {
	query, args := filterQuery(Filter{ClassID: "c1"})

	assert.Contains(t, query, "INNER JOIN students s ON s.id = a.student_id")
	assert.Contains(t, query, "s.class_id = $1")
	assert.Equal(t, []any{"c1"}, args)
}

func TestFilterQueryAllDimensions(t *testing.T) {
	start := time.Date(2026, 8, 1, 10, 30, 0, 0, time.UTC)
	end := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	query, args := filterQuery(Filter{StudentID: "s1", ClassID: "c1", StartDate: &start, EndDate: &end})

	assert.Contains(t, query, "a.student_id = $1")
	assert.Contains(t, query, "s.class_id = $2")
	assert.Contains(t, query, "a.date >= $3")
	assert.Contains(t, query, "a.date <= $4")
	require.Len(t, args, 4)
	// Range bounds are truncated to day granularity before hitting the
	// date column.
	assert.Equal(t, DateOf(start), args[2])
}

func TestRecordState(t *testing.T) {
	checkIn := time.Date(2026, 8, 31, 7, 45, 0, 0, time.UTC)
	checkOut := checkIn.Add(6 * time.Hour)

	var absent *Record
	assert.Equal(t, "absent", absent.State())
	assert.Equal(t, "absent", (&Record{}).State())
	assert.Equal(t, StatusPresent, (&Record{CheckInTime: &checkIn}).State())
	assert.Equal(t, StatusCheckedOut, (&Record{CheckInTime: &checkIn, CheckOutTime: &checkOut}).State())
}

func TestDateOf(t *testing.T) {
	ts := time.Date(2026, 8, 31, 14, 59, 3, 12, time.UTC)
	day := DateOf(ts)

	assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), day)
	assert.Equal(t, day, DateOf(day))
}
