// Package schedule answers capacity questions over half-open date ranges.
package schedule

import "time"

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) share an instant.
// A range ending on day X does not collide with one starting on day X.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
