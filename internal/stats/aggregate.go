// Package stats computes call statistics. Aggregate is a pure function
// of (log, now) so the window arithmetic is unit-testable without any
// network dependency.
package stats

import (
	"fmt"
	"time"

	"callmon-api/internal/domain"
)

// Aggregate recomputes day and week counts over the retained call log.
//
// Window boundaries, in now's location:
//   - today: since local midnight
//   - week: since the most recent Sunday 00:00 (calendar-week
//     semantics; on a Sunday both windows start at the same instant)
//
// A call with a zero timestamp is invalid input: the rest of the core
// guarantees timestamps are always present, so hitting this is a bug
// upstream, not a condition to paper over.
func Aggregate(log []domain.Call, now time.Time) (domain.CallStatistics, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := dayStart.AddDate(0, 0, -int(dayStart.Weekday()))

	var s domain.CallStatistics
	for _, c := range log {
		if c.OccurredAt.IsZero() {
			return domain.CallStatistics{}, fmt.Errorf("%w: call %s has no timestamp", domain.ErrInvalidArgument, c.ID)
		}

		if !c.OccurredAt.Before(weekStart) {
			count(&s.Week, c)
			if !c.OccurredAt.Before(dayStart) {
				count(&s.Today, c)
			}
		}
	}
	return s, nil
}

func count(w *domain.OutcomeCounts, c domain.Call) {
	w.Total++
	switch c.Status {
	case domain.CallMissed:
		w.Missed++
	case domain.CallCompleted:
		w.Completed++
	}
}
