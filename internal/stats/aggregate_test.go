package stats

import (
	"testing"
	"time"

	"callmon-api/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// now is a Thursday; the week window opened the preceding Sunday.
var now = time.Date(2026, time.August, 27, 15, 30, 0, 0, time.UTC)

func call(id string, status domain.CallStatus, at time.Time) domain.Call {
	return domain.Call{
		ID:         id,
		Direction:  domain.DirectionInbound,
		Caller:     "+33611112222",
		Recipient:  "104",
		Status:     status,
		OccurredAt: at,
	}
}

func TestAggregate_WindowBoundaries(t *testing.T) {
	log := []domain.Call{
		// Today.
		call("c1", domain.CallCompleted, now.Add(-2*time.Hour)),
		call("c2", domain.CallMissed, now.Add(-5*time.Hour)),
		call("c3", domain.CallActive, now.Add(-10*time.Minute)),
		// Earlier this week (Tuesday).
		call("c4", domain.CallCompleted, time.Date(2026, time.August, 25, 9, 0, 0, 0, time.UTC)),
		// Sunday 00:00 exactly: inside the week window.
		call("c5", domain.CallMissed, time.Date(2026, time.August, 23, 0, 0, 0, 0, time.UTC)),
		// Saturday before the window: excluded from both.
		call("c6", domain.CallCompleted, time.Date(2026, time.August, 22, 23, 59, 59, 0, time.UTC)),
	}

	s, err := Aggregate(log, now)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeCounts{Total: 3, Missed: 1, Completed: 1}, s.Today)
	assert.Equal(t, domain.OutcomeCounts{Total: 5, Missed: 2, Completed: 2}, s.Week)
}

func TestAggregate_TodayIsSubsetOfWeek(t *testing.T) {
	// Property from the design: today's counts can never exceed the
	// week's for any outcome category.
	logs := [][]domain.Call{
		nil,
		{call("a", domain.CallMissed, now)},
		{
			call("a", domain.CallMissed, now.Add(-time.Hour)),
			call("b", domain.CallCompleted, now.Add(-26*time.Hour)),
			call("c", domain.CallActive, now.Add(-48*time.Hour)),
			call("d", domain.CallCompleted, now.Add(-30*24*time.Hour)),
		},
	}

	for _, log := range logs {
		s, err := Aggregate(log, now)
		require.NoError(t, err)
		assert.LessOrEqual(t, s.Today.Total, s.Week.Total)
		assert.LessOrEqual(t, s.Today.Missed, s.Week.Missed)
		assert.LessOrEqual(t, s.Today.Completed, s.Week.Completed)
	}
}

func TestAggregate_SundayCollapsesWindows(t *testing.T) {
	sunday := time.Date(2026, time.August, 23, 12, 0, 0, 0, time.UTC)
	log := []domain.Call{
		call("a", domain.CallCompleted, sunday.Add(-time.Hour)),
		// Saturday: out of both windows even though less than a day old.
		call("b", domain.CallMissed, sunday.Add(-13*time.Hour)),
	}

	s, err := Aggregate(log, sunday)
	require.NoError(t, err)
	assert.Equal(t, s.Today, s.Week)
	assert.Equal(t, 1, s.Week.Total)
}

func TestAggregate_EmptyLog(t *testing.T) {
	s, err := Aggregate(nil, now)
	require.NoError(t, err)
	assert.Equal(t, domain.CallStatistics{}, s)
}

func TestAggregate_ZeroTimestampIsInvalid(t *testing.T) {
	log := []domain.Call{{ID: "broken", Status: domain.CallActive}}
	_, err := Aggregate(log, now)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAggregate_Deterministic(t *testing.T) {
	log := []domain.Call{
		call("a", domain.CallMissed, now.Add(-time.Hour)),
		call("b", domain.CallCompleted, now.Add(-2*time.Hour)),
	}

	first, err := Aggregate(log, now)
	require.NoError(t, err)
	second, err := Aggregate(log, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
