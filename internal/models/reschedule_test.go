package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func issuedReschedule() WindowReschedule {
	return WindowReschedule{
		LessonProgressID:    1,
		OriginalWindowStart: time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC),
		OriginalWindowEnd:   time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC),
		NewWindowStart:      time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC),
		NewWindowEnd:        time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC),
		NewGraceEnd:         time.Date(2025, 3, 11, 10, 30, 0, 0, time.UTC),
		RescheduledAt:       time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		IsActive:            true,
	}
}

func TestRescheduleIsCurrentlyActive(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	reschedule := issuedReschedule()
	require.True(t, reschedule.IsCurrentlyActive(now))

	superseded := issuedReschedule()
	superseded.IsActive = false
	require.False(t, superseded.IsCurrentlyActive(now))

	// A cancellation stamped for a later instant has not taken effect yet.
	pending := issuedReschedule()
	pending.CancelledAt = timePtr(now.Add(time.Hour))
	require.True(t, pending.IsCurrentlyActive(now))

	elapsed := issuedReschedule()
	elapsed.CancelledAt = timePtr(now.Add(-time.Minute))
	require.False(t, elapsed.IsCurrentlyActive(now))
}

func TestRescheduleCancelStampsInactive(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	reschedule := issuedReschedule()
	reschedule.Cancel(now, "class trip moved")

	require.False(t, reschedule.IsActive)
	require.NotNil(t, reschedule.CancelledAt)
	require.Equal(t, now, *reschedule.CancelledAt)
	require.Equal(t, "class trip moved", reschedule.CancelledReason)
	require.False(t, reschedule.IsCurrentlyActive(now.Add(time.Second)))
}

func TestRescheduleWindowShape(t *testing.T) {
	reschedule := issuedReschedule()

	require.True(t, reschedule.WasIssuedBeforeOriginalStart())
	require.True(t, reschedule.HasOneHourWindow())
	require.Equal(t, 17*time.Hour, reschedule.ShiftFromOriginal())

	late := issuedReschedule()
	late.RescheduledAt = late.OriginalWindowStart.Add(time.Minute)
	require.False(t, late.WasIssuedBeforeOriginalStart())

	stretched := issuedReschedule()
	stretched.NewWindowEnd = stretched.NewWindowStart.Add(2 * time.Hour)
	require.False(t, stretched.HasOneHourWindow())
}
