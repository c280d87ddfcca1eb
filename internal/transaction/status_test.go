package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCarWashTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusBooked, StatusInQueue, true},
		{StatusBooked, StatusCancelled, true},
		{StatusInQueue, StatusReadyForPickup, true},
		{StatusInQueue, StatusCancelled, true},
		{StatusReadyForPickup, StatusCompleted, true},
		{StatusReadyForPickup, StatusCancelled, false},
		{StatusBooked, StatusCompleted, false},
		{StatusCompleted, StatusInQueue, false},
		{StatusCancelled, StatusInQueue, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.allowed, CarWashTable.Allowed(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSimRacingTransitions(t *testing.T) {
	assert.True(t, SimRacingTable.Allowed(StatusBooked, StatusActive))
	assert.True(t, SimRacingTable.Allowed(StatusActive, StatusCompleted))
	assert.True(t, SimRacingTable.Cancellable(StatusBooked))
	assert.True(t, SimRacingTable.Cancellable(StatusActive))
	assert.False(t, SimRacingTable.Allowed(StatusBooked, StatusCompleted))
	assert.False(t, SimRacingTable.Cancellable(StatusCompleted))
}

func TestParkingTransitions(t *testing.T) {
	assert.True(t, ParkingTable.Allowed(StatusParked, StatusCompleted))
	assert.True(t, ParkingTable.Cancellable(StatusParked))
	assert.False(t, ParkingTable.Allowed(StatusCompleted, StatusParked))
	assert.False(t, ParkingTable.Cancellable(StatusCancelled))
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusBooked.Terminal())
	assert.False(t, StatusParked.Terminal())
}

func TestLegalPair(t *testing.T) {
	assert.True(t, LegalPair(StatusCompleted, PaymentPaid))
	assert.False(t, LegalPair(StatusCompleted, PaymentPending))
	assert.True(t, LegalPair(StatusInQueue, PaymentPending))
	assert.False(t, LegalPair(StatusInQueue, PaymentPaid))
	assert.True(t, LegalPair(StatusCancelled, PaymentCancelled))
}

func TestWithinRollbackWindow(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	window := 72 * time.Hour

	assert.True(t, WithinRollbackWindow(now, now.Add(-71*time.Hour), window))
	assert.True(t, WithinRollbackWindow(now, now.Add(-72*time.Hour), window))
	assert.False(t, WithinRollbackWindow(now, now.Add(-73*time.Hour), window))
	assert.False(t, WithinRollbackWindow(now, time.Time{}, window))
}

func TestAmountsConsistent(t *testing.T) {
	assert.True(t, AmountsConsistent(700, 100, 600))
	assert.True(t, AmountsConsistent(0, 0, 0))
	// 0.3 - 0.1 is 0.19999999999999998 in float64; still consistent.
	assert.True(t, AmountsConsistent(0.3, 0.1, 0.2))
	assert.False(t, AmountsConsistent(700, 100, 700))
	assert.False(t, AmountsConsistent(0.3, 0.1, 0.21))
}
