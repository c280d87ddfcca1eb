// Package transaction holds the status model shared by the car wash, sim
// racing, and parking service lines. Each line supplies its own transition
// table; the legality rules and the rollback window live here.
package transaction

import "time"

// Status is a transaction's position in its service line's lifecycle. The
// string values are the venue's operator-facing labels and are stored as-is.
type Status string

const (
	StatusBooked         Status = "Booked"
	StatusInQueue        Status = "In Queue"
	StatusReadyForPickup Status = "Ready for Pickup"
	StatusActive         Status = "Active"
	StatusParked         Status = "Parked"
	StatusCompleted      Status = "Completed"
	StatusCancelled      Status = "Cancelled"
)

// PaymentStatus tracks settlement independently from service progress.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentPaid      PaymentStatus = "Paid"
	PaymentCancelled PaymentStatus = "Cancelled"
)

// Terminal reports whether no further forward transition exists.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Table is the set of allowed forward transitions for one service line.
type Table map[Status][]Status

// Allowed reports whether from→to is a legal forward transition.
func (t Table) Allowed(from, to Status) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether the status may move to Cancelled.
func (t Table) Cancellable(from Status) bool {
	return t.Allowed(from, StatusCancelled)
}

// CarWashTable: Booked → In Queue → Ready for Pickup → Completed, with
// Cancelled reachable from Booked and In Queue.
var CarWashTable = Table{
	StatusBooked:         {StatusInQueue, StatusCancelled},
	StatusInQueue:        {StatusReadyForPickup, StatusCancelled},
	StatusReadyForPickup: {StatusCompleted},
}

// SimRacingTable: Booked → Active → Completed, Cancelled from both.
var SimRacingTable = Table{
	StatusBooked: {StatusActive, StatusCancelled},
	StatusActive: {StatusCompleted, StatusCancelled},
}

// ParkingTable: Parked → Completed, Cancelled from Parked.
var ParkingTable = Table{
	StatusParked: {StatusCompleted, StatusCancelled},
}

// LegalPair reports whether a (status, paymentStatus) combination can be
// observed in a consistent store.
func LegalPair(status Status, payment PaymentStatus) bool {
	switch status {
	case StatusCompleted:
		return payment == PaymentPaid
	case StatusCancelled:
		return payment == PaymentCancelled || payment == PaymentPending
	default:
		return payment == PaymentPending
	}
}

// WithinRollbackWindow reports whether a reversal of the event stamped at
// ref is still permitted at now.
func WithinRollbackWindow(now, ref time.Time, window time.Duration) bool {
	if ref.IsZero() {
		return false
	}
	return now.Sub(ref) <= window
}
