package model

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingScheduled BookingStatus = "scheduled"
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// IsOpen reports whether the status takes part in overlap checks.
func (s BookingStatus) IsOpen() bool {
	return s == BookingScheduled || s == BookingActive
}

// Booking reserves one computer for one student over [StartTime, EndTime).
type Booking struct {
	ID         int64         `json:"id"`
	ComputerID int64         `json:"computer_id"`
	StudentID  int64         `json:"student_id"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Status     BookingStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Overlaps applies the half-open interval test against [start, end).
// Bookings that only touch at a boundary instant do not overlap.
func (b Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && b.EndTime.After(start)
}
