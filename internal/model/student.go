package model

import "time"

// UsageQuota tracks how many calendar days a student may still use a
// computer through direct assignment. A nil quota means tracking is off.
type UsageQuota struct {
	Total           int        `json:"usage_days_total"`
	Remaining       int        `json:"usage_days_remaining"`
	LastDecrementAt *time.Time `json:"usage_last_decrement_at,omitempty"`
}

// Exhausted reports whether no usage days are left.
func (q *UsageQuota) Exhausted() bool {
	return q != nil && q.Remaining <= 0
}

// Student is a person eligible for bookings. A student may exist without
// a linked login account.
type Student struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email"`
	StudentID    string      `json:"student_id"`
	Study        *string     `json:"study,omitempty"`
	Department   *string     `json:"department,omitempty"`
	RegisteredAt *time.Time  `json:"date,omitempty"`
	Active       bool        `json:"active"`
	Quota        *UsageQuota `json:"quota,omitempty"`
	UserID       *int64      `json:"user_id,omitempty"`
}
