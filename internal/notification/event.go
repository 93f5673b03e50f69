package notification

import (
	"fmt"
	"time"
)

// EventComputerStatusUpdate is sent whenever a computer changes status.
const EventComputerStatusUpdate = "computer_status_update"

// Event is the payload pushed to every registered listener.
type Event struct {
	Type        string    `json:"type"`
	ComputerID  int64     `json:"computer_id"`
	Status      string    `json:"status"`
	CurrentUser *string   `json:"current_user"`
	Timestamp   time.Time `json:"timestamp"`
}

// Validate checks if the event is valid
func (e *Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if e.ComputerID <= 0 {
		return fmt.Errorf("event computer_id must be positive")
	}
	if e.Status == "" {
		return fmt.Errorf("event status is required")
	}
	if e.CurrentUser != nil && len(*e.CurrentUser) > 255 {
		return fmt.Errorf("current user too long (max 255 characters)")
	}
	return nil
}
