package model

import "time"

// ComputerStatus is the occupancy state of a lab computer.
type ComputerStatus string

const (
	ComputerAvailable   ComputerStatus = "available"
	ComputerInUse       ComputerStatus = "in_use"
	ComputerMaintenance ComputerStatus = "maintenance"
)

// Valid reports whether s is one of the known statuses.
func (s ComputerStatus) Valid() bool {
	switch s {
	case ComputerAvailable, ComputerInUse, ComputerMaintenance:
		return true
	}
	return false
}

// Computer represents a shared computer in the lab.
type Computer struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Status      ComputerStatus `json:"status"`
	CurrentUser *string        `json:"current_user"`
	LastUpdated time.Time      `json:"last_updated"`
}
