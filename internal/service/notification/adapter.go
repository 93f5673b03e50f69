package notification

import (
	"context"
	"errors"

	"lab-scheduler-api/internal/labtime"
	"lab-scheduler-api/internal/model"
	"lab-scheduler-api/internal/notification"
)

// ErrQueueFull is returned when the hub dropped an event.
var ErrQueueFull = errors.New("notification queue full")

// Broadcaster is the part of notification.Hub the adapter needs.
type Broadcaster interface {
	Broadcast(event notification.Event) bool
}

// HubAdapter turns computer state changes into hub events for the service
// layer.
type HubAdapter struct {
	hub  Broadcaster
	zone *labtime.Zone
}

// NewHubAdapter creates a new hub adapter
func NewHubAdapter(hub Broadcaster, zone *labtime.Zone) *HubAdapter {
	return &HubAdapter{
		hub:  hub,
		zone: zone,
	}
}

// ComputerStatusChanged queues a status update event. It never blocks and
// ignores cancellation, since it runs after the change has been committed.
func (a *HubAdapter) ComputerStatusChanged(_ context.Context, computer model.Computer) error {
	timestamp := computer.LastUpdated
	if timestamp.IsZero() {
		timestamp = a.zone.Now()
	}

	event := notification.Event{
		Type:        notification.EventComputerStatusUpdate,
		ComputerID:  computer.ID,
		Status:      string(computer.Status),
		CurrentUser: computer.CurrentUser,
		Timestamp:   a.zone.ToLocal(timestamp),
	}
	if err := event.Validate(); err != nil {
		return err
	}

	if !a.hub.Broadcast(event) {
		return ErrQueueFull
	}
	return nil
}
