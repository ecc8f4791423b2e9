// Package events provides run lifecycle notifications for a coordinator.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventWorkerSpawned is emitted when a worker has been started
	EventWorkerSpawned EventType = "worker_spawned"
	// EventWorkerReady is emitted when a worker enters the readiness queue
	EventWorkerReady EventType = "worker_ready"
	// EventItemDispatched is emitted when an item has been sent to a worker
	EventItemDispatched EventType = "item_dispatched"
	// EventItemSucceeded is emitted when a success reply has been filed
	EventItemSucceeded EventType = "item_succeeded"
	// EventItemFailed is emitted when a failure reply has been filed
	EventItemFailed EventType = "item_failed"
	// EventStaleWorker is emitted when the dispatcher skips a disconnected identity
	EventStaleWorker EventType = "stale_worker"
	// EventDuplicateReady is emitted when a readiness signal is ignored
	EventDuplicateReady EventType = "duplicate_ready"
	// EventWorkerDisconnected is emitted when a worker connection closes
	EventWorkerDisconnected EventType = "worker_disconnected"
	// EventStateChanged is emitted on every coordinator state transition
	EventStateChanged EventType = "state_changed"
)

// Event represents a single run event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	WorkerID  int       `json:"worker_id,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	ItemID  string `json:"item_id,omitempty"`
	State   string `json:"state,omitempty"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewWorkerEvent creates an event about a worker
func NewWorkerEvent(eventType EventType, runID string, workerID int) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
		WorkerID:  workerID,
	}
}

// NewItemEvent creates an event about a work item
func NewItemEvent(eventType EventType, runID string, workerID int, itemID string) Event {
	e := NewWorkerEvent(eventType, runID, workerID)
	e.Data.ItemID = itemID
	return e
}

// NewItemCompletedEvent creates a success or failure event for a filed reply
func NewItemCompletedEvent(runID string, workerID int, itemID string, latency time.Duration, errMsg string) Event {
	eventType := EventItemSucceeded
	if errMsg != "" {
		eventType = EventItemFailed
	}
	e := NewItemEvent(eventType, runID, workerID, itemID)
	e.Data.Latency = latency.String()
	e.Data.Error = errMsg
	return e
}

// NewWorkerDisconnectedEvent creates a disconnect event
func NewWorkerDisconnectedEvent(runID string, workerID int, err error) Event {
	e := NewWorkerEvent(EventWorkerDisconnected, runID, workerID)
	if err != nil {
		e.Data.Error = err.Error()
	}
	return e
}

// NewStateChangedEvent creates a coordinator state transition event
func NewStateChangedEvent(runID string, state string) Event {
	return Event{
		Type:      EventStateChanged,
		Timestamp: time.Now(),
		RunID:     runID,
		Data: EventData{
			State: state,
		},
	}
}
