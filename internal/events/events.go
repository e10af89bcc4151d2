// Package events provides an event system for pool and worker notifications.
package events

import "time"

// EventType represents the type of event
type EventType string

const (
	// EventPoolPaused is emitted when job intake is paused
	EventPoolPaused EventType = "pool_paused"
	// EventPoolResumed is emitted when job intake is resumed
	EventPoolResumed EventType = "pool_resumed"
	// EventPoolAborted is emitted when the pool is aborted
	EventPoolAborted EventType = "pool_aborted"
	// EventPoolShutdown is emitted when a graceful shutdown begins
	EventPoolShutdown EventType = "pool_shutdown"
	// EventPoolStopped is emitted once every worker has terminated
	EventPoolStopped EventType = "pool_stopped"
	// EventWorkerStarted is emitted when a worker goroutine starts
	EventWorkerStarted EventType = "worker_started"
	// EventWorkerStopped is emitted when a worker leaves its loop
	EventWorkerStopped EventType = "worker_stopped"
	// EventJobFailed is emitted when a job returns an error or panics
	EventJobFailed EventType = "job_failed"
	// EventJobAbandoned is emitted when a forceful abort leaves a job unfinished
	EventJobAbandoned EventType = "job_abandoned"
)

// Event represents a pool or worker event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	WorkerID  string    `json:"worker_id,omitempty"`
	Data      EventData `json:"data,omitempty"`
}

// EventData contains event-specific data
type EventData struct {
	Discarded int    `json:"discarded,omitempty"`
	Cleared   bool   `json:"cleared,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewPoolEvent creates an event without worker-specific data
func NewPoolEvent(eventType EventType) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

// NewAbortEvent creates a pool aborted event
func NewAbortEvent(strategy string, cleared bool, discarded int) Event {
	return Event{
		Type:      EventPoolAborted,
		Timestamp: time.Now(),
		Data: EventData{
			Strategy:  strategy,
			Cleared:   cleared,
			Discarded: discarded,
		},
	}
}

// NewWorkerEvent creates a worker lifecycle event
func NewWorkerEvent(eventType EventType, workerID string) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		WorkerID:  workerID,
	}
}

// NewJobFailedEvent creates a job failed event
func NewJobFailedEvent(workerID string, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventJobFailed,
		Timestamp: time.Now(),
		WorkerID:  workerID,
		Data: EventData{
			Error: errMsg,
		},
	}
}
