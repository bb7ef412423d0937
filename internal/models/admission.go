package models

// AdmissionStatus is the closed set of states a user can be in for an event.
type AdmissionStatus string

const (
	AdmissionStatusQueued     AdmissionStatus = "queued"
	AdmissionStatusActive     AdmissionStatus = "active"
	AdmissionStatusNotInQueue AdmissionStatus = "not_in_queue"
)

// QueueCheckResult is the consistent snapshot returned by the atomic
// queue-check script. Position is 1-indexed, -1 when not queued.
type QueueCheckResult struct {
	InQueue     bool
	InActive    bool
	Position    int64
	QueueSize   int64
	ActiveCount int64
	Threshold   int64
}

type EventStats struct {
	EventID     string `json:"event_id"`
	QueueSize   int64  `json:"queue_size"`
	ActiveCount int64  `json:"active_count"`
	Threshold   int64  `json:"threshold"`
	Available   int64  `json:"available"`
}

// EventInfo is display metadata owned by the event service.
type EventInfo struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}
