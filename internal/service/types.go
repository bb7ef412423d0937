package service

import (
	"github.com/vogiaan1904/ticketbottle-admission/internal/models"
)

type CheckInput struct {
	EventID string `json:"event_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
	// ExternalPosition is a pre-assigned ordinal from an upstream pre-queue.
	// When set it is used as the rank score instead of the enqueue timestamp.
	ExternalPosition *float64 `json:"external_position,omitempty"`
}

// AdmissionView is the full answer to a poll: where the caller stands and how
// they should behave next.
type AdmissionView struct {
	EventID          string                 `json:"event_id"`
	UserID           string                 `json:"user_id"`
	Status           models.AdmissionStatus `json:"status"`
	Position         int64                  `json:"position,omitempty"`
	QueueSize        int64                  `json:"queue_size,omitempty"`
	Ahead            int64                  `json:"ahead,omitempty"`
	Behind           int64                  `json:"behind,omitempty"`
	EstimatedWaitSec int64                  `json:"estimated_wait_sec,omitempty"`
	PollIntervalMs   int64                  `json:"poll_interval_ms,omitempty"`
	EntryToken       string                 `json:"entry_token,omitempty"`
	Event            *models.EventInfo      `json:"event,omitempty"`
}

type WorkerStatus struct {
	IsRunning      bool   `json:"is_running"`
	StartedAt      string `json:"started_at,omitempty"`
	LastPromotedAt string `json:"last_promoted_at,omitempty"`
	TotalAdmitted  int64  `json:"total_admitted"`
	TotalSwept     int64  `json:"total_swept"`
	ErrorCount     int64  `json:"error_count"`
}
