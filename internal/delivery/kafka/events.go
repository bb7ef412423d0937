package kafka

import "time"

// Events published BY the admission service

type AdmissionEvent struct {
	Action     string    `json:"action"`
	EventID    string    `json:"event_id"`
	UserID     string    `json:"user_id"`
	EntryToken string    `json:"entry_token"`
	Timestamp  time.Time `json:"timestamp"`
}

const AdmissionActionAdmitted = "admitted"

// Events consumed BY the admission service (from the Checkout Service)

type CheckoutCompletedEvent struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	PaymentID string    `json:"payment_id"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckoutFailedEvent struct {
	OrderID      string    `json:"order_id"`
	UserID       string    `json:"user_id"`
	EventID      string    `json:"event_id"`
	Reason       string    `json:"reason"`
	ErrorMessage string    `json:"error_message"`
	Timestamp    time.Time `json:"timestamp"`
}

type CheckoutExpiredEvent struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	ExpiredAt time.Time `json:"expired_at"`
	Timestamp time.Time `json:"timestamp"`
}
