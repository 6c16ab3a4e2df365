package models

import "time"

// InboundRecord is the ledger row for one processed inbound request. Rows
// carrying an ExternalEventID double as the idempotency claim for
// (source_id, external_event_id); rejection rows never claim the key.
type InboundRecord struct {
	ID              string    `json:"id"`
	SourceID        string    `json:"source_id"`
	ExternalEventID string    `json:"external_event_id,omitempty"`
	DealID          string    `json:"deal_id,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	ReceivedAt      time.Time `json:"received_at"`
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryExhausted DeliveryStatus = "exhausted"
)

// OutboundDelivery tracks one event's delivery to one endpoint.
type OutboundDelivery struct {
	ID            string         `json:"id"`
	EventID       string         `json:"event_id"`
	EndpointID    string         `json:"endpoint_id"`
	Status        DeliveryStatus `json:"status"`
	AttemptCount  int            `json:"attempt_count"`
	NextAttemptAt *time.Time     `json:"next_attempt_at,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Attempt is the immutable history row for a single delivery attempt.
type Attempt struct {
	ID            string    `json:"id"`
	DeliveryID    string    `json:"delivery_id"`
	AttemptNumber int       `json:"attempt_number"`
	StatusCode    int       `json:"status_code"`
	ResponseBody  string    `json:"response_body"`
	LatencyMs     int64     `json:"latency_ms"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
