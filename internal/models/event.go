package models

import "time"

const EventDealStageChanged = "deal.stage_changed"

// StageChangeEvent is what the pipeline domain reports when a deal moves
// between stages. Labels are resolved by the caller; the dispatcher never
// reaches back into the pipeline store.
type StageChangeEvent struct {
	DealTitle      string    `json:"deal_title"`
	BoardName      string    `json:"board_name"`
	FromStageLabel string    `json:"from_stage_label"`
	ToStageLabel   string    `json:"to_stage_label"`
	ContactName    string    `json:"contact_name"`
	ContactEmail   string    `json:"contact_email"`
	ContactPhone   string    `json:"contact_phone"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// OutboundEvent is the persisted form of an event awaiting delivery.
type OutboundEvent struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	EventType  string    `json:"event_type"`
	Payload    []byte    `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventPayload is the wire format POSTed to outbound endpoints. Field names
// are a published contract; renaming them breaks receivers.
type EventPayload struct {
	EventType  string         `json:"event_type"`
	EventID    string         `json:"event_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Deal       PayloadDeal    `json:"deal"`
	Contact    PayloadContact `json:"contact"`
}

type PayloadDeal struct {
	Title          string `json:"title"`
	BoardName      string `json:"board_name"`
	FromStageLabel string `json:"from_stage_label"`
	ToStageLabel   string `json:"to_stage_label"`
}

type PayloadContact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}
