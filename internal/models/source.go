package models

import "time"

// InboundSource is one lead-entry configuration: requests posted to its
// webhook URL create deals at the configured board/stage.
type InboundSource struct {
	ID           string    `json:"id"`
	OrgID        string    `json:"org_id"`
	Name         string    `json:"name"`
	EntryBoardID string    `json:"entry_board_id"`
	EntryStageID string    `json:"entry_stage_id"`
	Secret       string    `json:"secret,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
