// Package pipeline is the boundary to the CRM's deal/board domain. The
// webhook layer never touches pipeline persistence directly; it issues
// commands and existence checks through these interfaces.
package pipeline

import "context"

type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
}

// DealCommand asks the pipeline domain to create one deal at a board/stage.
type DealCommand struct {
	OrgID     string  `json:"org_id"`
	BoardID   string  `json:"board_id"`
	StageID   string  `json:"stage_id"`
	Title     string  `json:"title"`
	Value     float64 `json:"value"`
	SourceTag string  `json:"source_tag"`
	Contact   Contact `json:"contact"`
}

type Creator interface {
	CreateDeal(ctx context.Context, cmd DealCommand) (dealID string, err error)
}

type Directory interface {
	// StageExists reports whether the stage exists on the board and both
	// belong to the organization.
	StageExists(ctx context.Context, orgID, boardID, stageID string) (bool, error)
}
