package league

import (
	"github.com/google/uuid"

	"github.com/dmaas/paddle/internal/models"
)

// League is the container an auction session runs within.
type League struct {
	ID   uuid.UUID          `json:"id"`
	Name string             `json:"name"`
	Mode models.AuctionMode `json:"mode"`
}

// CreateLeagueRequest seeds a league with its participants and board in one
// shot. The board order is fixed at creation time.
type CreateLeagueRequest struct {
	Name         string               `json:"name"`
	Mode         models.AuctionMode   `json:"mode"`
	Participants []ParticipantRequest `json:"participants"`
	Items        []ItemRequest        `json:"items"`
}

// ParticipantRequest describes one league member to create.
type ParticipantRequest struct {
	DisplayName string `json:"display_name"`
	Budget      int64  `json:"budget"`
	IsAdmin     bool   `json:"is_admin"`
}

// ItemRequest describes one board slot to seed. OwnerIndex refers to a
// participant by position in the request; nil means unowned.
type ItemRequest struct {
	PlayerName string `json:"player_name"`
	OwnerIndex *int   `json:"owner_index,omitempty"`
	BasePrice  int64  `json:"base_price"`
}
