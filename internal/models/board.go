package models

import (
	"github.com/google/uuid"
)

// ItemOutcome tags the result of a processed board item.
type ItemOutcome string

const (
	OutcomePending     ItemOutcome = "PENDING"
	OutcomeTransferred ItemOutcome = "TRANSFERRED"
	OutcomeUnchanged   ItemOutcome = "UNCHANGED"
)

// Item is a single player slot on the board. OwnerID is nil for free agents.
// PreviousOwnerID records the seller after a transfer so the admin go-back
// correction can restore ownership.
type Item struct {
	ID              uuid.UUID   `json:"id"`
	PlayerName      string      `json:"player_name"`
	OwnerID         *uuid.UUID  `json:"owner_id,omitempty"`
	PreviousOwnerID *uuid.UUID  `json:"previous_owner_id,omitempty"`
	BasePrice       int64       `json:"base_price"`
	FinalPrice      *int64      `json:"final_price,omitempty"`
	Outcome         ItemOutcome `json:"outcome"`
}

// Board is the externally-seeded ordered sequence of items for one session.
// Items before CurrentIndex are processed and immutable; the cursor only
// moves forward except for the admin go-back correction.
type Board struct {
	LeagueID     uuid.UUID `json:"league_id"`
	Items        []Item    `json:"items"`
	CurrentIndex int       `json:"current_index"`
}

// CurrentItem returns the item under the cursor, or nil when the board is
// exhausted.
func (b *Board) CurrentItem() *Item {
	if b.CurrentIndex < 0 || b.CurrentIndex >= len(b.Items) {
		return nil
	}
	return &b.Items[b.CurrentIndex]
}

// Exhausted reports whether every item has been processed.
func (b *Board) Exhausted() bool {
	return b.CurrentIndex >= len(b.Items)
}
