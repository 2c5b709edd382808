package models

import (
	"time"

	"github.com/google/uuid"
)

// AuctionMode selects the game-mode rules applied on close.
type AuctionMode string

const (
	// ModeSteal auctions items that already belong to a participant; the
	// seller is credited the final price and may not bid on their own item.
	ModeSteal AuctionMode = "STEAL"
	// ModeFreeAgent auctions unowned items; there is no seller credit.
	ModeFreeAgent AuctionMode = "FREE_AGENT"
)

// AuctionStatus defines the lifecycle of a timed auction.
type AuctionStatus string

const (
	AuctionStatusOpen   AuctionStatus = "OPEN"
	AuctionStatusClosed AuctionStatus = "CLOSED"
)

// Bid is one accepted entry in an auction's bid log. Bids are totally
// ordered by commit time; the last entry is the winning bid.
type Bid struct {
	ID            uuid.UUID `json:"id"`
	AuctionID     uuid.UUID `json:"auction_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	Amount        int64     `json:"amount"`
	PlacedAt      time.Time `json:"placed_at"`
	Winning       bool      `json:"winning"`
}

// Auction is the ephemeral timed-bidding window for one board item. Exactly
// one auction may be open per board at a time; it is archived on close.
type Auction struct {
	ID           uuid.UUID     `json:"id"`
	LeagueID     uuid.UUID     `json:"league_id"`
	ItemID       uuid.UUID     `json:"item_id"`
	Mode         AuctionMode   `json:"mode"`
	BasePrice    int64         `json:"base_price"`
	CurrentPrice int64         `json:"current_price"`
	Bids         []Bid         `json:"bids"`
	Deadline     time.Time     `json:"deadline"`
	Status       AuctionStatus `json:"status"`
	OpenedAt     time.Time     `json:"opened_at"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
}

// WinningBid returns the current winning bid, or nil if no bids were placed.
func (a *Auction) WinningBid() *Bid {
	if len(a.Bids) == 0 {
		return nil
	}
	return &a.Bids[len(a.Bids)-1]
}
