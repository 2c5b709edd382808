package models

import (
	"time"

	"github.com/google/uuid"
)

// AppealStatus defines the lifecycle of a disputed auction outcome.
type AppealStatus string

const (
	AppealStatusPending     AppealStatus = "PENDING"
	AppealStatusUnderReview AppealStatus = "UNDER_REVIEW"
	AppealStatusAccepted    AppealStatus = "ACCEPTED"
	AppealStatusRejected    AppealStatus = "REJECTED"
)

// Appeal is a participant-raised dispute over a closed auction, adjudicated
// by an admin. It carries its own acknowledgment set for the decision.
type Appeal struct {
	ID            uuid.UUID          `json:"id"`
	AuctionID     uuid.UUID          `json:"auction_id"`
	SubmittedBy   uuid.UUID          `json:"submitted_by"`
	Reason        string             `json:"reason"`
	Status        AppealStatus       `json:"status"`
	AdminNotes    string             `json:"admin_notes,omitempty"`
	DecidedBy     *uuid.UUID         `json:"decided_by,omitempty"`
	DisputedBidID *uuid.UUID         `json:"disputed_bid_id,omitempty"`
	DecisionAcks  map[uuid.UUID]bool `json:"decision_acks"`
	FiledAt       time.Time          `json:"filed_at"`
	DecidedAt     *time.Time         `json:"decided_at,omitempty"`
}

// Acknowledgment tracks which participants have confirmed a closed auction's
// result. While any acknowledgment is outstanding the board may not advance.
// Zero or one appeal may be attached.
type Acknowledgment struct {
	AuctionID uuid.UUID          `json:"auction_id"`
	Acked     map[uuid.UUID]bool `json:"acked"`
	Expected  int                `json:"expected"`
	Forced    bool               `json:"forced"`
	Appeal    *Appeal            `json:"appeal,omitempty"`
}

// NewAcknowledgment creates an empty acknowledgment set for a closed auction.
func NewAcknowledgment(auctionID uuid.UUID, expected int) *Acknowledgment {
	return &Acknowledgment{
		AuctionID: auctionID,
		Acked:     make(map[uuid.UUID]bool),
		Expected:  expected,
	}
}

// Acknowledge records a participant's confirmation. Idempotent; returns
// whether the gate is now satisfied.
func (a *Acknowledgment) Acknowledge(participantID uuid.UUID) bool {
	a.Acked[participantID] = true
	return a.Satisfied()
}

// Satisfied reports whether every expected participant has acknowledged.
func (a *Acknowledgment) Satisfied() bool {
	return a.Forced || len(a.Acked) >= a.Expected
}
