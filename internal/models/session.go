package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionPhase defines where a league's auction session sits in the turn
// cycle. The appeal sub-machine phases live in the same enum so that every
// reachable state is a distinct tag rather than a flag combination.
type SessionPhase string

const (
	PhaseWaiting           SessionPhase = "WAITING"
	PhasePreview           SessionPhase = "PREVIEW"
	PhaseReadyCheck        SessionPhase = "READY_CHECK"
	PhaseNomination        SessionPhase = "NOMINATION"
	PhaseAuctionReadyCheck SessionPhase = "AUCTION_READY_CHECK"
	PhaseAuction           SessionPhase = "AUCTION"
	PhasePendingAck        SessionPhase = "PENDING_ACK"
	PhaseAppealReview      SessionPhase = "APPEAL_REVIEW"
	PhaseAwaitingAppealAck SessionPhase = "AWAITING_APPEAL_ACK"
	PhaseAwaitingResume    SessionPhase = "AWAITING_RESUME"
	PhasePaused            SessionPhase = "PAUSED"
	PhaseCompleted         SessionPhase = "COMPLETED"
)

// Nomination is the pending opening offer on the current item during the
// nomination/offering phase.
type Nomination struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	Amount        int64     `json:"amount"`
	OfferedAt     time.Time `json:"offered_at"`
}

// Session is the persisted snapshot of one league's engine state. The live
// auction, barrier and acknowledgment records are persisted separately; the
// session row carries the phase machine and timer bookkeeping.
type Session struct {
	LeagueID        uuid.UUID     `json:"league_id"`
	Mode            AuctionMode   `json:"mode"`
	Phase           SessionPhase  `json:"phase"`
	ResumePhase     SessionPhase  `json:"resume_phase,omitempty"`
	CurrentIndex    int           `json:"current_index"`
	Deadline        *time.Time    `json:"deadline,omitempty"`
	FrozenRemaining time.Duration `json:"frozen_remaining,omitempty"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
