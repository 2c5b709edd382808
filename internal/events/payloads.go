package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type names shared by the engine, outbox relay and gateway.
const (
	TypeSessionStarted      = "SessionStarted"
	TypeSessionPaused       = "SessionPaused"
	TypeSessionResumed      = "SessionResumed"
	TypeSessionCompleted    = "SessionCompleted"
	TypeItemNominated       = "ItemNominated"
	TypeNominationConfirmed = "NominationConfirmed"
	TypeNominationCancelled = "NominationCancelled"
	TypeAuctionOpened       = "AuctionOpened"
	TypeBidAccepted         = "BidAccepted"
	TypeAuctionClosed       = "AuctionClosed"
	TypeReadyChanged        = "ReadyChanged"
	TypeBarrierSatisfied    = "BarrierSatisfied"
	TypeAckRecorded         = "AckRecorded"
	TypeAppealFiled         = "AppealFiled"
	TypeAppealDecided       = "AppealDecided"
	TypeBoardAdvanced       = "BoardAdvanced"
	TypeBoardWentBack       = "BoardWentBack"
)

// SessionStartedPayload is emitted when a league session leaves WAITING.
type SessionStartedPayload struct {
	LeagueID  string    `json:"league_id"`
	Mode      string    `json:"mode"`
	ItemCount int       `json:"item_count"`
	StartedAt time.Time `json:"started_at"`
}

// SessionPausedPayload is emitted when an admin pauses the session.
type SessionPausedPayload struct {
	LeagueID     string    `json:"league_id"`
	PausedBy     string    `json:"paused_by"`
	FrozenPhase  string    `json:"frozen_phase"`
	RemainingSec float64   `json:"remaining_sec"`
	PausedAt     time.Time `json:"paused_at"`
}

// SessionResumedPayload is emitted when the resume barrier is satisfied and
// the frozen timer is re-armed.
type SessionResumedPayload struct {
	LeagueID     string    `json:"league_id"`
	Phase        string    `json:"phase"`
	RemainingSec float64   `json:"remaining_sec"`
	ResumedAt    time.Time `json:"resumed_at"`
}

// SessionCompletedPayload is emitted when the board is exhausted.
type SessionCompletedPayload struct {
	LeagueID       string    `json:"league_id"`
	ItemsProcessed int       `json:"items_processed"`
	CompletedAt    time.Time `json:"completed_at"`
}

// ItemNominatedPayload is emitted when an opening offer is placed.
type ItemNominatedPayload struct {
	LeagueID      string    `json:"league_id"`
	ItemID        string    `json:"item_id"`
	PlayerName    string    `json:"player_name"`
	ParticipantID string    `json:"participant_id"`
	Amount        int64     `json:"amount"`
	OfferedAt     time.Time `json:"offered_at"`
}

// NominationConfirmedPayload is emitted when the nominator locks the offer.
type NominationConfirmedPayload struct {
	LeagueID      string `json:"league_id"`
	ItemID        string `json:"item_id"`
	ParticipantID string `json:"participant_id"`
	Amount        int64  `json:"amount"`
}

// NominationCancelledPayload is emitted when a pending offer is withdrawn.
type NominationCancelledPayload struct {
	LeagueID      string `json:"league_id"`
	ItemID        string `json:"item_id"`
	ParticipantID string `json:"participant_id"`
}

// AuctionOpenedPayload is emitted when the timed bidding window arms.
type AuctionOpenedPayload struct {
	LeagueID     string    `json:"league_id"`
	AuctionID    string    `json:"auction_id"`
	ItemID       string    `json:"item_id"`
	BasePrice    int64     `json:"base_price"`
	CurrentPrice int64     `json:"current_price"`
	Deadline     time.Time `json:"deadline"`
	OpenedAt     time.Time `json:"opened_at"`
}

// BidAcceptedPayload is emitted for every committed bid.
type BidAcceptedPayload struct {
	LeagueID      string    `json:"league_id"`
	AuctionID     string    `json:"auction_id"`
	BidID         string    `json:"bid_id"`
	ParticipantID string    `json:"participant_id"`
	Amount        int64     `json:"amount"`
	PlacedAt      time.Time `json:"placed_at"`
}

// AuctionClosedPayload is emitted exactly once per auction close.
type AuctionClosedPayload struct {
	LeagueID   string    `json:"league_id"`
	AuctionID  string    `json:"auction_id"`
	ItemID     string    `json:"item_id"`
	Outcome    string    `json:"outcome"`
	FinalPrice int64     `json:"final_price"`
	WinnerID   string    `json:"winner_id,omitempty"`
	ClosedBy   string    `json:"closed_by,omitempty"`
	ClosedAt   time.Time `json:"closed_at"`
}

// ReadyChangedPayload is emitted whenever a barrier's ready count changes.
type ReadyChangedPayload struct {
	LeagueID      string `json:"league_id"`
	Barrier       string `json:"barrier"`
	BarrierSeq    int    `json:"barrier_seq"`
	ParticipantID string `json:"participant_id,omitempty"`
	ReadyCount    int    `json:"ready_count"`
	Expected      int    `json:"expected"`
	Forced        bool   `json:"forced,omitempty"`
}

// BarrierSatisfiedPayload is emitted when a barrier releases its transition.
type BarrierSatisfiedPayload struct {
	LeagueID   string `json:"league_id"`
	Barrier    string `json:"barrier"`
	BarrierSeq int    `json:"barrier_seq"`
	NextPhase  string `json:"next_phase"`
}

// AckRecordedPayload is emitted for every recorded acknowledgment.
type AckRecordedPayload struct {
	LeagueID      string `json:"league_id"`
	AuctionID     string `json:"auction_id"`
	ParticipantID string `json:"participant_id,omitempty"`
	AckCount      int    `json:"ack_count"`
	Expected      int    `json:"expected"`
	Forced        bool   `json:"forced,omitempty"`
}

// AppealFiledPayload is emitted when a participant disputes a result.
type AppealFiledPayload struct {
	LeagueID    string    `json:"league_id"`
	AuctionID   string    `json:"auction_id"`
	AppealID    string    `json:"appeal_id"`
	SubmittedBy string    `json:"submitted_by"`
	Reason      string    `json:"reason"`
	FiledAt     time.Time `json:"filed_at"`
}

// AppealDecidedPayload is emitted when the admin rules on an appeal.
type AppealDecidedPayload struct {
	LeagueID  string    `json:"league_id"`
	AuctionID string    `json:"auction_id"`
	AppealID  string    `json:"appeal_id"`
	Decision  string    `json:"decision"`
	DecidedBy string    `json:"decided_by"`
	Notes     string    `json:"notes,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// BoardAdvancedPayload is emitted when the cursor moves to the next item.
type BoardAdvancedPayload struct {
	LeagueID     string `json:"league_id"`
	CurrentIndex int    `json:"current_index"`
	ItemID       string `json:"item_id,omitempty"`
	PlayerName   string `json:"player_name,omitempty"`
	Exhausted    bool   `json:"exhausted"`
}

// BoardWentBackPayload is emitted for the admin go-back correction.
type BoardWentBackPayload struct {
	LeagueID     string `json:"league_id"`
	CurrentIndex int    `json:"current_index"`
	ItemID       string `json:"item_id"`
	ReopenedBy   string `json:"reopened_by"`
}

// Envelope is the wire form published to the event bus and consumed by the
// gateway. Payload holds the JSON-encoded type-specific payload.
type Envelope struct {
	EventID   uuid.UUID       `json:"eventId"`
	EventType string          `json:"eventType"`
	LeagueID  uuid.UUID       `json:"leagueId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}
