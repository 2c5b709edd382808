package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmaas/paddle/internal/models"
)

// CloseParams carries the atomic unit of an auction close: budget mutations,
// item outcome and auction archive must commit or roll back together.
type CloseParams struct {
	LeagueID   uuid.UUID
	Auction    *models.Auction
	ItemID     uuid.UUID
	Outcome    models.ItemOutcome
	FinalPrice *int64
	NewOwnerID *uuid.UUID
	// WinnerDebit and SellerCredit are zero when the auction closed with no
	// bids. SellerID is nil in free-agent mode.
	WinnerID     *uuid.UUID
	WinnerDebit  int64
	SellerID     *uuid.UUID
	SellerCredit int64
	ClosedAt     time.Time
}

// ReverseParams undoes a committed close after an accepted appeal, restoring
// budgets and reopening the auction at the pre-disputed-bid price.
type ReverseParams struct {
	LeagueID      uuid.UUID
	Auction       *models.Auction
	ItemID        uuid.UUID
	WinnerID      *uuid.UUID
	WinnerRefund  int64
	SellerID      *uuid.UUID
	SellerDebit   int64
	RestoredPrice int64
	// TruncateAfter is the bid ID the log is cut back to; nil truncates the
	// whole log.
	TruncateAfter *uuid.UUID
	NewDeadline   time.Time
}

// Store is the persistence boundary the engine writes through. Every method
// is expected to execute within a single database transaction; the bid and
// close paths require serializable isolation.
type Store interface {
	SaveSession(ctx context.Context, session *models.Session) error
	SaveItem(ctx context.Context, leagueID uuid.UUID, item *models.Item) error
	OpenAuction(ctx context.Context, auction *models.Auction) error
	AppendBid(ctx context.Context, bid models.Bid, newPrice int64) error
	CommitClose(ctx context.Context, p CloseParams) error
	ReverseClose(ctx context.Context, p ReverseParams) error
	RecordAck(ctx context.Context, auctionID, participantID uuid.UUID) error
	RecordAppeal(ctx context.Context, appeal *models.Appeal) error
	UpdateAppeal(ctx context.Context, appeal *models.Appeal) error
	RecordAppealAck(ctx context.Context, appealID, participantID uuid.UUID) error
	// RevertItem undoes a processed item for the go-back correction: ownership
	// and outcome reset, budgets restored, session cursor rewound.
	RevertItem(ctx context.Context, p RevertParams) error
}

// RevertParams carries the atomic unit of a go-back correction on an
// already-processed item.
type RevertParams struct {
	LeagueID     uuid.UUID
	ItemID       uuid.UUID
	RestoreOwner *uuid.UUID
	// WinnerRefund and SellerDebit are zero when the reverted item closed
	// unchanged.
	WinnerID     *uuid.UUID
	WinnerRefund int64
	SellerID     *uuid.UUID
	SellerDebit  int64
	NewIndex     int
}

// Loader hydrates an engine for a league: seeded board, participants and the
// last persisted session snapshot, if any.
type Loader interface {
	LoadSession(ctx context.Context, leagueID uuid.UUID) (*models.Session, error)
	LoadBoard(ctx context.Context, leagueID uuid.UUID) (*models.Board, error)
	LoadParticipants(ctx context.Context, leagueID uuid.UUID) ([]models.Participant, error)
}

// EventSink receives engine events for best-effort push delivery. Sink
// failures are logged and never fail the command; the poll endpoint is the
// guaranteed fallback.
type EventSink interface {
	Emit(ctx context.Context, leagueID uuid.UUID, eventType string, payload any) error
}
