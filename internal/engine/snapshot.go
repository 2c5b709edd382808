package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmaas/paddle/internal/models"
)

// ParticipantView is the per-participant slice of a snapshot.
type ParticipantView struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Budget      int64     `json:"budget"`
	IsAdmin     bool      `json:"is_admin"`
	Connected   bool      `json:"connected"`
}

// BarrierView is the public shape of an open ready barrier.
type BarrierView struct {
	Name       string      `json:"name"`
	Seq        int         `json:"seq"`
	Ready      []uuid.UUID `json:"ready"`
	ReadyCount int         `json:"ready_count"`
	Expected   int         `json:"expected"`
	Forced     bool        `json:"forced,omitempty"`
}

// AckView is the public shape of the pending acknowledgment gate.
type AckView struct {
	AuctionID uuid.UUID      `json:"auction_id"`
	Acked     []uuid.UUID    `json:"acked"`
	AckCount  int            `json:"ack_count"`
	Expected  int            `json:"expected"`
	Forced    bool           `json:"forced,omitempty"`
	Appeal    *models.Appeal `json:"appeal,omitempty"`
}

// Snapshot is the complete poll read model for one league: everything a
// client needs to render the board after a reconnect. It is a deep copy and
// safe to serialize outside the engine lock.
type Snapshot struct {
	LeagueID        uuid.UUID           `json:"league_id"`
	Mode            models.AuctionMode  `json:"mode"`
	Phase           models.SessionPhase `json:"phase"`
	CurrentIndex    int                 `json:"current_index"`
	Items           []models.Item       `json:"items"`
	Participants    []ParticipantView   `json:"participants"`
	Barrier         *BarrierView        `json:"barrier,omitempty"`
	Nomination      *models.Nomination  `json:"nomination,omitempty"`
	Auction         *models.Auction     `json:"auction,omitempty"`
	Ack             *AckView            `json:"ack,omitempty"`
	Deadline        *time.Time          `json:"deadline,omitempty"`
	RemainingSec    float64             `json:"remaining_sec,omitempty"`
	FrozenRemaining float64             `json:"frozen_remaining_sec,omitempty"`
	GeneratedAt     time.Time           `json:"generated_at"`
}

// Snapshot captures the engine's current state under the lock.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	s := Snapshot{
		LeagueID:        e.leagueID,
		Mode:            e.mode,
		Phase:           e.phase,
		CurrentIndex:    e.board.CurrentIndex,
		Items:           append([]models.Item(nil), e.board.Items...),
		FrozenRemaining: e.frozenRemaining.Seconds(),
		GeneratedAt:     now,
	}

	for _, p := range e.participants {
		if !p.Active {
			continue
		}
		s.Participants = append(s.Participants, ParticipantView{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Budget:      p.Budget,
			IsAdmin:     p.IsAdmin,
			Connected:   p.Connected(now, e.cfg.HeartbeatWindow),
		})
	}

	if e.barrier != nil {
		bv := &BarrierView{
			Name:       string(e.barrier.Name),
			Seq:        e.barrier.Seq,
			ReadyCount: e.barrier.ReadyCount(),
			Expected:   e.barrier.Expected,
			Forced:     e.barrier.Forced,
		}
		for id := range e.barrier.Ready {
			bv.Ready = append(bv.Ready, id)
		}
		s.Barrier = bv
	}

	if e.nomination != nil {
		n := *e.nomination
		s.Nomination = &n
	}

	if e.auction != nil {
		a := *e.auction
		a.Bids = append([]models.Bid(nil), e.auction.Bids...)
		s.Auction = &a
	}

	if e.ack != nil {
		av := &AckView{
			AuctionID: e.ack.AuctionID,
			AckCount:  len(e.ack.Acked),
			Expected:  e.ack.Expected,
			Forced:    e.ack.Forced,
		}
		for id := range e.ack.Acked {
			av.Acked = append(av.Acked, id)
		}
		if e.ack.Appeal != nil {
			ap := *e.ack.Appeal
			av.Appeal = &ap
		}
		s.Ack = av
	}

	if e.deadline != nil {
		d := *e.deadline
		s.Deadline = &d
		if rem := d.Sub(now); rem > 0 {
			s.RemainingSec = rem.Seconds()
		}
	}
	return s
}
