package models

import (
	"time"

	"github.com/google/uuid"
)

// BarrierName identifies which forward transition a ready barrier gates.
type BarrierName string

const (
	BarrierStart        BarrierName = "start"
	BarrierAuctionStart BarrierName = "auction-start"
	BarrierResumePause  BarrierName = "resume-after-pause"
	BarrierResumeAppeal BarrierName = "resume-after-appeal"
)

// ReadyBarrier is a named synchronization checkpoint. A barrier instance
// gates a single forward transition and is torn down and rebuilt for every
// re-entry; Seq distinguishes instances with the same name.
type ReadyBarrier struct {
	Name      BarrierName        `json:"name"`
	Seq       int                `json:"seq"`
	Ready     map[uuid.UUID]bool `json:"ready"`
	Expected  int                `json:"expected"`
	Forced    bool               `json:"forced"`
	CreatedAt time.Time          `json:"created_at"`
}

// NewReadyBarrier creates a fresh barrier expecting the given participants.
func NewReadyBarrier(name BarrierName, seq int, expected int, createdAt time.Time) *ReadyBarrier {
	return &ReadyBarrier{
		Name:      name,
		Seq:       seq,
		Ready:     make(map[uuid.UUID]bool),
		Expected:  expected,
		CreatedAt: createdAt,
	}
}

// MarkReady records a participant as ready. Idempotent; returns whether the
// barrier is now satisfied.
func (b *ReadyBarrier) MarkReady(participantID uuid.UUID) bool {
	b.Ready[participantID] = true
	return b.Satisfied()
}

// Satisfied reports whether every expected participant has signaled ready.
func (b *ReadyBarrier) Satisfied() bool {
	return b.Forced || len(b.Ready) >= b.Expected
}

// ReadyCount returns the number of participants that have signaled ready.
func (b *ReadyBarrier) ReadyCount() int {
	return len(b.Ready)
}
