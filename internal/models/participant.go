package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant represents a league member taking part in an auction session.
// Budget is mutated only by committed auction outcomes (and their reversals).
type Participant struct {
	ID          uuid.UUID  `json:"id"`
	LeagueID    uuid.UUID  `json:"league_id"`
	DisplayName string     `json:"display_name"`
	Budget      int64      `json:"budget"`
	IsAdmin     bool       `json:"is_admin"`
	Active      bool       `json:"active"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
}

// Connected reports whether the participant has sent a heartbeat recently.
// Advisory only; never gates a state transition.
func (p *Participant) Connected(now time.Time, window time.Duration) bool {
	if p.LastSeenAt == nil {
		return false
	}
	return now.Sub(*p.LastSeenAt) <= window
}
