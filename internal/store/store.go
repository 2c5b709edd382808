package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmaas/paddle/internal/engine"
	"github.com/dmaas/paddle/internal/models"
)

// Store implements engine.Store and engine.Loader against PostgreSQL. The
// multi-row mutations (open, close, reversal, revert) run in a single
// transaction so budgets, item state and the session row commit together.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by the given connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const upsertSessionSQL = `
	INSERT INTO sessions (league_id, mode, phase, resume_phase, current_index, deadline, frozen_remaining_ms, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (league_id) DO UPDATE SET
		mode = EXCLUDED.mode,
		phase = EXCLUDED.phase,
		resume_phase = EXCLUDED.resume_phase,
		current_index = EXCLUDED.current_index,
		deadline = EXCLUDED.deadline,
		frozen_remaining_ms = EXCLUDED.frozen_remaining_ms,
		updated_at = EXCLUDED.updated_at`

func (s *Store) SaveSession(ctx context.Context, sess *models.Session) error {
	_, err := s.pool.Exec(ctx, upsertSessionSQL,
		sess.LeagueID, string(sess.Mode), string(sess.Phase), nullString(string(sess.ResumePhase)),
		sess.CurrentIndex, sess.Deadline, sess.FrozenRemaining.Milliseconds(), sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert session: %w", err)
	}
	return nil
}

func (s *Store) SaveItem(ctx context.Context, leagueID uuid.UUID, item *models.Item) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE board_items
		SET owner_id = $1, previous_owner_id = $2, final_price = $3, outcome = $4
		WHERE id = $5 AND league_id = $6`,
		item.OwnerID, item.PreviousOwnerID, item.FinalPrice, string(item.Outcome),
		item.ID, leagueID,
	)
	if err != nil {
		return fmt.Errorf("store: update item: %w", err)
	}
	return nil
}

// OpenAuction inserts the auction row plus any seeded opening bid, and moves
// the session row into the bidding phase in the same transaction.
func (s *Store) OpenAuction(ctx context.Context, a *models.Auction) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO auctions (id, league_id, item_id, mode, base_price, current_price, deadline, status, opened_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			a.ID, a.LeagueID, a.ItemID, string(a.Mode), a.BasePrice, a.CurrentPrice,
			a.Deadline, string(a.Status), a.OpenedAt,
		)
		if err != nil {
			return fmt.Errorf("store: insert auction: %w", err)
		}

		for _, bid := range a.Bids {
			if err := insertBid(ctx, tx, bid); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE sessions SET phase = $1, deadline = $2, updated_at = $3 WHERE league_id = $4`,
			string(models.PhaseAuction), a.Deadline, a.OpenedAt, a.LeagueID,
		)
		if err != nil {
			return fmt.Errorf("store: update session for open auction: %w", err)
		}
		return nil
	})
}

func insertBid(ctx context.Context, tx pgx.Tx, bid models.Bid) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bids (id, auction_id, participant_id, amount, placed_at, winning)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		bid.ID, bid.AuctionID, bid.ParticipantID, bid.Amount, bid.PlacedAt, bid.Winning,
	)
	if err != nil {
		return fmt.Errorf("store: insert bid: %w", err)
	}
	return nil
}

// AppendBid commits a bid and the new current price atomically, demoting the
// previous winning bid.
func (s *Store) AppendBid(ctx context.Context, bid models.Bid, newPrice int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE bids SET winning = FALSE WHERE auction_id = $1 AND winning`, bid.AuctionID)
		if err != nil {
			return fmt.Errorf("store: demote winning bid: %w", err)
		}
		if err := insertBid(ctx, tx, bid); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE auctions SET current_price = $1 WHERE id = $2`, newPrice, bid.AuctionID)
		if err != nil {
			return fmt.Errorf("store: update auction price: %w", err)
		}
		return nil
	})
}

// CommitClose settles an auction: archive the auction, write the item
// outcome, move budgets and put the session into the acknowledgment phase,
// all in one transaction.
func (s *Store) CommitClose(ctx context.Context, p engine.CloseParams) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE auctions SET status = $1, closed_at = $2 WHERE id = $3 AND status = $4`,
			string(models.AuctionStatusClosed), p.ClosedAt, p.Auction.ID, string(models.AuctionStatusOpen),
		)
		if err != nil {
			return fmt.Errorf("store: close auction: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("store: auction %s already closed", p.Auction.ID)
		}

		_, err = tx.Exec(ctx, `
			UPDATE board_items
			SET outcome = $1, final_price = $2,
			    previous_owner_id = CASE WHEN $3::uuid IS NULL THEN previous_owner_id ELSE owner_id END,
			    owner_id = COALESCE($3, owner_id)
			WHERE id = $4`,
			string(p.Outcome), p.FinalPrice, p.NewOwnerID, p.ItemID,
		)
		if err != nil {
			return fmt.Errorf("store: write item outcome: %w", err)
		}

		if p.WinnerID != nil {
			if err := adjustBudget(ctx, tx, *p.WinnerID, -p.WinnerDebit); err != nil {
				return err
			}
		}
		if p.SellerID != nil {
			if err := adjustBudget(ctx, tx, *p.SellerID, p.SellerCredit); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE sessions SET phase = $1, deadline = NULL, updated_at = $2 WHERE league_id = $3`,
			string(models.PhasePendingAck), p.ClosedAt, p.LeagueID,
		)
		if err != nil {
			return fmt.Errorf("store: update session for close: %w", err)
		}
		return nil
	})
}

func adjustBudget(ctx context.Context, tx pgx.Tx, participantID uuid.UUID, delta int64) error {
	_, err := tx.Exec(ctx,
		`UPDATE participants SET budget = budget + $1 WHERE id = $2`, delta, participantID)
	if err != nil {
		return fmt.Errorf("store: adjust budget for %s: %w", participantID, err)
	}
	return nil
}

// ReverseClose undoes a settled auction after an accepted appeal: refund
// budgets, reset the item, truncate the bid log and reopen the auction.
func (s *Store) ReverseClose(ctx context.Context, p engine.ReverseParams) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if p.WinnerID != nil {
			if err := adjustBudget(ctx, tx, *p.WinnerID, p.WinnerRefund); err != nil {
				return err
			}
		}
		if p.SellerID != nil {
			if err := adjustBudget(ctx, tx, *p.SellerID, -p.SellerDebit); err != nil {
				return err
			}
		}

		// Ownership moves back only when the close transferred it; an item
		// that closed unchanged keeps its owner row untouched.
		itemSQL := `
			UPDATE board_items
			SET outcome = $1, final_price = NULL
			WHERE id = $2`
		if p.WinnerID != nil {
			itemSQL = `
			UPDATE board_items
			SET outcome = $1, final_price = NULL, owner_id = previous_owner_id, previous_owner_id = NULL
			WHERE id = $2`
		}
		_, err := tx.Exec(ctx, itemSQL, string(models.OutcomePending), p.ItemID)
		if err != nil {
			return fmt.Errorf("store: reset item: %w", err)
		}

		if p.TruncateAfter == nil {
			_, err = tx.Exec(ctx, `DELETE FROM bids WHERE auction_id = $1`, p.Auction.ID)
		} else {
			_, err = tx.Exec(ctx, `
				DELETE FROM bids
				WHERE auction_id = $1
				  AND placed_at > (SELECT placed_at FROM bids WHERE id = $2)`,
				p.Auction.ID, *p.TruncateAfter,
			)
			if err == nil {
				_, err = tx.Exec(ctx,
					`UPDATE bids SET winning = TRUE WHERE id = $1`, *p.TruncateAfter)
			}
		}
		if err != nil {
			return fmt.Errorf("store: truncate bid log: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE auctions SET status = $1, closed_at = NULL, current_price = $2, deadline = $3
			WHERE id = $4`,
			string(models.AuctionStatusOpen), p.RestoredPrice, p.NewDeadline, p.Auction.ID,
		)
		if err != nil {
			return fmt.Errorf("store: reopen auction: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE sessions SET phase = $1, deadline = NULL, updated_at = NOW() WHERE league_id = $2`,
			string(models.PhaseAwaitingResume), p.LeagueID,
		)
		if err != nil {
			return fmt.Errorf("store: update session for reversal: %w", err)
		}
		return nil
	})
}

func (s *Store) RecordAck(ctx context.Context, auctionID, participantID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO acks (auction_id, participant_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		auctionID, participantID,
	)
	if err != nil {
		return fmt.Errorf("store: record ack: %w", err)
	}
	return nil
}

func (s *Store) RecordAppeal(ctx context.Context, a *models.Appeal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appeals (id, auction_id, submitted_by, reason, status, disputed_bid_id, filed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.AuctionID, a.SubmittedBy, a.Reason, string(a.Status), a.DisputedBidID, a.FiledAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert appeal: %w", err)
	}
	return nil
}

func (s *Store) UpdateAppeal(ctx context.Context, a *models.Appeal) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE appeals SET status = $1, admin_notes = $2, decided_by = $3, decided_at = $4
		WHERE id = $5`,
		string(a.Status), a.AdminNotes, a.DecidedBy, a.DecidedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update appeal: %w", err)
	}
	return nil
}

func (s *Store) RecordAppealAck(ctx context.Context, appealID, participantID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appeal_acks (appeal_id, participant_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		appealID, participantID,
	)
	if err != nil {
		return fmt.Errorf("store: record appeal ack: %w", err)
	}
	return nil
}

// RevertItem undoes a processed item for the go-back correction.
func (s *Store) RevertItem(ctx context.Context, p engine.RevertParams) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if p.WinnerID != nil {
			if err := adjustBudget(ctx, tx, *p.WinnerID, p.WinnerRefund); err != nil {
				return err
			}
		}
		if p.SellerID != nil {
			if err := adjustBudget(ctx, tx, *p.SellerID, -p.SellerDebit); err != nil {
				return err
			}
		}

		// Same ownership rule as ReverseClose: only a reverted transfer
		// rewrites owner_id.
		var err error
		if p.WinnerID != nil {
			_, err = tx.Exec(ctx, `
				UPDATE board_items
				SET outcome = $1, final_price = NULL, owner_id = $2, previous_owner_id = NULL
				WHERE id = $3`,
				string(models.OutcomePending), p.RestoreOwner, p.ItemID,
			)
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE board_items
				SET outcome = $1, final_price = NULL
				WHERE id = $2`,
				string(models.OutcomePending), p.ItemID,
			)
		}
		if err != nil {
			return fmt.Errorf("store: revert item: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE sessions SET phase = $1, current_index = $2, deadline = NULL, updated_at = NOW()
			WHERE league_id = $3`,
			string(models.PhasePreview), p.NewIndex, p.LeagueID,
		)
		if err != nil {
			return fmt.Errorf("store: update session for revert: %w", err)
		}
		return nil
	})
}

// LoadSession returns the persisted session, or nil when none exists yet.
func (s *Store) LoadSession(ctx context.Context, leagueID uuid.UUID) (*models.Session, error) {
	var (
		sess     models.Session
		mode     string
		phase    string
		resume   *string
		frozenMs int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT league_id, mode, phase, resume_phase, current_index, deadline, frozen_remaining_ms, updated_at
		FROM sessions WHERE league_id = $1`,
		leagueID,
	).Scan(&sess.LeagueID, &mode, &phase, &resume, &sess.CurrentIndex, &sess.Deadline, &frozenMs, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load session: %w", err)
	}

	sess.Mode = models.AuctionMode(mode)
	sess.Phase = models.SessionPhase(phase)
	if resume != nil {
		sess.ResumePhase = models.SessionPhase(*resume)
	}
	sess.FrozenRemaining = time.Duration(frozenMs) * time.Millisecond
	return &sess, nil
}

// LoadBoard returns the league's items ordered by board position.
func (s *Store) LoadBoard(ctx context.Context, leagueID uuid.UUID) (*models.Board, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, player_name, owner_id, previous_owner_id, base_price, final_price, outcome
		FROM board_items WHERE league_id = $1 ORDER BY position`,
		leagueID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: load board: %w", err)
	}
	defer rows.Close()

	board := &models.Board{LeagueID: leagueID}
	for rows.Next() {
		var (
			item    models.Item
			outcome string
		)
		if err := rows.Scan(&item.ID, &item.PlayerName, &item.OwnerID, &item.PreviousOwnerID,
			&item.BasePrice, &item.FinalPrice, &outcome); err != nil {
			return nil, fmt.Errorf("store: scan item: %w", err)
		}
		item.Outcome = models.ItemOutcome(outcome)
		board.Items = append(board.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate items: %w", err)
	}
	return board, nil
}

// LoadParticipants returns all participants of a league.
func (s *Store) LoadParticipants(ctx context.Context, leagueID uuid.UUID) ([]models.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, league_id, display_name, budget, is_admin, active, last_seen_at
		FROM participants WHERE league_id = $1`,
		leagueID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: load participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(&p.ID, &p.LeagueID, &p.DisplayName, &p.Budget, &p.IsAdmin, &p.Active, &p.LastSeenAt); err != nil {
			return nil, fmt.Errorf("store: scan participant: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate participants: %w", err)
	}
	return out, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
