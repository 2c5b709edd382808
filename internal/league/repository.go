package league

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmaas/paddle/internal/models"
)

// Repository persists leagues, participants and seeded boards.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateLeague inserts the league with its participants and board items in
// one transaction.
func (r *Repository) CreateLeague(ctx context.Context, league League, participants []models.Participant, items []models.Item) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO leagues (id, name, mode) VALUES ($1, $2, $3)`,
		league.ID, league.Name, string(league.Mode),
	)
	if err != nil {
		return fmt.Errorf("insert league: %w", err)
	}

	for _, p := range participants {
		_, err = tx.Exec(ctx, `
			INSERT INTO participants (id, league_id, display_name, budget, is_admin, active)
			VALUES ($1, $2, $3, $4, $5, TRUE)`,
			p.ID, league.ID, p.DisplayName, p.Budget, p.IsAdmin,
		)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}

	for i, item := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO board_items (id, league_id, position, player_name, owner_id, base_price, outcome)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, league.ID, i, item.PlayerName, item.OwnerID, item.BasePrice, string(models.OutcomePending),
		)
		if err != nil {
			return fmt.Errorf("insert board item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetLeague fetches one league by ID, or nil when absent.
func (r *Repository) GetLeague(ctx context.Context, id uuid.UUID) (*League, error) {
	var (
		l    League
		mode string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, mode FROM leagues WHERE id = $1`, id,
	).Scan(&l.ID, &l.Name, &mode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get league: %w", err)
	}
	l.Mode = models.AuctionMode(mode)
	return &l, nil
}

// ListLeagues returns all leagues.
func (r *Repository) ListLeagues(ctx context.Context) ([]League, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, mode FROM leagues ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list leagues: %w", err)
	}
	defer rows.Close()

	var out []League
	for rows.Next() {
		var (
			l    League
			mode string
		)
		if err := rows.Scan(&l.ID, &l.Name, &mode); err != nil {
			return nil, fmt.Errorf("scan league: %w", err)
		}
		l.Mode = models.AuctionMode(mode)
		out = append(out, l)
	}
	return out, rows.Err()
}

// SetParticipantActive flips whether a participant counts toward barriers
// and acknowledgment gates in future occurrences.
func (r *Repository) SetParticipantActive(ctx context.Context, participantID uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE participants SET active = $1 WHERE id = $2`, active, participantID)
	if err != nil {
		return fmt.Errorf("set participant active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %s not found", participantID)
	}
	return nil
}
