package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists and drains outbox rows.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes one outbox row. The database trigger notifies the listener.
func (r *Repository) Insert(ctx context.Context, leagueID uuid.UUID, eventType string, payload []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO outbox (id, league_id, event_type, payload) VALUES ($1, $2, $3, $4)`,
		uuid.New(), leagueID, eventType, payload,
	)
	if err != nil {
		return fmt.Errorf("insert %s outbox event: %w", eventType, err)
	}
	return nil
}

// FetchUnsent returns the oldest unsent rows up to limit.
func (r *Repository) FetchUnsent(ctx context.Context, limit int32) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, league_id, event_type, payload, created_at
		FROM outbox WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.LeagueID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// FetchByID returns one unsent row by ID.
func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	var e Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, league_id, event_type, payload, created_at
		FROM outbox WHERE id = $1 AND sent_at IS NULL`,
		id,
	).Scan(&e.ID, &e.LeagueID, &e.EventType, &e.Payload, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("outbox event %s not found or already sent", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch outbox event by ID: %w", err)
	}
	return &e, nil
}

// MarkSent stamps a row as relayed.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE outbox SET sent_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event as sent: %w", err)
	}
	return nil
}
