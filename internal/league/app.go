package league

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dmaas/paddle/internal/models"
)

// App handles league setup business logic.
type App struct {
	repo *Repository
}

func NewApp(repo *Repository) *App {
	return &App{repo: repo}
}

// CreateLeague validates and persists a league with its participants and
// seeded board.
func (a *App) CreateLeague(ctx context.Context, req CreateLeagueRequest) (*League, error) {
	if err := validateCreateLeagueRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	league := League{
		ID:   uuid.New(),
		Name: req.Name,
		Mode: req.Mode,
	}

	participants := make([]models.Participant, len(req.Participants))
	for i, pr := range req.Participants {
		participants[i] = models.Participant{
			ID:          uuid.New(),
			LeagueID:    league.ID,
			DisplayName: pr.DisplayName,
			Budget:      pr.Budget,
			IsAdmin:     pr.IsAdmin,
			Active:      true,
		}
	}

	items := make([]models.Item, len(req.Items))
	for i, ir := range req.Items {
		items[i] = models.Item{
			ID:         uuid.New(),
			PlayerName: ir.PlayerName,
			BasePrice:  ir.BasePrice,
			Outcome:    models.OutcomePending,
		}
		if ir.OwnerIndex != nil {
			ownerID := participants[*ir.OwnerIndex].ID
			items[i].OwnerID = &ownerID
		}
	}

	if err := a.repo.CreateLeague(ctx, league, participants, items); err != nil {
		return nil, fmt.Errorf("create league: %w", err)
	}

	log.Info().
		Str("league_id", league.ID.String()).
		Str("name", league.Name).
		Str("mode", string(league.Mode)).
		Int("participants", len(participants)).
		Int("items", len(items)).
		Msg("created league")
	return &league, nil
}

func (a *App) GetLeague(ctx context.Context, id uuid.UUID) (*League, error) {
	return a.repo.GetLeague(ctx, id)
}

func (a *App) ListLeagues(ctx context.Context) ([]League, error) {
	return a.repo.ListLeagues(ctx)
}

func (a *App) SetParticipantActive(ctx context.Context, participantID uuid.UUID, active bool) error {
	return a.repo.SetParticipantActive(ctx, participantID, active)
}

func validateCreateLeagueRequest(req CreateLeagueRequest) error {
	if req.Name == "" {
		return fmt.Errorf("league name is required")
	}
	if req.Mode != models.ModeSteal && req.Mode != models.ModeFreeAgent {
		return fmt.Errorf("unknown mode %q", req.Mode)
	}
	if len(req.Participants) < 2 {
		return fmt.Errorf("a league needs at least two participants")
	}
	admins := 0
	for i, p := range req.Participants {
		if p.DisplayName == "" {
			return fmt.Errorf("participant %d has no display name", i)
		}
		if p.Budget < 0 {
			return fmt.Errorf("participant %d has a negative budget", i)
		}
		if p.IsAdmin {
			admins++
		}
	}
	if admins == 0 {
		return fmt.Errorf("a league needs an admin participant")
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("the board needs at least one item")
	}
	for i, item := range req.Items {
		if item.PlayerName == "" {
			return fmt.Errorf("item %d has no player name", i)
		}
		if item.BasePrice < 0 {
			return fmt.Errorf("item %d has a negative base price", i)
		}
		if item.OwnerIndex != nil {
			if req.Mode == models.ModeFreeAgent {
				return fmt.Errorf("item %d has an owner in free-agent mode", i)
			}
			if *item.OwnerIndex < 0 || *item.OwnerIndex >= len(req.Participants) {
				return fmt.Errorf("item %d owner index out of range", i)
			}
		}
	}
	return nil
}
