package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// App marshals engine events into outbox rows. It satisfies the engine's
// event sink; delivery to clients happens asynchronously via the listener.
type App struct {
	repo *Repository
}

func NewApp(repo *Repository) *App {
	return &App{repo: repo}
}

func (a *App) Emit(ctx context.Context, leagueID uuid.UUID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return a.repo.Insert(ctx, leagueID, eventType, data)
}
