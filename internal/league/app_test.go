package league

import (
	"testing"

	"github.com/dmaas/paddle/internal/models"
)

func intPtr(i int) *int { return &i }

func validRequest() CreateLeagueRequest {
	return CreateLeagueRequest{
		Name: "Dynasty 2026",
		Mode: models.ModeSteal,
		Participants: []ParticipantRequest{
			{DisplayName: "Commish", Budget: 100, IsAdmin: true},
			{DisplayName: "Rival", Budget: 100},
		},
		Items: []ItemRequest{
			{PlayerName: "J. Chase", OwnerIndex: intPtr(1), BasePrice: 10},
			{PlayerName: "B. Robinson", BasePrice: 5},
		},
	}
}

func TestValidateCreateLeagueRequest(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateLeagueRequest)
		wantErr bool
	}{
		{
			name:   "valid steal league",
			mutate: func(r *CreateLeagueRequest) {},
		},
		{
			name: "valid free agent league",
			mutate: func(r *CreateLeagueRequest) {
				r.Mode = models.ModeFreeAgent
				for i := range r.Items {
					r.Items[i].OwnerIndex = nil
				}
			},
		},
		{
			name:    "missing name",
			mutate:  func(r *CreateLeagueRequest) { r.Name = "" },
			wantErr: true,
		},
		{
			name:    "unknown mode",
			mutate:  func(r *CreateLeagueRequest) { r.Mode = "blind" },
			wantErr: true,
		},
		{
			name:    "single participant",
			mutate:  func(r *CreateLeagueRequest) { r.Participants = r.Participants[:1] },
			wantErr: true,
		},
		{
			name: "no admin",
			mutate: func(r *CreateLeagueRequest) {
				r.Participants[0].IsAdmin = false
			},
			wantErr: true,
		},
		{
			name: "negative budget",
			mutate: func(r *CreateLeagueRequest) {
				r.Participants[1].Budget = -1
			},
			wantErr: true,
		},
		{
			name:    "empty board",
			mutate:  func(r *CreateLeagueRequest) { r.Items = nil },
			wantErr: true,
		},
		{
			name: "negative base price",
			mutate: func(r *CreateLeagueRequest) {
				r.Items[1].BasePrice = -1
			},
			wantErr: true,
		},
		{
			name: "owner index out of range",
			mutate: func(r *CreateLeagueRequest) {
				r.Items[0].OwnerIndex = intPtr(5)
			},
			wantErr: true,
		},
		{
			name: "owner in free agent mode",
			mutate: func(r *CreateLeagueRequest) {
				r.Mode = models.ModeFreeAgent
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := validateCreateLeagueRequest(req)
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
