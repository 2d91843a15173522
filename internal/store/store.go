package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/match"
	"github.com/JeremyGnt/serenio-sub002/internal/models"
)

type CreateInterventionInput struct {
	RequestID    string
	ServiceKind  string
	ContactEmail string
	ContactPhone string
	Latitude     *float64
	Longitude    *float64
	Address      string
	Diagnostic   string
	ClientID     string
	CreatedAt    time.Time
}

type AcceptInput struct {
	RequestID      string
	InterventionID string
	ArtisanID      string
	OccurredAt     time.Time
}

// ActionInput drives the artisan-reported transitions (confirm, en_route,
// complete) and decline.
type ActionInput struct {
	RequestID      string
	InterventionID string
	ArtisanID      string
	Reason         string
	OccurredAt     time.Time
}

type CancelInput struct {
	RequestID      string
	InterventionID string
	Actor          string
	Reason         string
	OccurredAt     time.Time
}

type InterventionStore interface {
	CreateIntervention(ctx context.Context, input CreateInterventionInput) (models.Intervention, bool, error)
	GetIntervention(ctx context.Context, interventionID string) (models.Intervention, error)
	GetByTracking(ctx context.Context, trackingNumber string) (models.Intervention, error)
	GetActiveForClient(ctx context.Context, clientID string) (models.Intervention, bool, error)

	// BeginSearch commits pending -> searching with the candidate set in the
	// broadcast payload. Candidates must be non-empty.
	BeginSearch(ctx context.Context, interventionID string, candidates []match.Candidate) (models.Intervention, error)
	Accept(ctx context.Context, input AcceptInput) (models.Intervention, error)
	Confirm(ctx context.Context, input ActionInput) (models.Intervention, error)
	MarkEnRoute(ctx context.Context, input ActionInput) (models.Intervention, error)
	Complete(ctx context.Context, input ActionInput) (models.Intervention, error)
	Cancel(ctx context.Context, input CancelInput) (models.Intervention, error)
	Decline(ctx context.Context, input ActionInput) error
	RecordEscalation(ctx context.Context, interventionID string, candidates []match.Candidate, radiusFactor float64) error

	LinkClient(ctx context.Context, trackingNumber, clientID string) (models.Intervention, bool, error)

	ListStatusEvents(ctx context.Context, interventionID string) ([]StatusEvent, error)
	ListPendingInterventions(ctx context.Context, limit int) ([]models.Intervention, error)
	ListSearchingInterventions(ctx context.Context, limit int) ([]models.Intervention, error)
	ListStalledSearches(ctx context.Context, olderThan time.Duration, limit int) ([]models.Intervention, error)

	ListOpenArtisans(ctx context.Context) ([]models.Artisan, error)
	ListDeclines(ctx context.Context, interventionID string) ([]string, error)
	GetArtisan(ctx context.Context, artisanID string) (models.Artisan, error)
	SetArtisanAvailability(ctx context.Context, artisanID string, available bool) (models.Artisan, error)

	ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]OutboxEvent, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

type Session struct {
	SessionID string
	AccountID string
	Role      string
	ExpiresAt time.Time
}

const (
	RoleClient  = "client"
	RoleArtisan = "artisan"
	RoleAdmin   = "admin"
)

type Notification struct {
	NotificationID string
	Channel        string
	Recipient      string
	Status         string
	Attempts       int
	LastError      string
	CreatedAt      time.Time
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
