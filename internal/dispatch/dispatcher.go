package dispatch

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/match"
	"github.com/JeremyGnt/serenio-sub002/internal/models"
	"github.com/JeremyGnt/serenio-sub002/internal/store"
)

// Store is the slice of the intervention store the dispatcher needs.
type Store interface {
	ListOpenArtisans(ctx context.Context) ([]models.Artisan, error)
	ListDeclines(ctx context.Context, interventionID string) ([]string, error)
	BeginSearch(ctx context.Context, interventionID string, candidates []match.Candidate) (models.Intervention, error)
	ListPendingInterventions(ctx context.Context, limit int) ([]models.Intervention, error)
	ListStalledSearches(ctx context.Context, olderThan time.Duration, limit int) ([]models.Intervention, error)
	RecordEscalation(ctx context.Context, interventionID string, candidates []match.Candidate, radiusFactor float64) error
}

// Dispatcher moves pending interventions into searching and escalates
// searches that have sat unassigned too long.
type Dispatcher struct {
	store Store
}

func New(store Store) *Dispatcher {
	return &Dispatcher{store: store}
}

// TryBeginSearch ranks open artisans around the intervention and commits the
// pending -> searching transition when at least one candidate exists. An
// intervention with no candidates stays pending so the scanner can retry as
// artisans come online.
func (d *Dispatcher) TryBeginSearch(ctx context.Context, intervention models.Intervention) (models.Intervention, bool, error) {
	if intervention.Status != models.StatusPending {
		return intervention, false, nil
	}

	candidates, err := d.rank(ctx, intervention, 1)
	if err != nil {
		return intervention, false, err
	}
	if len(candidates) == 0 {
		return intervention, false, nil
	}

	updated, err := d.store.BeginSearch(ctx, intervention.InterventionID, candidates)
	if err != nil {
		// Lost to a concurrent scanner pass. Not a fault.
		if errors.Is(err, store.ErrInvalidState) {
			return intervention, false, nil
		}
		return intervention, false, err
	}
	return updated, true, nil
}

// ScanPending retries pending interventions, oldest first. Returns how many
// searches were started.
func (d *Dispatcher) ScanPending(ctx context.Context, batch int) (int, error) {
	pending, err := d.store.ListPendingInterventions(ctx, batch)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, intervention := range pending {
		_, ok, err := d.TryBeginSearch(ctx, intervention)
		if err != nil {
			log.Printf("level=warn msg=\"begin search failed\" tracking_number=%s error=%q", intervention.TrackingNumber, err)
			continue
		}
		if ok {
			started++
		}
	}
	return started, nil
}

// EscalateStalled re-ranks stalled searches with a widened radius and records
// the escalation so the broadcaster can re-offer to the wider candidate set.
func (d *Dispatcher) EscalateStalled(ctx context.Context, olderThan time.Duration, batch int, radiusFactor float64) (int, error) {
	if radiusFactor < 1 {
		radiusFactor = 1
	}
	stalled, err := d.store.ListStalledSearches(ctx, olderThan, batch)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, intervention := range stalled {
		candidates, err := d.rank(ctx, intervention, radiusFactor)
		if err != nil {
			log.Printf("level=warn msg=\"escalation ranking failed\" tracking_number=%s error=%q", intervention.TrackingNumber, err)
			continue
		}
		if err := d.store.RecordEscalation(ctx, intervention.InterventionID, candidates, radiusFactor); err != nil {
			log.Printf("level=warn msg=\"record escalation failed\" tracking_number=%s error=%q", intervention.TrackingNumber, err)
			continue
		}
		escalated++
	}
	return escalated, nil
}

func (d *Dispatcher) rank(ctx context.Context, intervention models.Intervention, radiusFactor float64) ([]match.Candidate, error) {
	artisans, err := d.store.ListOpenArtisans(ctx)
	if err != nil {
		return nil, err
	}
	declined, err := d.store.ListDeclines(ctx, intervention.InterventionID)
	if err != nil {
		return nil, err
	}
	declinedSet := make(map[string]bool, len(declined))
	for _, id := range declined {
		declinedSet[id] = true
	}

	return match.Rank(match.Input{
		Latitude:     intervention.Latitude,
		Longitude:    intervention.Longitude,
		Artisans:     artisans,
		Declined:     declinedSet,
		RadiusFactor: radiusFactor,
	}), nil
}
