package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/match"
	"github.com/JeremyGnt/serenio-sub002/internal/models"
	"github.com/JeremyGnt/serenio-sub002/internal/store"
)

type fakeStore struct {
	openArtisansFn func(ctx context.Context) ([]models.Artisan, error)
	declinesFn     func(ctx context.Context, interventionID string) ([]string, error)
	beginSearchFn  func(ctx context.Context, interventionID string, candidates []match.Candidate) (models.Intervention, error)
	pendingFn      func(ctx context.Context, limit int) ([]models.Intervention, error)
	stalledFn      func(ctx context.Context, olderThan time.Duration, limit int) ([]models.Intervention, error)
	escalationFn   func(ctx context.Context, interventionID string, candidates []match.Candidate, radiusFactor float64) error
}

func (f fakeStore) ListOpenArtisans(ctx context.Context) ([]models.Artisan, error) {
	if f.openArtisansFn == nil {
		return nil, nil
	}
	return f.openArtisansFn(ctx)
}

func (f fakeStore) ListDeclines(ctx context.Context, interventionID string) ([]string, error) {
	if f.declinesFn == nil {
		return nil, nil
	}
	return f.declinesFn(ctx, interventionID)
}

func (f fakeStore) BeginSearch(ctx context.Context, interventionID string, candidates []match.Candidate) (models.Intervention, error) {
	if f.beginSearchFn == nil {
		return models.Intervention{}, nil
	}
	return f.beginSearchFn(ctx, interventionID, candidates)
}

func (f fakeStore) ListPendingInterventions(ctx context.Context, limit int) ([]models.Intervention, error) {
	if f.pendingFn == nil {
		return nil, nil
	}
	return f.pendingFn(ctx, limit)
}

func (f fakeStore) ListStalledSearches(ctx context.Context, olderThan time.Duration, limit int) ([]models.Intervention, error) {
	if f.stalledFn == nil {
		return nil, nil
	}
	return f.stalledFn(ctx, olderThan, limit)
}

func (f fakeStore) RecordEscalation(ctx context.Context, interventionID string, candidates []match.Candidate, radiusFactor float64) error {
	if f.escalationFn == nil {
		return nil
	}
	return f.escalationFn(ctx, interventionID, candidates, radiusFactor)
}

func floatPtr(f float64) *float64 { return &f }

func pendingIntervention() models.Intervention {
	return models.Intervention{
		InterventionID: "iv-1",
		TrackingNumber: "LX-AAAAAAAAAAAA",
		Status:         models.StatusPending,
		Latitude:       floatPtr(45.75),
		Longitude:      floatPtr(4.85),
	}
}

func openArtisan(id string, lat, lon, radius float64) models.Artisan {
	return models.Artisan{
		ArtisanID:      id,
		ApprovalStatus: models.ApprovalApproved,
		Available:      true,
		BaseLatitude:   floatPtr(lat),
		BaseLongitude:  floatPtr(lon),
		RadiusKm:       radius,
	}
}

func TestTryBeginSearchStartsWithCandidates(t *testing.T) {
	var gotCandidates []match.Candidate
	st := fakeStore{
		openArtisansFn: func(ctx context.Context) ([]models.Artisan, error) {
			return []models.Artisan{openArtisan("artisan-1", 45.76, 4.86, 10)}, nil
		},
		beginSearchFn: func(ctx context.Context, interventionID string, candidates []match.Candidate) (models.Intervention, error) {
			gotCandidates = candidates
			iv := pendingIntervention()
			iv.Status = models.StatusSearching
			return iv, nil
		},
	}

	updated, started, err := New(st).TryBeginSearch(context.Background(), pendingIntervention())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !started {
		t.Fatal("expected search to start")
	}
	if updated.Status != models.StatusSearching {
		t.Fatalf("expected searching status, got %s", updated.Status)
	}
	if len(gotCandidates) != 1 || gotCandidates[0].ArtisanID != "artisan-1" {
		t.Fatalf("unexpected candidates: %+v", gotCandidates)
	}
}

func TestTryBeginSearchNoCandidatesStaysPending(t *testing.T) {
	st := fakeStore{
		openArtisansFn: func(ctx context.Context) ([]models.Artisan, error) {
			// Nobody in range.
			return []models.Artisan{openArtisan("artisan-1", 48.85, 2.35, 10)}, nil
		},
		beginSearchFn: func(ctx context.Context, interventionID string, candidates []match.Candidate) (models.Intervention, error) {
			t.Fatal("BeginSearch should not be called without candidates")
			return models.Intervention{}, nil
		},
	}

	updated, started, err := New(st).TryBeginSearch(context.Background(), pendingIntervention())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if started {
		t.Fatal("expected search not to start")
	}
	if updated.Status != models.StatusPending {
		t.Fatalf("expected pending status, got %s", updated.Status)
	}
}

func TestTryBeginSearchSkipsNonPending(t *testing.T) {
	st := fakeStore{
		openArtisansFn: func(ctx context.Context) ([]models.Artisan, error) {
			t.Fatal("ranking should not run for non-pending interventions")
			return nil, nil
		},
	}

	iv := pendingIntervention()
	iv.Status = models.StatusSearching
	_, started, err := New(st).TryBeginSearch(context.Background(), iv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if started {
		t.Fatal("expected no-op for searching intervention")
	}
}

func TestTryBeginSearchLostRaceIsBenign(t *testing.T) {
	st := fakeStore{
		openArtisansFn: func(ctx context.Context) ([]models.Artisan, error) {
			return []models.Artisan{openArtisan("artisan-1", 45.76, 4.86, 10)}, nil
		},
		beginSearchFn: func(ctx context.Context, interventionID string, candidates []match.Candidate) (models.Intervention, error) {
			return models.Intervention{}, store.ErrInvalidState
		},
	}

	_, started, err := New(st).TryBeginSearch(context.Background(), pendingIntervention())
	if err != nil {
		t.Fatalf("lost race should not be an error: %v", err)
	}
	if started {
		t.Fatal("expected started=false after lost race")
	}
}

func TestScanPendingCountsStarted(t *testing.T) {
	near := pendingIntervention()
	far := pendingIntervention()
	far.InterventionID = "iv-2"
	far.TrackingNumber = "LX-BBBBBBBBBBBB"
	far.Latitude = floatPtr(48.85)
	far.Longitude = floatPtr(2.35)

	st := fakeStore{
		pendingFn: func(ctx context.Context, limit int) ([]models.Intervention, error) {
			return []models.Intervention{near, far}, nil
		},
		openArtisansFn: func(ctx context.Context) ([]models.Artisan, error) {
			return []models.Artisan{openArtisan("artisan-1", 45.76, 4.86, 10)}, nil
		},
		beginSearchFn: func(ctx context.Context, interventionID string, candidates []match.Candidate) (models.Intervention, error) {
			iv := near
			iv.Status = models.StatusSearching
			return iv, nil
		},
	}

	started, err := New(st).ScanPending(context.Background(), 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if started != 1 {
		t.Fatalf("expected 1 started search, got %d", started)
	}
}

func TestEscalateStalledWidensRadius(t *testing.T) {
	stalled := pendingIntervention()
	stalled.Status = models.StatusSearching

	var gotFactor float64
	var gotCandidates []match.Candidate
	st := fakeStore{
		stalledFn: func(ctx context.Context, olderThan time.Duration, limit int) ([]models.Intervention, error) {
			return []models.Intervention{stalled}, nil
		},
		openArtisansFn: func(ctx context.Context) ([]models.Artisan, error) {
			// Roughly 13 km out with a 10 km radius. Only reachable widened.
			return []models.Artisan{openArtisan("artisan-far", 45.868, 4.85, 10)}, nil
		},
		escalationFn: func(ctx context.Context, interventionID string, candidates []match.Candidate, radiusFactor float64) error {
			gotFactor = radiusFactor
			gotCandidates = candidates
			return nil
		},
	}

	escalated, err := New(st).EscalateStalled(context.Background(), 5*time.Minute, 50, 1.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if escalated != 1 {
		t.Fatalf("expected 1 escalation, got %d", escalated)
	}
	if gotFactor != 1.5 {
		t.Fatalf("expected radius factor 1.5, got %v", gotFactor)
	}
	if len(gotCandidates) != 1 || gotCandidates[0].ArtisanID != "artisan-far" {
		t.Fatalf("expected widened candidate set, got %+v", gotCandidates)
	}
}
