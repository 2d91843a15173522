package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/models"
)

func chainEvent(t *testing.T, prev *StatusEvent, interventionID, status, actor string, payload interface{}, at time.Time) StatusEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	seq := 1
	prevHash := ""
	if prev != nil {
		seq = prev.Seq + 1
		prevHash = prev.Hash
	}
	event := StatusEvent{
		InterventionID: interventionID,
		Seq:            seq,
		Status:         status,
		Actor:          actor,
		Payload:        raw,
		CreatedAt:      at,
		PrevHash:       prevHash,
	}
	event.Hash = ComputeStatusEventHash(prevHash, interventionID, status, actor, raw, at, seq)
	return event
}

func TestVerifyChain(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	first := chainEvent(t, nil, "int-1", models.StatusPending, "client", map[string]string{"status": "pending"}, base)
	second := chainEvent(t, &first, "int-1", models.StatusSearching, "system", map[string]string{"status": "searching"}, base.Add(time.Second))

	if err := VerifyChain([]StatusEvent{first, second}); err != nil {
		t.Fatalf("valid chain rejected: %v", err)
	}

	tampered := second
	tampered.Status = models.StatusAssigned
	if err := VerifyChain([]StatusEvent{first, tampered}); err == nil {
		t.Fatalf("tampered event must fail verification")
	}

	reordered := []StatusEvent{second, first}
	if err := VerifyChain(reordered); err == nil {
		t.Fatalf("reordered chain must fail verification")
	}
}

func TestRehydrateIntervention(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	artisanID := "artisan-1"
	clientID := "client-1"

	created := chainEvent(t, nil, "int-1", models.StatusPending, "client", eventPayload{
		InterventionID: "int-1",
		TrackingNumber: "LX-AAA",
		Status:         models.StatusPending,
		ServiceKind:    models.ServiceKindUrgence,
		CreatedAt:      &base,
	}, base)
	searching := chainEvent(t, &created, "int-1", models.StatusSearching, "system", eventPayload{
		Status: models.StatusSearching,
	}, base.Add(time.Second))
	assignedAt := base.Add(2 * time.Second)
	assigned := chainEvent(t, &searching, "int-1", models.StatusAssigned, "artisan:artisan-1", eventPayload{
		Status:     models.StatusAssigned,
		ArtisanID:  &artisanID,
		AssignedAt: &assignedAt,
	}, assignedAt)
	linked := chainEvent(t, &assigned, "int-1", models.StatusAssigned, "system", eventPayload{
		Status:   models.StatusAssigned,
		ClientID: &clientID,
	}, base.Add(3*time.Second))

	intervention, err := RehydrateIntervention([]StatusEvent{created, searching, assigned, linked})
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if intervention.TrackingNumber != "LX-AAA" {
		t.Fatalf("tracking number lost: %q", intervention.TrackingNumber)
	}
	if intervention.Status != models.StatusAssigned {
		t.Fatalf("unexpected status %q", intervention.Status)
	}
	if intervention.ArtisanID == nil || *intervention.ArtisanID != artisanID {
		t.Fatalf("artisan assignment lost")
	}
	if intervention.ClientID == nil || *intervention.ClientID != clientID {
		t.Fatalf("client link lost")
	}
}

func TestRehydrateCancelClearsArtisan(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	artisanID := "artisan-1"

	assigned := chainEvent(t, nil, "int-1", models.StatusAssigned, "artisan:artisan-1", eventPayload{
		Status:    models.StatusAssigned,
		ArtisanID: &artisanID,
	}, base)
	cancelled := chainEvent(t, &assigned, "int-1", models.StatusCancelled, "client", eventPayload{
		Status: models.StatusCancelled,
	}, base.Add(time.Second))

	intervention, err := RehydrateIntervention([]StatusEvent{assigned, cancelled})
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if intervention.ArtisanID != nil {
		t.Fatalf("cancellation must clear the artisan assignment")
	}
}
