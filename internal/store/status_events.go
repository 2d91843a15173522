package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/models"
)

// StatusEvent is one append-only entry of an intervention's status history.
// Entries form a hash chain; they are never rewritten or removed.
type StatusEvent struct {
	InterventionID string          `json:"intervention_id"`
	Seq            int             `json:"seq"`
	Status         string          `json:"status"`
	Actor          string          `json:"actor"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
	PrevHash       string          `json:"prev_hash"`
	Hash           string          `json:"hash"`
}

type eventPayload struct {
	InterventionID string     `json:"intervention_id"`
	TrackingNumber string     `json:"tracking_number"`
	Status         string     `json:"status"`
	ServiceKind    string     `json:"service_kind"`
	ArtisanID      *string    `json:"artisan_id"`
	ClientID       *string    `json:"client_id"`
	CreatedAt      *time.Time `json:"created_at"`
	AssignedAt     *time.Time `json:"assigned_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

func ComputeStatusEventHash(prevHash, interventionID, status, actor string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%s", prevHash, interventionID, status, actor, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyChain recomputes every hash and checks seq continuity and linkage.
func VerifyChain(events []StatusEvent) error {
	prevHash := ""
	for i, event := range events {
		if event.Seq != i+1 {
			return fmt.Errorf("status event %d: seq %d out of order", i, event.Seq)
		}
		if event.PrevHash != prevHash {
			return fmt.Errorf("status event %d: broken chain link", i)
		}
		expected := ComputeStatusEventHash(event.PrevHash, event.InterventionID, event.Status, event.Actor, event.Payload, event.CreatedAt, event.Seq)
		if event.Hash != expected {
			return fmt.Errorf("status event %d: hash mismatch", i)
		}
		prevHash = event.Hash
	}
	return nil
}

// RehydrateIntervention folds a status history into an intervention snapshot.
func RehydrateIntervention(events []StatusEvent) (models.Intervention, error) {
	var intervention models.Intervention
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload eventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.Intervention{}, err
		}
		if payload.InterventionID != "" {
			intervention.InterventionID = payload.InterventionID
		}
		if payload.TrackingNumber != "" {
			intervention.TrackingNumber = payload.TrackingNumber
		}
		if payload.ServiceKind != "" {
			intervention.ServiceKind = payload.ServiceKind
		}
		if payload.Status != "" {
			intervention.Status = payload.Status
		}
		if payload.ArtisanID != nil {
			intervention.ArtisanID = payload.ArtisanID
		}
		if payload.ClientID != nil {
			intervention.ClientID = payload.ClientID
		}
		if payload.CreatedAt != nil {
			intervention.CreatedAt = *payload.CreatedAt
		}
		if payload.AssignedAt != nil {
			intervention.AssignedAt = payload.AssignedAt
		}
		if payload.CompletedAt != nil {
			intervention.CompletedAt = payload.CompletedAt
		}
		intervention.UpdatedAt = event.CreatedAt
		if event.Status == models.StatusCancelled {
			intervention.ArtisanID = nil
		}
	}
	return intervention, nil
}
