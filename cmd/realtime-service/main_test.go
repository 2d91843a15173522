package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/store"
)

func TestExtractMeta(t *testing.T) {
	payload := []byte(`{
		"tracking_number": "LX-AAAAAAAAAAAA",
		"status": "assigned",
		"artisan_id": "artisan-1",
		"candidate_ids": ["artisan-2", "artisan-3"]
	}`)

	meta := extractMeta(payload)
	if meta.TrackingNumber != "LX-AAAAAAAAAAAA" {
		t.Fatalf("unexpected tracking number: %s", meta.TrackingNumber)
	}
	if len(meta.ArtisanIDs) != 3 {
		t.Fatalf("expected 3 artisan ids, got %v", meta.ArtisanIDs)
	}
}

func TestExtractMetaInvalidPayload(t *testing.T) {
	meta := extractMeta([]byte("not json"))
	if meta.TrackingNumber != "" || len(meta.ArtisanIDs) != 0 {
		t.Fatalf("expected empty meta, got %+v", meta)
	}
}

func TestSanitizeDropsContactDetails(t *testing.T) {
	createdAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	payload := []byte(`{
		"tracking_number": "LX-AAAAAAAAAAAA",
		"status": "en_route",
		"artisan_id": "artisan-1",
		"contact_phone": "0612345678",
		"contact_email": "alice@example.com"
	}`)
	event := store.OutboxEvent{EventID: "e1", Type: "intervention.en_route", Payload: payload, CreatedAt: createdAt}

	envelope := sanitize(event)
	raw, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var wire map[string]interface{}
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if wire["tracking_number"] != "LX-AAAAAAAAAAAA" || wire["status"] != "en_route" {
		t.Fatalf("unexpected envelope: %v", wire)
	}
	for _, hidden := range []string{"contact_phone", "contact_email", "artisan_id", "intervention_id"} {
		if _, leaked := wire[hidden]; leaked {
			t.Fatalf("envelope leaks %s: %v", hidden, wire)
		}
	}
}
