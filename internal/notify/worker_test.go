package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/store"
)

type fakeStore struct {
	events        []store.OutboxEvent
	offsetTime    time.Time
	offsetID      string
	notifications []store.Notification
	sent          []string
	failed        []string
	dlq           []string
}

func (f *fakeStore) ListOutboxEventsSince(ctx context.Context, sinceTime time.Time, sinceID string, limit int) ([]store.OutboxEvent, error) {
	var out []store.OutboxEvent
	for _, event := range f.events {
		if event.CreatedAt.After(sinceTime) || (event.CreatedAt.Equal(sinceTime) && event.EventID > sinceID) {
			out = append(out, event)
		}
	}
	return out, nil
}

func (f *fakeStore) GetConsumerOffset(ctx context.Context, consumer string) (time.Time, string, error) {
	return f.offsetTime, f.offsetID, nil
}

func (f *fakeStore) UpdateConsumerOffset(ctx context.Context, consumer string, value time.Time, eventID string) error {
	f.offsetTime = value
	f.offsetID = eventID
	return nil
}

func (f *fakeStore) InsertNotification(ctx context.Context, notification store.Notification) error {
	f.notifications = append(f.notifications, notification)
	return nil
}

func (f *fakeStore) MarkNotificationSent(ctx context.Context, notificationID string) error {
	f.sent = append(f.sent, notificationID)
	return nil
}

func (f *fakeStore) MarkNotificationFailed(ctx context.Context, notificationID, lastError string) error {
	f.failed = append(f.failed, notificationID)
	return nil
}

func (f *fakeStore) InsertNotificationDLQ(ctx context.Context, notificationID, reason string) error {
	f.dlq = append(f.dlq, notificationID)
	return nil
}

func outboxEvent(id, eventType string, createdAt time.Time, payload map[string]interface{}) store.OutboxEvent {
	raw, _ := json.Marshal(payload)
	return store.OutboxEvent{EventID: id, Type: eventType, Payload: raw, CreatedAt: createdAt}
}

func TestRenderTemplate(t *testing.T) {
	payload := payloadData{
		"tracking_number": "LX-AAAAAAAAAAAA",
		"status":          "assigned",
	}
	got := renderTemplate("Demande {tracking_number}: {status}", payload)
	if got != "Demande LX-AAAAAAAAAAAA: assigned" {
		t.Fatalf("unexpected template render: %s", got)
	}
}

func TestTemplateForEvent(t *testing.T) {
	cases := map[string]string{
		"intervention.created":       "intervention_created",
		"intervention.assigned":      "intervention_assigned",
		"intervention.accepted":      "intervention_accepted",
		"intervention.en_route":      "intervention_en_route",
		"intervention.completed":     "intervention_completed",
		"intervention.cancelled":     "intervention_cancelled",
		"intervention.searching":     "",
		"intervention.declined":      "",
		"intervention.search.stalled": "",
	}
	for eventType, want := range cases {
		if got := templateForEvent(eventType); got != want {
			t.Fatalf("templateForEvent(%s) = %q, want %q", eventType, got, want)
		}
	}
}

func TestRunSendsPerChannel(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	st := &fakeStore{
		events: []store.OutboxEvent{
			outboxEvent("00000000-0000-0000-0000-000000000001", "intervention.created", base, map[string]interface{}{
				"tracking_number": "LX-AAAAAAAAAAAA",
				"status":          "pending",
				"contact_phone":   "0612345678",
				"contact_email":   "alice@example.com",
			}),
		},
	}

	w := New(st, Config{SMSProvider: "noop", EmailProvider: "noop"})
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.notifications) != 2 {
		t.Fatalf("expected 2 notifications (sms+email), got %d", len(st.notifications))
	}
	if len(st.sent) != 2 || len(st.failed) != 0 {
		t.Fatalf("expected both notifications sent, got sent=%d failed=%d", len(st.sent), len(st.failed))
	}
	if st.offsetID != "00000000-0000-0000-0000-000000000001" || !st.offsetTime.Equal(base) {
		t.Fatalf("offset not advanced: %v %s", st.offsetTime, st.offsetID)
	}
}

func TestRunSkipsUntrackedEvents(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	st := &fakeStore{
		events: []store.OutboxEvent{
			outboxEvent("00000000-0000-0000-0000-000000000001", "intervention.declined", base, map[string]interface{}{
				"tracking_number": "LX-AAAAAAAAAAAA",
				"contact_phone":   "0612345678",
			}),
		},
	}

	w := New(st, Config{SMSProvider: "noop", EmailProvider: "noop"})
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.notifications) != 0 {
		t.Fatalf("declined events should not notify, got %d", len(st.notifications))
	}
	if st.offsetID == "" {
		t.Fatal("offset should still advance past skipped events")
	}
}

func TestRunFailureGoesToDLQ(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	st := &fakeStore{
		events: []store.OutboxEvent{
			outboxEvent("00000000-0000-0000-0000-000000000001", "intervention.cancelled", base, map[string]interface{}{
				"tracking_number": "LX-AAAAAAAAAAAA",
				"status":          "cancelled",
				"contact_phone":   "0612345678",
			}),
		},
	}

	w := New(st, Config{SMSProvider: "fail", EmailProvider: "fail", MaxAttempts: 1})
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.failed) != 1 {
		t.Fatalf("expected 1 failed notification, got %d", len(st.failed))
	}
	if len(st.dlq) != 1 {
		t.Fatalf("expected 1 DLQ entry at max attempts, got %d", len(st.dlq))
	}
}

func TestRunResumesFromOffset(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	st := &fakeStore{
		offsetTime: base,
		offsetID:   "00000000-0000-0000-0000-000000000001",
		events: []store.OutboxEvent{
			outboxEvent("00000000-0000-0000-0000-000000000001", "intervention.created", base, map[string]interface{}{
				"tracking_number": "LX-AAAAAAAAAAAA",
				"contact_phone":   "0612345678",
			}),
			outboxEvent("00000000-0000-0000-0000-000000000002", "intervention.completed", base.Add(time.Second), map[string]interface{}{
				"tracking_number": "LX-AAAAAAAAAAAA",
				"status":          "completed",
				"contact_phone":   "0612345678",
			}),
		},
	}

	w := New(st, Config{SMSProvider: "noop", EmailProvider: "noop"})
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.notifications) != 1 {
		t.Fatalf("expected only the event past the offset, got %d notifications", len(st.notifications))
	}
	if st.offsetID != "00000000-0000-0000-0000-000000000002" {
		t.Fatalf("offset not advanced to newest event: %s", st.offsetID)
	}
}
