package notify

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/store"

	"github.com/google/uuid"
)

const consumerName = "notifier"

// Store is the slice of persistence the notifier needs: the outbox tail, a
// durable resume offset, and the notification ledger.
type Store interface {
	ListOutboxEventsSince(ctx context.Context, sinceTime time.Time, sinceID string, limit int) ([]store.OutboxEvent, error)
	GetConsumerOffset(ctx context.Context, consumer string) (time.Time, string, error)
	UpdateConsumerOffset(ctx context.Context, consumer string, value time.Time, eventID string) error
	InsertNotification(ctx context.Context, notification store.Notification) error
	MarkNotificationSent(ctx context.Context, notificationID string) error
	MarkNotificationFailed(ctx context.Context, notificationID, lastError string) error
	InsertNotificationDLQ(ctx context.Context, notificationID, reason string) error
}

type Worker struct {
	store       Store
	batchSize   int
	maxAttempts int
	lang        string
	sms         Provider
	email       Provider
}

type payloadData map[string]interface{}

type Config struct {
	BatchSize     int
	MaxAttempts   int
	Lang          string
	SMSProvider   string
	EmailProvider string
}

func New(store Store, cfg Config) *Worker {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	lang := cfg.Lang
	if lang == "" {
		lang = "fr"
	}
	return &Worker{
		store:       store,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		lang:        lang,
		sms:         newProvider(cfg.SMSProvider, "sms"),
		email:       newProvider(cfg.EmailProvider, "email"),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	lastTime, lastID, err := w.store.GetConsumerOffset(ctx, consumerName)
	if err != nil {
		return err
	}

	events, err := w.store.ListOutboxEventsSince(ctx, lastTime, lastID, w.batchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := w.processEvent(ctx, event); err != nil {
			log.Printf("level=warn msg=\"notification process failed\" event_id=%s error=%q", event.EventID, err)
		}
		lastTime = event.CreatedAt
		lastID = event.EventID
	}

	if lastID != "" {
		if err := w.store.UpdateConsumerOffset(ctx, consumerName, lastTime, lastID); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) processEvent(ctx context.Context, event store.OutboxEvent) error {
	templateID := templateForEvent(event.Type)
	if templateID == "" {
		return nil
	}

	payload := payloadData{}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return err
	}

	channels := pickChannels(payload)
	if len(channels) == 0 {
		return nil
	}

	message := renderTemplate(defaultTemplate(templateID, w.lang), payload)

	for _, channel := range channels {
		notification := store.Notification{
			NotificationID: uuid.NewString(),
			Channel:        channel.name,
			Recipient:      channel.recipient,
			Status:         "pending",
			Attempts:       1,
		}
		if err := w.store.InsertNotification(ctx, notification); err != nil {
			return err
		}

		if providerErr := w.send(ctx, channel.name, message, channel.recipient); providerErr != nil {
			if err := w.store.MarkNotificationFailed(ctx, notification.NotificationID, providerErr.Error()); err != nil {
				return err
			}
			if notification.Attempts >= w.maxAttempts {
				if err := w.store.InsertNotificationDLQ(ctx, notification.NotificationID, "max attempts reached"); err != nil {
					return err
				}
			}
			continue
		}
		if err := w.store.MarkNotificationSent(ctx, notification.NotificationID); err != nil {
			return err
		}
	}
	return nil
}

func templateForEvent(eventType string) string {
	switch eventType {
	case "intervention.created":
		return "intervention_created"
	case "intervention.assigned":
		return "intervention_assigned"
	case "intervention.accepted":
		return "intervention_accepted"
	case "intervention.en_route":
		return "intervention_en_route"
	case "intervention.completed":
		return "intervention_completed"
	case "intervention.cancelled":
		return "intervention_cancelled"
	default:
		return ""
	}
}

func defaultTemplate(templateID, lang string) string {
	if lang == "en" {
		switch templateID {
		case "intervention_created":
			return "Your request {tracking_number} has been registered."
		case "intervention_assigned":
			return "A locksmith accepted your request {tracking_number}."
		case "intervention_accepted":
			return "Your intervention {tracking_number} is confirmed."
		case "intervention_en_route":
			return "The locksmith is on the way for {tracking_number}."
		case "intervention_completed":
			return "Your intervention {tracking_number} is done."
		case "intervention_cancelled":
			return "Your request {tracking_number} has been cancelled."
		}
		return ""
	}
	switch templateID {
	case "intervention_created":
		return "Votre demande {tracking_number} a bien été enregistrée."
	case "intervention_assigned":
		return "Un serrurier a accepté votre demande {tracking_number}."
	case "intervention_accepted":
		return "Votre intervention {tracking_number} est confirmée."
	case "intervention_en_route":
		return "Le serrurier est en route pour {tracking_number}."
	case "intervention_completed":
		return "Votre intervention {tracking_number} est terminée."
	case "intervention_cancelled":
		return "Votre demande {tracking_number} a été annulée."
	}
	return ""
}

func renderTemplate(template string, payload payloadData) string {
	result := template
	result = strings.ReplaceAll(result, "{tracking_number}", str(payload, "tracking_number"))
	result = strings.ReplaceAll(result, "{status}", str(payload, "status"))
	result = strings.ReplaceAll(result, "{service_kind}", str(payload, "service_kind"))
	return result
}

func str(payload payloadData, key string) string {
	if value, ok := payload[key]; ok {
		if text, ok := value.(string); ok {
			return text
		}
	}
	return ""
}

type channelTarget struct {
	name      string
	recipient string
}

func pickChannels(payload payloadData) []channelTarget {
	var channels []channelTarget
	if phone, ok := payload["contact_phone"].(string); ok && phone != "" {
		channels = append(channels, channelTarget{name: "sms", recipient: phone})
	}
	if email, ok := payload["contact_email"].(string); ok && email != "" {
		channels = append(channels, channelTarget{name: "email", recipient: email})
	}
	return channels
}

func (w *Worker) send(ctx context.Context, channel, message, recipient string) error {
	switch channel {
	case "sms":
		return w.sms.Send(ctx, message, recipient)
	case "email":
		return w.email.Send(ctx, message, recipient)
	}
	return nil
}

func Start(ctx context.Context, interval time.Duration, w *Worker) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Run(ctx); err != nil {
				log.Printf("level=error msg=\"notification worker run failed\" error=%q", err)
			}
		}
	}
}
