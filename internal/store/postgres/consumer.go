package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/store"

	"github.com/jackc/pgx/v5"
)

const zeroUUID = "00000000-0000-0000-0000-000000000000"

// outboxGraceWindow holds back rows younger than this. created_at is assigned
// inside the writing transaction, so a slow commit can surface a row with an
// older timestamp than ones already consumed; the window keeps such rows from
// landing behind an already-advanced offset.
const outboxGraceWindow = 2 * time.Second

// ListOutboxEventsSince pages the outbox strictly after (sinceTime, sinceID)
// in (created_at, event_id) order, holding back rows inside the grace window,
// so a consumer resuming at its offset sees every event exactly once even
// when timestamps collide or commits land out of timestamp order.
func (s *Store) ListOutboxEventsSince(ctx context.Context, sinceTime time.Time, sinceID string, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if sinceID == "" {
		sinceID = zeroUUID
	}

	rows, err := s.pool.Query(ctx, `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
		WHERE (created_at, event_id) > ($1, $2::uuid)
			AND created_at < now() - $4::interval
		ORDER BY created_at ASC, event_id ASC
		LIMIT $3
	`, sinceTime, sinceID, limit, outboxGraceWindow)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		if err := rows.Scan(&event.EventID, &event.Type, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetConsumerOffset(ctx context.Context, consumer string) (time.Time, string, error) {
	var lastTime time.Time
	var lastID string
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time, last_event_id
		FROM realtime_offsets
		WHERE consumer = $1
	`, consumer)
	if err := row.Scan(&lastTime, &lastID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, "", nil
		}
		return time.Time{}, "", err
	}
	return lastTime, lastID, nil
}

func (s *Store) UpdateConsumerOffset(ctx context.Context, consumer string, value time.Time, eventID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO realtime_offsets (consumer, last_event_time, last_event_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (consumer) DO UPDATE
		SET last_event_time = EXCLUDED.last_event_time,
			last_event_id = EXCLUDED.last_event_id
	`, consumer, value, eventID)
	return err
}

// DeleteOutboxEventsBefore prunes events every consumer has moved past.
func (s *Store) DeleteOutboxEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM outbox_events
		WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) InsertNotification(ctx context.Context, notification store.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (notification_id, channel, recipient, status, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, notification.NotificationID, notification.Channel, notification.Recipient,
		notification.Status, notification.Attempts, notification.LastError)
	return err
}

func (s *Store) MarkNotificationSent(ctx context.Context, notificationID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'sent',
			updated_at = now()
		WHERE notification_id = $1
	`, notificationID)
	return err
}

func (s *Store) MarkNotificationFailed(ctx context.Context, notificationID, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = 'failed',
			last_error = $2,
			updated_at = now()
		WHERE notification_id = $1
	`, notificationID, lastError)
	return err
}

func (s *Store) InsertNotificationDLQ(ctx context.Context, notificationID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_dlq (notification_id, reason)
		VALUES ($1, $2)
		ON CONFLICT (notification_id) DO NOTHING
	`, notificationID, reason)
	return err
}
