package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/models"
	"github.com/JeremyGnt/serenio-sub002/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const trackingPrefix = "LX-"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const interventionColumns = `
	intervention_id, request_id, tracking_number, status, service_kind, client_id,
	contact_email, contact_phone, latitude, longitude, address, diagnostic,
	artisan_id, created_at, updated_at, assigned_at, completed_at, last_escalated_at
`

func newTrackingNumber() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return trackingPrefix + raw[:12]
}

func (s *Store) CreateIntervention(ctx context.Context, input store.CreateInterventionInput) (models.Intervention, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Intervention{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findInterventionByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Intervention{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Intervention{}, false, err
		}
		return existing, false, nil
	}

	interventionID := uuid.NewString()
	trackingNumber := newTrackingNumber()
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO interventions (
			intervention_id, request_id, tracking_number, status, service_kind, client_id,
			contact_email, contact_phone, latitude, longitude, address, diagnostic,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		ON CONFLICT (request_id) DO NOTHING
		RETURNING `+interventionColumns+`
	`, interventionID, input.RequestID, trackingNumber, models.StatusPending, input.ServiceKind,
		nullIfEmpty(input.ClientID), input.ContactEmail, input.ContactPhone,
		input.Latitude, input.Longitude, input.Address, input.Diagnostic, createdAt)

	var intervention models.Intervention
	if intervention, err = scanIntervention(row); err != nil {
		// A concurrent create with the same request_id won the insert; replay
		// its intervention instead of surfacing the conflict.
		if errors.Is(err, pgx.ErrNoRows) {
			existing, found, err = findInterventionByRequestID(ctx, tx, input.RequestID)
			if err != nil {
				return models.Intervention{}, false, err
			}
			if !found {
				return models.Intervention{}, false, pgx.ErrNoRows
			}
			if err = tx.Commit(ctx); err != nil {
				return models.Intervention{}, false, err
			}
			return existing, false, nil
		}
		return models.Intervention{}, false, err
	}

	actor := "client"
	if err = appendStatusEvent(ctx, tx, intervention, actor, nil); err != nil {
		return models.Intervention{}, false, err
	}
	if err = insertOutboxEvent(ctx, tx, "intervention.created", createdPayload(intervention)); err != nil {
		return models.Intervention{}, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Intervention{}, false, err
	}
	return intervention, true, nil
}

func (s *Store) GetIntervention(ctx context.Context, interventionID string) (models.Intervention, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+interventionColumns+`
		FROM interventions
		WHERE intervention_id = $1
	`, interventionID)
	intervention, err := scanIntervention(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Intervention{}, store.ErrInterventionNotFound
		}
		return models.Intervention{}, err
	}
	return intervention, nil
}

func (s *Store) GetByTracking(ctx context.Context, trackingNumber string) (models.Intervention, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+interventionColumns+`
		FROM interventions
		WHERE tracking_number = $1
	`, trackingNumber)
	intervention, err := scanIntervention(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Intervention{}, store.ErrInterventionNotFound
		}
		return models.Intervention{}, err
	}
	return intervention, nil
}

func (s *Store) GetActiveForClient(ctx context.Context, clientID string) (models.Intervention, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+interventionColumns+`
		FROM interventions
		WHERE client_id = $1
			AND status IN ('pending','searching','assigned','accepted','en_route')
		ORDER BY created_at DESC
		LIMIT 1
	`, clientID)
	intervention, err := scanIntervention(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Intervention{}, false, nil
		}
		return models.Intervention{}, false, err
	}
	return intervention, true, nil
}

func (s *Store) LinkClient(ctx context.Context, trackingNumber, clientID string) (models.Intervention, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Intervention{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE interventions
		SET client_id = $2,
			updated_at = $3
		WHERE tracking_number = $1 AND client_id IS NULL
		RETURNING `+interventionColumns+`
	`, trackingNumber, clientID, time.Now().UTC())

	intervention, err := scanIntervention(row)
	if err == nil {
		if err = appendStatusEvent(ctx, tx, intervention, "system", map[string]interface{}{
			"client_id": clientID,
		}); err != nil {
			return models.Intervention{}, false, err
		}
		if err = tx.Commit(ctx); err != nil {
			return models.Intervention{}, false, err
		}
		return intervention, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Intervention{}, false, err
	}

	// Already linked, or unknown tracking number. Repeated linking by the
	// same account is a no-op; a different owner is never overwritten.
	row = tx.QueryRow(ctx, `
		SELECT `+interventionColumns+`
		FROM interventions
		WHERE tracking_number = $1
	`, trackingNumber)
	intervention, err = scanIntervention(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Intervention{}, false, store.ErrInterventionNotFound
		}
		return models.Intervention{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Intervention{}, false, err
	}
	if intervention.ClientID != nil && *intervention.ClientID == clientID {
		return intervention, false, nil
	}
	return models.Intervention{}, false, store.ErrAlreadyLinked
}

func (s *Store) ListStatusEvents(ctx context.Context, interventionID string) ([]store.StatusEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT intervention_id, seq, status, actor, payload, created_at, prev_hash, hash
		FROM status_events
		WHERE intervention_id = $1
		ORDER BY seq ASC
	`, interventionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.StatusEvent
	for rows.Next() {
		var event store.StatusEvent
		if err := rows.Scan(&event.InterventionID, &event.Seq, &event.Status, &event.Actor, &event.Payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) ListPendingInterventions(ctx context.Context, limit int) ([]models.Intervention, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listInterventions(ctx, `
		SELECT `+interventionColumns+`
		FROM interventions
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
}

func (s *Store) ListSearchingInterventions(ctx context.Context, limit int) ([]models.Intervention, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listInterventions(ctx, `
		SELECT `+interventionColumns+`
		FROM interventions
		WHERE status = 'searching'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
}

func (s *Store) ListStalledSearches(ctx context.Context, olderThan time.Duration, limit int) ([]models.Intervention, error) {
	if limit <= 0 {
		limit = 50
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	return s.listInterventions(ctx, `
		SELECT `+interventionColumns+`
		FROM interventions
		WHERE status = 'searching'
			AND updated_at <= $1
			AND (last_escalated_at IS NULL OR last_escalated_at <= $1)
		ORDER BY updated_at ASC
		LIMIT $2
	`, cutoff, limit)
}

func (s *Store) listInterventions(ctx context.Context, query string, args ...interface{}) ([]models.Intervention, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interventions []models.Intervention
	for rows.Next() {
		intervention, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		interventions = append(interventions, intervention)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return interventions, nil
}

func (s *Store) ListOpenArtisans(ctx context.Context) ([]models.Artisan, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT artisan_id, approval_status, available, base_latitude, base_longitude,
			radius_km, active_intervention_id, created_at, updated_at, last_seen_at
		FROM artisans
		WHERE approval_status = 'approved'
			AND available = TRUE
			AND active_intervention_id IS NULL
		ORDER BY artisan_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artisans []models.Artisan
	for rows.Next() {
		artisan, err := scanArtisan(rows)
		if err != nil {
			return nil, err
		}
		artisans = append(artisans, artisan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return artisans, nil
}

func (s *Store) GetArtisan(ctx context.Context, artisanID string) (models.Artisan, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT artisan_id, approval_status, available, base_latitude, base_longitude,
			radius_km, active_intervention_id, created_at, updated_at, last_seen_at
		FROM artisans
		WHERE artisan_id = $1
	`, artisanID)
	artisan, err := scanArtisan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Artisan{}, store.ErrArtisanNotFound
		}
		return models.Artisan{}, err
	}
	return artisan, nil
}

// SetArtisanAvailability toggles the matching flag only. A held mission is
// untouched: the artisan keeps working it and releases it through the normal
// transitions.
func (s *Store) SetArtisanAvailability(ctx context.Context, artisanID string, available bool) (models.Artisan, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE artisans
		SET available = $2,
			updated_at = $3,
			last_seen_at = $3
		WHERE artisan_id = $1
		RETURNING artisan_id, approval_status, available, base_latitude, base_longitude,
			radius_km, active_intervention_id, created_at, updated_at, last_seen_at
	`, artisanID, available, time.Now().UTC())
	artisan, err := scanArtisan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Artisan{}, store.ErrArtisanNotFound
		}
		return models.Artisan{}, err
	}
	return artisan, nil
}

func (s *Store) ListDeclines(ctx context.Context, interventionID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT artisan_id
		FROM intervention_declines
		WHERE intervention_id = $1
		ORDER BY created_at ASC
	`, interventionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) ListOutboxEvents(ctx context.Context, after time.Time, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, type, payload_json, created_at
		FROM outbox_events
	`
	args := []interface{}{}
	if !after.IsZero() {
		query += " WHERE created_at > $1 ORDER BY created_at ASC, event_id ASC LIMIT $2"
		args = append(args, after, limit)
	} else {
		query += " ORDER BY created_at ASC, event_id ASC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, account_id, role, expires_at
		FROM sessions
		WHERE session_id = $1 AND expires_at > now()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.AccountID, &session.Role, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	return session, nil
}

func findInterventionByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Intervention, bool, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+interventionColumns+`
		FROM interventions
		WHERE request_id = $1
	`, requestID)
	intervention, err := scanIntervention(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Intervention{}, false, nil
		}
		return models.Intervention{}, false, err
	}
	return intervention, true, nil
}

func scanIntervention(row pgx.Row) (models.Intervention, error) {
	var intervention models.Intervention
	var requestID sql.NullString
	var clientID sql.NullString
	var latitude sql.NullFloat64
	var longitude sql.NullFloat64
	var artisanID sql.NullString
	var assignedAt sql.NullTime
	var completedAt sql.NullTime
	var lastEscalatedAt sql.NullTime

	if err := row.Scan(
		&intervention.InterventionID, &requestID, &intervention.TrackingNumber,
		&intervention.Status, &intervention.ServiceKind, &clientID,
		&intervention.ContactEmail, &intervention.ContactPhone,
		&latitude, &longitude, &intervention.Address, &intervention.Diagnostic,
		&artisanID, &intervention.CreatedAt, &intervention.UpdatedAt,
		&assignedAt, &completedAt, &lastEscalatedAt,
	); err != nil {
		return models.Intervention{}, err
	}
	if requestID.Valid {
		intervention.RequestID = requestID.String
	}
	intervention.ClientID = nullStringPtr(clientID)
	intervention.ArtisanID = nullStringPtr(artisanID)
	intervention.Latitude = nullFloatPtr(latitude)
	intervention.Longitude = nullFloatPtr(longitude)
	intervention.AssignedAt = nullTimePtr(assignedAt)
	intervention.CompletedAt = nullTimePtr(completedAt)
	intervention.LastEscalatedAt = nullTimePtr(lastEscalatedAt)
	return intervention, nil
}

func scanArtisan(row pgx.Row) (models.Artisan, error) {
	var artisan models.Artisan
	var baseLat sql.NullFloat64
	var baseLon sql.NullFloat64
	var active sql.NullString
	var lastSeen sql.NullTime

	if err := row.Scan(
		&artisan.ArtisanID, &artisan.ApprovalStatus, &artisan.Available,
		&baseLat, &baseLon, &artisan.RadiusKm, &active,
		&artisan.CreatedAt, &artisan.UpdatedAt, &lastSeen,
	); err != nil {
		return models.Artisan{}, err
	}
	artisan.BaseLatitude = nullFloatPtr(baseLat)
	artisan.BaseLongitude = nullFloatPtr(baseLon)
	artisan.ActiveInterventionID = nullStringPtr(active)
	artisan.LastSeenAt = nullTimePtr(lastSeen)
	return artisan, nil
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullFloatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time
	return &v
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func jsonBytes(payload interface{}) ([]byte, error) {
	return json.Marshal(payload)
}
