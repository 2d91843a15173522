package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/match"
	"github.com/JeremyGnt/serenio-sub002/internal/models"
	"github.com/JeremyGnt/serenio-sub002/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) BeginSearch(ctx context.Context, interventionID string, candidates []match.Candidate) (models.Intervention, error) {
	if len(candidates) == 0 {
		return models.Intervention{}, store.ErrInvalidState
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Intervention{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := lockIntervention(ctx, tx, interventionID)
	if err != nil {
		return models.Intervention{}, err
	}
	if !store.ValidTransition("search", current.Status) {
		return models.Intervention{}, store.ErrInvalidState
	}

	row := tx.QueryRow(ctx, `
		UPDATE interventions
		SET status = $2,
			updated_at = $3
		WHERE intervention_id = $1
		RETURNING `+interventionColumns+`
	`, interventionID, models.StatusSearching, time.Now().UTC())
	intervention, err := scanIntervention(row)
	if err != nil {
		return models.Intervention{}, err
	}

	if err = appendStatusEvent(ctx, tx, intervention, "system", map[string]interface{}{
		"candidates": candidates,
	}); err != nil {
		return models.Intervention{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "intervention.searching", map[string]interface{}{
		"tracking_number": intervention.TrackingNumber,
		"status":          intervention.Status,
		"candidates":      candidates,
		"candidate_ids":   match.IDs(candidates),
	}); err != nil {
		return models.Intervention{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Intervention{}, err
	}
	return intervention, nil
}

// Accept awards a searching intervention to exactly one artisan. The
// intervention row lock and the artisan conditional update sit in one
// transaction, so the two invariants (one artisan per intervention, one
// active mission per artisan) commit or fail together.
func (s *Store) Accept(ctx context.Context, input store.AcceptInput) (models.Intervention, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Intervention{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	replayed, found, err := findActionRequest(ctx, tx, "accept", input.RequestID)
	if err != nil {
		return models.Intervention{}, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Intervention{}, err
		}
		return replayed, nil
	}

	current, err := lockIntervention(ctx, tx, input.InterventionID)
	if err != nil {
		return models.Intervention{}, err
	}
	if models.IsTerminal(current.Status) {
		return models.Intervention{}, store.ErrInvalidState
	}
	if current.Status != models.StatusSearching {
		if models.HasArtisan(current.Status) {
			return models.Intervention{}, store.ErrMissionTaken
		}
		return models.Intervention{}, store.ErrInvalidState
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	tag, err := tx.Exec(ctx, `
		UPDATE artisans
		SET active_intervention_id = $1,
			updated_at = $3,
			last_seen_at = $3
		WHERE artisan_id = $2
			AND approval_status = 'approved'
			AND available = TRUE
			AND active_intervention_id IS NULL
	`, input.InterventionID, input.ArtisanID, occurredAt)
	if err != nil {
		return models.Intervention{}, err
	}
	if tag.RowsAffected() == 0 {
		err = diagnoseArtisan(ctx, tx, input.ArtisanID)
		return models.Intervention{}, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE interventions
		SET status = $2,
			artisan_id = $3,
			assigned_at = $4,
			updated_at = $4
		WHERE intervention_id = $1 AND status = 'searching'
		RETURNING `+interventionColumns+`
	`, input.InterventionID, models.StatusAssigned, input.ArtisanID, occurredAt)
	intervention, err := scanIntervention(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Intervention{}, store.ErrMissionTaken
		}
		return models.Intervention{}, err
	}

	withdrawn, err := candidatesToWithdraw(ctx, tx, input.InterventionID, input.ArtisanID)
	if err != nil {
		return models.Intervention{}, err
	}

	if err = insertActionRequest(ctx, tx, "accept", input.RequestID, intervention.InterventionID, input.ArtisanID); err != nil {
		return models.Intervention{}, err
	}
	if err = appendStatusEvent(ctx, tx, intervention, "artisan:"+input.ArtisanID, nil); err != nil {
		return models.Intervention{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "intervention.assigned", map[string]interface{}{
		"tracking_number": intervention.TrackingNumber,
		"status":          intervention.Status,
		"artisan_id":      input.ArtisanID,
		"candidate_ids":   withdrawn,
		"contact_email":   intervention.ContactEmail,
		"contact_phone":   intervention.ContactPhone,
	}); err != nil {
		return models.Intervention{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Intervention{}, err
	}
	return intervention, nil
}

func (s *Store) Confirm(ctx context.Context, input store.ActionInput) (models.Intervention, error) {
	return s.progress(ctx, input, "confirm", models.StatusAssigned, "intervention.accepted")
}

func (s *Store) MarkEnRoute(ctx context.Context, input store.ActionInput) (models.Intervention, error) {
	return s.progress(ctx, input, "en_route", models.StatusAccepted, "intervention.en_route")
}

func (s *Store) Complete(ctx context.Context, input store.ActionInput) (models.Intervention, error) {
	return s.progress(ctx, input, "complete", models.StatusEnRoute, "intervention.completed")
}

// progress applies one strictly ordered artisan-reported transition. The
// committed status comes from the action table, not the caller.
func (s *Store) progress(ctx context.Context, input store.ActionInput, action, fromStatus, eventType string) (models.Intervention, error) {
	toStatus, ok := store.ResultStatus(action)
	if !ok {
		return models.Intervention{}, store.ErrInvalidState
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Intervention{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	replayed, found, err := findActionRequest(ctx, tx, action, input.RequestID)
	if err != nil {
		return models.Intervention{}, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Intervention{}, err
		}
		return replayed, nil
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	query := `
		UPDATE interventions
		SET status = $2,
			updated_at = $4
		WHERE intervention_id = $1 AND status = $3 AND artisan_id = $5
		RETURNING ` + interventionColumns
	if toStatus == models.StatusCompleted {
		query = `
			UPDATE interventions
			SET status = $2,
				updated_at = $4,
				completed_at = $4
			WHERE intervention_id = $1 AND status = $3 AND artisan_id = $5
			RETURNING ` + interventionColumns
	}

	row := tx.QueryRow(ctx, query, input.InterventionID, toStatus, fromStatus, occurredAt, input.ArtisanID)
	intervention, err := scanIntervention(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = diagnoseProgress(ctx, tx, input)
			return models.Intervention{}, err
		}
		return models.Intervention{}, err
	}

	if toStatus == models.StatusCompleted {
		if _, err = tx.Exec(ctx, `
			UPDATE artisans
			SET active_intervention_id = NULL,
				updated_at = $2
			WHERE artisan_id = $1 AND active_intervention_id = $3
		`, input.ArtisanID, occurredAt, input.InterventionID); err != nil {
			return models.Intervention{}, err
		}
	}

	if err = insertActionRequest(ctx, tx, action, input.RequestID, intervention.InterventionID, input.ArtisanID); err != nil {
		return models.Intervention{}, err
	}
	if err = appendStatusEvent(ctx, tx, intervention, "artisan:"+input.ArtisanID, nil); err != nil {
		return models.Intervention{}, err
	}
	if err = insertOutboxEvent(ctx, tx, eventType, map[string]interface{}{
		"tracking_number": intervention.TrackingNumber,
		"status":          intervention.Status,
		"artisan_id":      input.ArtisanID,
		"contact_email":   intervention.ContactEmail,
		"contact_phone":   intervention.ContactPhone,
	}); err != nil {
		return models.Intervention{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Intervention{}, err
	}
	return intervention, nil
}

// Cancel is race-checked the same way as Accept: the intervention row is
// locked first, so cancelling a freshly accepted mission still frees the
// winning artisan.
func (s *Store) Cancel(ctx context.Context, input store.CancelInput) (models.Intervention, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Intervention{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	replayed, found, err := findActionRequest(ctx, tx, "cancel", input.RequestID)
	if err != nil {
		return models.Intervention{}, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Intervention{}, err
		}
		return replayed, nil
	}

	current, err := lockIntervention(ctx, tx, input.InterventionID)
	if err != nil {
		return models.Intervention{}, err
	}
	if !store.ValidTransition("cancel", current.Status) {
		return models.Intervention{}, store.ErrInvalidState
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	row := tx.QueryRow(ctx, `
		UPDATE interventions
		SET status = $2,
			artisan_id = NULL,
			updated_at = $3
		WHERE intervention_id = $1
		RETURNING `+interventionColumns+`
	`, input.InterventionID, models.StatusCancelled, occurredAt)
	intervention, err := scanIntervention(row)
	if err != nil {
		return models.Intervention{}, err
	}

	var freedArtisan string
	if current.ArtisanID != nil {
		freedArtisan = *current.ArtisanID
		if _, err = tx.Exec(ctx, `
			UPDATE artisans
			SET active_intervention_id = NULL,
				updated_at = $2
			WHERE artisan_id = $1 AND active_intervention_id = $3
		`, freedArtisan, occurredAt, input.InterventionID); err != nil {
			return models.Intervention{}, err
		}
	}

	if err = insertActionRequest(ctx, tx, "cancel", input.RequestID, intervention.InterventionID, freedArtisan); err != nil {
		return models.Intervention{}, err
	}
	if err = appendStatusEvent(ctx, tx, intervention, input.Actor, map[string]interface{}{
		"reason": input.Reason,
	}); err != nil {
		return models.Intervention{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "intervention.cancelled", map[string]interface{}{
		"tracking_number": intervention.TrackingNumber,
		"status":          intervention.Status,
		"artisan_id":      nullIfEmpty(freedArtisan),
		"reason":          input.Reason,
		"contact_email":   intervention.ContactEmail,
		"contact_phone":   intervention.ContactPhone,
	}); err != nil {
		return models.Intervention{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Intervention{}, err
	}
	return intervention, nil
}

// Decline removes one artisan from an intervention's candidate set. It is not
// a status transition: the intervention keeps searching for the others.
func (s *Store) Decline(ctx context.Context, input store.ActionInput) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := lockIntervention(ctx, tx, input.InterventionID)
	if err != nil {
		return err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO intervention_declines (intervention_id, artisan_id, reason, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (intervention_id, artisan_id) DO NOTHING
	`, input.InterventionID, input.ArtisanID, input.Reason, occurredAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		if err = insertOutboxEvent(ctx, tx, "intervention.declined", map[string]interface{}{
			"tracking_number": current.TrackingNumber,
			"artisan_id":      input.ArtisanID,
		}); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// RecordEscalation marks a stalled search as escalated and broadcasts the
// widened candidate set. A search that was just taken is left alone.
func (s *Store) RecordEscalation(ctx context.Context, interventionID string, candidates []match.Candidate, radiusFactor float64) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	row := tx.QueryRow(ctx, `
		UPDATE interventions
		SET last_escalated_at = $2
		WHERE intervention_id = $1 AND status = 'searching'
		RETURNING `+interventionColumns+`
	`, interventionID, time.Now().UTC())
	intervention, err := scanIntervention(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			return tx.Commit(ctx)
		}
		return err
	}

	// The widened set becomes the latest searching status event, so a later
	// accept withdraws escalation-only candidates too.
	if err = appendStatusEvent(ctx, tx, intervention, "system", map[string]interface{}{
		"candidates":    candidates,
		"radius_factor": radiusFactor,
	}); err != nil {
		return err
	}
	if err = insertOutboxEvent(ctx, tx, "intervention.search.stalled", map[string]interface{}{
		"tracking_number": intervention.TrackingNumber,
		"status":          intervention.Status,
		"candidates":      candidates,
		"candidate_ids":   match.IDs(candidates),
		"radius_factor":   radiusFactor,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func lockIntervention(ctx context.Context, tx pgx.Tx, interventionID string) (models.Intervention, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+interventionColumns+`
		FROM interventions
		WHERE intervention_id = $1
		FOR UPDATE
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

func diagnoseArtisan(ctx context.Context, tx pgx.Tx, artisanID string) error {
	var approval string
	var available bool
	var active *string
	row := tx.QueryRow(ctx, `
		SELECT approval_status, available, active_intervention_id
		FROM artisans
		WHERE artisan_id = $1
	`, artisanID)
	if err := row.Scan(&approval, &available, &active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrArtisanNotFound
		}
		return err
	}
	switch {
	case active != nil:
		return store.ErrArtisanBusy
	case approval != models.ApprovalApproved:
		return store.ErrArtisanNotApproved
	default:
		return store.ErrArtisanUnavailable
	}
}

func diagnoseProgress(ctx context.Context, tx pgx.Tx, input store.ActionInput) error {
	row := tx.QueryRow(ctx, `
		SELECT status, artisan_id
		FROM interventions
		WHERE intervention_id = $1
	`, input.InterventionID)
	var status string
	var artisanID *string
	if err := row.Scan(&status, &artisanID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrInterventionNotFound
		}
		return err
	}
	if artisanID == nil || *artisanID != input.ArtisanID {
		return store.ErrAccessDenied
	}
	return store.ErrInvalidState
}

// candidatesToWithdraw returns the artisans notified by the latest search
// broadcast, minus the winner, so their offers can be withdrawn.
func candidatesToWithdraw(ctx context.Context, tx pgx.Tx, interventionID, winnerID string) ([]string, error) {
	var payload json.RawMessage
	row := tx.QueryRow(ctx, `
		SELECT payload
		FROM status_events
		WHERE intervention_id = $1 AND status = 'searching'
		ORDER BY seq DESC
		LIMIT 1
	`, interventionID)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var data struct {
		Candidates []match.Candidate `json:"candidates"`
	}
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	var ids []string
	for _, candidate := range data.Candidates {
		if candidate.ArtisanID == winnerID {
			continue
		}
		ids = append(ids, candidate.ArtisanID)
	}
	return ids, nil
}

func findActionRequest(ctx context.Context, tx pgx.Tx, action, requestID string) (models.Intervention, bool, error) {
	var interventionID string
	row := tx.QueryRow(ctx, `
		SELECT intervention_id
		FROM action_requests
		WHERE action = $1 AND request_id = $2
	`, action, requestID)
	if err := row.Scan(&interventionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Intervention{}, false, nil
		}
		return models.Intervention{}, false, err
	}

	row = tx.QueryRow(ctx, `
		SELECT `+interventionColumns+`
		FROM interventions
		WHERE intervention_id = $1
	`, interventionID)
	intervention, err := scanIntervention(row)
	if err != nil {
		return models.Intervention{}, false, err
	}
	return intervention, true, nil
}

func insertActionRequest(ctx context.Context, tx pgx.Tx, action, requestID, interventionID, artisanID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO action_requests (action, request_id, intervention_id, artisan_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, action, requestID, interventionID, nullIfEmpty(artisanID), time.Now().UTC())
	return err
}

func appendStatusEvent(ctx context.Context, tx pgx.Tx, intervention models.Intervention, actor string, extra map[string]interface{}) error {
	var seq int
	var prevHash string
	row := tx.QueryRow(ctx, `
		SELECT seq, hash
		FROM status_events
		WHERE intervention_id = $1
		ORDER BY seq DESC
		LIMIT 1
		FOR UPDATE
	`, intervention.InterventionID)
	if err := row.Scan(&seq, &prevHash); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
	}
	seq++

	payload := map[string]interface{}{
		"intervention_id": intervention.InterventionID,
		"tracking_number": intervention.TrackingNumber,
		"status":          intervention.Status,
		"service_kind":    intervention.ServiceKind,
		"artisan_id":      intervention.ArtisanID,
		"client_id":       intervention.ClientID,
		"created_at":      intervention.CreatedAt,
		"assigned_at":     intervention.AssignedAt,
		"completed_at":    intervention.CompletedAt,
	}
	for key, value := range extra {
		payload[key] = value
	}
	payloadJSON, err := jsonBytes(payload)
	if err != nil {
		return err
	}

	createdAt := intervention.UpdatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	hash := store.ComputeStatusEventHash(prevHash, intervention.InterventionID, intervention.Status, actor, payloadJSON, createdAt, seq)

	_, err = tx.Exec(ctx, `
		INSERT INTO status_events (intervention_id, seq, status, actor, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, intervention.InterventionID, seq, intervention.Status, actor, payloadJSON, createdAt, prevHash, hash)
	return err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, payload map[string]interface{}) error {
	payloadJSON, err := jsonBytes(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, type, payload_json, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), eventType, payloadJSON, time.Now().UTC())
	return err
}

func createdPayload(intervention models.Intervention) map[string]interface{} {
	return map[string]interface{}{
		"tracking_number": intervention.TrackingNumber,
		"status":          intervention.Status,
		"service_kind":    intervention.ServiceKind,
		"address":         intervention.Address,
		"contact_email":   intervention.ContactEmail,
		"contact_phone":   intervention.ContactPhone,
		"created_at":      intervention.CreatedAt,
	}
}
