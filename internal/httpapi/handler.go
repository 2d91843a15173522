package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JeremyGnt/serenio-sub002/internal/geo"
	"github.com/JeremyGnt/serenio-sub002/internal/models"
	"github.com/JeremyGnt/serenio-sub002/internal/store"

	"github.com/google/uuid"
)

// Dispatcher moves a freshly created intervention into searching when
// eligible artisans exist. A failed attempt is not fatal: the background
// scanner retries pending interventions.
type Dispatcher interface {
	TryBeginSearch(ctx context.Context, intervention models.Intervention) (models.Intervention, bool, error)
}

type Handler struct {
	store      store.InterventionStore
	dispatcher Dispatcher
	// escalationRadiusFactor widens the offers filter for searches that have
	// already been escalated, matching the dispatcher's widened candidate set.
	escalationRadiusFactor float64
}

func NewHandler(store store.InterventionStore, dispatcher Dispatcher, escalationRadiusFactor float64) *Handler {
	if escalationRadiusFactor < 1 {
		escalationRadiusFactor = 1
	}
	return &Handler{store: store, dispatcher: dispatcher, escalationRadiusFactor: escalationRadiusFactor}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/interventions", h.handleInterventions)
	mux.HandleFunc("/api/interventions/active", h.handleActiveIntervention)
	mux.HandleFunc("/api/interventions/link", h.handleLink)
	mux.HandleFunc("/api/interventions/", h.handleInterventionActions)
	mux.HandleFunc("/api/tracking/", h.handleTracking)
	mux.HandleFunc("/api/artisans/availability", h.handleAvailability)
	mux.HandleFunc("/api/artisans/me", h.handleArtisanMe)
	mux.HandleFunc("/api/artisans/offers", h.handleArtisanOffers)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

type createInterventionRequest struct {
	RequestID    string   `json:"request_id"`
	ServiceKind  string   `json:"service_kind"`
	ContactEmail string   `json:"contact_email"`
	ContactPhone string   `json:"contact_phone"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	Address      string   `json:"address"`
	Diagnostic   string   `json:"diagnostic"`
}

type linkRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

type actionRequest struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// trackingView is the coarse public shape. No address, no contact, no
// artisan identity, and never the internal intervention id.
type trackingView struct {
	TrackingNumber string    `json:"tracking_number"`
	Status         string    `json:"status"`
	ServiceKind    string    `json:"service_kind"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type historyEntry struct {
	Status    string    `json:"status"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

// interventionDetail is disclosed only to the linked owner or the assigned
// artisan.
type interventionDetail struct {
	InterventionID string         `json:"intervention_id"`
	TrackingNumber string         `json:"tracking_number"`
	Status         string         `json:"status"`
	ServiceKind    string         `json:"service_kind"`
	ContactEmail   string         `json:"contact_email"`
	ContactPhone   string         `json:"contact_phone"`
	Latitude       *float64       `json:"latitude"`
	Longitude      *float64       `json:"longitude"`
	Address        string         `json:"address"`
	Diagnostic     string         `json:"diagnostic"`
	ArtisanID      *string        `json:"artisan_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	AssignedAt     *time.Time     `json:"assigned_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	History        []historyEntry `json:"history,omitempty"`
}

type artisanView struct {
	ArtisanID            string     `json:"artisan_id"`
	ApprovalStatus       string     `json:"approval_status"`
	Available            bool       `json:"available"`
	BaseLatitude         *float64   `json:"base_latitude"`
	BaseLongitude        *float64   `json:"base_longitude"`
	RadiusKm             float64    `json:"radius_km"`
	ActiveInterventionID *string    `json:"active_intervention_id"`
	LastSeenAt           *time.Time `json:"last_seen_at"`
}

type offerView struct {
	InterventionID string    `json:"intervention_id"`
	TrackingNumber string    `json:"tracking_number"`
	ServiceKind    string    `json:"service_kind"`
	DistanceKm     float64   `json:"distance_km"`
	Address        string    `json:"address"`
	Diagnostic     string    `json:"diagnostic"`
	CreatedAt      time.Time `json:"created_at"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleInterventions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req createInterventionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.RequestID = strings.TrimSpace(req.RequestID)
	req.ServiceKind = strings.TrimSpace(req.ServiceKind)
	req.ContactEmail = strings.TrimSpace(req.ContactEmail)
	req.ContactPhone = strings.TrimSpace(req.ContactPhone)
	req.Address = strings.TrimSpace(req.Address)
	req.Diagnostic = strings.TrimSpace(req.Diagnostic)

	if req.RequestID == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id is required")
		return
	}
	if !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}
	if req.ServiceKind != models.ServiceKindUrgence && req.ServiceKind != models.ServiceKindRdv {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "service_kind must be urgence or rdv")
		return
	}
	if req.ContactEmail == "" && req.ContactPhone == "" {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "contact_email or contact_phone is required")
		return
	}
	if req.ContactEmail != "" && !strings.Contains(req.ContactEmail, "@") {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "contact_email must be an email address")
		return
	}
	if req.ContactPhone != "" && !isValidPhone(req.ContactPhone) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "contact_phone must be 8-16 digits")
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "latitude and longitude must be provided together")
		return
	}
	if req.Latitude != nil && (*req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "latitude or longitude out of range")
		return
	}

	var clientID string
	if session, ok := sessionFromContext(r.Context()); ok && session.Role == store.RoleClient {
		clientID = session.AccountID
	}

	input := store.CreateInterventionInput{
		RequestID:    req.RequestID,
		ServiceKind:  req.ServiceKind,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Address:      req.Address,
		Diagnostic:   req.Diagnostic,
		ClientID:     clientID,
		CreatedAt:    time.Now().UTC(),
	}

	intervention, created, err := h.store.CreateIntervention(r.Context(), input)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	if created && h.dispatcher != nil {
		if updated, started, err := h.dispatcher.TryBeginSearch(r.Context(), intervention); err != nil {
			log.Printf("level=warn msg=\"begin search failed\" tracking_number=%s error=%q", intervention.TrackingNumber, err)
		} else if started {
			intervention = updated
		}
	}

	writeJSON(w, http.StatusOK, toTrackingView(intervention))
}

func (h *Handler) handleTracking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	trackingNumber := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/tracking/"), "/")
	if trackingNumber == "" || strings.Contains(trackingNumber, "/") {
		writeError(w, "", http.StatusNotFound, "intervention_not_found", "intervention not found")
		return
	}

	intervention, err := h.store.GetByTracking(r.Context(), trackingNumber)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	session, authenticated := sessionFromContext(r.Context())
	isOwner := authenticated && session.Role == store.RoleClient &&
		intervention.ClientID != nil && *intervention.ClientID == session.AccountID
	isAssigned := authenticated && session.Role == store.RoleArtisan &&
		intervention.ArtisanID != nil && *intervention.ArtisanID == session.AccountID

	if isOwner || isAssigned {
		detail := toDetail(intervention)
		if events, err := h.store.ListStatusEvents(r.Context(), intervention.InterventionID); err == nil {
			detail.History = toHistory(events)
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}

	// A linked intervention is invisible to everyone but its owner and the
	// assigned artisan. Indistinguishable from an unknown tracking number.
	if intervention.ClientID != nil {
		writeError(w, "", http.StatusNotFound, "intervention_not_found", "intervention not found")
		return
	}

	writeJSON(w, http.StatusOK, toTrackingView(intervention))
}

func (h *Handler) handleActiveIntervention(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireRole(w, r, store.RoleClient)
	if !ok {
		return
	}

	intervention, found, err := h.store.GetActiveForClient(r.Context(), session.AccountID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, toDetail(intervention))
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireRole(w, r, store.RoleClient)
	if !ok {
		return
	}

	var req linkRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.TrackingNumber = strings.TrimSpace(req.TrackingNumber)
	if req.TrackingNumber == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "tracking_number is required")
		return
	}

	intervention, linked, err := h.store.LinkClient(r.Context(), req.TrackingNumber, session.AccountID)
	if err != nil {
		// A tracking number owned by a different account is hidden the same
		// way an unknown one is.
		if errors.Is(err, store.ErrAlreadyLinked) {
			writeError(w, "", http.StatusNotFound, "intervention_not_found", "intervention not found")
			return
		}
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Linked       bool               `json:"linked"`
		Intervention interventionDetail `json:"intervention"`
	}{Linked: linked, Intervention: toDetail(intervention)})
}

func (h *Handler) handleInterventionActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/interventions/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[1] != "actions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	interventionID := parts[0]
	action := parts[2]
	if !isValidUUID(interventionID) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "intervention_id must be a UUID")
		return
	}

	switch action {
	case "accept":
		h.handleAccept(w, r, interventionID)
	case "decline":
		h.handleDecline(w, r, interventionID)
	case "confirm":
		h.handleProgress(w, r, interventionID, h.store.Confirm)
	case "en-route":
		h.handleProgress(w, r, interventionID, h.store.MarkEnRoute)
	case "complete":
		h.handleProgress(w, r, interventionID, h.store.Complete)
	case "cancel":
		h.handleCancel(w, r, interventionID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request, interventionID string) {
	session, ok := requireRole(w, r, store.RoleArtisan)
	if !ok {
		return
	}
	var req actionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" || !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	intervention, err := h.store.Accept(r.Context(), store.AcceptInput{
		RequestID:      req.RequestID,
		InterventionID: interventionID,
		ArtisanID:      session.AccountID,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, toDetail(intervention))
}

func (h *Handler) handleDecline(w http.ResponseWriter, r *http.Request, interventionID string) {
	session, ok := requireRole(w, r, store.RoleArtisan)
	if !ok {
		return
	}
	var req actionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	err := h.store.Decline(r.Context(), store.ActionInput{
		RequestID:      strings.TrimSpace(req.RequestID),
		InterventionID: interventionID,
		ArtisanID:      session.AccountID,
		Reason:         strings.TrimSpace(req.Reason),
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Declined bool `json:"declined"`
	}{Declined: true})
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request, interventionID string, op func(context.Context, store.ActionInput) (models.Intervention, error)) {
	session, ok := requireRole(w, r, store.RoleArtisan)
	if !ok {
		return
	}
	var req actionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" || !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	intervention, err := op(r.Context(), store.ActionInput{
		RequestID:      req.RequestID,
		InterventionID: interventionID,
		ArtisanID:      session.AccountID,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, toDetail(intervention))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request, interventionID string) {
	session, ok := requireRole(w, r, store.RoleClient, store.RoleAdmin)
	if !ok {
		return
	}
	var req actionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.RequestID = strings.TrimSpace(req.RequestID)
	if req.RequestID == "" || !isValidUUID(req.RequestID) {
		writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id must be a UUID")
		return
	}

	actor := "system"
	if session.Role == store.RoleClient {
		actor = "client"
		current, err := h.store.GetIntervention(r.Context(), interventionID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, req.RequestID, status, code, msg)
			return
		}
		if current.ClientID == nil || *current.ClientID != session.AccountID {
			writeError(w, req.RequestID, http.StatusNotFound, "intervention_not_found", "intervention not found")
			return
		}
	}

	intervention, err := h.store.Cancel(r.Context(), store.CancelInput{
		RequestID:      req.RequestID,
		InterventionID: interventionID,
		Actor:          actor,
		Reason:         strings.TrimSpace(req.Reason),
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, req.RequestID, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, toDetail(intervention))
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireRole(w, r, store.RoleArtisan)
	if !ok {
		return
	}
	var req availabilityRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	if req.Available == nil {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "available is required")
		return
	}

	artisan, err := h.store.SetArtisanAvailability(r.Context(), session.AccountID, *req.Available)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, toArtisanView(artisan))
}

func (h *Handler) handleArtisanMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireRole(w, r, store.RoleArtisan)
	if !ok {
		return
	}

	artisan, err := h.store.GetArtisan(r.Context(), session.AccountID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, toArtisanView(artisan))
}

// handleArtisanOffers lists searching interventions this artisan may accept,
// nearest first. This is the only place the internal intervention id crosses
// to an artisan before assignment.
func (h *Handler) handleArtisanOffers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, ok := requireRole(w, r, store.RoleArtisan)
	if !ok {
		return
	}

	artisan, err := h.store.GetArtisan(r.Context(), session.AccountID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	if artisan.ApprovalStatus != models.ApprovalApproved || !artisan.Available ||
		artisan.ActiveInterventionID != nil ||
		artisan.BaseLatitude == nil || artisan.BaseLongitude == nil {
		writeJSON(w, http.StatusOK, []offerView{})
		return
	}

	searching, err := h.store.ListSearchingInterventions(r.Context(), 100)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	offers := []offerView{}
	for _, intervention := range searching {
		if intervention.Latitude == nil || intervention.Longitude == nil {
			continue
		}
		declined, err := h.store.ListDeclines(r.Context(), intervention.InterventionID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		if containsString(declined, artisan.ArtisanID) {
			continue
		}
		distance := geo.DistanceKm(*intervention.Latitude, *intervention.Longitude, *artisan.BaseLatitude, *artisan.BaseLongitude)
		radius := artisan.RadiusKm
		if intervention.LastEscalatedAt != nil {
			radius *= h.escalationRadiusFactor
		}
		if distance > radius {
			continue
		}
		offers = append(offers, offerView{
			InterventionID: intervention.InterventionID,
			TrackingNumber: intervention.TrackingNumber,
			ServiceKind:    intervention.ServiceKind,
			DistanceKm:     distance,
			Address:        intervention.Address,
			Diagnostic:     intervention.Diagnostic,
			CreatedAt:      intervention.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, offers)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireRole(w, r, store.RoleAdmin); !ok {
		return
	}

	afterRaw := strings.TrimSpace(r.URL.Query().Get("after"))
	var after time.Time
	if afterRaw != "" {
		parsed, err := time.Parse(time.RFC3339, afterRaw)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "after must be RFC3339 timestamp")
			return
		}
		after = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.store.ListOutboxEvents(r.Context(), after, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, events)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func toTrackingView(intervention models.Intervention) trackingView {
	return trackingView{
		TrackingNumber: intervention.TrackingNumber,
		Status:         intervention.Status,
		ServiceKind:    intervention.ServiceKind,
		CreatedAt:      intervention.CreatedAt,
		UpdatedAt:      intervention.UpdatedAt,
	}
}

func toDetail(intervention models.Intervention) interventionDetail {
	return interventionDetail{
		InterventionID: intervention.InterventionID,
		TrackingNumber: intervention.TrackingNumber,
		Status:         intervention.Status,
		ServiceKind:    intervention.ServiceKind,
		ContactEmail:   intervention.ContactEmail,
		ContactPhone:   intervention.ContactPhone,
		Latitude:       intervention.Latitude,
		Longitude:      intervention.Longitude,
		Address:        intervention.Address,
		Diagnostic:     intervention.Diagnostic,
		ArtisanID:      intervention.ArtisanID,
		CreatedAt:      intervention.CreatedAt,
		UpdatedAt:      intervention.UpdatedAt,
		AssignedAt:     intervention.AssignedAt,
		CompletedAt:    intervention.CompletedAt,
	}
}

func toHistory(events []store.StatusEvent) []historyEntry {
	entries := make([]historyEntry, 0, len(events))
	for _, event := range events {
		entries = append(entries, historyEntry{
			Status:    event.Status,
			Actor:     event.Actor,
			Timestamp: event.CreatedAt,
		})
	}
	return entries
}

func toArtisanView(artisan models.Artisan) artisanView {
	return artisanView{
		ArtisanID:            artisan.ArtisanID,
		ApprovalStatus:       artisan.ApprovalStatus,
		Available:            artisan.Available,
		BaseLatitude:         artisan.BaseLatitude,
		BaseLongitude:        artisan.BaseLongitude,
		RadiusKm:             artisan.RadiusKm,
		ActiveInterventionID: artisan.ActiveInterventionID,
		LastSeenAt:           artisan.LastSeenAt,
	}
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidPhone(value string) bool {
	digits := 0
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 8 && digits <= 16
}

func containsString(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrInterventionNotFound):
		return http.StatusNotFound, "intervention_not_found", "intervention not found"
	case errors.Is(err, store.ErrArtisanNotFound):
		return http.StatusNotFound, "artisan_not_found", "artisan not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "intervention state does not allow this action"
	case errors.Is(err, store.ErrMissionTaken):
		return http.StatusConflict, "mission_taken", "mission no longer available"
	case errors.Is(err, store.ErrArtisanBusy):
		return http.StatusConflict, "artisan_busy", "artisan already holds an active mission"
	case errors.Is(err, store.ErrArtisanUnavailable):
		return http.StatusConflict, "artisan_unavailable", "artisan is not available"
	case errors.Is(err, store.ErrArtisanNotApproved):
		return http.StatusForbidden, "artisan_not_approved", "artisan is not approved"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
