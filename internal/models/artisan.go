package models

import "time"

type Artisan struct {
	ArtisanID            string     `json:"artisan_id"`
	ApprovalStatus       string     `json:"approval_status"`
	Available            bool       `json:"available"`
	BaseLatitude         *float64   `json:"base_latitude,omitempty"`
	BaseLongitude        *float64   `json:"base_longitude,omitempty"`
	RadiusKm             float64    `json:"radius_km"`
	ActiveInterventionID *string    `json:"active_intervention_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	LastSeenAt           *time.Time `json:"last_seen_at,omitempty"`
}

const (
	ApprovalPending   = "pending"
	ApprovalApproved  = "approved"
	ApprovalRejected  = "rejected"
	ApprovalSuspended = "suspended"
)
