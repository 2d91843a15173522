package models

import "time"

type Intervention struct {
	InterventionID string     `json:"intervention_id,omitempty"`
	TrackingNumber string     `json:"tracking_number"`
	Status         string     `json:"status"`
	ServiceKind    string     `json:"service_kind"`
	ClientID       *string    `json:"client_id,omitempty"`
	ContactEmail   string     `json:"contact_email,omitempty"`
	ContactPhone   string     `json:"contact_phone,omitempty"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
	Address        string     `json:"address,omitempty"`
	Diagnostic     string     `json:"diagnostic,omitempty"`
	ArtisanID      *string    `json:"artisan_id,omitempty"`
	RequestID      string     `json:"request_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	AssignedAt     *time.Time `json:"assigned_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	// LastEscalatedAt is set when a stalled search had its radius widened.
	LastEscalatedAt *time.Time `json:"last_escalated_at,omitempty"`
}

const (
	StatusPending   = "pending"
	StatusSearching = "searching"
	StatusAssigned  = "assigned"
	StatusAccepted  = "accepted"
	StatusEnRoute   = "en_route"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	ServiceKindUrgence = "urgence"
	ServiceKindRdv     = "rdv"
)

// ActiveStatuses is the set a client can hold at most one intervention in.
var ActiveStatuses = []string{StatusPending, StatusSearching, StatusAssigned, StatusAccepted, StatusEnRoute}

func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

func IsActive(status string) bool {
	for _, s := range ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// HasArtisan reports whether the status implies a non-nil artisan assignment.
func HasArtisan(status string) bool {
	switch status {
	case StatusAssigned, StatusAccepted, StatusEnRoute, StatusCompleted:
		return true
	default:
		return false
	}
}
