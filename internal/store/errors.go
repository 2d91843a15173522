package store

import "errors"

var (
	ErrInterventionNotFound = errors.New("intervention not found")
	ErrArtisanNotFound      = errors.New("artisan not found")
	ErrInvalidState         = errors.New("invalid intervention state")
	ErrMissionTaken         = errors.New("mission already taken")
	ErrArtisanBusy          = errors.New("artisan already holds an active mission")
	ErrArtisanUnavailable   = errors.New("artisan not available")
	ErrArtisanNotApproved   = errors.New("artisan not approved")
	ErrAccessDenied         = errors.New("access denied")
	ErrSessionNotFound      = errors.New("session not found")
	ErrAlreadyLinked        = errors.New("intervention linked to another account")
)
