package domain

import "errors"

var (
	// ErrConfigMissing indicates the slide has no quiz configuration.
	ErrConfigMissing = errors.New("quiz configuration not found")
	// ErrSessionNotFound is returned when a quiz session has not been initialized.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionNotActive is returned for submissions outside the active window.
	ErrSessionNotActive = errors.New("quiz session is not active")
	// ErrDuplicateSubmission is returned on a second answer from the same participant.
	ErrDuplicateSubmission = errors.New("participant has already answered this quiz")
	// ErrSlideNotFound indicates the slide itself could not be loaded.
	ErrSlideNotFound = errors.New("slide not found")
)
