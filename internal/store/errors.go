package store

import "errors"

// Sentinel errors returned by the store layer. Services translate these into
// domain errors with codes before they reach handlers.
var (
	// ErrUserNotFound is returned when a user cannot be found by ID or email.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when attempting to create a user with an existing ID.
	ErrUserExists = errors.New("user already exists")
	// ErrEmailExists is returned when attempting to create a user with an email that's already in use.
	ErrEmailExists = errors.New("email already in use")
	// ErrSessionNotFound is returned when a session cannot be found by ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when attempting to use an expired session.
	ErrSessionExpired = errors.New("session expired")
	// ErrTrackerNotFound is returned when a tracker cannot be found in the owner's collection.
	ErrTrackerNotFound = errors.New("tracker not found")
	// ErrTrackerExists is returned when attempting to create a tracker with an existing ID.
	ErrTrackerExists = errors.New("tracker already exists")
	// ErrCopyNotFound is returned when no copy of a given original exists in a user's collection.
	ErrCopyNotFound = errors.New("shared copy not found")
)
