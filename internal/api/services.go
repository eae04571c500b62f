package api

import (
	"github.com/tallyapp/tally-server/internal/service"
)

// Services groups all business logic services used by the API server.
// This reduces the parameter count for NewServer and improves testability.
type Services struct {
	Auth    *service.AuthService
	Session *service.SessionService
	Tracker *service.TrackerService
	Sharing *service.SharingService
	Profile *service.ProfileService
	Icon    *service.IconService
}
