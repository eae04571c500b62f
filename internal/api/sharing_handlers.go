package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerSharingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "shareTracker",
		Method:      http.MethodPost,
		Path:        "/api/v1/trackers/{id}/shares",
		Summary:     "Share tracker",
		Description: "Shares a tracker with another user by email, cloning it into their collection.",
		Tags:        []string{"Sharing"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleShareTracker)

	huma.Register(s.api, huma.Operation{
		OperationID: "unshareTracker",
		Method:      http.MethodDelete,
		Path:        "/api/v1/trackers/{id}/shares/{userID}",
		Summary:     "Unshare tracker",
		Description: "Revokes a share and removes the recipient's copy.",
		Tags:        []string{"Sharing"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUnshareTracker)
}

// ShareRequest identifies the share recipient by email.
type ShareRequest struct {
	Email string `json:"email" validate:"required,email" doc:"Recipient email address"`
}

// ShareInput wraps the share request for Huma.
type ShareInput struct {
	ID   string `path:"id" doc:"Tracker ID"`
	Body ShareRequest
}

// UnshareInput identifies the share to revoke.
type UnshareInput struct {
	ID     string `path:"id" doc:"Tracker ID"`
	UserID string `path:"userID" doc:"Recipient user ID"`
}

func (s *Server) handleShareTracker(ctx context.Context, input *ShareInput) (*TrackerOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	cp, err := s.services.Sharing.Share(ctx, userID, input.ID, input.Body.Email)
	if err != nil {
		return nil, err
	}

	return &TrackerOutput{Body: cp}, nil
}

func (s *Server) handleUnshareTracker(ctx context.Context, input *UnshareInput) (*MessageOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.services.Sharing.Unshare(ctx, userID, input.ID, input.UserID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Share revoked"}}, nil
}
