package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/tallyapp/tally-server/internal/http/response"
	"github.com/tallyapp/tally-server/internal/service"
)

func (s *Server) registerProfileRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getProfile",
		Method:      http.MethodGet,
		Path:        "/api/v1/profile",
		Summary:     "Get profile",
		Tags:        []string{"Profile"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetProfile)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateProfile",
		Method:      http.MethodPatch,
		Path:        "/api/v1/profile",
		Summary:     "Update profile",
		Tags:        []string{"Profile"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateProfile)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteAccount",
		Method:      http.MethodDelete,
		Path:        "/api/v1/profile",
		Summary:     "Delete account",
		Description: "Permanently deletes the caller's account after re-verifying their password. Their trackers, shares, sessions, and photo are removed.",
		Tags:        []string{"Profile"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteAccount)

	huma.Register(s.api, huma.Operation{
		OperationID:  "uploadPhoto",
		Method:       http.MethodPost,
		Path:         "/api/v1/profile/photo",
		Summary:      "Upload profile photo",
		Description:  "Replaces the caller's profile photo with the raw request body.",
		Tags:         []string{"Profile"},
		Security:     []map[string][]string{{"bearer": {}}},
		MaxBodyBytes: service.MaxPhotoSize,
	}, s.handleUploadPhoto)

	huma.Register(s.api, huma.Operation{
		OperationID: "removePhoto",
		Method:      http.MethodDelete,
		Path:        "/api/v1/profile/photo",
		Summary:     "Remove profile photo",
		Tags:        []string{"Profile"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRemovePhoto)

	huma.Register(s.api, huma.Operation{
		OperationID: "listSessions",
		Method:      http.MethodGet,
		Path:        "/api/v1/profile/sessions",
		Summary:     "List sessions",
		Description: "Lists the caller's active sessions, for a manage-devices view.",
		Tags:        []string{"Profile"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListSessions)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteSession",
		Method:      http.MethodDelete,
		Path:        "/api/v1/profile/sessions/{id}",
		Summary:     "Revoke session",
		Tags:        []string{"Profile"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteSession)

	// NOTE: photo serving registered directly on chi (not Huma) because the
	// raw image bytes must skip the JSON envelope.
	s.router.Get("/api/v1/profile/photo/{id}", s.handleServePhoto)
}

// === DTOs ===

// UpdateProfileRequest is the request body for profile updates.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty" doc:"New display name"`
}

// UpdateProfileInput wraps the profile update for Huma.
type UpdateProfileInput struct {
	Body UpdateProfileRequest
}

// DeleteAccountRequest carries the re-authentication for account deletion.
type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required" doc:"Current password"`
}

// DeleteAccountInput wraps the account deletion request for Huma.
type DeleteAccountInput struct {
	Body DeleteAccountRequest
}

// UploadPhotoInput carries the raw photo image bytes.
type UploadPhotoInput struct {
	ContentType string `header:"Content-Type" doc:"Image MIME type"`
	RawBody     []byte
}

// UserOutput wraps a user profile for Huma.
type UserOutput struct {
	Body UserResponse
}

// SessionResponse describes an active session without its token hash.
type SessionResponse struct {
	ID         string    `json:"id" doc:"Session ID"`
	CreatedAt  time.Time `json:"created_at" doc:"When the session was created"`
	LastSeenAt time.Time `json:"last_seen_at" doc:"Last activity timestamp"`
	ExpiresAt  time.Time `json:"expires_at" doc:"When the refresh token expires"`
	IPAddress  string    `json:"ip_address,omitempty" doc:"Client IP at login"`
	Platform   string    `json:"platform,omitempty" doc:"Platform (iOS, Android, Web)"`
	ClientName string    `json:"client_name,omitempty" doc:"Client name"`
	DeviceName string    `json:"device_name,omitempty" doc:"User-set device name"`
}

// SessionListResponse contains the caller's active sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions" doc:"Active sessions"`
}

// SessionListOutput wraps the session list for Huma.
type SessionListOutput struct {
	Body SessionListResponse
}

// SessionIDInput identifies a session by path parameter.
type SessionIDInput struct {
	ID string `path:"id" doc:"Session ID"`
}

// === Handlers ===

func (s *Server) handleGetProfile(ctx context.Context, _ *struct{}) (*UserOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.services.Profile.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: mapUserResponse(user)}, nil
}

func (s *Server) handleUpdateProfile(ctx context.Context, input *UpdateProfileInput) (*UserOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	req := service.UpdateProfileRequest{
		DisplayName: input.Body.DisplayName,
	}

	user, err := s.services.Profile.UpdateProfile(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: mapUserResponse(user)}, nil
}

func (s *Server) handleDeleteAccount(ctx context.Context, input *DeleteAccountInput) (*MessageOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	req := service.DeleteAccountRequest{
		Password: input.Body.Password,
	}

	if err := s.services.Profile.DeleteAccount(ctx, userID, req); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Account deleted"}}, nil
}

func (s *Server) handleUploadPhoto(ctx context.Context, input *UploadPhotoInput) (*UserOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.services.Profile.UploadPhoto(ctx, userID, input.RawBody)
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: mapUserResponse(user)}, nil
}

func (s *Server) handleRemovePhoto(ctx context.Context, _ *struct{}) (*UserOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.services.Profile.RemovePhoto(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UserOutput{Body: mapUserResponse(user)}, nil
}

// Refresh token hashes are stripped before serving.
func (s *Server) handleListSessions(ctx context.Context, _ *struct{}) (*SessionListOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	sessions, err := s.services.Session.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, SessionResponse{
			ID:         session.ID,
			CreatedAt:  session.CreatedAt,
			LastSeenAt: session.LastSeenAt,
			ExpiresAt:  session.ExpiresAt,
			IPAddress:  session.IPAddress,
			Platform:   session.Platform,
			ClientName: session.ClientName,
			DeviceName: session.DeviceName,
		})
	}

	return &SessionListOutput{Body: SessionListResponse{Sessions: out}}, nil
}

// handleDeleteSession revokes one of the caller's sessions. Ownership is
// checked so a caller can't revoke someone else's session by ID.
func (s *Server) handleDeleteSession(ctx context.Context, input *SessionIDInput) (*MessageOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	session, err := s.store.GetSession(ctx, input.ID)
	if err != nil || session.UserID != userID {
		return nil, huma.Error404NotFound("session not found")
	}

	if err := s.services.Session.DeleteSession(ctx, input.ID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Session revoked"}}, nil
}

// handleServePhoto serves raw photo bytes. Photo IDs change on every upload,
// so responses are cached as immutable.
func (s *Server) handleServePhoto(w http.ResponseWriter, r *http.Request) {
	photoID := chi.URLParam(r, "id")

	data, err := s.services.Profile.GetPhoto(photoID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", cacheControlImmutable)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("Failed to write photo response", "photo_id", photoID, "error", err)
	}
}
