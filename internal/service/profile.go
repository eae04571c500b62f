package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tallyapp/tally-server/internal/auth"
	"github.com/tallyapp/tally-server/internal/domain"
	domainerrors "github.com/tallyapp/tally-server/internal/errors"
	"github.com/tallyapp/tally-server/internal/id"
	"github.com/tallyapp/tally-server/internal/media/images"
	"github.com/tallyapp/tally-server/internal/store"
)

// MaxPhotoSize is the maximum profile photo upload size (2MB).
// Photos are displayed as small circles, anything larger is wasted bandwidth.
const MaxPhotoSize = 2 * 1024 * 1024

// ProfileService handles user profile management: display name, profile
// photo, and account deletion.
type ProfileService struct {
	store   *store.Store
	photos  *images.Storage
	sharing *SharingService
	logger  *slog.Logger
}

// NewProfileService creates a new profile service.
func NewProfileService(
	store *store.Store,
	photos *images.Storage,
	sharing *SharingService,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		store:   store,
		photos:  photos,
		sharing: sharing,
		logger:  logger,
	}
}

// UpdateProfileRequest contains profile fields to update.
// Nil fields are left unchanged.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
}

// DeleteAccountRequest carries the re-authentication for account deletion.
type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

// GetProfile returns a user's profile.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, domainerrors.NotFound("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateProfile updates a user's profile fields.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*domain.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return nil, domainerrors.Validation("display_name cannot be empty")
		}
		if len(name) > 100 {
			return nil, domainerrors.Validation("display_name exceeds maximum length of 100 characters")
		}
		user.DisplayName = name
	}

	user.Touch()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	return user, nil
}

// UploadPhoto stores a new profile photo for a user.
// The photo gets a fresh ID each upload so clients cache aggressively by ID.
func (s *ProfileService) UploadPhoto(ctx context.Context, userID string, imageData []byte) (*domain.User, error) {
	if len(imageData) == 0 {
		return nil, domainerrors.Validation("image data is required")
	}
	if len(imageData) > MaxPhotoSize {
		return nil, domainerrors.Validationf("image exceeds maximum size of %d bytes", MaxPhotoSize)
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	photoID, err := id.Generate("photo")
	if err != nil {
		return nil, fmt.Errorf("generate photo ID: %w", err)
	}

	if err := s.photos.Save(photoID, imageData); err != nil {
		return nil, fmt.Errorf("save photo: %w", err)
	}

	blurHash, err := images.ComputeBlurHash(s.photos.Path(photoID))
	if err != nil {
		// A missing placeholder is cosmetic; keep the upload.
		s.logger.Warn("Failed to compute photo blurhash",
			"user_id", userID,
			"error", err,
		)
		blurHash = ""
	}

	oldPhotoID := user.PhotoID
	user.PhotoID = photoID
	user.PhotoBlurHash = blurHash
	user.Touch()

	if err := s.store.UpdateUser(ctx, user); err != nil {
		_ = s.photos.Delete(photoID)
		return nil, fmt.Errorf("update user: %w", err)
	}

	if oldPhotoID != "" {
		if err := s.photos.Delete(oldPhotoID); err != nil {
			s.logger.Warn("Failed to delete previous profile photo",
				"user_id", userID,
				"photo_id", oldPhotoID,
				"error", err,
			)
		}
	}

	s.logger.Info("Profile photo updated",
		"user_id", userID,
		"photo_id", photoID,
		"size_bytes", len(imageData),
	)

	return user, nil
}

// RemovePhoto deletes a user's profile photo.
func (s *ProfileService) RemovePhoto(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.PhotoID == "" {
		return user, nil
	}

	photoID := user.PhotoID
	user.PhotoID = ""
	user.PhotoBlurHash = ""
	user.Touch()

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	if err := s.photos.Delete(photoID); err != nil {
		s.logger.Warn("Failed to delete profile photo file",
			"user_id", userID,
			"photo_id", photoID,
			"error", err,
		)
	}

	return user, nil
}

// GetPhoto returns the raw photo bytes for a photo ID.
func (s *ProfileService) GetPhoto(photoID string) ([]byte, error) {
	if photoID == "" {
		return nil, domainerrors.NotFound("photo not found")
	}
	data, err := s.photos.Get(photoID)
	if err != nil {
		return nil, domainerrors.NotFound("photo not found").WithCause(err)
	}
	return data, nil
}

// DeleteAccount permanently removes a user and everything they own after
// re-verifying their password. Shares are unwound first so other users'
// collections don't keep copies pointing at a deleted account. Each step is
// best effort once the password checks out; the account goes away even if a
// cleanup step fails.
func (s *ProfileService) DeleteAccount(ctx context.Context, userID string, req DeleteAccountRequest) error {
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	valid, err := auth.VerifyPassword(user.PasswordHash, req.Password)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return domainerrors.InvalidCredentials("password is incorrect")
	}

	trackers, err := s.store.ListTrackers(ctx, userID)
	if err != nil {
		return fmt.Errorf("list trackers: %w", err)
	}
	if err := s.sharing.UnwindUserShares(ctx, trackers); err != nil {
		s.logger.Warn("Account deletion: share unwind incomplete",
			"user_id", userID,
			"error", err,
		)
	}

	// Sweep any trackers the unwind could not cascade.
	if err := s.store.DeleteUserTrackers(ctx, userID); err != nil {
		s.logger.Warn("Account deletion: tracker sweep failed",
			"user_id", userID,
			"error", err,
		)
	}

	if err := s.store.DeleteAllUserSessions(ctx, userID); err != nil {
		s.logger.Warn("Account deletion: session cleanup failed",
			"user_id", userID,
			"error", err,
		)
	}

	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if user.PhotoID != "" {
		if err := s.photos.Delete(user.PhotoID); err != nil {
			s.logger.Warn("Account deletion: photo cleanup failed",
				"user_id", userID,
				"photo_id", user.PhotoID,
				"error", err,
			)
		}
	}

	s.logger.Info("Account deleted", "user_id", userID)

	return nil
}
