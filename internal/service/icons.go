package service

import (
	"context"
	"fmt"
	"log/slog"

	domainerrors "github.com/tallyapp/tally-server/internal/errors"
	"github.com/tallyapp/tally-server/internal/id"
	"github.com/tallyapp/tally-server/internal/media/images"
)

// MaxIconSize is the maximum tracker icon upload size (1MB).
// Icons render at list-row size; anything larger is wasted bandwidth.
const MaxIconSize = 1 * 1024 * 1024

// IconService manages custom tracker icon images. Icons are uploaded once
// and referenced by ID from any number of trackers.
type IconService struct {
	icons  *images.Storage
	logger *slog.Logger
}

// NewIconService creates a new icon service.
func NewIconService(icons *images.Storage, logger *slog.Logger) *IconService {
	return &IconService{
		icons:  icons,
		logger: logger,
	}
}

// IconInfo describes an uploaded icon.
type IconInfo struct {
	ID       string `json:"id"`
	BlurHash string `json:"blur_hash,omitempty"`
}

// Upload stores a new icon image and returns its ID and placeholder hash.
func (s *IconService) Upload(ctx context.Context, imageData []byte) (*IconInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(imageData) == 0 {
		return nil, domainerrors.Validation("image data is required")
	}
	if len(imageData) > MaxIconSize {
		return nil, domainerrors.Validationf("image exceeds maximum size of %d bytes", MaxIconSize)
	}

	iconID, err := id.Generate("icon")
	if err != nil {
		return nil, fmt.Errorf("generate icon ID: %w", err)
	}

	if err := s.icons.Save(iconID, imageData); err != nil {
		return nil, fmt.Errorf("save icon: %w", err)
	}

	blurHash, err := images.ComputeBlurHash(s.icons.Path(iconID))
	if err != nil {
		_ = s.icons.Delete(iconID)
		return nil, domainerrors.Validation("image could not be decoded").WithCause(err)
	}

	s.logger.Info("icon uploaded",
		"icon_id", iconID,
		"size_bytes", len(imageData),
	)

	return &IconInfo{ID: iconID, BlurHash: blurHash}, nil
}

// Get returns the raw icon bytes for serving.
func (s *IconService) Get(iconID string) ([]byte, error) {
	if iconID == "" {
		return nil, domainerrors.NotFound("icon not found")
	}
	data, err := s.icons.Get(iconID)
	if err != nil {
		return nil, domainerrors.NotFound("icon not found").WithCause(err)
	}
	return data, nil
}

// Exists reports whether an icon with the given ID is stored.
func (s *IconService) Exists(iconID string) bool {
	return s.icons.Exists(iconID)
}

// BlurHash computes the placeholder hash for a stored icon.
func (s *IconService) BlurHash(iconID string) (string, error) {
	if !s.icons.Exists(iconID) {
		return "", domainerrors.NotFound("icon not found")
	}
	return images.ComputeBlurHash(s.icons.Path(iconID))
}

// ETag returns a content hash for cache validation.
func (s *IconService) ETag(iconID string) (string, error) {
	return s.icons.Hash(iconID)
}
