package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tallyapp/tally-server/internal/domain"
	domainerrors "github.com/tallyapp/tally-server/internal/errors"
	"github.com/tallyapp/tally-server/internal/id"
	"github.com/tallyapp/tally-server/internal/store"
	"github.com/tallyapp/tally-server/internal/validation"
)

// DefaultHistoryDays is how many days the history view covers by default.
const DefaultHistoryDays = 7

// TrackerService handles tracker CRUD and count adjustments. Anything that
// touches the sharing graph (adjustment fan-out, cascading deletes) is
// delegated to the SharingService so every mutation path behaves the same.
type TrackerService struct {
	store     TrackerStore
	sharing   *SharingService
	icons     *IconService
	validator *validation.Validator
	logger    *slog.Logger
}

// NewTrackerService creates a new tracker service.
func NewTrackerService(store TrackerStore, sharing *SharingService, icons *IconService, validator *validation.Validator, logger *slog.Logger) *TrackerService {
	return &TrackerService{
		store:     store,
		sharing:   sharing,
		icons:     icons,
		validator: validator,
		logger:    logger,
	}
}

// CreateTrackerRequest contains the fields for creating a tracker.
type CreateTrackerRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	Emoji       string `json:"emoji" validate:"max=16"`
	IconID      string `json:"icon_id"`
}

// UpdateTrackerRequest contains the mutable tracker fields.
// Setting an emoji clears any icon and vice versa.
type UpdateTrackerRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	Emoji       string `json:"emoji" validate:"max=16"`
	IconID      string `json:"icon_id"`
}

// AdjustRequest is a count adjustment for one calendar day.
// An empty date defaults to the current local day.
type AdjustRequest struct {
	Date  string `json:"date"`
	Delta int    `json:"delta" validate:"required"`
}

// Create validates and stores a new tracker for the given owner.
func (s *TrackerService) Create(ctx context.Context, ownerID string, req CreateTrackerRequest) (*domain.Tracker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.validateIcon(req.Emoji, req.IconID); err != nil {
		return nil, err
	}

	trackerID, err := id.Generate("trk")
	if err != nil {
		return nil, fmt.Errorf("generate tracker ID: %w", err)
	}

	tracker := &domain.Tracker{
		OwnerID:      ownerID,
		Name:         req.Name,
		Description:  req.Description,
		Emoji:        req.Emoji,
		IconID:       req.IconID,
		IconBlurHash: s.iconBlurHash(req.IconID),
		DailyCounts:  make(map[string]int),
		SharedWith:   []string{},
	}
	tracker.ID = trackerID
	tracker.InitTimestamps()

	if err := s.store.CreateTracker(ctx, tracker); err != nil {
		return nil, fmt.Errorf("create tracker: %w", err)
	}

	s.logger.Info("tracker created",
		"tracker_id", trackerID,
		"owner_id", ownerID,
		"name", tracker.Name,
	)

	return tracker, nil
}

// Get returns one tracker from the caller's collection.
func (s *TrackerService) Get(ctx context.Context, ownerID, trackerID string) (*domain.Tracker, error) {
	tracker, err := s.store.GetTracker(ctx, ownerID, trackerID)
	if err != nil {
		if errors.Is(err, store.ErrTrackerNotFound) {
			return nil, domainerrors.NotFound("tracker not found")
		}
		return nil, fmt.Errorf("get tracker: %w", err)
	}
	return tracker, nil
}

// List returns the caller's whole collection, originals and copies alike.
func (s *TrackerService) List(ctx context.Context, ownerID string) ([]*domain.Tracker, error) {
	trackers, err := s.store.ListTrackers(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}
	return trackers, nil
}

// ListShared returns only the copies shared into the caller's collection.
func (s *TrackerService) ListShared(ctx context.Context, ownerID string) ([]*domain.Tracker, error) {
	trackers, err := s.store.ListTrackers(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}

	shared := make([]*domain.Tracker, 0)
	for _, tracker := range trackers {
		if tracker.IsCopy() {
			shared = append(shared, tracker)
		}
	}
	return shared, nil
}

// Update modifies a tracker's display fields. Counts and the sharing graph
// are not touched here.
func (s *TrackerService) Update(ctx context.Context, ownerID, trackerID string, req UpdateTrackerRequest) (*domain.Tracker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if err := s.validateIcon(req.Emoji, req.IconID); err != nil {
		return nil, err
	}

	tracker, err := s.Get(ctx, ownerID, trackerID)
	if err != nil {
		return nil, err
	}

	tracker.Name = req.Name
	tracker.Description = req.Description
	tracker.Emoji = req.Emoji
	tracker.IconID = req.IconID
	tracker.IconBlurHash = s.iconBlurHash(req.IconID)

	if err := s.store.UpdateTracker(ctx, tracker); err != nil {
		return nil, fmt.Errorf("update tracker: %w", err)
	}

	return tracker, nil
}

// Adjust applies a count delta for one day, with sharing fan-out.
// Decrements below zero are allowed; negative day counts are meaningful
// (undoing over-counted taps).
func (s *TrackerService) Adjust(ctx context.Context, ownerID, trackerID string, req AdjustRequest) (*domain.Tracker, error) {
	if req.Delta == 0 {
		return nil, domainerrors.Validation("delta must not be zero")
	}

	dateKey := req.Date
	if dateKey == "" {
		dateKey = domain.Today()
	} else if !domain.ValidDateKey(dateKey) {
		return nil, domainerrors.Validationf("date must be in %s format", domain.DateKeyFormat)
	}

	return s.sharing.AdjustShared(ctx, ownerID, trackerID, dateKey, req.Delta)
}

// History returns the last days of counts for a tracker, newest first.
// A non-positive days falls back to the default week view.
func (s *TrackerService) History(ctx context.Context, ownerID, trackerID string, days int) ([]domain.HistoryEntry, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}

	tracker, err := s.Get(ctx, ownerID, trackerID)
	if err != nil {
		return nil, err
	}

	return tracker.History(days), nil
}

// Delete removes a tracker, cascading through the sharing graph.
func (s *TrackerService) Delete(ctx context.Context, ownerID, trackerID string) error {
	return s.sharing.DeleteCascade(ctx, ownerID, trackerID)
}

// validateIcon enforces the emoji-or-icon rule: a tracker needs exactly one.
func (s *TrackerService) validateIcon(emoji, iconID string) error {
	if emoji == "" && iconID == "" {
		return domainerrors.Validation("an emoji or an icon image is required")
	}
	if emoji != "" && iconID != "" {
		return domainerrors.Validation("emoji and icon image are mutually exclusive")
	}
	if iconID != "" && s.icons != nil && !s.icons.Exists(iconID) {
		return domainerrors.Validation("icon does not exist; upload it first")
	}
	return nil
}

// iconBlurHash looks up the placeholder hash for an icon, empty when the
// tracker uses an emoji or the hash can't be computed.
func (s *TrackerService) iconBlurHash(iconID string) string {
	if iconID == "" || s.icons == nil {
		return ""
	}
	hash, err := s.icons.BlurHash(iconID)
	if err != nil {
		s.logger.Warn("failed to compute icon blurhash", "icon_id", iconID, "error", err)
		return ""
	}
	return hash
}
