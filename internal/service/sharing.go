// Package service provides the business logic layer for trackers, sharing, and accounts.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tallyapp/tally-server/internal/domain"
	domainerrors "github.com/tallyapp/tally-server/internal/errors"
	"github.com/tallyapp/tally-server/internal/id"
	"github.com/tallyapp/tally-server/internal/store"
)

// TrackerStore is the slice of the store the sharing coordinator needs.
// *store.Store satisfies it; tests substitute wrappers to inject failures
// into individual fan-out legs.
type TrackerStore interface {
	CreateTracker(ctx context.Context, tracker *domain.Tracker) error
	GetTracker(ctx context.Context, ownerID, trackerID string) (*domain.Tracker, error)
	ListTrackers(ctx context.Context, ownerID string) ([]*domain.Tracker, error)
	UpdateTracker(ctx context.Context, tracker *domain.Tracker) error
	DeleteTracker(ctx context.Context, ownerID, trackerID string) error
	AdjustDailyCount(ctx context.Context, ownerID, trackerID, dateKey string, delta int) (*domain.Tracker, error)
	FindCopyOf(ctx context.Context, ownerID, originalTrackerID string) (*domain.Tracker, error)
}

// UserResolver resolves share targets. *store.Store satisfies it.
type UserResolver interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// SharingService orchestrates the physical-copy sharing protocol: sharing a
// tracker clones it into the recipient's collection, and count adjustments
// fan out to the original and every copy so all participants converge.
//
// Fan-out is best effort. Each leg is an independent atomic write; a failed
// leg is reported but never rolled back, so a partial failure leaves the
// copies temporarily out of sync until the next successful adjustment of the
// same day. There is no background reconciliation.
type SharingService struct {
	trackers TrackerStore
	users    UserResolver
	logger   *slog.Logger
}

// NewSharingService creates a new sharing service.
func NewSharingService(trackers TrackerStore, users UserResolver, logger *slog.Logger) *SharingService {
	return &SharingService{
		trackers: trackers,
		users:    users,
		logger:   logger,
	}
}

// Share shares a tracker with another user, identified by email.
//
// The copy is written into the recipient's collection before the owner's
// shared_with list is updated. If the server dies between the two writes the
// recipient keeps an orphaned copy that no longer receives fan-out; that's
// the accepted failure mode, preferred over a recipient appearing in
// shared_with without ever receiving a copy.
func (s *SharingService) Share(ctx context.Context, ownerID, trackerID, targetEmail string) (*domain.Tracker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tracker, err := s.trackers.GetTracker(ctx, ownerID, trackerID)
	if err != nil {
		if errors.Is(err, store.ErrTrackerNotFound) {
			return nil, domainerrors.NotFound("tracker not found")
		}
		return nil, fmt.Errorf("get tracker: %w", err)
	}

	if tracker.IsCopy() {
		return nil, domainerrors.InvalidShare("shared copies cannot be shared onward")
	}

	target, err := s.users.GetUserByEmail(ctx, targetEmail)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, domainerrors.NotFound("no user with that email")
		}
		return nil, fmt.Errorf("resolve share target: %w", err)
	}

	if target.ID == ownerID {
		return nil, domainerrors.InvalidShare("cannot share a tracker with yourself")
	}
	if tracker.IsSharedWith(target.ID) {
		return nil, domainerrors.InvalidSharef("tracker already shared with %s", targetEmail)
	}

	copyID, err := id.Generate("trk")
	if err != nil {
		return nil, fmt.Errorf("generate copy ID: %w", err)
	}

	cp := tracker.CopyFor(copyID, target.ID)
	if err := s.trackers.CreateTracker(ctx, cp); err != nil {
		return nil, fmt.Errorf("create shared copy: %w", err)
	}

	tracker.AddShare(target.ID)
	if err := s.trackers.UpdateTracker(ctx, tracker); err != nil {
		return nil, fmt.Errorf("record share on original: %w", err)
	}

	s.logger.Info("tracker shared",
		"tracker_id", trackerID,
		"owner_id", ownerID,
		"shared_with", target.ID,
		"copy_id", copyID,
	)

	return cp, nil
}

// Unshare revokes a share: the recipient is removed from the original's
// shared_with list, then their copy is deleted. The order is the reverse of
// Share so a crash between the writes strands a copy that no longer receives
// fan-out rather than fanning out to a recipient who was already revoked.
// A failed copy deletion is reported but the revocation stands.
func (s *SharingService) Unshare(ctx context.Context, ownerID, trackerID, targetUserID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tracker, err := s.trackers.GetTracker(ctx, ownerID, trackerID)
	if err != nil {
		if errors.Is(err, store.ErrTrackerNotFound) {
			return domainerrors.NotFound("tracker not found")
		}
		return fmt.Errorf("get tracker: %w", err)
	}

	if !tracker.IsSharedWith(targetUserID) {
		return domainerrors.InvalidShare("tracker is not shared with this user")
	}

	tracker.RemoveShare(targetUserID)
	if err := s.trackers.UpdateTracker(ctx, tracker); err != nil {
		return fmt.Errorf("remove share from original: %w", err)
	}

	cp, err := s.trackers.FindCopyOf(ctx, targetUserID, trackerID)
	if err != nil {
		if errors.Is(err, store.ErrCopyNotFound) {
			// Copy already gone (orphan cleanup or a previous partial unshare).
			return nil
		}
		return domainerrors.Remote("locate shared copy for deletion").WithCause(err)
	}

	if err := s.trackers.DeleteTracker(ctx, targetUserID, cp.ID); err != nil {
		s.logger.Warn("share revoked but copy deletion failed",
			"tracker_id", trackerID,
			"copy_owner", targetUserID,
			"error", err,
		)
		return domainerrors.Remote("share revoked but copy could not be deleted").WithCause(err)
	}

	s.logger.Info("tracker unshared",
		"tracker_id", trackerID,
		"owner_id", ownerID,
		"unshared_from", targetUserID,
	)

	return nil
}

// AdjustShared applies a count adjustment with full fan-out. The acted-on
// document determines the legs:
//
//   - acting on a copy: the original is adjusted first, then the copy
//   - acting on an original: the original is adjusted, then every
//     recipient's copy is adjusted concurrently
//
// Every leg is an independent atomic increment against one document. Failed
// legs are collected and returned as a joined error alongside whatever did
// succeed; nothing is rolled back. The updated acted-on document is returned
// when its own leg succeeded.
func (s *SharingService) AdjustShared(ctx context.Context, actorID, trackerID, dateKey string, delta int) (*domain.Tracker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tracker, err := s.trackers.GetTracker(ctx, actorID, trackerID)
	if err != nil {
		if errors.Is(err, store.ErrTrackerNotFound) {
			return nil, domainerrors.NotFound("tracker not found")
		}
		return nil, fmt.Errorf("get tracker: %w", err)
	}

	var legErrs []error

	if tracker.IsCopy() {
		// Propagate to the original before touching our copy.
		if _, err := s.trackers.AdjustDailyCount(ctx, tracker.OriginalOwnerID, tracker.OriginalTrackerID, dateKey, delta); err != nil {
			legErrs = append(legErrs, domainerrors.Remotef("adjust original %s: %v", tracker.OriginalTrackerID, err))
		}
	}

	updated, err := s.trackers.AdjustDailyCount(ctx, actorID, trackerID, dateKey, delta)
	if err != nil {
		legErrs = append(legErrs, fmt.Errorf("adjust tracker: %w", err))
	}

	if !tracker.IsCopy() && len(tracker.SharedWith) > 0 {
		legErrs = append(legErrs, s.fanOutToCopies(ctx, tracker, dateKey, delta)...)
	}

	if len(legErrs) > 0 {
		s.logger.Warn("count adjustment completed with failed legs",
			"tracker_id", trackerID,
			"actor_id", actorID,
			"failed_legs", len(legErrs),
		)
		return updated, errors.Join(legErrs...)
	}

	return updated, nil
}

// fanOutToCopies adjusts every recipient's copy of an original concurrently.
// Each leg runs to completion regardless of the others; errors are collected,
// not short-circuited, because a failed sibling must not block the rest.
func (s *SharingService) fanOutToCopies(ctx context.Context, original *domain.Tracker, dateKey string, delta int) []error {
	var (
		mu      sync.Mutex
		legErrs []error
		wg      sync.WaitGroup
	)

	for _, recipientID := range original.SharedWith {
		wg.Add(1)
		go func() {
			defer wg.Done()

			cp, err := s.trackers.FindCopyOf(ctx, recipientID, original.ID)
			if err != nil {
				mu.Lock()
				legErrs = append(legErrs, domainerrors.Remotef("locate copy for %s: %v", recipientID, err))
				mu.Unlock()
				return
			}

			if _, err := s.trackers.AdjustDailyCount(ctx, recipientID, cp.ID, dateKey, delta); err != nil {
				mu.Lock()
				legErrs = append(legErrs, domainerrors.Remotef("adjust copy for %s: %v", recipientID, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return legErrs
}

// DeleteCascade removes a tracker and unwinds its shares.
//
// Deleting an original deletes every recipient's copy first, best effort: a
// failed copy deletion is recorded and the cascade moves on, so one
// unreachable copy can't keep the original alive. Deleting a copy removes
// the owner from the original's shared_with list, then deletes the copy.
func (s *SharingService) DeleteCascade(ctx context.Context, ownerID, trackerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tracker, err := s.trackers.GetTracker(ctx, ownerID, trackerID)
	if err != nil {
		if errors.Is(err, store.ErrTrackerNotFound) {
			return domainerrors.NotFound("tracker not found")
		}
		return fmt.Errorf("get tracker: %w", err)
	}

	if tracker.IsCopy() {
		return s.deleteCopy(ctx, tracker)
	}

	var cascadeErrs []error
	for _, recipientID := range tracker.SharedWith {
		cp, err := s.trackers.FindCopyOf(ctx, recipientID, trackerID)
		if err != nil {
			if errors.Is(err, store.ErrCopyNotFound) {
				continue
			}
			cascadeErrs = append(cascadeErrs, domainerrors.Remotef("locate copy for %s: %v", recipientID, err))
			continue
		}
		if err := s.trackers.DeleteTracker(ctx, recipientID, cp.ID); err != nil {
			cascadeErrs = append(cascadeErrs, domainerrors.Remotef("delete copy for %s: %v", recipientID, err))
		}
	}

	if err := s.trackers.DeleteTracker(ctx, ownerID, trackerID); err != nil {
		cascadeErrs = append(cascadeErrs, fmt.Errorf("delete original: %w", err))
	}

	if len(cascadeErrs) > 0 {
		s.logger.Warn("tracker deletion completed with failures",
			"tracker_id", trackerID,
			"owner_id", ownerID,
			"failures", len(cascadeErrs),
		)
		return errors.Join(cascadeErrs...)
	}

	s.logger.Info("tracker deleted",
		"tracker_id", trackerID,
		"owner_id", ownerID,
		"copies_removed", len(tracker.SharedWith),
	)

	return nil
}

// deleteCopy handles a recipient deleting their shared copy: leave the share
// (best effort) and then delete the copy itself.
func (s *SharingService) deleteCopy(ctx context.Context, cp *domain.Tracker) error {
	original, err := s.trackers.GetTracker(ctx, cp.OriginalOwnerID, cp.OriginalTrackerID)
	switch {
	case errors.Is(err, store.ErrTrackerNotFound):
		// Original already gone; nothing to leave.
	case err != nil:
		s.logger.Warn("could not load original while deleting copy",
			"copy_id", cp.ID,
			"original_id", cp.OriginalTrackerID,
			"error", err,
		)
	default:
		original.RemoveShare(cp.OwnerID)
		if err := s.trackers.UpdateTracker(ctx, original); err != nil {
			s.logger.Warn("could not remove share entry while deleting copy",
				"copy_id", cp.ID,
				"original_id", cp.OriginalTrackerID,
				"error", err,
			)
		}
	}

	if err := s.trackers.DeleteTracker(ctx, cp.OwnerID, cp.ID); err != nil {
		return fmt.Errorf("delete copy: %w", err)
	}

	return nil
}

// UnwindUserShares detaches a user from the sharing graph ahead of account
// deletion: every original they own is cascade-deleted, and every copy they
// hold is removed along with its share entry.
func (s *SharingService) UnwindUserShares(ctx context.Context, trackers []*domain.Tracker) error {
	var unwindErrs []error
	for _, tracker := range trackers {
		if err := s.DeleteCascade(ctx, tracker.OwnerID, tracker.ID); err != nil {
			if domainerrors.Is(err, domainerrors.ErrNotFound) {
				continue
			}
			unwindErrs = append(unwindErrs, err)
		}
	}
	return errors.Join(unwindErrs...)
}
