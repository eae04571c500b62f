package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/tallyapp/tally-server/internal/domain"
	"github.com/tallyapp/tally-server/internal/sse"
)

// Trackers are stored per owner under tracker:{ownerID}:{trackerID}, so a
// user's whole collection is one prefix scan. Shared copies are ordinary
// tracker documents in the recipient's prefix, linked back to the original
// through OriginalTrackerID/OriginalOwnerID.

// CreateTracker stores a new tracker in its owner's collection.
func (s *Store) CreateTracker(_ context.Context, tracker *domain.Tracker) error {
	key := buildTrackerKey(tracker.OwnerID, tracker.ID)
	defer releaseKey(key)

	exists, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("check tracker exists: %w", err)
	}
	if exists {
		return ErrTrackerExists
	}

	if err := s.set(key, tracker); err != nil {
		return fmt.Errorf("create tracker: %w", err)
	}

	s.emit(sse.NewTrackerCreatedEvent(tracker))
	return nil
}

// GetTracker retrieves a tracker from the given owner's collection.
func (s *Store) GetTracker(_ context.Context, ownerID, trackerID string) (*domain.Tracker, error) {
	key := buildTrackerKey(ownerID, trackerID)
	defer releaseKey(key)

	var tracker domain.Tracker
	if err := s.get(key, &tracker); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrTrackerNotFound
		}
		return nil, fmt.Errorf("get tracker: %w", err)
	}

	return &tracker, nil
}

// ListTrackers returns every tracker in the owner's collection, oldest first.
func (s *Store) ListTrackers(_ context.Context, ownerID string) ([]*domain.Tracker, error) {
	prefix := trackerScanPrefix(ownerID)
	var trackers []*domain.Tracker

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var tracker domain.Tracker
				if unmarshalErr := json.Unmarshal(val, &tracker); unmarshalErr != nil {
					// Skip malformed entries
					return nil //nolint:nilerr // intentionally skip malformed entries
				}
				trackers = append(trackers, &tracker)
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}

	sort.Slice(trackers, func(i, j int) bool {
		return trackers[i].CreatedAt.Before(trackers[j].CreatedAt)
	})

	return trackers, nil
}

// UpdateTracker replaces an existing tracker document.
func (s *Store) UpdateTracker(_ context.Context, tracker *domain.Tracker) error {
	key := buildTrackerKey(tracker.OwnerID, tracker.ID)
	defer releaseKey(key)

	exists, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("check tracker exists: %w", err)
	}
	if !exists {
		return ErrTrackerNotFound
	}

	tracker.Touch()

	if err := s.set(key, tracker); err != nil {
		return fmt.Errorf("update tracker: %w", err)
	}

	s.emit(sse.NewTrackerUpdatedEvent(tracker))
	return nil
}

// DeleteTracker removes a single tracker document. Deleting a tracker that's
// already gone is a no-op; the sharing cascade relies on that.
func (s *Store) DeleteTracker(_ context.Context, ownerID, trackerID string) error {
	key := buildTrackerKey(ownerID, trackerID)
	defer releaseKey(key)

	exists, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("check tracker exists: %w", err)
	}
	if !exists {
		return nil
	}

	if err := s.delete(key); err != nil {
		return fmt.Errorf("delete tracker: %w", err)
	}

	s.emit(sse.NewTrackerDeletedEvent(ownerID, trackerID))
	return nil
}

// adjustMaxRetries bounds the conflict retry loop in AdjustDailyCount. Every
// conflict round commits at least one competing writer, so a writer retries
// at most once per competitor; the bound just guards against a livelock bug.
const adjustMaxRetries = 100

// AdjustDailyCount applies a delta to one day's count of one tracker inside a
// single Badger transaction. This is the atomic increment primitive every
// count mutation goes through; concurrent adjustments to the same document
// serialize here instead of racing through read-modify-write at the service
// layer. Badger aborts a transaction whose read set was written by a
// concurrent commit, so conflicted attempts are retried from a fresh read
// until they serialize. A missing date key reads as zero and the result may
// go negative.
//
// Returns the updated tracker.
func (s *Store) AdjustDailyCount(_ context.Context, ownerID, trackerID, dateKey string, delta int) (*domain.Tracker, error) {
	key := buildTrackerKey(ownerID, trackerID)
	defer releaseKey(key)

	var tracker domain.Tracker
	var err error
	for range adjustMaxRetries {
		tracker = domain.Tracker{}
		err = s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return ErrTrackerNotFound
				}
				return err
			}

			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &tracker)
			}); err != nil {
				return fmt.Errorf("unmarshal tracker: %w", err)
			}

			tracker.Adjust(dateKey, delta)
			tracker.Touch()

			data, err := json.Marshal(&tracker)
			if err != nil {
				return fmt.Errorf("marshal tracker: %w", err)
			}

			return txn.Set(key, data)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, ErrTrackerNotFound) {
			return nil, ErrTrackerNotFound
		}
		return nil, fmt.Errorf("adjust daily count: %w", err)
	}

	s.emit(sse.NewTrackerUpdatedEvent(&tracker))
	return &tracker, nil
}

// FindCopyOf scans a user's collection for the copy created from the given
// original tracker. Returns ErrCopyNotFound if the user has no such copy.
func (s *Store) FindCopyOf(_ context.Context, ownerID, originalTrackerID string) (*domain.Tracker, error) {
	prefix := trackerScanPrefix(ownerID)
	var found *domain.Tracker

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var tracker domain.Tracker
				if unmarshalErr := json.Unmarshal(val, &tracker); unmarshalErr != nil {
					return nil //nolint:nilerr // intentionally skip malformed entries
				}
				if tracker.OriginalTrackerID == originalTrackerID {
					found = &tracker
				}
				return nil
			})
			if err != nil {
				return err
			}
			if found != nil {
				return nil
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("find copy: %w", err)
	}
	if found == nil {
		return nil, ErrCopyNotFound
	}

	return found, nil
}

// DeleteUserTrackers removes every tracker in a user's collection.
// Used by account deletion after shares have been unwound.
func (s *Store) DeleteUserTrackers(ctx context.Context, ownerID string) error {
	trackers, err := s.ListTrackers(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("list trackers for deletion: %w", err)
	}

	for _, tracker := range trackers {
		if err := s.DeleteTracker(ctx, ownerID, tracker.ID); err != nil {
			return fmt.Errorf("delete tracker %s: %w", tracker.ID, err)
		}
	}

	return nil
}
