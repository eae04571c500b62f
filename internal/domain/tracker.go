package domain

import (
	"maps"
	"slices"
	"time"
)

// DateKeyFormat is the layout for daily count keys: the calendar day in the
// server's local time zone. A user tapping "+" at 23:59 and again at 00:01
// lands in two different buckets, and that's the intended behavior.
const DateKeyFormat = "2006-01-02"

// DateKey returns the daily count key for the given instant, in local time.
func DateKey(t time.Time) string {
	return t.Local().Format(DateKeyFormat)
}

// Today returns the date key for the current local calendar day.
func Today() string {
	return DateKey(time.Now())
}

// ValidDateKey reports whether s is a well-formed YYYY-MM-DD date key.
func ValidDateKey(s string) bool {
	_, err := time.ParseInLocation(DateKeyFormat, s, time.Local)
	return err == nil
}

// Tracker is a single habit counter. Counts are bucketed per calendar day in
// DailyCounts, keyed YYYY-MM-DD. Days with no recorded count are absent from
// the map and read as zero. Counts may go negative.
//
// Sharing uses physical copies: sharing a tracker places a full copy of it in
// the recipient's collection, linked back through OriginalTrackerID and
// OriginalOwnerID. SharedWith is maintained only on originals; a copy's
// SharedWith is always empty.
type Tracker struct {
	Syncable
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Exactly one of Emoji or IconID is set.
	Emoji        string `json:"emoji,omitempty"`
	IconID       string `json:"icon_id,omitempty"`
	IconBlurHash string `json:"icon_blur_hash,omitempty"`

	DailyCounts map[string]int `json:"daily_counts"`
	SharedWith  []string       `json:"shared_with"`

	// Set only on copies created by a share.
	OriginalTrackerID string `json:"original_tracker_id,omitempty"`
	OriginalOwnerID   string `json:"original_owner_id,omitempty"`
}

// IsCopy returns true if this tracker is a shared copy of someone else's original.
func (t *Tracker) IsCopy() bool {
	return t.OriginalTrackerID != ""
}

// IsSharedWith returns true if the tracker has been shared with the given user.
func (t *Tracker) IsSharedWith(userID string) bool {
	return slices.Contains(t.SharedWith, userID)
}

// AddShare records that the tracker is shared with the given user.
// Adding an existing recipient is a no-op.
func (t *Tracker) AddShare(userID string) {
	if t.IsSharedWith(userID) {
		return
	}
	t.SharedWith = append(t.SharedWith, userID)
}

// RemoveShare removes the given user from the share list.
func (t *Tracker) RemoveShare(userID string) {
	t.SharedWith = slices.DeleteFunc(t.SharedWith, func(id string) bool {
		return id == userID
	})
}

// CountOn returns the count recorded for the given date key, zero if absent.
func (t *Tracker) CountOn(dateKey string) int {
	return t.DailyCounts[dateKey]
}

// Adjust applies a delta to the count for the given date key.
// A missing key is treated as zero; the result may go negative.
func (t *Tracker) Adjust(dateKey string, delta int) {
	if t.DailyCounts == nil {
		t.DailyCounts = make(map[string]int)
	}
	t.DailyCounts[dateKey] += delta
}

// Average returns the mean count across all recorded days, or zero if no
// days have been recorded. Matches the stat shown on the tracker list row.
func (t *Tracker) Average() float64 {
	if len(t.DailyCounts) == 0 {
		return 0
	}
	total := 0
	for _, c := range t.DailyCounts {
		total += c
	}
	return float64(total) / float64(len(t.DailyCounts))
}

// HistoryEntry is one day's count in a tracker history view.
type HistoryEntry struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// History returns the last n calendar days ending today, newest first.
// Days with no recorded count appear with a zero count.
func (t *Tracker) History(n int) []HistoryEntry {
	entries := make([]HistoryEntry, 0, n)
	now := time.Now()
	for i := range n {
		key := DateKey(now.AddDate(0, 0, -i))
		entries = append(entries, HistoryEntry{Date: key, Count: t.CountOn(key)})
	}
	return entries
}

// CopyFor builds the physical copy placed in a recipient's collection by a
// share. The copy gets its own identity, carries a snapshot of the current
// counts, and links back to the original. It is never itself shared onward.
func (t *Tracker) CopyFor(copyID, recipientID string) *Tracker {
	cp := &Tracker{
		OwnerID:           recipientID,
		Name:              t.Name,
		Description:       t.Description,
		Emoji:             t.Emoji,
		IconID:            t.IconID,
		IconBlurHash:      t.IconBlurHash,
		DailyCounts:       maps.Clone(t.DailyCounts),
		SharedWith:        []string{},
		OriginalTrackerID: t.ID,
		OriginalOwnerID:   t.OwnerID,
	}
	if cp.DailyCounts == nil {
		cp.DailyCounts = make(map[string]int)
	}
	cp.ID = copyID
	cp.InitTimestamps()
	return cp
}
