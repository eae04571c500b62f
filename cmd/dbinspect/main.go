// Package main provides a read-only inspector for a Tally database.
//
// Usage:
//
//	DB_PATH=~/Tally/data/db go run ./cmd/dbinspect
package main

import (
	"encoding/json/v2"
	"fmt"
	"log"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/tallyapp/tally-server/internal/domain"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/Tally/data/db")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Database Inspection ===")
	fmt.Println()

	userCount := 0
	sessionCount := 0
	trackerCount := 0
	copyCount := 0
	shareCount := 0
	totalRecordedDays := 0
	shown := 0

	err = db.View(func(txn *badger.Txn) error {
		countPrefix(txn, "user:", &userCount)
		countPrefix(txn, "session:", &sessionCount)

		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte("tracker:")
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek([]byte("tracker:")); it.ValidForPrefix([]byte("tracker:")); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var tracker domain.Tracker
				if err := json.Unmarshal(val, &tracker); err != nil {
					return err
				}

				trackerCount++
				totalRecordedDays += len(tracker.DailyCounts)
				shareCount += len(tracker.SharedWith)
				if tracker.IsCopy() {
					copyCount++
				}

				// Show the first few trackers as a sanity check.
				if shown < 3 {
					shown++
					fmt.Printf("Tracker: %s\n", tracker.Name)
					fmt.Printf("  ID: %s\n", tracker.ID)
					fmt.Printf("  Owner: %s\n", tracker.OwnerID)
					fmt.Printf("  Recorded days: %d\n", len(tracker.DailyCounts))
					if tracker.IsCopy() {
						fmt.Printf("  Copy of: %s (owner %s)\n", tracker.OriginalTrackerID, tracker.OriginalOwnerID)
					} else if len(tracker.SharedWith) > 0 {
						fmt.Printf("  Shared with: %d users\n", len(tracker.SharedWith))
					}
					fmt.Println()
				}

				return nil
			})
			if err != nil {
				log.Printf("Error reading tracker %s: %v", it.Item().Key(), err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Error iterating database: %v", err)
	}

	fmt.Println("=== Summary ===")
	fmt.Printf("Users: %d\n", userCount)
	fmt.Printf("Sessions: %d\n", sessionCount)
	fmt.Printf("Trackers: %d (%d originals, %d shared copies)\n", trackerCount, trackerCount-copyCount, copyCount)
	fmt.Printf("Active shares: %d\n", shareCount)
	if trackerCount > 0 {
		fmt.Printf("Average recorded days per tracker: %.1f\n", float64(totalRecordedDays)/float64(trackerCount))
	}
}

// countPrefix counts keys under a prefix without loading values.
func countPrefix(txn *badger.Txn, prefix string, dest *int) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	n := 0
	for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
		n++
	}
	*dest = n
}
