// Package main provides a tool to seed the database with demo data.
//
// It creates test users with habit trackers, two weeks of realistic daily
// counts, and a few shares between the users, so sharing fan-out and history
// views can be exercised against a populated server.
//
// Usage:
//
//	DB_PATH=~/Tally/data/db go run ./cmd/seed
//	DB_PATH=~/Tally/data/db go run ./cmd/seed --create-users  # Also create test users
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/tallyapp/tally-server/internal/auth"
	"github.com/tallyapp/tally-server/internal/domain"
	"github.com/tallyapp/tally-server/internal/id"
	"github.com/tallyapp/tally-server/internal/store"
)

var createUsers = flag.Bool("create-users", false, "Create test users before seeding")

// seedTrackers are the habit templates assigned to each user.
var seedTrackers = []struct {
	name  string
	emoji string
	// Daily count range; negative lows exercise the undo path.
	low, high int
}{
	{"Pushups", "💪", 0, 30},
	{"Glasses of Water", "💧", 2, 10},
	{"Pages Read", "📖", 0, 40},
	{"Coffee", "☕", -1, 5},
	{"Meditation Minutes", "🧘", 0, 20},
}

// testUserNames are display names for generated test users.
var testUserNames = []string{
	"Alex Rivera",
	"Jordan Chen",
	"Sam Taylor",
	"Casey Morgan",
	"Riley Kim",
}

func main() {
	flag.Parse()

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/Tally/data/db")
	}

	fmt.Printf("Opening database at: %s\n", dbPath)

	// Open store (not read-only since we're writing)
	s, err := store.New(dbPath, nil, store.NewNoopEmitter())
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()

	if *createUsers {
		createTestUsers(ctx, s)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		log.Fatalf("Failed to get users: %v", err)
	}
	if len(users) == 0 {
		log.Fatal("No users found in database. Create a user first or pass --create-users.")
	}

	fmt.Printf("Found %d users\n", len(users))

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for _, user := range users {
		fmt.Printf("\nSeeding trackers for user: %s (%s)\n", user.DisplayName, user.ID)

		// Skip users that already have trackers so re-running is safe.
		existing, err := s.ListTrackers(ctx, user.ID)
		if err != nil {
			log.Printf("Failed to list trackers for %s: %v", user.ID, err)
			continue
		}
		if len(existing) > 0 {
			fmt.Printf("  User already has %d trackers, skipping\n", len(existing))
			continue
		}

		// Pick 2-4 habits per user.
		numTrackers := 2 + rng.Intn(3)
		shuffled := make([]int, len(seedTrackers))
		for i := range shuffled {
			shuffled[i] = i
		}
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		for _, idx := range shuffled[:numTrackers] {
			tmpl := seedTrackers[idx]

			tracker := &domain.Tracker{
				OwnerID:     user.ID,
				Name:        tmpl.name,
				Emoji:       tmpl.emoji,
				DailyCounts: make(map[string]int),
				SharedWith:  []string{},
			}
			tracker.ID = id.MustGenerate("trk")
			tracker.InitTimestamps()

			// Two weeks of counts; ~80% of days recorded for realism.
			now := time.Now()
			for day := 13; day >= 0; day-- {
				if day > 1 && rng.Float32() > 0.8 {
					continue
				}
				count := tmpl.low + rng.Intn(tmpl.high-tmpl.low+1)
				if count == 0 {
					continue
				}
				tracker.DailyCounts[domain.DateKey(now.AddDate(0, 0, -day))] = count
			}

			if err := s.CreateTracker(ctx, tracker); err != nil {
				log.Printf("  Failed to create tracker %s: %v", tmpl.name, err)
				continue
			}

			fmt.Printf("  Created tracker: %s %s (%d recorded days)\n", tmpl.emoji, tmpl.name, len(tracker.DailyCounts))
		}
	}

	seedShares(ctx, s, users, rng)

	fmt.Println("\nSeeding complete!")
}

// seedShares shares one tracker from each user with the next user in the
// list, creating the physical copy the sharing protocol expects.
func seedShares(ctx context.Context, s *store.Store, users []*domain.User, rng *rand.Rand) {
	if len(users) < 2 {
		return
	}

	fmt.Println("\n=== Creating Shares ===")

	for i, owner := range users {
		recipient := users[(i+1)%len(users)]

		trackers, err := s.ListTrackers(ctx, owner.ID)
		if err != nil || len(trackers) == 0 {
			continue
		}

		// Pick a random original that isn't already shared with the recipient.
		var original *domain.Tracker
		for _, idx := range rng.Perm(len(trackers)) {
			t := trackers[idx]
			if !t.IsCopy() && !t.IsSharedWith(recipient.ID) {
				original = t
				break
			}
		}
		if original == nil {
			continue
		}

		// Copy first, then record the share, same order as the live path.
		cp := original.CopyFor(id.MustGenerate("trk"), recipient.ID)
		if err := s.CreateTracker(ctx, cp); err != nil {
			log.Printf("  Failed to create copy for %s: %v", recipient.DisplayName, err)
			continue
		}

		original.AddShare(recipient.ID)
		if err := s.UpdateTracker(ctx, original); err != nil {
			log.Printf("  Failed to record share on %s: %v", original.Name, err)
			continue
		}

		fmt.Printf("  %s shared %q with %s\n", owner.DisplayName, original.Name, recipient.DisplayName)
	}
}

// createTestUsers creates test accounts with a known password.
func createTestUsers(ctx context.Context, s *store.Store) {
	fmt.Println("\n=== Creating Test Users ===")

	passwordHash, err := auth.HashPassword("testpass123")
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		return
	}

	for i, name := range testUserNames {
		email := fmt.Sprintf("test%d@example.com", i+1)

		if existing, _ := s.GetUserByEmail(ctx, email); existing != nil {
			fmt.Printf("  User %s already exists, skipping\n", email)
			continue
		}

		user := &domain.User{
			Email:        email,
			PasswordHash: passwordHash,
			DisplayName:  name,
		}
		user.ID = id.MustGenerate("user")
		user.InitTimestamps()

		if err := s.CreateUser(ctx, user); err != nil {
			log.Printf("  Failed to create user %s: %v", name, err)
			continue
		}

		fmt.Printf("  Created user: %s (%s)\n", name, email)
	}

	fmt.Println("=== Test Users Created ===")
}
