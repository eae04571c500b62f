package store

import "sync"

// Key prefixes for the document namespaces.
const (
	userPrefix           = "user:"
	userByEmailPrefix    = "idx:users:email:" // For login and share lookups
	sessionPrefix        = "session:"
	sessionByUserPrefix  = "idx:sessions:user:"  // For listing user sessions
	sessionByTokenPrefix = "idx:sessions:token:" // For refresh token lookups
	trackerPrefix        = "tracker:"            // tracker:{ownerID}:{trackerID}
)

// keyPool provides reusable byte slices for building database keys.
// This reduces allocations on the hot path of database operations.
var keyPool = sync.Pool{
	New: func() any {
		// Pre-allocate 256 bytes which covers most key sizes:
		// - Prefix (8-20 bytes)
		// - Owner ID (26+ bytes for a prefixed NanoID)
		// - ":" (1 byte)
		// - Tracker ID (25+ bytes)
		return make([]byte, 0, 256)
	},
}

// buildKey constructs a database key from prefix and suffix using a pooled buffer.
// The returned slice is valid until releaseKey is called.
// Callers MUST call releaseKey when done with the key.
//
// Usage:
//
//	key := buildKey(userPrefix, userID)
//	defer releaseKey(key)
//	item, err := txn.Get(key)
func buildKey(prefix, suffix string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0] // Reset length, keep capacity
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return buf
}

// buildTrackerKey constructs the document key for a tracker in its owner's
// collection: tracker:{ownerID}:{trackerID}.
func buildTrackerKey(ownerID, trackerID string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0]
	buf = append(buf, trackerPrefix...)
	buf = append(buf, ownerID...)
	buf = append(buf, ':')
	buf = append(buf, trackerID...)
	return buf
}

// trackerScanPrefix returns the key prefix covering every tracker owned by
// the given user. Not pooled, callers keep it for the life of an iterator.
func trackerScanPrefix(ownerID string) []byte {
	return []byte(trackerPrefix + ownerID + ":")
}

// releaseKey returns a key buffer to the pool for reuse.
// After calling this, the key slice must not be used.
func releaseKey(key []byte) {
	// Only pool buffers that have reasonable capacity
	// Avoids keeping oversized buffers in the pool
	if cap(key) <= 512 {
		keyPool.Put(key[:0])
	}
}
