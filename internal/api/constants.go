package api

// Cache control policies for image responses. Icons and photos get a fresh ID
// on every upload, so their bytes never change under a given URL.
const (
	cacheControlImmutable = "public, max-age=31536000, immutable"
)
