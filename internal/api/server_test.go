package api

import (
	"bytes"
	"encoding/json/v2"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyapp/tally-server/internal/auth"
	"github.com/tallyapp/tally-server/internal/media/images"
	"github.com/tallyapp/tally-server/internal/service"
	"github.com/tallyapp/tally-server/internal/sse"
	"github.com/tallyapp/tally-server/internal/store"
	"github.com/tallyapp/tally-server/internal/validation"
)

// testEnvelope mirrors APIEnvelope with a typed data field for decoding.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// testErrorEnvelope mirrors APIErrorEnvelope for decoding error responses.
type testErrorEnvelope struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// testServer wraps the API server with a humatest client.
type testServer struct {
	*Server
	api     humatest.TestAPI
	cleanup func()
}

// setupTestServer creates a test server with all dependencies.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tally-api-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// SSE manager and handler.
	sseManager := sse.NewManager(logger)
	sseHandler := sse.NewHandler(sseManager, UserIDFromRequest, logger)

	st, err := store.New(dbPath, logger, sseManager)
	require.NoError(t, err)

	// Auth services. Test key is 32 bytes as hex.
	testKeyHex := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	tokenService, err := auth.NewTokenService(testKeyHex, 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)
	sessionService := service.NewSessionService(st, tokenService, logger)
	authService := service.NewAuthService(st, tokenService, sessionService, logger)

	// Image storage.
	icons, err := images.NewStorage(tmpDir, "icons")
	require.NoError(t, err)
	photos, err := images.NewStorage(tmpDir, "photos")
	require.NoError(t, err)

	// Business services.
	sharingService := service.NewSharingService(st, st, logger)
	iconService := service.NewIconService(icons, logger)
	trackerService := service.NewTrackerService(st, sharingService, iconService, validation.New(), logger)
	profileService := service.NewProfileService(st, photos, sharingService, logger)

	services := &Services{
		Auth:    authService,
		Session: sessionService,
		Tracker: trackerService,
		Sharing: sharingService,
		Profile: profileService,
		Icon:    iconService,
	}

	router := chi.NewRouter()

	// Auth middleware runs before huma routes.
	router.Use(authMiddleware(services.Auth))

	humaConfig := huma.DefaultConfig("Tally API Test", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		store:           st,
		services:        services,
		router:          router,
		api:             api,
		sseHandler:      sseHandler,
		authRateLimiter: NewRateLimiter(100, time.Minute, 50),
		logger:          logger,
	}

	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerTrackerRoutes()
	s.registerSharingRoutes()
	s.registerIconRoutes()
	s.registerProfileRoutes()
	s.registerSyncRoutes()

	cleanup := func() {
		_ = st.Close()
		_ = os.RemoveAll(tmpDir)
	}

	return &testServer{
		Server:  s,
		api:     humatest.Wrap(t, api),
		cleanup: cleanup,
	}
}

// registerTestUser registers a user through the API and returns their access token.
func (ts *testServer) registerTestUser(t *testing.T, email string) string {
	t.Helper()

	resp := ts.api.Post("/api/v1/auth/register", map[string]any{
		"email":        email,
		"password":     "correct-horse-battery",
		"display_name": "Test User",
	})
	require.Equal(t, http.StatusOK, resp.Code, "Register failed: %s", resp.Body.String())

	var envelope testEnvelope[AuthResponse]
	err := json.Unmarshal(resp.Body.Bytes(), &envelope)
	require.NoError(t, err)
	require.NotEmpty(t, envelope.Data.AccessToken)

	return envelope.Data.AccessToken
}

func bearer(token string) string {
	return "Authorization: Bearer " + token
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope testEnvelope[HealthResponse]
	err := json.Unmarshal(resp.Body.Bytes(), &envelope)
	require.NoError(t, err)

	assert.True(t, envelope.Success)
	assert.Equal(t, "healthy", envelope.Data.Status)
	assert.Equal(t, "healthy", envelope.Data.Components["database"].Status)
}

func TestAuth_RegisterAndLogin(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.registerTestUser(t, "alice@example.com")
	assert.True(t, strings.HasPrefix(token, "v4.local."))

	// Duplicate registration is rejected.
	resp := ts.api.Post("/api/v1/auth/register", map[string]any{
		"email":        "alice@example.com",
		"password":     "correct-horse-battery",
		"display_name": "Alice Again",
	})
	assert.Equal(t, http.StatusConflict, resp.Code)

	var errEnvelope testErrorEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errEnvelope))
	assert.False(t, errEnvelope.Success)
	assert.Equal(t, "ALREADY_EXISTS", errEnvelope.Code)

	// Login with the right password works.
	resp = ts.api.Post("/api/v1/auth/login", map[string]any{
		"email":    "alice@example.com",
		"password": "correct-horse-battery",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var envelope testEnvelope[AuthResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "alice@example.com", envelope.Data.User.Email)

	// Wrong password is a 401.
	resp = ts.api.Post("/api/v1/auth/login", map[string]any{
		"email":    "alice@example.com",
		"password": "wrong-password-entirely",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuth_LoginRateLimited(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	// All requests share one bucket since no client IP headers are set.
	ts.authRateLimiter = NewRateLimiter(1, time.Minute, 1)

	resp := ts.api.Post("/api/v1/auth/login", map[string]any{
		"email":    "alice@example.com",
		"password": "whatever-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.Code, "first attempt passes the limiter")

	resp = ts.api.Post("/api/v1/auth/login", map[string]any{
		"email":    "alice@example.com",
		"password": "whatever-password",
	})
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)

	var errEnvelope testErrorEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errEnvelope))
	assert.Equal(t, "RATE_LIMITED", errEnvelope.Code)
}

func TestTrackers_RequireAuth(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	resp := ts.api.Get("/api/v1/trackers")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	var errEnvelope testErrorEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errEnvelope))
	assert.False(t, errEnvelope.Success)
	assert.Equal(t, "UNAUTHORIZED", errEnvelope.Code)
}

func TestTracker_Lifecycle(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.registerTestUser(t, "bob@example.com")

	// Create.
	resp := ts.api.Post("/api/v1/trackers", bearer(token), map[string]any{
		"name":  "Pushups",
		"emoji": "💪",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var created testEnvelope[map[string]any]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	trackerID, ok := created.Data["id"].(string)
	require.True(t, ok)
	assert.Equal(t, "Pushups", created.Data["name"])

	// List shows it.
	resp = ts.api.Get("/api/v1/trackers", bearer(token))
	require.Equal(t, http.StatusOK, resp.Code)

	var list testEnvelope[TrackerListResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	require.Len(t, list.Data.Trackers, 1)

	// Adjust today's count.
	resp = ts.api.Post("/api/v1/trackers/"+trackerID+"/adjust", bearer(token), map[string]any{
		"delta": 3,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	// History reflects the adjustment, newest first.
	resp = ts.api.Get("/api/v1/trackers/"+trackerID+"/history?days=3", bearer(token))
	require.Equal(t, http.StatusOK, resp.Code)

	var history testEnvelope[HistoryResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &history))
	require.Len(t, history.Data.History, 3)
	assert.Equal(t, 3, history.Data.History[0].Count)

	// Delete.
	resp = ts.api.Delete("/api/v1/trackers/"+trackerID, bearer(token))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Get("/api/v1/trackers/"+trackerID, bearer(token))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestTracker_CreateValidation(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.registerTestUser(t, "carol@example.com")

	// Missing both emoji and icon.
	resp := ts.api.Post("/api/v1/trackers", bearer(token), map[string]any{
		"name": "Water",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// Missing name fails schema validation.
	resp = ts.api.Post("/api/v1/trackers", bearer(token), map[string]any{
		"emoji": "💧",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	// Malformed JSON body.
	resp = ts.api.Post("/api/v1/trackers", bearer(token), strings.NewReader("{not json"))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSharing_EndToEnd(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	ownerToken := ts.registerTestUser(t, "owner@example.com")
	friendToken := ts.registerTestUser(t, "friend@example.com")

	// Owner creates a tracker.
	resp := ts.api.Post("/api/v1/trackers", bearer(ownerToken), map[string]any{
		"name":  "Meditation",
		"emoji": "🧘",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	var created testEnvelope[map[string]any]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	trackerID := created.Data["id"].(string)

	// Share with the friend by email.
	resp = ts.api.Post("/api/v1/trackers/"+trackerID+"/shares", bearer(ownerToken), map[string]any{
		"email": "friend@example.com",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var shared testEnvelope[map[string]any]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &shared))
	assert.Equal(t, trackerID, shared.Data["original_tracker_id"])

	// The friend sees the copy in their shared list.
	resp = ts.api.Get("/api/v1/trackers/shared", bearer(friendToken))
	require.Equal(t, http.StatusOK, resp.Code)

	var sharedList testEnvelope[TrackerListResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &sharedList))
	require.Len(t, sharedList.Data.Trackers, 1)
	copyID := sharedList.Data.Trackers[0].ID

	// Owner adjusts; the friend's copy converges.
	resp = ts.api.Post("/api/v1/trackers/"+trackerID+"/adjust", bearer(ownerToken), map[string]any{
		"delta": 5,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = ts.api.Get("/api/v1/trackers/"+copyID+"/history?days=1", bearer(friendToken))
	require.Equal(t, http.StatusOK, resp.Code)

	var history testEnvelope[HistoryResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &history))
	require.Len(t, history.Data.History, 1)
	assert.Equal(t, 5, history.Data.History[0].Count)

	// Sharing with an unknown email is a 404.
	resp = ts.api.Post("/api/v1/trackers/"+trackerID+"/shares", bearer(ownerToken), map[string]any{
		"email": "nobody@example.com",
	})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	// Self-sharing is rejected.
	resp = ts.api.Post("/api/v1/trackers/"+trackerID+"/shares", bearer(ownerToken), map[string]any{
		"email": "owner@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestIcons_UploadAndServe(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.registerTestUser(t, "dana@example.com")

	// Upload an icon.
	icon := createTestJPEG(t, 64, 64)
	resp := ts.api.Post("/api/v1/icons", bearer(token), "Content-Type: image/jpeg", bytes.NewReader(icon))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var info testEnvelope[IconInfoResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &info))
	iconID := info.Data.ID
	require.NotEmpty(t, iconID)
	assert.NotEmpty(t, info.Data.BlurHash)

	// Fetch it back through the raw chi route.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/icons/"+iconID, http.NoBody)
	w := httptest.NewRecorder()
	ts.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, icon, w.Body.Bytes())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, cacheControlImmutable, w.Header().Get("Cache-Control"))

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.True(t, etag[0] == '"' && etag[len(etag)-1] == '"', "ETag should be quoted")

	// Conditional request returns 304.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/icons/"+iconID, http.NoBody)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	ts.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.Bytes())

	// A tracker can now reference the icon.
	resp = ts.api.Post("/api/v1/trackers", bearer(token), map[string]any{
		"name":    "Reading",
		"icon_id": iconID,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var tracker testEnvelope[map[string]any]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &tracker))
	assert.Equal(t, iconID, tracker.Data["icon_id"])
	assert.NotEmpty(t, tracker.Data["icon_blur_hash"])
}

func TestProfile_UpdateAndSessions(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	token := ts.registerTestUser(t, "erin@example.com")

	// Update display name.
	resp := ts.api.Patch("/api/v1/profile", bearer(token), map[string]any{
		"display_name": "Erin Renamed",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var user testEnvelope[UserResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &user))
	assert.Equal(t, "Erin Renamed", user.Data.DisplayName)

	// Sessions list shows the registration session and no token hashes.
	resp = ts.api.Get("/api/v1/profile/sessions", bearer(token))
	require.Equal(t, http.StatusOK, resp.Code)

	assert.NotContains(t, resp.Body.String(), "refresh_token_hash")

	var sessions testEnvelope[SessionListResponse]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &sessions))
	require.Len(t, sessions.Data.Sessions, 1)
	sessionID := sessions.Data.Sessions[0].ID

	// Another user cannot revoke that session by ID.
	otherToken := ts.registerTestUser(t, "mallory@example.com")
	resp = ts.api.Delete("/api/v1/profile/sessions/"+sessionID, bearer(otherToken))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	// The owner can.
	resp = ts.api.Delete("/api/v1/profile/sessions/"+sessionID, bearer(token))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestSyncStream_RequiresAuth(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/stream", http.NoBody)
	w := httptest.NewRecorder()
	ts.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_Routes(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{
			name:           "health check",
			method:         http.MethodGet,
			path:           "/health",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "not found",
			method:         http.MethodGet,
			path:           "/api/v1/nonexistent",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "trackers need auth",
			method:         http.MethodGet,
			path:           "/api/v1/trackers",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "profile needs auth",
			method:         http.MethodGet,
			path:           "/api/v1/profile",
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			w := httptest.NewRecorder()

			ts.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

// Helper function to create a test JPEG image.
func createTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			b := uint8(((x + y) * 255) / (width + height))
			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}

	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	require.NoError(t, err)

	return buf.Bytes()
}
