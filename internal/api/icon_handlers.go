package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/tallyapp/tally-server/internal/http/response"
	"github.com/tallyapp/tally-server/internal/service"
)

func (s *Server) registerIconRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:  "uploadIcon",
		Method:       http.MethodPost,
		Path:         "/api/v1/icons",
		Summary:      "Upload tracker icon",
		Description:  "Stores a new tracker icon from the raw request body and returns its ID and BlurHash placeholder.",
		Tags:         []string{"Icons"},
		Security:     []map[string][]string{{"bearer": {}}},
		MaxBodyBytes: service.MaxIconSize,
	}, s.handleUploadIcon)

	// NOTE: icon serving registered directly on chi (not Huma) because the
	// raw image bytes must skip the JSON envelope.
	s.router.Get("/api/v1/icons/{id}", s.handleServeIcon)
}

// UploadIconInput carries the raw icon image bytes.
type UploadIconInput struct {
	ContentType string `header:"Content-Type" doc:"Image MIME type"`
	RawBody     []byte
}

// IconInfoResponse describes a stored icon.
type IconInfoResponse struct {
	ID       string `json:"id" doc:"Icon ID"`
	BlurHash string `json:"blur_hash,omitempty" doc:"BlurHash placeholder"`
}

// IconInfoOutput wraps the icon info for Huma.
type IconInfoOutput struct {
	Body IconInfoResponse
}

func (s *Server) handleUploadIcon(ctx context.Context, input *UploadIconInput) (*IconInfoOutput, error) {
	if _, err := GetUserID(ctx); err != nil {
		return nil, err
	}

	info, err := s.services.Icon.Upload(ctx, input.RawBody)
	if err != nil {
		return nil, err
	}

	return &IconInfoOutput{Body: IconInfoResponse{ID: info.ID, BlurHash: info.BlurHash}}, nil
}

// handleServeIcon serves raw icon bytes. Icon content never changes under a
// given ID, so responses carry an ETag and an immutable cache policy.
func (s *Server) handleServeIcon(w http.ResponseWriter, r *http.Request) {
	iconID := chi.URLParam(r, "id")

	etag, err := s.services.Icon.ETag(iconID)
	if err == nil {
		etag = `"` + etag + `"`
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	} else {
		etag = ""
	}

	data, err := s.services.Icon.Get(iconID)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", cacheControlImmutable)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("Failed to write icon response", "icon_id", iconID, "error", err)
	}
}
