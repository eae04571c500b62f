package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/tallyapp/tally-server/internal/domain"
	"github.com/tallyapp/tally-server/internal/service"
)

func (s *Server) registerTrackerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "createTracker",
		Method:      http.MethodPost,
		Path:        "/api/v1/trackers",
		Summary:     "Create tracker",
		Description: "Creates a new tracker in the caller's collection. Exactly one of emoji or icon_id must be set.",
		Tags:        []string{"Trackers"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCreateTracker)

	huma.Register(s.api, huma.Operation{
		OperationID: "listTrackers",
		Method:      http.MethodGet,
		Path:        "/api/v1/trackers",
		Summary:     "List trackers",
		Description: "Returns every tracker in the caller's collection, oldest first.",
		Tags:        []string{"Trackers"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListTrackers)

	huma.Register(s.api, huma.Operation{
		OperationID: "listSharedTrackers",
		Method:      http.MethodGet,
		Path:        "/api/v1/trackers/shared",
		Summary:     "List shared trackers",
		Description: "Returns only the copies shared into the caller's collection.",
		Tags:        []string{"Trackers"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListSharedTrackers)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTracker",
		Method:      http.MethodGet,
		Path:        "/api/v1/trackers/{id}",
		Summary:     "Get tracker",
		Tags:        []string{"Trackers"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetTracker)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateTracker",
		Method:      http.MethodPatch,
		Path:        "/api/v1/trackers/{id}",
		Summary:     "Update tracker",
		Description: "Modifies a tracker's display fields. Setting an emoji clears any icon and vice versa.",
		Tags:        []string{"Trackers"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateTracker)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteTracker",
		Method:      http.MethodDelete,
		Path:        "/api/v1/trackers/{id}",
		Summary:     "Delete tracker",
		Description: "Removes a tracker, cascading through the sharing graph.",
		Tags:        []string{"Trackers"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteTracker)

	huma.Register(s.api, huma.Operation{
		OperationID: "adjustTracker",
		Method:      http.MethodPost,
		Path:        "/api/v1/trackers/{id}/adjust",
		Summary:     "Adjust daily count",
		Description: "Applies a count delta for one calendar day, fanning out across shared copies.",
		Tags:        []string{"Trackers"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleAdjustTracker)

	huma.Register(s.api, huma.Operation{
		OperationID: "trackerHistory",
		Method:      http.MethodGet,
		Path:        "/api/v1/trackers/{id}/history",
		Summary:     "Tracker history",
		Description: "Returns recent daily counts, newest first. The window defaults to a week.",
		Tags:        []string{"Trackers"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleTrackerHistory)
}

// === DTOs ===

// CreateTrackerRequest is the request body for tracker creation.
type CreateTrackerRequest struct {
	Name        string `json:"name" validate:"required,max=100" doc:"Tracker name"`
	Description string `json:"description,omitempty" validate:"max=500" doc:"Optional description"`
	Emoji       string `json:"emoji,omitempty" validate:"max=16" doc:"Emoji icon (mutually exclusive with icon_id)"`
	IconID      string `json:"icon_id,omitempty" doc:"Uploaded image icon ID (mutually exclusive with emoji)"`
}

// CreateTrackerInput wraps the create request for Huma.
type CreateTrackerInput struct {
	Body CreateTrackerRequest
}

// UpdateTrackerRequest is the request body for tracker updates.
type UpdateTrackerRequest struct {
	Name        string `json:"name" validate:"required,max=100" doc:"Tracker name"`
	Description string `json:"description,omitempty" validate:"max=500" doc:"Optional description"`
	Emoji       string `json:"emoji,omitempty" validate:"max=16" doc:"Emoji icon (mutually exclusive with icon_id)"`
	IconID      string `json:"icon_id,omitempty" doc:"Uploaded image icon ID (mutually exclusive with emoji)"`
}

// UpdateTrackerInput wraps the update request for Huma.
type UpdateTrackerInput struct {
	ID   string `path:"id" doc:"Tracker ID"`
	Body UpdateTrackerRequest
}

// TrackerIDInput identifies a tracker by path parameter.
type TrackerIDInput struct {
	ID string `path:"id" doc:"Tracker ID"`
}

// AdjustTrackerRequest is the request body for a count adjustment.
// An empty date defaults to the current local day.
type AdjustTrackerRequest struct {
	Date  string `json:"date,omitempty" doc:"Calendar day (YYYY-MM-DD), defaults to today"`
	Delta int    `json:"delta" doc:"Count delta, may be negative"`
}

// AdjustTrackerInput wraps the adjust request for Huma.
type AdjustTrackerInput struct {
	ID   string `path:"id" doc:"Tracker ID"`
	Body AdjustTrackerRequest
}

// HistoryInput carries the history query parameters.
type HistoryInput struct {
	ID   string `path:"id" doc:"Tracker ID"`
	Days int    `query:"days" doc:"Number of days to return, defaults to 7"`
}

// TrackerOutput wraps a single tracker for Huma.
type TrackerOutput struct {
	Body *domain.Tracker
}

// TrackerListResponse contains a list of trackers.
type TrackerListResponse struct {
	Trackers []*domain.Tracker `json:"trackers" doc:"Trackers, oldest first"`
}

// TrackerListOutput wraps a tracker list for Huma.
type TrackerListOutput struct {
	Body TrackerListResponse
}

// HistoryResponse contains recent daily counts, newest first.
type HistoryResponse struct {
	History []domain.HistoryEntry `json:"history" doc:"Daily counts, newest first"`
}

// HistoryOutput wraps the history response for Huma.
type HistoryOutput struct {
	Body HistoryResponse
}

// === Handlers ===

func (s *Server) handleCreateTracker(ctx context.Context, input *CreateTrackerInput) (*TrackerOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	req := service.CreateTrackerRequest{
		Name:        input.Body.Name,
		Description: input.Body.Description,
		Emoji:       input.Body.Emoji,
		IconID:      input.Body.IconID,
	}

	tracker, err := s.services.Tracker.Create(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	return &TrackerOutput{Body: tracker}, nil
}

func (s *Server) handleListTrackers(ctx context.Context, _ *struct{}) (*TrackerListOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	trackers, err := s.services.Tracker.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &TrackerListOutput{Body: TrackerListResponse{Trackers: trackers}}, nil
}

func (s *Server) handleListSharedTrackers(ctx context.Context, _ *struct{}) (*TrackerListOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	trackers, err := s.services.Tracker.ListShared(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &TrackerListOutput{Body: TrackerListResponse{Trackers: trackers}}, nil
}

func (s *Server) handleGetTracker(ctx context.Context, input *TrackerIDInput) (*TrackerOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	tracker, err := s.services.Tracker.Get(ctx, userID, input.ID)
	if err != nil {
		return nil, err
	}

	return &TrackerOutput{Body: tracker}, nil
}

func (s *Server) handleUpdateTracker(ctx context.Context, input *UpdateTrackerInput) (*TrackerOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	req := service.UpdateTrackerRequest{
		Name:        input.Body.Name,
		Description: input.Body.Description,
		Emoji:       input.Body.Emoji,
		IconID:      input.Body.IconID,
	}

	tracker, err := s.services.Tracker.Update(ctx, userID, input.ID, req)
	if err != nil {
		return nil, err
	}

	return &TrackerOutput{Body: tracker}, nil
}

func (s *Server) handleDeleteTracker(ctx context.Context, input *TrackerIDInput) (*MessageOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.services.Tracker.Delete(ctx, userID, input.ID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Tracker deleted"}}, nil
}

// handleAdjustTracker applies a count delta with sharing fan-out. Fan-out is
// best effort: as long as the caller's own document was updated the request
// succeeds, and failed legs are logged server-side.
func (s *Server) handleAdjustTracker(ctx context.Context, input *AdjustTrackerInput) (*TrackerOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	req := service.AdjustRequest{
		Date:  input.Body.Date,
		Delta: input.Body.Delta,
	}

	tracker, err := s.services.Tracker.Adjust(ctx, userID, input.ID, req)
	if err != nil {
		if tracker == nil {
			return nil, err
		}
		s.logger.Warn("Adjustment applied with failed fan-out legs",
			"tracker_id", input.ID,
			"user_id", userID,
			"error", err,
		)
	}

	return &TrackerOutput{Body: tracker}, nil
}

func (s *Server) handleTrackerHistory(ctx context.Context, input *HistoryInput) (*HistoryOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.services.Tracker.History(ctx, userID, input.ID, input.Days)
	if err != nil {
		return nil, err
	}

	return &HistoryOutput{Body: HistoryResponse{History: history}}, nil
}
