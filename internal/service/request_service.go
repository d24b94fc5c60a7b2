package service

import (
	"context"
	"iter"
	"strings"
	"time"

	"helpmatch/internal/models"
	"helpmatch/internal/observability"
	"helpmatch/internal/repository"
	"helpmatch/internal/validation"
)

// CreateRequestInput holds the details a requester supplies.
type CreateRequestInput struct {
	RequesterID    uint      `json:"requester_id"`
	Title          string    `json:"title" validate:"required,max=200"`
	Category       string    `json:"category" validate:"required,category"`
	Location       string    `json:"location" validate:"max=120"`
	Requirements   string    `json:"requirements" validate:"max=4000"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	EstimatedHours float64   `json:"estimated_hours" validate:"gt=0,max=24"`
}

// RequestService provides creation and read access to requests.
type RequestService struct {
	requests repository.RequestRepository
	users    repository.UserRepository
	now      func() time.Time
}

// NewRequestService returns a new RequestService.
func NewRequestService(requests repository.RequestRepository, users repository.UserRepository) *RequestService {
	return &RequestService{requests: requests, users: users, now: utcNow}
}

// CreateRequest validates in and stores a new open request at version 0.
func (s *RequestService) CreateRequest(ctx context.Context, in CreateRequestInput) (*models.Request, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Location = strings.TrimSpace(in.Location)
	in.Requirements = strings.TrimSpace(in.Requirements)

	if err := validateCreateRequest(in, s.now()); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if _, err := activeUser(ctx, s.users, in.RequesterID); err != nil {
		return nil, err
	}

	req := &models.Request{
		RequesterID:    in.RequesterID,
		Title:          in.Title,
		Category:       in.Category,
		Location:       in.Location,
		Requirements:   in.Requirements,
		ScheduledAt:    in.ScheduledAt.UTC(),
		EstimatedHours: in.EstimatedHours,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	observability.LogServiceCall(ctx, "RequestService", "CreateRequest", map[string]interface{}{
		"request_id":   req.ID,
		"requester_id": req.RequesterID,
		"category":     req.Category,
	})
	return req, nil
}

func validateCreateRequest(in CreateRequestInput, now time.Time) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	return validation.ValidateSchedule(in.ScheduledAt, now)
}

// GetRequest returns the request or a NotFoundError.
func (s *RequestService) GetRequest(ctx context.Context, id uint) (*models.Request, error) {
	return s.requests.GetByID(ctx, id)
}

// ListRequests returns a lazy sequence of requests matching filter, newest first.
func (s *RequestService) ListRequests(ctx context.Context, filter repository.RequestFilter) iter.Seq2[*models.Request, error] {
	return s.requests.List(ctx, filter)
}
