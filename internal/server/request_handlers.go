package server

import (
	"strings"
	"time"

	"helpmatch/internal/models"
	"helpmatch/internal/repository"
	"helpmatch/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateRequest handles POST /api/requests
// @Summary Create a request
// @Description Post a new assistance request. It starts open at version 0.
// @Tags requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{title=string,category=string,location=string,requirements=string,scheduled_at=string,estimated_hours=number} true "Request details"
// @Success 201 {object} models.Request
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /requests [post]
func (s *Server) CreateRequest(c *fiber.Ctx) error {
	var body struct {
		Title          string    `json:"title"`
		Category       string    `json:"category"`
		Location       string    `json:"location"`
		Requirements   string    `json:"requirements"`
		ScheduledAt    time.Time `json:"scheduled_at"`
		EstimatedHours float64   `json:"estimated_hours"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c)
	}

	req, err := s.requestService.CreateRequest(c.UserContext(), service.CreateRequestInput{
		RequesterID:    currentUserID(c),
		Title:          body.Title,
		Category:       body.Category,
		Location:       body.Location,
		Requirements:   body.Requirements,
		ScheduledAt:    body.ScheduledAt,
		EstimatedHours: body.EstimatedHours,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// ListRequests handles GET /api/requests
// @Summary List requests
// @Description Newest first. status takes a comma separated list; q searches title and requirements.
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Param status query string false "open,claimed,in_progress,done,cancelled"
// @Param category query string false "Category"
// @Param location query string false "Location"
// @Param requester_id query int false "Requester"
// @Param claimant_id query int false "Claimant"
// @Param q query string false "Text search"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset (max 1000)"
// @Success 200 {array} models.Request
// @Router /requests [get]
func (s *Server) ListRequests(c *fiber.Ctx) error {
	filter, err := parseRequestFilter(c)
	if err != nil {
		return respondError(c, err)
	}
	page := parsePagination(c, 20)
	filter.Limit = page.Offset + page.Limit

	out := make([]*models.Request, 0, page.Limit)
	skipped := 0
	for req, err := range s.requestService.ListRequests(c.UserContext(), filter) {
		if err != nil {
			return respondError(c, err)
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		out = append(out, req)
	}
	return c.JSON(out)
}

func parseRequestFilter(c *fiber.Ctx) (repository.RequestFilter, error) {
	var filter repository.RequestFilter
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := models.ParseRequestStatus(strings.TrimSpace(part))
			if err != nil {
				return filter, err
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	filter.Category = strings.ToLower(strings.TrimSpace(c.Query("category")))
	filter.Location = strings.TrimSpace(c.Query("location"))
	filter.Text = strings.TrimSpace(c.Query("q"))

	var err error
	if filter.RequesterID, err = queryUint(c, "requester_id"); err != nil {
		return filter, err
	}
	if filter.ClaimantID, err = queryUint(c, "claimant_id"); err != nil {
		return filter, err
	}
	return filter, nil
}

// GetRequest handles GET /api/requests/:id
// @Summary Get a request
// @Tags requests
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} models.Request
// @Failure 404 {object} models.ErrorResponse
// @Router /requests/{id} [get]
func (s *Server) GetRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	req, err := s.requestService.GetRequest(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(req)
}

// ClaimRequest handles POST /api/requests/:id/claim
// @Summary Claim a request
// @Description Claims an open request at the version the caller last read. A stale version returns 409.
// @Tags lifecycle
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param request body object{version=int} true "Expected version"
// @Success 200 {object} models.Request
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /requests/{id}/claim [post]
func (s *Server) ClaimRequest(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		Version *int64 `json:"version"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c)
	}
	if body.Version == nil {
		return respondError(c, models.NewValidationError("version is required"))
	}

	req, err := s.lifecycleService.ClaimRequest(c.UserContext(), id, currentUserID(c), *body.Version)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(req)
}

// AdvanceStatus handles POST /api/requests/:id/status
// @Summary Move a request to another status
// @Tags lifecycle
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param request body object{status=string,version=int,reason=string} true "Target status"
// @Success 200 {object} models.Request
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /requests/{id}/status [post]
func (s *Server) AdvanceStatus(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		Status  string `json:"status"`
		Version *int64 `json:"version"`
		Reason  string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c)
	}
	if body.Version == nil {
		return respondError(c, models.NewValidationError("version is required"))
	}
	target, err := models.ParseRequestStatus(body.Status)
	if err != nil {
		return respondError(c, err)
	}

	req, err := s.lifecycleService.AdvanceStatus(c.UserContext(), service.AdvanceInput{
		RequestID:       id,
		ActorID:         currentUserID(c),
		Target:          target,
		ExpectedVersion: *body.Version,
		Reason:          body.Reason,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(req)
}
