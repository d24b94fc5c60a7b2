package server

import (
	"helpmatch/internal/models"
	"helpmatch/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SubmitPhoto handles POST /api/requests/:id/photos
// @Summary Submit proof of work
// @Description Only the current claimant of a claimed or in-progress request may submit.
// @Tags proof
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param request body object{payload_ref=string} true "Opaque reference to the stored photo"
// @Success 201 {object} models.PhotoSubmission
// @Failure 403 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /requests/{id}/photos [post]
func (s *Server) SubmitPhoto(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		PayloadRef string `json:"payload_ref"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c)
	}

	photo, err := s.proofService.SubmitPhoto(c.UserContext(), id, currentUserID(c), body.PayloadRef)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(photo)
}

// ListPhotos handles GET /api/requests/:id/photos
// @Summary List proof photos
// @Description Oldest first. partition=true groups them by decision.
// @Tags proof
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param partition query bool false "Group by decision"
// @Success 200 {array} models.PhotoSubmission
// @Router /requests/{id}/photos [get]
func (s *Server) ListPhotos(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	photos, err := s.proofService.ListPhotos(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	if c.QueryBool("partition") {
		return c.JSON(service.PartitionPhotos(photos))
	}
	return c.JSON(photos)
}

// ReviewPhoto handles POST /api/photos/:id/review
// @Summary Review a proof photo
// @Description The requester approves or rejects a pending photo. A decision is final.
// @Tags proof
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Photo ID"
// @Param request body object{decision=string,note=string} true "approved or rejected"
// @Success 200 {object} models.PhotoSubmission
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /photos/{id}/review [post]
func (s *Server) ReviewPhoto(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		Decision string `json:"decision"`
		Note     string `json:"note"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c)
	}

	photo, err := s.proofService.ReviewPhoto(c.UserContext(), id, currentUserID(c), models.PhotoDecision(body.Decision), body.Note)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(photo)
}
