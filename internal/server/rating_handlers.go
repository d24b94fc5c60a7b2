package server

import (
	"helpmatch/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SubmitRating handles POST /api/requests/:id/ratings
// @Summary Rate the other party of a completed request
// @Description Each (request, rater, rated user) triple can be rated once.
// @Tags ratings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param request body object{rated_user_id=int,score=int,category=string,comment=string} true "Rating"
// @Success 201 {object} service.RatingResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Router /requests/{id}/ratings [post]
func (s *Server) SubmitRating(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		RatedUserID uint   `json:"rated_user_id"`
		Score       int    `json:"score"`
		Category    string `json:"category"`
		Comment     string `json:"comment"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c)
	}

	result, err := s.ratingService.SubmitRating(c.UserContext(), service.SubmitRatingInput{
		RequestID:   id,
		RaterID:     currentUserID(c),
		RatedUserID: body.RatedUserID,
		Score:       body.Score,
		Category:    body.Category,
		Comment:     body.Comment,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// ListRatings handles GET /api/requests/:id/ratings
// @Summary List ratings on a request
// @Tags ratings
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {array} models.Rating
// @Router /requests/{id}/ratings [get]
func (s *Server) ListRatings(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	ratings, err := s.ratingService.ListRatings(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ratings)
}

// GetUserRatings handles GET /api/users/:id/ratings
func (s *Server) GetUserRatings(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, 20)

	ratings, err := s.ratingService.ListUserRatings(c.UserContext(), id, page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ratings)
}
