package server

import (
	"helpmatch/internal/middleware"
	"helpmatch/internal/models"
	"helpmatch/internal/service"

	"github.com/gofiber/fiber/v2"
)

// CreateUser handles POST /api/users
// @Summary Register a user
// @Description Creates a participant and returns a bearer token for it.
// @Tags users
// @Accept json
// @Produce json
// @Param request body object{username=string,email=string,role=string} true "Registration"
// @Success 201 {object} object{token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /users [post]
func (s *Server) CreateUser(c *fiber.Ctx) error {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Role     string `json:"role"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c)
	}

	user, err := s.userService.CreateUser(c.UserContext(), service.CreateUserInput{
		Username: body.Username,
		Email:    body.Email,
		Role:     models.UserRole(body.Role),
	})
	if err != nil {
		return respondError(c, err)
	}

	token, err := middleware.IssueToken(s.tokens, user.ID, s.config.TokenTTL())
	if err != nil {
		return respondError(c, models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// GetUserProfile handles GET /api/users/:id
// @Summary Get a user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id} [get]
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	user, err := s.userRepo.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// GetMyProfile handles GET /api/users/me
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.userRepo.GetByID(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// DeactivateMe handles DELETE /api/users/me. History is kept; the account can
// no longer create or claim requests.
func (s *Server) DeactivateMe(c *fiber.Ctx) error {
	userID := currentUserID(c)
	if err := s.userService.DeactivateUser(c.UserContext(), userID, userID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
