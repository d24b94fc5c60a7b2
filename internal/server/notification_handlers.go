package server

import (
	"strings"

	"helpmatch/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// ListNotifications handles GET /api/notifications
// @Summary List my notifications
// @Description Newest first.
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "Only unread"
// @Param kind query string false "Notification kind"
// @Param request_id query int false "Request"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} models.NotificationEvent
// @Failure 400 {object} models.ErrorResponse
// @Router /notifications [get]
func (s *Server) ListNotifications(c *fiber.Ctx) error {
	requestID, err := queryUint(c, "request_id")
	if err != nil {
		return respondError(c, err)
	}
	page := parsePagination(c, 50)

	events, err := s.notificationService.ListNotifications(c.UserContext(), currentUserID(c), repository.NotificationFilter{
		UnreadOnly: c.QueryBool("unread"),
		Kind:       strings.TrimSpace(c.Query("kind")),
		RequestID:  requestID,
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(events)
}

// GetUnreadCount handles GET /api/notifications/unread-count
func (s *Server) GetUnreadCount(c *fiber.Ctx) error {
	n, err := s.notificationService.UnreadCount(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"unread": n})
}

// MarkNotificationRead handles POST /api/notifications/:id/read
// @Summary Mark a notification read
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param id path int true "Notification ID"
// @Success 200 {object} models.NotificationEvent
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /notifications/{id}/read [post]
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	event, err := s.notificationService.MarkRead(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(event)
}

// MarkAllNotificationsRead handles POST /api/notifications/read-all
func (s *Server) MarkAllNotificationsRead(c *fiber.Ctx) error {
	n, err := s.notificationService.MarkAllRead(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"marked": n})
}
